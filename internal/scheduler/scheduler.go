// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/farmers-market-backend/internal/config"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ReportGenerator builds the previous day's market reports.
type ReportGenerator interface {
	GenerateDailyReports(ctx context.Context, now time.Time) (int, error)
}

// OrderSweeper cancels orders left pending too long.
type OrderSweeper interface {
	CancelStaleOrders(ctx context.Context, maxAge time.Duration) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	cfg     config.SchedulerConfig
	reports ReportGenerator
	orders  OrderSweeper
	timeout time.Duration
}

func New(cfg config.SchedulerConfig, reports ReportGenerator, orders OrderSweeper) (*Scheduler, error) {
	loc := time.Local
	if cfg.Location != "" && cfg.Location != "Local" {
		l, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler location %q: %w", cfg.Location, err)
		}
		loc = l
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
		cfg:     cfg,
		reports: reports,
		orders:  orders,
		timeout: 10 * time.Minute,
	}

	if _, err := s.cron.AddFunc(cfg.DailyReportSpec, s.RunDailyReports); err != nil {
		return nil, fmt.Errorf("invalid daily report schedule %q: %w", cfg.DailyReportSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.StaleOrderSpec, s.RunStaleOrderSweep); err != nil {
		return nil, fmt.Errorf("invalid stale order schedule %q: %w", cfg.StaleOrderSpec, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logrus.Warn("Scheduler stopped before running jobs finished")
	}
}

func (s *Scheduler) RunDailyReports() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.reports.GenerateDailyReports(ctx, start)
	if err != nil {
		logrus.WithError(err).Error("Daily report job failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"reports":  n,
		"duration": time.Since(start).String(),
	}).Info("Daily report job finished")
}

func (s *Scheduler) RunStaleOrderSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	maxAge := time.Duration(s.cfg.StaleOrderMaxAgeH) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	n, err := s.orders.CancelStaleOrders(ctx, maxAge)
	if err != nil {
		logrus.WithError(err).Error("Stale order job failed")
		return
	}
	if n > 0 {
		logrus.WithField("cancelled", n).Info("Cancelled stale pending orders")
	}
}
