package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/config"
)

type stubReports struct {
	calls int
	err   error
}

func (s *stubReports) GenerateDailyReports(ctx context.Context, now time.Time) (int, error) {
	s.calls++
	return 2, s.err
}

type stubOrders struct {
	maxAge time.Duration
}

func (s *stubOrders) CancelStaleOrders(ctx context.Context, maxAge time.Duration) (int, error) {
	s.maxAge = maxAge
	return 1, nil
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:           true,
		Location:          "UTC",
		DailyReportSpec:   "0 15 2 * * *",
		StaleOrderSpec:    "@hourly",
		StaleOrderMaxAgeH: 24,
	}
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := New(testConfig(), &stubReports{}, &stubOrders{})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)
}

func TestNewRejectsBadCronExpression(t *testing.T) {
	cfg := testConfig()
	cfg.DailyReportSpec = "not a schedule"
	_, err := New(cfg, &stubReports{}, &stubOrders{})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Location = "Mars/Olympus"
	_, err = New(cfg, &stubReports{}, &stubOrders{})
	assert.Error(t, err)
}

func TestJobsCallServices(t *testing.T) {
	reports := &stubReports{err: errors.New("db down")}
	orders := &stubOrders{}
	cfg := testConfig()
	cfg.StaleOrderMaxAgeH = 6

	s, err := New(cfg, reports, orders)
	require.NoError(t, err)

	s.RunDailyReports()
	s.RunStaleOrderSweep()

	assert.Equal(t, 1, reports.calls)
	assert.Equal(t, 6*time.Hour, orders.maxAge)
}

func TestStartStop(t *testing.T) {
	s, err := New(testConfig(), &stubReports{}, &stubOrders{})
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
