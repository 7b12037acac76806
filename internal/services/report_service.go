// internal/services/report_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// ReportService aggregates paid sales per market and manages commissions.
type ReportService struct {
	db *gorm.DB
}

type GenerateReportRequest struct {
	PeriodStart time.Time `json:"period_start" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required"`
}

type SettleCommissionsRequest struct {
	CommissionIDs []uuid.UUID `json:"commission_ids"`
	Before        *time.Time  `json:"before"`
}

type CommissionSummary struct {
	Pending float64 `json:"pending"`
	Settled float64 `json:"settled"`
}

// VendorSalesRow is the per-vendor aggregate read from order items.
type VendorSalesRow struct {
	SubmissionID uuid.UUID
	BusinessName string
	ItemsSold    int64
	GrossSales   float64
	Commission   float64
}

var paidStatuses = []models.OrderStatus{models.OrderStatusPaid, models.OrderStatusFulfilled}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// GenerateReport summarizes paid orders of a market in [start, end).
func (s *ReportService) GenerateReport(ctx context.Context, marketID uuid.UUID, start, end time.Time, generatedBy *uuid.UUID) (*models.Report, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: period end must be after start", utils.ErrInvalidInput)
	}

	var rows []VendorSalesRow
	err := s.db.WithContext(ctx).Table("order_items").
		Select(`order_items.submission_id AS submission_id,
			submissions.business_name AS business_name,
			COALESCE(SUM(order_items.quantity), 0) AS items_sold,
			COALESCE(SUM(order_items.line_total), 0) AS gross_sales,
			COALESCE(SUM(commissions.amount), 0) AS commission`).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Joins("JOIN submissions ON submissions.id = order_items.submission_id").
		Joins("LEFT JOIN commissions ON commissions.order_item_id = order_items.id AND commissions.deleted_at IS NULL").
		Where("order_items.market_id = ? AND orders.status IN ? AND orders.paid_at >= ? AND orders.paid_at < ?", marketID, paidStatuses, start, end).
		Where("order_items.deleted_at IS NULL").
		Group("order_items.submission_id, submissions.business_name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales: %w", err)
	}

	var orderCount int64
	if err := s.db.WithContext(ctx).Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.market_id = ? AND orders.status IN ? AND orders.paid_at >= ? AND orders.paid_at < ?", marketID, paidStatuses, start, end).
		Distinct("order_items.order_id").
		Count(&orderCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	report := BuildReport(marketID, start, end, rows, orderCount)
	report.GeneratedBy = generatedBy

	if err := s.db.WithContext(ctx).Omit("Market").Create(report).Error; err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}
	return report, nil
}

// BuildReport totals per-vendor rows into a report.
func BuildReport(marketID uuid.UUID, start, end time.Time, rows []VendorSalesRow, orderCount int64) *models.Report {
	vendors := make([]models.VendorSales, 0, len(rows))
	var gross, commission float64
	for _, r := range rows {
		vendors = append(vendors, models.VendorSales{
			SubmissionID: r.SubmissionID.String(),
			BusinessName: r.BusinessName,
			ItemsSold:    r.ItemsSold,
			GrossSales:   utils.RoundMoney(r.GrossSales),
			Commission:   utils.RoundMoney(r.Commission),
		})
		gross += r.GrossSales
		commission += r.Commission
	}

	return &models.Report{
		MarketID:        marketID,
		PeriodStart:     start,
		PeriodEnd:       end,
		GrossSales:      utils.RoundMoney(gross),
		OrderCount:      orderCount,
		CommissionTotal: utils.RoundMoney(commission),
		VendorBreakdown: models.JSONB{"vendors": vendors},
		Status:          models.ReportStatusGenerated,
	}
}

func (s *ReportService) GenerateForMarket(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID, req *GenerateReportRequest) (*models.Report, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := loadOwnedMarket(ctx, s.db, marketID, userID, role); err != nil {
		return nil, err
	}
	return s.GenerateReport(ctx, marketID, req.PeriodStart, req.PeriodEnd, &userID)
}

// GenerateDailyReports creates the previous day's report for every active
// market that does not have one yet.
func (s *ReportService) GenerateDailyReports(ctx context.Context, now time.Time) (int, error) {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := end.AddDate(0, 0, -1)

	var markets []models.Market
	if err := s.db.WithContext(ctx).Where("status = ?", models.MarketStatusActive).Find(&markets).Error; err != nil {
		return 0, fmt.Errorf("failed to list markets: %w", err)
	}

	generated := 0
	for _, m := range markets {
		var existing int64
		if err := s.db.WithContext(ctx).Model(&models.Report{}).
			Where("market_id = ? AND period_start = ? AND period_end = ?", m.ID, start, end).
			Count(&existing).Error; err != nil {
			return generated, fmt.Errorf("failed to check existing report: %w", err)
		}
		if existing > 0 {
			continue
		}

		if _, err := s.GenerateReport(ctx, m.ID, start, end, nil); err != nil {
			logrus.WithError(err).WithField("market_id", m.ID).Error("Failed to generate daily report")
			continue
		}
		generated++
	}
	return generated, nil
}

func (s *ReportService) ListReports(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID, params utils.PaginationParams) ([]models.Report, int64, error) {
	if _, err := loadOwnedMarket(ctx, s.db, marketID, userID, role); err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.Report{}).Where("market_id = ?", marketID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	query = utils.ApplySort(query, params, utils.ReportSort, "period_start")
	query = utils.ApplyPagination(query, params)

	var reports []models.Report
	if err := query.Find(&reports).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reports: %w", err)
	}
	return reports, total, nil
}

func (s *ReportService) GetReport(ctx context.Context, userID uuid.UUID, role models.UserRole, reportID uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := s.db.WithContext(ctx).First(&report, "id = ?", reportID).Error; err != nil {
		return nil, notFoundOr(err, "report")
	}
	if _, err := loadOwnedMarket(ctx, s.db, report.MarketID, userID, role); err != nil {
		return nil, err
	}
	return &report, nil
}

// ExportCSV renders the vendor breakdown of a report.
func (s *ReportService) ExportCSV(ctx context.Context, userID uuid.UUID, role models.UserRole, reportID uuid.UUID) ([]byte, string, error) {
	report, err := s.GetReport(ctx, userID, role, reportID)
	if err != nil {
		return nil, "", err
	}

	data, err := ReportCSV(report)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("report_%s_%s.csv", report.PeriodStart.Format("20060102"), report.PeriodEnd.Format("20060102"))
	return data, filename, nil
}

func ReportCSV(report *models.Report) ([]byte, error) {
	vendors, err := breakdownRows(report.VendorBreakdown)
	if err != nil {
		return nil, err
	}
	data, err := gocsv.MarshalBytes(&vendors)
	if err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return data, nil
}

func breakdownRows(breakdown models.JSONB) ([]models.VendorSales, error) {
	vendors := []models.VendorSales{}
	raw, ok := breakdown["vendors"]
	if !ok || raw == nil {
		return vendors, nil
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read vendor breakdown: %w", err)
	}
	if err := json.Unmarshal(b, &vendors); err != nil {
		return nil, fmt.Errorf("failed to read vendor breakdown: %w", err)
	}
	return vendors, nil
}

func (s *ReportService) ListCommissions(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID, params utils.PaginationParams) ([]models.Commission, int64, *CommissionSummary, error) {
	if _, err := loadOwnedMarket(ctx, s.db, marketID, userID, role); err != nil {
		return nil, 0, nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Commission{}).Where("market_id = ?", marketID)
	query = utils.ApplyStatusFilter(query, "status", params)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, nil, fmt.Errorf("failed to count commissions: %w", err)
	}

	summary := &CommissionSummary{}
	if err := s.db.WithContext(ctx).Model(&models.Commission{}).
		Select("COALESCE(SUM(CASE WHEN status = 'pending' THEN amount ELSE 0 END), 0) AS pending, "+
			"COALESCE(SUM(CASE WHEN status = 'settled' THEN amount ELSE 0 END), 0) AS settled").
		Where("market_id = ?", marketID).
		Scan(summary).Error; err != nil {
		return nil, 0, nil, fmt.Errorf("failed to sum commissions: %w", err)
	}

	query = utils.ApplySort(query, params, utils.CommissionSort, "created_at")
	query = utils.ApplyPagination(query, params)

	var commissions []models.Commission
	if err := query.Find(&commissions).Error; err != nil {
		return nil, 0, nil, fmt.Errorf("failed to fetch commissions: %w", err)
	}
	return commissions, total, summary, nil
}

// SettleCommissions marks pending commissions of a market settled, either the
// listed ones or all created before the cutoff.
func (s *ReportService) SettleCommissions(ctx context.Context, marketID uuid.UUID, req *SettleCommissionsRequest) (int64, error) {
	if len(req.CommissionIDs) == 0 && req.Before == nil {
		return 0, fmt.Errorf("%w: commission_ids or before is required", utils.ErrInvalidInput)
	}

	query := s.db.WithContext(ctx).Model(&models.Commission{}).
		Where("market_id = ? AND status = ?", marketID, models.CommissionStatusPending)
	if len(req.CommissionIDs) > 0 {
		query = query.Where("id IN ?", req.CommissionIDs)
	}
	if req.Before != nil {
		query = query.Where("created_at < ?", *req.Before)
	}

	res := query.Updates(map[string]interface{}{
		"status":     models.CommissionStatusSettled,
		"settled_at": time.Now(),
	})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to settle commissions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
