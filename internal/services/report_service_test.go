package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

func TestBuildReportTotals(t *testing.T) {
	marketID := uuid.New()
	start := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rows := []VendorSalesRow{
		{SubmissionID: uuid.New(), BusinessName: "Green Acres", ItemsSold: 12, GrossSales: 54.5, Commission: 5.45},
		{SubmissionID: uuid.New(), BusinessName: "Bee Happy", ItemsSold: 3, GrossSales: 36, Commission: 3.6},
	}

	report := BuildReport(marketID, start, end, rows, 7)
	assert.Equal(t, 90.5, report.GrossSales)
	assert.Equal(t, 9.05, report.CommissionTotal)
	assert.Equal(t, int64(7), report.OrderCount)
	assert.Equal(t, models.ReportStatusGenerated, report.Status)

	data, err := ReportCSV(report)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "submission_id,business_name,items_sold,gross_sales,commission", lines[0])
	assert.Contains(t, lines[1], "Green Acres,12,54.5,5.45")
}

func TestReportCSVFromStoredBreakdown(t *testing.T) {
	report := &models.Report{VendorBreakdown: models.JSONB{
		"vendors": []interface{}{
			map[string]interface{}{"submission_id": "abc", "business_name": "Bee Happy", "items_sold": float64(2), "gross_sales": 24.0, "commission": 2.4},
		},
	}}

	data, err := ReportCSV(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "abc,Bee Happy,2,24,2.4")

	empty, err := ReportCSV(&models.Report{})
	require.NoError(t, err)
	assert.Equal(t, "submission_id,business_name,items_sold,gross_sales,commission", strings.TrimSpace(string(empty)))
}

func TestGenerateReportRejectsEmptyPeriod(t *testing.T) {
	db, _ := newMockDB(t)
	svc := NewReportService(db)
	now := time.Now()

	_, err := svc.GenerateReport(context.Background(), uuid.New(), now, now, nil)
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
}

func TestSettleCommissions(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewReportService(db)

	_, err := svc.SettleCommissions(context.Background(), uuid.New(), &SettleCommissionsRequest{})
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))

	mock.ExpectExec(`UPDATE "commissions" SET`).WillReturnResult(sqlmock.NewResult(0, 4))

	before := time.Now()
	n, err := svc.SettleCommissions(context.Background(), uuid.New(), &SettleCommissionsRequest{Before: &before})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
