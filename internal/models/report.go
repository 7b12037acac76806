// internal/models/report.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Report struct {
	BaseModel
	MarketID        uuid.UUID    `json:"market_id" gorm:"type:uuid;not null;index"`
	GeneratedBy     *uuid.UUID   `json:"generated_by" gorm:"type:uuid"`
	PeriodStart     time.Time    `json:"period_start" gorm:"not null;index"`
	PeriodEnd       time.Time    `json:"period_end" gorm:"not null"`
	GrossSales      float64      `json:"gross_sales" gorm:"type:decimal(12,2);not null"`
	OrderCount      int64        `json:"order_count" gorm:"not null"`
	CommissionTotal float64      `json:"commission_total" gorm:"type:decimal(12,2);not null"`
	VendorBreakdown JSONB        `json:"vendor_breakdown" gorm:"type:jsonb"`
	Status          ReportStatus `json:"status" gorm:"type:varchar(20);default:'generated'"`

	Market Market `json:"market,omitempty" gorm:"foreignKey:MarketID"`
}

// VendorSales is one row of a report's per-vendor breakdown.
type VendorSales struct {
	SubmissionID string  `json:"submission_id" csv:"submission_id"`
	BusinessName string  `json:"business_name" csv:"business_name"`
	ItemsSold    int64   `json:"items_sold" csv:"items_sold"`
	GrossSales   float64 `json:"gross_sales" csv:"gross_sales"`
	Commission   float64 `json:"commission" csv:"commission"`
}
