// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Order struct {
	BaseModel
	OrderNumber     string      `json:"order_number" gorm:"size:32;uniqueIndex;not null"`
	ShopperID       uuid.UUID   `json:"shopper_id" gorm:"type:uuid;not null;index"`
	Status          OrderStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Subtotal        float64     `json:"subtotal" gorm:"type:decimal(10,2);not null"`
	PlatformFee     float64     `json:"platform_fee" gorm:"type:decimal(10,2);not null"`
	Total           float64     `json:"total" gorm:"type:decimal(10,2);not null"`
	Currency        string      `json:"currency" gorm:"size:3;default:'usd'"`
	PaymentIntentID string      `json:"payment_intent_id,omitempty" gorm:"size:255;index"`
	PickupMarketID  *uuid.UUID  `json:"pickup_market_id" gorm:"type:uuid;index"`
	AddressID       *uuid.UUID  `json:"address_id" gorm:"type:uuid"`
	Notes           string      `json:"notes,omitempty" gorm:"type:text"`
	PaidAt          *time.Time  `json:"paid_at"`
	RefundedAt      *time.Time  `json:"refunded_at"`
	FulfilledAt     *time.Time  `json:"fulfilled_at"`

	// Relationships
	Shopper User        `json:"shopper,omitempty" gorm:"foreignKey:ShopperID"`
	Items   []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

type OrderItem struct {
	BaseModel
	OrderID      uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	SubmissionID uuid.UUID `json:"submission_id" gorm:"type:uuid;not null;index"`
	MarketID     uuid.UUID `json:"market_id" gorm:"type:uuid;not null;index"`
	ProductID    string    `json:"product_id" gorm:"size:64;not null"`
	ProductName  string    `json:"product_name" gorm:"size:255;not null"`
	UnitPrice    float64   `json:"unit_price" gorm:"type:decimal(10,2);not null"`
	Quantity     int       `json:"quantity" gorm:"not null"`
	LineTotal    float64   `json:"line_total" gorm:"type:decimal(10,2);not null"`

	// Relationships
	Submission Submission `json:"submission,omitempty" gorm:"foreignKey:SubmissionID"`
}

type Commission struct {
	BaseModel
	OrderID      uuid.UUID        `json:"order_id" gorm:"type:uuid;not null;index"`
	OrderItemID  uuid.UUID        `json:"order_item_id" gorm:"type:uuid;not null;uniqueIndex"`
	MarketID     uuid.UUID        `json:"market_id" gorm:"type:uuid;not null;index"`
	SubmissionID uuid.UUID        `json:"submission_id" gorm:"type:uuid;not null;index"`
	GrossAmount  float64          `json:"gross_amount" gorm:"type:decimal(10,2);not null"`
	Percent      float64          `json:"percent" gorm:"type:decimal(5,2);not null"`
	Amount       float64          `json:"amount" gorm:"type:decimal(10,2);not null"`
	Status       CommissionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	SettledAt    *time.Time       `json:"settled_at"`
}
