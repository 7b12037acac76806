// internal/models/payment.go
package models

import "github.com/google/uuid"

type PaymentMethod struct {
	BaseModel
	UserID                uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	StripePaymentMethodID string    `json:"stripe_payment_method_id" gorm:"size:255;not null;uniqueIndex"`
	Brand                 string    `json:"brand" gorm:"size:30"`
	Last4                 string    `json:"last4" gorm:"size:4"`
	ExpMonth              int       `json:"exp_month"`
	ExpYear               int       `json:"exp_year"`
	IsDefault             bool      `json:"is_default" gorm:"default:false"`
}

type Address struct {
	BaseModel
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Label     string    `json:"label" gorm:"size:50"`
	Line1     string    `json:"line1" gorm:"size:255;not null"`
	Line2     string    `json:"line2,omitempty" gorm:"size:255"`
	City      string    `json:"city" gorm:"size:100;not null"`
	State     string    `json:"state" gorm:"size:50;not null"`
	Zip       string    `json:"zip" gorm:"size:10;not null"`
	Latitude  *float64  `json:"latitude" gorm:"type:decimal(10,7)"`
	Longitude *float64  `json:"longitude" gorm:"type:decimal(10,7)"`
	PlaceID   string    `json:"place_id,omitempty" gorm:"size:255"`
	IsDefault bool      `json:"is_default" gorm:"default:false"`
}

func (a *Address) OneLine() string {
	line := a.Line1
	if a.Line2 != "" {
		line += " " + a.Line2
	}
	return line + ", " + a.City + ", " + a.State + " " + a.Zip
}
