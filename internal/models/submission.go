// internal/models/submission.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Submission is a vendor's application to sell at a market. The vendor's
// product catalog lives inside the row as a JSON array.
type Submission struct {
	BaseModel
	UserID       uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;index"`
	MarketID     uuid.UUID        `json:"market_id" gorm:"type:uuid;not null;index"`
	BusinessName string           `json:"business_name" gorm:"size:255;not null"`
	ContactName  string           `json:"contact_name" gorm:"size:255"`
	Email        string           `json:"email" gorm:"size:255;not null"`
	Phone        string           `json:"phone,omitempty" gorm:"size:32"`
	Website      string           `json:"website,omitempty" gorm:"size:255"`
	Description  string           `json:"description" gorm:"type:text"`
	Categories   pq.StringArray   `json:"categories" gorm:"type:text[]"`
	Products     Products         `json:"products" gorm:"type:jsonb"`
	ImageURLs    pq.StringArray   `json:"image_urls" gorm:"type:text[]"`
	Status       SubmissionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ReviewNotes  string           `json:"review_notes,omitempty" gorm:"type:text"`
	ReviewedBy   *uuid.UUID       `json:"reviewed_by" gorm:"type:uuid"`
	ReviewedAt   *time.Time       `json:"reviewed_at"`

	// Relationships
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Market Market `json:"market,omitempty" gorm:"foreignKey:MarketID"`
}

type EmbeddedProduct struct {
	ID          string  `json:"id"`
	Name        string  `json:"name" validate:"required,min=2,max=120"`
	Description string  `json:"description,omitempty" validate:"max=2000"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Unit        string  `json:"unit,omitempty" validate:"max=30"`
	Stock       *int    `json:"stock,omitempty" validate:"omitempty,min=0"`
	ImageURL    string  `json:"image_url,omitempty" validate:"omitempty,url"`
	Available   bool    `json:"available"`
}

// InStock reports whether qty units can be sold. A nil Stock means untracked.
func (p *EmbeddedProduct) InStock(qty int) bool {
	if !p.Available {
		return false
	}
	return p.Stock == nil || *p.Stock >= qty
}

type Products []EmbeddedProduct

func (p Products) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Products) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, p)
}

func (p Products) Find(id string) (int, *EmbeddedProduct) {
	for i := range p {
		if p[i].ID == id {
			return i, &p[i]
		}
	}
	return -1, nil
}
