// internal/models/market.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Market is a farmers-market location. Schedule maps a lowercase weekday
// ("saturday") to {"open": "08:00", "close": "13:00"}.
type Market struct {
	BaseModel
	OrganizerID       uuid.UUID      `json:"organizer_id" gorm:"type:uuid;not null;index"`
	Name              string         `json:"name" gorm:"size:255;not null"`
	Description       string         `json:"description" gorm:"type:text"`
	Address           string         `json:"address" gorm:"size:255"`
	City              string         `json:"city" gorm:"size:100;index"`
	State             string         `json:"state" gorm:"size:50;index"`
	Zip               string         `json:"zip" gorm:"size:10"`
	Latitude          *float64       `json:"latitude" gorm:"type:decimal(10,7)"`
	Longitude         *float64       `json:"longitude" gorm:"type:decimal(10,7)"`
	PlaceID           string         `json:"place_id,omitempty" gorm:"size:255"`
	Schedule          JSONB          `json:"schedule" gorm:"type:jsonb"`
	MarketDays        pq.StringArray `json:"market_days" gorm:"type:text[]"`
	SeasonStart       *time.Time     `json:"season_start" gorm:"type:date"`
	SeasonEnd         *time.Time     `json:"season_end" gorm:"type:date"`
	Website           string         `json:"website,omitempty" gorm:"size:255"`
	ImageURLs         pq.StringArray `json:"image_urls" gorm:"type:text[]"`
	ApplicationFee    float64        `json:"application_fee" gorm:"type:decimal(10,2);default:0"`
	CommissionPercent float64        `json:"commission_percent" gorm:"type:decimal(5,2);default:0"`
	AcceptingVendors  bool           `json:"accepting_vendors" gorm:"not null"`
	Status            MarketStatus   `json:"status" gorm:"type:varchar(20);default:'active';index"`

	// Relationships
	Organizer   User         `json:"organizer,omitempty" gorm:"foreignKey:OrganizerID"`
	Submissions []Submission `json:"submissions,omitempty" gorm:"foreignKey:MarketID"`

	// Distance is filled by nearby searches and never persisted.
	Distance *float64 `json:"distance_miles,omitempty" gorm:"-"`
}

func (m *Market) HasCoordinates() bool {
	return m.Latitude != nil && m.Longitude != nil
}

func (m *Market) FullAddress() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{m.Address, m.City, m.State, m.Zip} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// OpenOn reports whether the market lists the given weekday.
func (m *Market) OpenOn(day time.Weekday) bool {
	name := strings.ToLower(day.String())
	for _, d := range m.MarketDays {
		if strings.ToLower(d) == name {
			return true
		}
	}
	return false
}
