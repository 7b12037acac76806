// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	StatusCode   int        `json:"status_code"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
}

type Invite struct {
	BaseModel
	Token      string     `json:"token" gorm:"size:64;uniqueIndex;not null"`
	Email      string     `json:"email,omitempty" gorm:"size:255"`
	Role       UserRole   `json:"role" gorm:"type:varchar(20);not null"`
	MarketID   *uuid.UUID `json:"market_id" gorm:"type:uuid"`
	CreatedBy  uuid.UUID  `json:"created_by" gorm:"type:uuid;not null"`
	URL        string     `json:"url" gorm:"type:text;not null"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at"`
	AcceptedBy *uuid.UUID `json:"accepted_by" gorm:"type:uuid"`
}

func (i *Invite) Usable(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}
