// internal/models/conversation.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	BaseModel
	MarketID      *uuid.UUID `json:"market_id" gorm:"type:uuid;index"`
	ShopperID     uuid.UUID  `json:"shopper_id" gorm:"type:uuid;not null;index"`
	SubmissionID  uuid.UUID  `json:"submission_id" gorm:"type:uuid;not null;index"`
	VendorUserID  uuid.UUID  `json:"vendor_user_id" gorm:"type:uuid;not null;index"`
	Subject       string     `json:"subject,omitempty" gorm:"size:255"`
	LastMessageAt *time.Time `json:"last_message_at"`

	// Relationships
	Submission Submission `json:"submission,omitempty" gorm:"foreignKey:SubmissionID"`
	Shopper    User       `json:"shopper,omitempty" gorm:"foreignKey:ShopperID"`
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ShopperID == userID || c.VendorUserID == userID
}

// Counterpart returns the other participant.
func (c *Conversation) Counterpart(userID uuid.UUID) uuid.UUID {
	if c.ShopperID == userID {
		return c.VendorUserID
	}
	return c.ShopperID
}

type Message struct {
	BaseModel
	ConversationID uuid.UUID  `json:"conversation_id" gorm:"type:uuid;not null;index"`
	SenderID       uuid.UUID  `json:"sender_id" gorm:"type:uuid;not null;index"`
	Body           string     `json:"body" gorm:"type:text;not null"`
	ReadAt         *time.Time `json:"read_at"`
}
