// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Email            string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash     string     `json:"-" gorm:"size:255;not null"`
	FullName         string     `json:"full_name" gorm:"size:255"`
	Phone            string     `json:"phone,omitempty" gorm:"size:32"`
	Role             UserRole   `json:"role" gorm:"type:varchar(20);not null;index"`
	Status           UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	StripeCustomerID string     `json:"-" gorm:"size:255"`
	ProfileData      JSONB      `json:"profile_data,omitempty" gorm:"type:jsonb"`
	EmailVerifiedAt  *time.Time `json:"email_verified_at"`
	LastLoginAt      *time.Time `json:"last_login_at"`

	// Relationships
	Submissions []Submission `json:"submissions,omitempty" gorm:"foreignKey:UserID"`
	Addresses   []Address    `json:"addresses,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
