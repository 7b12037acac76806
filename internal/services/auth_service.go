// internal/services/auth_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

const resetTokenTTL = time.Hour

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", utils.ErrInvalidInput)

type AuthService struct {
	db    *gorm.DB
	cfg   *config.Config
	email *EmailService
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email       string          `json:"email" validate:"required,email"`
	Password    string          `json:"password" validate:"required,strong_password"`
	FullName    string          `json:"full_name" validate:"required,max=255"`
	Phone       string          `json:"phone" validate:"omitempty,phone"`
	Role        models.UserRole `json:"role" validate:"omitempty,oneof=shopper vendor organizer"`
	InviteToken string          `json:"invite_token" validate:"omitempty,max=64"`
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"` // in seconds
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,strong_password"`
}

type UpdateProfileRequest struct {
	FullName    *string                `json:"full_name" validate:"omitempty,max=255"`
	Phone       *string                `json:"phone" validate:"omitempty,phone"`
	ProfileData map[string]interface{} `json:"profile_data,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,strong_password"`
}

// Keys inside profile_data owned by the auth flow.
var reservedProfileKeys = map[string]bool{
	"reset_token":              true,
	"reset_token_expires":      true,
	"email_verification_token": true,
}

func NewAuthService(db *gorm.DB, cfg *config.Config, email *EmailService) *AuthService {
	return &AuthService{
		db:    db,
		cfg:   cfg,
		email: email,
	}
}

func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: user with this email already exists", utils.ErrConflict)
	}

	verificationToken, err := utils.GenerateVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	user := &models.User{
		Email:       email,
		FullName:    strings.TrimSpace(req.FullName),
		Phone:       req.Phone,
		Role:        req.Role,
		Status:      models.UserStatusActive,
		ProfileData: models.JSONB{"email_verification_token": verificationToken},
	}
	if user.Role == "" {
		user.Role = models.UserRoleShopper
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invite *models.Invite
		if req.InviteToken != "" {
			inv, err := loadInvite(tx, req.InviteToken, email)
			if err != nil {
				return err
			}
			invite = inv
			user.Role = invite.Role
		}

		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		if invite != nil {
			now := time.Now()
			res := tx.Model(&models.Invite{}).
				Where("id = ? AND accepted_at IS NULL", invite.ID).
				Updates(map[string]interface{}{"accepted_at": now, "accepted_by": user.ID})
			if res.Error != nil {
				return fmt.Errorf("failed to accept invite: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: invite has already been used", utils.ErrConflict)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.email != nil {
		s.email.SendWelcomeEmail(user, verificationToken)
	}

	return s.issueTokens(user)
}

// loadInvite returns a usable invite; an invite issued for an address only
// works for that address.
func loadInvite(tx *gorm.DB, token, email string) (*models.Invite, error) {
	var invite models.Invite
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&invite, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid invite", utils.ErrInvalidInput)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !invite.Usable(time.Now()) {
		return nil, fmt.Errorf("%w: invite has expired or was already used", utils.ErrInvalidInput)
	}
	if invite.Email != "" && !strings.EqualFold(invite.Email, email) {
		return nil, fmt.Errorf("%w: invite was issued for a different email", utils.ErrForbidden)
	}
	return &invite, nil
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := user.CheckPassword(req.Password); err != nil {
		return nil, errInvalidCredentials
	}

	if user.Status == models.UserStatusSuspended {
		return nil, fmt.Errorf("%w: account is suspended", utils.ErrForbidden)
	}
	if user.Status == models.UserStatusBanned {
		return nil, fmt.Errorf("%w: account is banned", utils.ErrForbidden)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to record login time")
	}

	return s.issueTokens(&user)
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	userIDStr, err := utils.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid refresh token", utils.ErrInvalidInput)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user ID in token", utils.ErrInvalidInput)
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != models.UserStatusActive {
		return nil, fmt.Errorf("%w: account is not active", utils.ErrForbidden)
	}

	return s.issueTokens(user)
}

func (s *AuthService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := utils.GenerateJWT(user.ID, user.Email, string(user.Role), s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := utils.GenerateRefreshToken(user.ID, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.cfg.JWT.AccessTokenTTL * 3600,
	}, nil
}

// ForgotPassword never reveals whether the email is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, req *ForgotPasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).Error("Failed to look up user for password reset")
		}
		return nil
	}

	resetToken, err := utils.GenerateVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	if user.ProfileData == nil {
		user.ProfileData = make(models.JSONB)
	}
	user.ProfileData["reset_token"] = utils.HashString(resetToken)
	user.ProfileData["reset_token_expires"] = time.Now().Add(resetTokenTTL).Unix()

	if err := s.db.WithContext(ctx).Model(&user).Update("profile_data", user.ProfileData).Error; err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	if s.email != nil {
		s.email.SendPasswordResetEmail(&user, resetToken)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, req *ResetPasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("profile_data->>'reset_token' = ?", utils.HashString(req.Token)).First(&user).Error; err != nil {
		return fmt.Errorf("%w: invalid or expired reset token", utils.ErrInvalidInput)
	}

	if !resetTokenValid(user.ProfileData, time.Now()) {
		return fmt.Errorf("%w: reset token has expired", utils.ErrInvalidInput)
	}

	if err := user.SetPassword(req.NewPassword); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	delete(user.ProfileData, "reset_token")
	delete(user.ProfileData, "reset_token_expires")

	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"password_hash": user.PasswordHash,
		"profile_data":  user.ProfileData,
	}).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// resetTokenValid reads the expiry stored next to the token. JSONB numbers
// come back as float64.
func resetTokenValid(profile models.JSONB, now time.Time) bool {
	var expires int64
	switch v := profile["reset_token_expires"].(type) {
	case float64:
		expires = int64(v)
	case int64:
		expires = v
	default:
		return false
	}
	return now.Unix() <= expires
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", utils.ErrInvalidInput)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("profile_data->>'email_verification_token' = ?", token).First(&user).Error; err != nil {
		return fmt.Errorf("%w: invalid verification token", utils.ErrInvalidInput)
	}

	if user.EmailVerifiedAt != nil {
		return fmt.Errorf("%w: email already verified", utils.ErrConflict)
	}

	now := time.Now()
	delete(user.ProfileData, "email_verification_token")

	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"email_verified_at": now,
		"profile_data":      user.ProfileData,
	}).Error; err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	return nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", utils.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.ProfileData != nil {
		if user.ProfileData == nil {
			user.ProfileData = make(models.JSONB)
		}
		for key, value := range req.ProfileData {
			if reservedProfileKeys[key] {
				continue
			}
			user.ProfileData[key] = value
		}
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"full_name":    user.FullName,
		"phone":        user.Phone,
		"profile_data": user.ProfileData,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req *ChangePasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := user.CheckPassword(req.CurrentPassword); err != nil {
		return fmt.Errorf("%w: current password is incorrect", utils.ErrInvalidInput)
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", user.PasswordHash).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// DeleteAccount soft deletes the user once no paid order awaits pickup.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := user.CheckPassword(password); err != nil {
		return fmt.Errorf("%w: invalid password", utils.ErrInvalidInput)
	}

	var open int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("shopper_id = ? AND status = ?", userID, models.OrderStatusPaid).
		Count(&open).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("%w: cannot delete account with unfulfilled orders", utils.ErrConflict)
	}

	if err := s.db.WithContext(ctx).Delete(user).Error; err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
