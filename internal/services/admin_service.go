// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

const defaultInviteTTL = 7 * 24 * time.Hour

type AdminService struct {
	db     *gorm.DB
	config *config.Config
	email  *EmailService
}

type AdminDashboardStats struct {
	TotalUsers          int64            `json:"total_users"`
	ActiveUsers         int64            `json:"active_users"`
	NewUsersThisMonth   int64            `json:"new_users_this_month"`
	UsersByRole         map[string]int64 `json:"users_by_role"`
	TotalMarkets        int64            `json:"total_markets"`
	ActiveMarkets       int64            `json:"active_markets"`
	SubmissionsByStatus map[string]int64 `json:"submissions_by_status"`
	TotalOrders         int64            `json:"total_orders"`
	PaidOrders          int64            `json:"paid_orders"`
	GrossSales          float64          `json:"gross_sales"`
	MonthlySales        float64          `json:"monthly_sales"`
	PlatformFees        float64          `json:"platform_fees"`
	PendingCommissions  float64          `json:"pending_commissions"`
	OpenInvites         int64            `json:"open_invites"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	Role          *models.UserRole   `json:"role,omitempty"`
	Status        *models.UserStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time         `json:"created_after,omitempty"`
	CreatedBefore *time.Time         `json:"created_before,omitempty"`
}

type UpdateUserRequest struct {
	Status *models.UserStatus `json:"status" validate:"omitempty,oneof=active suspended banned"`
	Role   *models.UserRole   `json:"role" validate:"omitempty,oneof=shopper vendor organizer admin"`
	Reason string             `json:"reason" validate:"max=500"`
}

type CreateInviteRequest struct {
	Role           models.UserRole `json:"role" validate:"required,oneof=shopper vendor organizer admin"`
	MarketID       *uuid.UUID      `json:"market_id"`
	Email          string          `json:"email" validate:"omitempty,email"`
	ExpiresInHours int             `json:"expires_in_hours" validate:"omitempty,min=1,max=2160"`
	SendEmail      bool            `json:"send_email"`
}

type roleCount struct {
	Key   string
	Count int64
}

func NewAdminService(db *gorm.DB, cfg *config.Config, email *EmailService) *AdminService {
	return &AdminService{
		db:     db,
		config: cfg,
		email:  email,
	}
}

// BuildInviteURL renders the signup link handed to an invitee.
func BuildInviteURL(baseURL, token string, role models.UserRole, marketID *uuid.UUID) string {
	q := url.Values{}
	q.Set("invite", token)
	if role != "" {
		q.Set("role", string(role))
	}
	if marketID != nil {
		q.Set("market", marketID.String())
	}
	return fmt.Sprintf("%s/signup?%s", baseURL, q.Encode())
}

func (s *AdminService) CreateInvite(ctx context.Context, adminID uuid.UUID, req *CreateInviteRequest) (*models.Invite, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	if req.MarketID != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Market{}).Where("id = ?", *req.MarketID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: market", utils.ErrNotFound)
		}
	}

	token, err := utils.GenerateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite token: %w", err)
	}

	ttl := defaultInviteTTL
	if req.ExpiresInHours > 0 {
		ttl = time.Duration(req.ExpiresInHours) * time.Hour
	}

	invite := &models.Invite{
		Token:     token,
		Email:     req.Email,
		Role:      req.Role,
		MarketID:  req.MarketID,
		CreatedBy: adminID,
		URL:       BuildInviteURL(s.config.Frontend.BaseURL, token, req.Role, req.MarketID),
		ExpiresAt: time.Now().Add(ttl),
	}

	if err := s.db.WithContext(ctx).Create(invite).Error; err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.createAuditLog(ctx, adminID, "CREATE_INVITE", "invite", &invite.ID,
		map[string]interface{}{"role": req.Role, "email": req.Email})

	if req.SendEmail && req.Email != "" && s.email != nil {
		s.email.SendInvite(invite)
	}

	return invite, nil
}

func (s *AdminService) ListInvites(ctx context.Context, params utils.PaginationParams) ([]models.Invite, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Invite{})
	switch params.Status {
	case "open":
		query = query.Where("accepted_at IS NULL AND expires_at > ?", time.Now())
	case "accepted":
		query = query.Where("accepted_at IS NOT NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count invites: %w", err)
	}

	query = utils.ApplySort(query, params, utils.InviteSort, "created_at")
	query = utils.ApplyPagination(query, params)

	var invites []models.Invite
	if err := query.Find(&invites).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invites: %w", err)
	}
	return invites, total, nil
}

func (s *AdminService) RevokeInvite(ctx context.Context, adminID, inviteID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND accepted_at IS NULL", inviteID).Delete(&models.Invite{})
	if res.Error != nil {
		return fmt.Errorf("failed to revoke invite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: invite", utils.ErrNotFound)
	}

	s.createAuditLog(ctx, adminID, "REVOKE_INVITE", "invite", &inviteID, nil)
	return nil
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{
		UsersByRole:         map[string]int64{},
		SubmissionsByStatus: map[string]int64{},
	}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	queries := []*gorm.DB{
		db.Model(&models.User{}).Count(&stats.TotalUsers),
		db.Model(&models.User{}).Where("status = ?", models.UserStatusActive).Count(&stats.ActiveUsers),
		db.Model(&models.User{}).Where("created_at >= ?", monthStart).Count(&stats.NewUsersThisMonth),
		db.Model(&models.Market{}).Count(&stats.TotalMarkets),
		db.Model(&models.Market{}).Where("status = ?", models.MarketStatusActive).Count(&stats.ActiveMarkets),
		db.Model(&models.Order{}).Count(&stats.TotalOrders),
		db.Model(&models.Order{}).Where("status IN ?", paidStatuses).Count(&stats.PaidOrders),
		db.Model(&models.Order{}).Where("status IN ?", paidStatuses).
			Select("COALESCE(SUM(total), 0)").Scan(&stats.GrossSales),
		db.Model(&models.Order{}).Where("status IN ? AND paid_at >= ?", paidStatuses, monthStart).
			Select("COALESCE(SUM(total), 0)").Scan(&stats.MonthlySales),
		db.Model(&models.Order{}).Where("status IN ?", paidStatuses).
			Select("COALESCE(SUM(platform_fee), 0)").Scan(&stats.PlatformFees),
		db.Model(&models.Commission{}).Where("status = ?", models.CommissionStatusPending).
			Select("COALESCE(SUM(amount), 0)").Scan(&stats.PendingCommissions),
		db.Model(&models.Invite{}).Where("accepted_at IS NULL AND expires_at > ?", now).Count(&stats.OpenInvites),
	}
	for _, q := range queries {
		if q.Error != nil {
			return nil, fmt.Errorf("failed to load dashboard stats: %w", q.Error)
		}
	}

	var roles []roleCount
	if err := db.Model(&models.User{}).Select("role AS key, COUNT(*) AS count").Group("role").Scan(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}
	for _, r := range roles {
		stats.UsersByRole[r.Key] = r.Count
	}

	var statuses []roleCount
	if err := db.Model(&models.Submission{}).Select("status AS key, COUNT(*) AS count").Group("status").Scan(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to count submissions by status: %w", err)
	}
	for _, r := range statuses {
		stats.SubmissionsByStatus[r.Key] = r.Count
	}

	stats.GrossSales = utils.RoundMoney(stats.GrossSales)
	stats.MonthlySales = utils.RoundMoney(stats.MonthlySales)
	stats.PlatformFees = utils.RoundMoney(stats.PlatformFees)
	stats.PendingCommissions = utils.RoundMoney(stats.PendingCommissions)
	return stats, nil
}

// User Management
func (s *AdminService) GetUsers(ctx context.Context, filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		searchTerm := "%" + filter.Search + "%"
		query = query.Where("full_name ILIKE ? OR email ILIKE ?", searchTerm, searchTerm)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, utils.UserSort, "created_at")
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

func (s *AdminService) UpdateUser(ctx context.Context, adminID, userID uuid.UUID, req *UpdateUserRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Status == nil && req.Role == nil {
		return nil, fmt.Errorf("%w: status or role is required", utils.ErrInvalidInput)
	}
	if adminID == userID {
		return nil, fmt.Errorf("%w: cannot change your own account", utils.ErrForbidden)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", utils.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	updates := map[string]interface{}{}
	changes := map[string]interface{}{"reason": req.Reason}
	if req.Status != nil && *req.Status != user.Status {
		updates["status"] = *req.Status
		changes["status"] = map[string]interface{}{"from": user.Status, "to": *req.Status}
	}
	if req.Role != nil && *req.Role != user.Role {
		updates["role"] = *req.Role
		changes["role"] = map[string]interface{}{"from": user.Role, "to": *req.Role}
	}
	if len(updates) == 0 {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.createAuditLog(ctx, adminID, "UPDATE_USER", "user", &userID, changes)
	return &user, nil
}

func (s *AdminService) createAuditLog(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, newValues map[string]interface{}) {
	auditLog := &models.AuditLog{
		UserID:       &userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		NewValues:    models.JSONB(newValues),
	}

	if err := s.db.WithContext(ctx).Create(auditLog).Error; err != nil {
		logrus.WithError(err).WithField("action", action).Warn("Failed to write audit log")
	}
}
