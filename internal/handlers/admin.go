// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/services"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminUserFilter{
		PaginationParams: params,
	}

	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}

	if status := c.Query("status"); status != "" {
		s := models.UserStatus(status)
		filter.Status = &s
	}

	if createdAfter := c.Query("created_after"); createdAfter != "" {
		if t, err := time.Parse("2006-01-02", createdAfter); err == nil {
			filter.CreatedAfter = &t
		}
	}

	if createdBefore := c.Query("created_before"); createdBefore != "" {
		if t, err := time.Parse("2006-01-02", createdBefore); err == nil {
			filter.CreatedBefore = &t
		}
	}

	users, total, err := h.adminService.GetUsers(c.Request.Context(), filter)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, users, total, params)
}

// PUT /admin/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, _, ok := currentUser(c)
	if !ok {
		return
	}
	userID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.adminService.UpdateUser(c.Request.Context(), adminID, userID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminUserUpdated),
		"user":    user,
	})
}

// POST /admin/invites
func (h *AdminHandler) CreateInvite(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateInviteRequest
	if !bindJSON(c, &req) {
		return
	}

	invite, err := h.adminService.CreateInvite(c.Request.Context(), adminID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminInviteCreated),
		"invite":  invite,
		"url":     invite.URL,
	})
}

// GET /admin/invites
func (h *AdminHandler) ListInvites(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	invites, total, err := h.adminService.ListInvites(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, invites, total, params)
}

// DELETE /admin/invites/:id
func (h *AdminHandler) RevokeInvite(c *gin.Context) {
	adminID, _, ok := currentUser(c)
	if !ok {
		return
	}
	inviteID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.RevokeInvite(c.Request.Context(), adminID, inviteID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"revoked": inviteID})
}
