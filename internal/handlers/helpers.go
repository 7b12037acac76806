// internal/handlers/helpers.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// currentUser reads the authenticated caller, writing a 401 when absent.
func currentUser(c *gin.Context) (uuid.UUID, models.UserRole, bool) {
	userID, ok := utils.GetUserUUID(c)
	if !ok {
		utils.UnauthorizedResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAuthRequired))
		return uuid.Nil, "", false
	}
	role, _ := utils.GetUserRoleFromContext(c)
	return userID, models.UserRole(role), true
}

// bindJSON decodes and validates the request body, writing a 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)

	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func paginated(c *gin.Context, data interface{}, total int64, params utils.PaginationParams) {
	utils.PaginatedResponse(c, utils.CreatePaginationResult(data, total, params))
}

func optionalUUIDQuery(c *gin.Context, name string) *uuid.UUID {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
