// internal/handlers/market.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/services"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type MarketHandler struct {
	marketService *services.MarketService
}

func NewMarketHandler(marketService *services.MarketService) *MarketHandler {
	return &MarketHandler{marketService: marketService}
}

// GET /markets
func (h *MarketHandler) ListMarkets(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.MarketFilter{
		State:       c.Query("state"),
		City:        c.Query("city"),
		Day:         c.Query("day"),
		OrganizerID: optionalUUIDQuery(c, "organizer_id"),
	}
	if accepting := c.Query("accepting_vendors"); accepting != "" {
		if v, err := strconv.ParseBool(accepting); err == nil {
			filter.AcceptingVendors = &v
		}
	}

	markets, total, err := h.marketService.SearchMarkets(c.Request.Context(), params, filter)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, markets, total, params)
}

// GET /markets/nearby
func (h *MarketHandler) NearbyMarkets(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.NearbyRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "query"), err.Error())
		return
	}

	markets, err := h.marketService.NearbyMarkets(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, markets)
}

// GET /markets/:id
func (h *MarketHandler) GetMarket(c *gin.Context) {
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	market, err := h.marketService.GetMarket(c.Request.Context(), marketID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, market)
}

// GET /markets/:id/vendors
func (h *MarketHandler) ListVendors(c *gin.Context) {
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	vendors, total, err := h.marketService.ListVendors(c.Request.Context(), marketID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, vendors, total, params)
}

// POST /markets
func (h *MarketHandler) CreateMarket(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateMarketRequest
	if !bindJSON(c, &req) {
		return
	}

	market, err := h.marketService.CreateMarket(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyMarketCreated),
		"market":  market,
	})
}

// PUT /markets/:id
func (h *MarketHandler) UpdateMarket(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateMarketRequest
	if !bindJSON(c, &req) {
		return
	}

	market, err := h.marketService.UpdateMarket(c.Request.Context(), userID, role, marketID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyMarketUpdated),
		"market":  market,
	})
}

// DELETE /markets/:id
func (h *MarketHandler) DeleteMarket(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.marketService.DeleteMarket(c.Request.Context(), userID, role, marketID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyMarketDeleted),
	})
}

// POST /markets/:id/images
func (h *MarketHandler) UploadImage(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "image"), nil)
		return
	}
	defer file.Close()

	market, err := h.marketService.UploadImage(c.Request.Context(), userID, role, marketID, file, header)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyFileUploadSuccess),
		"market":  market,
	})
}

// DELETE /markets/:id/images
func (h *MarketHandler) RemoveImage(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		URL string `json:"url" validate:"required,url"`
	}
	if !bindJSON(c, &req) {
		return
	}

	market, err := h.marketService.RemoveImage(c.Request.Context(), userID, role, marketID, req.URL)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"market": market})
}
