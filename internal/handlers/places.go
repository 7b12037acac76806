// internal/handlers/places.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/services"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// PlacesHandler proxies Google Maps lookups. Upstream bodies are written
// unchanged.
type PlacesHandler struct {
	placesService *services.PlacesService
}

func NewPlacesHandler(placesService *services.PlacesService) *PlacesHandler {
	return &PlacesHandler{placesService: placesService}
}

func passThrough(c *gin.Context, body json.RawMessage) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GET /places/autocomplete
func (h *PlacesHandler) Autocomplete(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.AutocompleteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "query"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	body, err := h.placesService.Autocomplete(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	passThrough(c, body)
}

// GET /places/details/:placeId
func (h *PlacesHandler) Details(c *gin.Context) {
	body, err := h.placesService.PlaceDetails(c.Request.Context(), c.Param("placeId"), c.Query("session_token"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	passThrough(c, body)
}

// GET /places/geocode?address=
func (h *PlacesHandler) Geocode(c *gin.Context) {
	result, err := h.placesService.Geocode(c.Request.Context(), c.Query("address"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// POST /places/distance
func (h *PlacesHandler) Distance(c *gin.Context) {
	var req services.DistanceRequest
	if !bindJSON(c, &req) {
		return
	}

	body, err := h.placesService.Distance(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	passThrough(c, body)
}
