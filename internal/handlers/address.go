// internal/handlers/address.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/services"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type AddressHandler struct {
	addressService *services.AddressService
}

func NewAddressHandler(addressService *services.AddressService) *AddressHandler {
	return &AddressHandler{addressService: addressService}
}

// GET /addresses
func (h *AddressHandler) List(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	addresses, err := h.addressService.List(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, addresses)
}

// POST /addresses
func (h *AddressHandler) Create(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.AddressRequest
	if !bindJSON(c, &req) {
		return
	}

	address, err := h.addressService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, address)
}

// PUT /addresses/:id
func (h *AddressHandler) Update(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	addressID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.AddressRequest
	if !bindJSON(c, &req) {
		return
	}

	address, err := h.addressService.Update(c.Request.Context(), userID, addressID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, address)
}

// PUT /addresses/:id/default
func (h *AddressHandler) SetDefault(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	addressID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	address, err := h.addressService.SetDefault(c.Request.Context(), userID, addressID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, address)
}

// DELETE /addresses/:id
func (h *AddressHandler) Delete(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	addressID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.addressService.Delete(c.Request.Context(), userID, addressID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyAddressDeleted),
	})
}
