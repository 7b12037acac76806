// internal/handlers/submission.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/services"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type SubmissionHandler struct {
	submissionService *services.SubmissionService
}

func NewSubmissionHandler(submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

// POST /submissions
func (h *SubmissionHandler) Apply(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateSubmissionRequest
	if !bindJSON(c, &req) {
		return
	}

	submission, err := h.submissionService.Apply(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":    i18n.T(lang, i18n.KeySubmissionCreated),
		"submission": submission,
	})
}

// GET /submissions/mine
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	submissions, total, err := h.submissionService.ListMine(c.Request.Context(), userID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, submissions, total, params)
}

// GET /markets/:id/submissions
func (h *SubmissionHandler) ListForMarket(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	submissions, total, err := h.submissionService.ListForMarket(c.Request.Context(), userID, role, marketID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, submissions, total, params)
}

// GET /submissions/:id
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	submission, err := h.submissionService.GetSubmission(c.Request.Context(), userID, role, id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, submission)
}

// PUT /submissions/:id
func (h *SubmissionHandler) UpdateSubmission(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateSubmissionRequest
	if !bindJSON(c, &req) {
		return
	}

	submission, err := h.submissionService.UpdateSubmission(c.Request.Context(), userID, id, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":    i18n.T(lang, i18n.KeySubmissionUpdated),
		"submission": submission,
	})
}

// PUT /submissions/:id/status
func (h *SubmissionHandler) ChangeStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SubmissionStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	submission, err := h.submissionService.ChangeStatus(c.Request.Context(), userID, role, id, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	key := i18n.KeySubmissionUpdated
	switch req.Status {
	case models.SubmissionStatusApproved:
		key = i18n.KeySubmissionApproved
	case models.SubmissionStatusRejected:
		key = i18n.KeySubmissionRejected
	case models.SubmissionStatusWithdrawn:
		key = i18n.KeySubmissionWithdrawn
	}

	utils.SuccessResponse(c, gin.H{
		"message":    i18n.T(lang, key),
		"submission": submission,
	})
}

// DELETE /submissions/:id
func (h *SubmissionHandler) DeleteSubmission(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.submissionService.DeleteSubmission(c.Request.Context(), userID, role, id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeySubmissionDeleted),
	})
}

// POST /submissions/:id/products
func (h *SubmissionHandler) AddProduct(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ProductInput
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.submissionService.AddProduct(c.Request.Context(), userID, id, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, product)
}

// PUT /submissions/:id/products
func (h *SubmissionHandler) ReplaceProducts(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ReplaceProductsRequest
	if !bindJSON(c, &req) {
		return
	}

	submission, err := h.submissionService.ReplaceProducts(c.Request.Context(), userID, id, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, submission)
}

// PATCH /submissions/:id/products/:productId
func (h *SubmissionHandler) UpdateProduct(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.submissionService.UpdateProduct(c.Request.Context(), userID, id, c.Param("productId"), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, product)
}

// DELETE /submissions/:id/products/:productId
func (h *SubmissionHandler) RemoveProduct(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.submissionService.RemoveProduct(c.Request.Context(), userID, id, c.Param("productId")); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"removed": c.Param("productId")})
}

// POST /submissions/:id/images
func (h *SubmissionHandler) UploadImage(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "image"), nil)
		return
	}
	defer file.Close()

	submission, err := h.submissionService.UploadImage(c.Request.Context(), userID, id, file, header)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":    i18n.T(lang, i18n.KeyFileUploadSuccess),
		"submission": submission,
	})
}

// GET /catalog
func (h *SubmissionHandler) Catalog(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.CatalogFilter{
		MarketID: optionalUUIDQuery(c, "market_id"),
		Search:   params.Search,
		Category: params.Category,
	}

	products, total, err := h.submissionService.Catalog(c.Request.Context(), filter, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, products, total, params)
}
