// internal/handlers/payment.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/services"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

const maxWebhookBody = 1 << 16

// PaymentHandler serves checkout, orders, the processor webhook and saved
// payment methods.
type PaymentHandler struct {
	orderService         *services.OrderService
	paymentMethodService *services.PaymentMethodService
}

func NewPaymentHandler(orderService *services.OrderService, paymentMethodService *services.PaymentMethodService) *PaymentHandler {
	return &PaymentHandler{
		orderService:         orderService,
		paymentMethodService: paymentMethodService,
	}
}

// POST /checkout
func (h *PaymentHandler) Checkout(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	response, err := h.orderService.Checkout(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, response)
}

// POST /payments/confirm
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.ConfirmPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderService.ConfirmPayment(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	key := i18n.KeyPaymentPending
	switch order.Status {
	case models.OrderStatusPaid, models.OrderStatusFulfilled:
		key = i18n.KeyPaymentSuccess
	case models.OrderStatusFailed, models.OrderStatusCancelled:
		key = i18n.KeyPaymentFailed
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, key),
		"order":   order,
	})
}

// POST /payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.BadRequestResponse(c, "Unable to read request body", nil)
		return
	}

	if err := h.orderService.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		logrus.WithError(err).Warn("Webhook processing failed")
		utils.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// GET /orders
func (h *PaymentHandler) ListOrders(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), userID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, orders, total, params)
}

// GET /vendor/orders
func (h *PaymentHandler) ListVendorOrders(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	orders, total, err := h.orderService.ListVendorOrders(c.Request.Context(), userID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, orders, total, params)
}

// GET /markets/:id/orders
func (h *PaymentHandler) ListMarketOrders(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	orders, total, err := h.orderService.ListMarketOrders(c.Request.Context(), userID, role, marketID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, orders, total, params)
}

// GET /orders/:id
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), userID, role, orderID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

// POST /orders/:id/fulfill
func (h *PaymentHandler) FulfillOrder(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.FulfillOrder(c.Request.Context(), userID, role, orderID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyOrderFulfilled),
		"order":   order,
	})
}

// POST /orders/:id/cancel
func (h *PaymentHandler) CancelOrder(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyOrderCancelled),
		"order":   order,
	})
}

// POST /admin/orders/:id/refund
func (h *PaymentHandler) RefundOrder(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	orderID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RefundRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderService.RefundOrder(c.Request.Context(), orderID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentRefunded),
		"order":   order,
	})
}

// POST /payment-methods/setup-intent
func (h *PaymentHandler) CreateSetupIntent(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	intent, err := h.paymentMethodService.CreateSetupIntent(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, intent)
}

// GET /payment-methods
func (h *PaymentHandler) ListPaymentMethods(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	methods, err := h.paymentMethodService.List(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, methods)
}

// POST /payment-methods
func (h *PaymentHandler) SavePaymentMethod(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.SavePaymentMethodRequest
	if !bindJSON(c, &req) {
		return
	}

	method, err := h.paymentMethodService.SavePaymentMethod(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":        i18n.T(lang, i18n.KeyPaymentMethodSaved),
		"payment_method": method,
	})
}

// PUT /payment-methods/:id/default
func (h *PaymentHandler) SetDefaultPaymentMethod(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	methodID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	method, err := h.paymentMethodService.SetDefault(c.Request.Context(), userID, methodID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, method)
}

// DELETE /payment-methods/:id
func (h *PaymentHandler) DeletePaymentMethod(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	methodID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.paymentMethodService.Delete(c.Request.Context(), userID, methodID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentMethodRemoved),
	})
}
