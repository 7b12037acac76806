// internal/services/order_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// OrderService covers checkout, payment confirmation and the order lifecycle.
type OrderService struct {
	db      *gorm.DB
	config  *config.Config
	gateway PaymentGateway
	carts   *CartService
	email   *EmailService
	node    *snowflake.Node
}

type CheckoutRequest struct {
	PickupMarketID  *uuid.UUID `json:"pickup_market_id"`
	AddressID       *uuid.UUID `json:"address_id"`
	PaymentMethodID *uuid.UUID `json:"payment_method_id"`
	Notes           string     `json:"notes" validate:"max=1000"`
}

type CheckoutResponse struct {
	Order           *models.Order `json:"order"`
	ClientSecret    string        `json:"client_secret"`
	PaymentIntentID string        `json:"payment_intent_id"`
	PublishableKey  string        `json:"publishable_key,omitempty"`
}

type ConfirmPaymentRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type RefundRequest struct {
	Amount float64 `json:"amount,omitempty" validate:"min=0"`
	Reason string  `json:"reason" validate:"required,max=500"`
}

type OrderTotals struct {
	Subtotal    float64 `json:"subtotal"`
	PlatformFee float64 `json:"platform_fee"`
	Total       float64 `json:"total"`
}

func NewOrderService(db *gorm.DB, cfg *config.Config, gateway PaymentGateway, carts *CartService, email *EmailService) (*OrderService, error) {
	node, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create order number generator: %w", err)
	}

	return &OrderService{
		db:      db,
		config:  cfg,
		gateway: gateway,
		carts:   carts,
		email:   email,
		node:    node,
	}, nil
}

// ComputeTotals applies the platform fee on top of the item subtotal.
func ComputeTotals(subtotal, feePercent float64) OrderTotals {
	subtotal = utils.RoundMoney(subtotal)
	fee := utils.PercentOf(subtotal, feePercent)
	return OrderTotals{
		Subtotal:    subtotal,
		PlatformFee: fee,
		Total:       utils.RoundMoney(subtotal + fee),
	}
}

// BuildOrderItems prices the cart against the current vendor catalogs.
func BuildOrderItems(cart *Cart, submissions map[uuid.UUID]*models.Submission) ([]models.OrderItem, float64, error) {
	items := make([]models.OrderItem, 0, len(cart.Items))
	var subtotal float64

	for _, line := range cart.Items {
		submission, ok := submissions[line.SubmissionID]
		if !ok || submission.Status != models.SubmissionStatusApproved {
			return nil, 0, fmt.Errorf("%w: %s is no longer selling", utils.ErrConflict, line.BusinessName)
		}

		_, product := submission.Products.Find(line.ProductID)
		if product == nil {
			return nil, 0, fmt.Errorf("%w: %s is no longer listed", utils.ErrConflict, line.Name)
		}
		if !product.InStock(line.Quantity) {
			return nil, 0, fmt.Errorf("%w: %s is out of stock", utils.ErrConflict, product.Name)
		}

		lineTotal := utils.RoundMoney(product.Price * float64(line.Quantity))
		subtotal += lineTotal
		items = append(items, models.OrderItem{
			SubmissionID: submission.ID,
			MarketID:     submission.MarketID,
			ProductID:    product.ID,
			ProductName:  product.Name,
			UnitPrice:    product.Price,
			Quantity:     line.Quantity,
			LineTotal:    lineTotal,
		})
	}

	return items, utils.RoundMoney(subtotal), nil
}

func (s *OrderService) Checkout(ctx context.Context, userID uuid.UUID, req *CheckoutRequest) (*CheckoutResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", utils.ErrInvalidInput)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}

	submissionIDs := make([]uuid.UUID, 0, len(cart.Items))
	for _, line := range cart.Items {
		submissionIDs = append(submissionIDs, line.SubmissionID)
	}
	var submissions []models.Submission
	if err := s.db.WithContext(ctx).Where("id IN ?", submissionIDs).Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to load vendors: %w", err)
	}
	byID := make(map[uuid.UUID]*models.Submission, len(submissions))
	for i := range submissions {
		byID[submissions[i].ID] = &submissions[i]
	}

	items, subtotal, err := BuildOrderItems(cart, byID)
	if err != nil {
		return nil, err
	}
	totals := ComputeTotals(subtotal, s.config.Payment.PlatformFeePercent)

	intentInput := &PaymentIntentInput{
		AmountCents:  utils.ToCents(totals.Total),
		Currency:     s.config.Payment.Currency,
		CustomerID:   user.StripeCustomerID,
		ReceiptEmail: user.Email,
	}
	if req.PaymentMethodID != nil {
		var pm models.PaymentMethod
		if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", *req.PaymentMethodID, userID).First(&pm).Error; err != nil {
			return nil, notFoundOr(err, "payment method")
		}
		intentInput.PaymentMethodID = pm.StripePaymentMethodID
	}

	order := &models.Order{
		OrderNumber:    s.node.Generate().String(),
		ShopperID:      userID,
		Status:         models.OrderStatusPending,
		Subtotal:       totals.Subtotal,
		PlatformFee:    totals.PlatformFee,
		Total:          totals.Total,
		Currency:       s.config.Payment.Currency,
		PickupMarketID: req.PickupMarketID,
		AddressID:      req.AddressID,
		Notes:          req.Notes,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Items = items

	intentInput.Description = "Order " + order.OrderNumber
	intentInput.Metadata = map[string]string{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"user_id":      userID.String(),
	}
	intent, err := s.gateway.CreatePaymentIntent(ctx, intentInput)
	if err != nil {
		if dbErr := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).
			Update("status", models.OrderStatusFailed).Error; dbErr != nil {
			logrus.WithError(dbErr).WithField("order_id", order.ID).Warn("Failed to mark order failed after payment error")
		}
		return nil, err
	}

	order.PaymentIntentID = intent.ID
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).
		Update("payment_intent_id", intent.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"payment_intent": intent.ID,
		"total":          order.Total,
	}).Info("Checkout started")

	return &CheckoutResponse{
		Order:           order,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		PublishableKey:  s.config.Payment.StripePublishableKey,
	}, nil
}

// ConfirmPayment re-reads the payment intent and applies its status to the order.
func (s *OrderService) ConfirmPayment(ctx context.Context, userID uuid.UUID, req *ConfirmPaymentRequest) (*models.Order, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ShopperID != userID {
		return nil, fmt.Errorf("%w: order belongs to another user", utils.ErrForbidden)
	}
	if order.PaymentIntentID == "" {
		return nil, fmt.Errorf("%w: order has no payment", utils.ErrInvalidInput)
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, order.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if err := s.applyIntent(ctx, order, intent); err != nil {
		return nil, err
	}
	return order, nil
}

// HandleWebhook processes a signed payment processor event.
func (s *OrderService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type})
	if event.Intent == nil {
		log.Debug("Ignoring webhook event")
		return nil
	}

	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").Preload("Shopper").
		Where("payment_intent_id = ?", event.Intent.ID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithField("payment_intent", event.Intent.ID).Warn("Webhook for unknown payment intent")
			return nil
		}
		return fmt.Errorf("database error: %w", err)
	}

	switch event.Type {
	case EventPaymentSucceeded:
		return s.applyIntent(ctx, &order, event.Intent)
	case EventPaymentFailed, EventPaymentCanceled:
		return s.markFailed(ctx, &order)
	default:
		log.Debug("Ignoring webhook event")
	}
	return nil
}

func (s *OrderService) applyIntent(ctx context.Context, order *models.Order, intent *GatewayIntent) error {
	switch {
	case intent.Status == IntentStatusSucceeded:
		return s.markPaid(ctx, order)
	case intent.RequiresAction():
		return s.reopen(ctx, order)
	default:
		return s.markFailed(ctx, order)
	}
}

// Orders in these states still settle when their payment succeeds. A failed
// attempt keeps the intent open for a retry with another card.
var payableStatuses = []models.OrderStatus{models.OrderStatusPending, models.OrderStatusFailed}

// markPaid is idempotent: only the first caller moves the order to paid
// and records commissions and stock.
func (s *OrderService) markPaid(ctx context.Context, order *models.Order) error {
	if order.Status == models.OrderStatusPaid || order.Status == models.OrderStatusFulfilled {
		return nil
	}

	now := time.Now()
	var vendors []models.Submission
	applied := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", order.ID, payableStatuses).
			Updates(map[string]interface{}{"status": models.OrderStatusPaid, "paid_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to mark order paid: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			logrus.WithFields(logrus.Fields{"order_id": order.ID, "status": order.Status}).
				Warn("Payment succeeded for an order that is no longer payable")
			return nil
		}
		applied = true

		marketIDs, submissionIDs := itemRefs(order.Items)

		var markets []models.Market
		if err := tx.Where("id IN ?", marketIDs).Find(&markets).Error; err != nil {
			return fmt.Errorf("failed to load markets: %w", err)
		}
		commissions := BuildCommissions(order, markets)
		if len(commissions) > 0 {
			if err := tx.Create(&commissions).Error; err != nil {
				return fmt.Errorf("failed to record commissions: %w", err)
			}
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", submissionIDs).Find(&vendors).Error; err != nil {
			return fmt.Errorf("failed to lock vendor catalogs: %w", err)
		}
		for i := range vendors {
			if !DecrementStock(&vendors[i], order.Items) {
				continue
			}
			if err := tx.Model(&vendors[i]).Update("products", vendors[i].Products).Error; err != nil {
				return fmt.Errorf("failed to update stock: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	order.Status = models.OrderStatusPaid
	order.PaidAt = &now

	if err := s.carts.Clear(ctx, order.ShopperID); err != nil {
		logrus.WithError(err).WithField("user_id", order.ShopperID).Warn("Failed to clear cart after payment")
	}

	s.notifyPaid(order, vendors)

	logrus.WithFields(logrus.Fields{"order_id": order.ID, "order_number": order.OrderNumber}).Info("Order paid")
	return nil
}

func (s *OrderService) notifyPaid(order *models.Order, vendors []models.Submission) {
	if order.Shopper.Email != "" {
		s.email.SendOrderReceipt(order, order.Shopper.Email)
	}
	for i := range vendors {
		var items []models.OrderItem
		for _, item := range order.Items {
			if item.SubmissionID == vendors[i].ID {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			s.email.SendVendorSale(order, &vendors[i], items)
		}
	}
}

func (s *OrderService) markFailed(ctx context.Context, order *models.Order) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
		Update("status", models.OrderStatusFailed)
	if res.Error != nil {
		return fmt.Errorf("failed to mark order failed: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		order.Status = models.OrderStatusFailed
	}
	return nil
}

// reopen puts a failed order back to pending while the shopper retries the payment.
func (s *OrderService) reopen(ctx context.Context, order *models.Order) error {
	if order.Status != models.OrderStatusFailed {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusFailed).
		Update("status", models.OrderStatusPending)
	if res.Error != nil {
		return fmt.Errorf("failed to reopen order: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		order.Status = models.OrderStatusPending
	}
	return nil
}

// BuildCommissions charges each item the commission percent of its market.
func BuildCommissions(order *models.Order, markets []models.Market) []models.Commission {
	percent := make(map[uuid.UUID]float64, len(markets))
	for _, m := range markets {
		percent[m.ID] = m.CommissionPercent
	}

	commissions := make([]models.Commission, 0, len(order.Items))
	for _, item := range order.Items {
		pct, ok := percent[item.MarketID]
		if !ok || pct <= 0 {
			continue
		}
		commissions = append(commissions, models.Commission{
			OrderID:      order.ID,
			OrderItemID:  item.ID,
			MarketID:     item.MarketID,
			SubmissionID: item.SubmissionID,
			GrossAmount:  item.LineTotal,
			Percent:      pct,
			Amount:       utils.PercentOf(item.LineTotal, pct),
			Status:       models.CommissionStatusPending,
		})
	}
	return commissions
}

// DecrementStock subtracts sold quantities from tracked stock. It reports
// whether the catalog changed.
func DecrementStock(submission *models.Submission, items []models.OrderItem) bool {
	changed := false
	for _, item := range items {
		if item.SubmissionID != submission.ID {
			continue
		}
		_, product := submission.Products.Find(item.ProductID)
		if product == nil || product.Stock == nil {
			continue
		}
		remaining := *product.Stock - item.Quantity
		if remaining < 0 {
			remaining = 0
		}
		product.Stock = &remaining
		changed = true
	}
	return changed
}

func itemRefs(items []models.OrderItem) (markets []uuid.UUID, submissions []uuid.UUID) {
	seenM := map[uuid.UUID]bool{}
	seenS := map[uuid.UUID]bool{}
	for _, item := range items {
		if !seenM[item.MarketID] {
			seenM[item.MarketID] = true
			markets = append(markets, item.MarketID)
		}
		if !seenS[item.SubmissionID] {
			seenS[item.SubmissionID] = true
			submissions = append(submissions, item.SubmissionID)
		}
	}
	return markets, submissions
}

func (s *OrderService) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").Preload("Shopper").
		First(&order, "id = ?", orderID).Error; err != nil {
		return nil, notFoundOr(err, "order")
	}
	return &order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, userID uuid.UUID, role models.UserRole, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	ok, err := s.canView(ctx, order, userID, role)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: you cannot view this order", utils.ErrForbidden)
	}
	return order, nil
}

func (s *OrderService) canView(ctx context.Context, order *models.Order, userID uuid.UUID, role models.UserRole) (bool, error) {
	if role == models.UserRoleAdmin || order.ShopperID == userID {
		return true, nil
	}
	if role == models.UserRoleVendor {
		return s.vendorHasItems(ctx, order.ID, userID)
	}
	if role == models.UserRoleOrganizer {
		return s.organizerHasItems(ctx, order.ID, userID)
	}
	return false, nil
}

func (s *OrderService) vendorHasItems(ctx context.Context, orderID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.OrderItem{}).
		Joins("JOIN submissions ON submissions.id = order_items.submission_id").
		Where("order_items.order_id = ? AND submissions.user_id = ?", orderID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *OrderService) organizerHasItems(ctx context.Context, orderID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.OrderItem{}).
		Joins("JOIN markets ON markets.id = order_items.market_id").
		Where("order_items.order_id = ? AND markets.organizer_id = ?", orderID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("shopper_id = ?", userID)
	return s.listOrders(query, params)
}

// ListVendorOrders returns orders containing items sold by the vendor.
func (s *OrderService) ListVendorOrders(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	sub := s.db.Model(&models.OrderItem{}).Select("order_items.order_id").
		Joins("JOIN submissions ON submissions.id = order_items.submission_id").
		Where("submissions.user_id = ?", userID)
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("id IN (?)", sub)
	return s.listOrders(query, params)
}

func (s *OrderService) ListMarketOrders(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	if _, err := loadOwnedMarket(ctx, s.db, marketID, userID, role); err != nil {
		return nil, 0, err
	}

	sub := s.db.Model(&models.OrderItem{}).Select("order_id").Where("market_id = ?", marketID)
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("id IN (?)", sub)
	return s.listOrders(query, params)
}

func (s *OrderService) listOrders(query *gorm.DB, params utils.PaginationParams) ([]models.Order, int64, error) {
	query = utils.ApplyStatusFilter(query, "status", params)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query = utils.ApplySort(query, params, utils.OrderSort, "created_at")
	query = utils.ApplyPagination(query, params)

	var orders []models.Order
	if err := query.Preload("Items").Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return orders, total, nil
}

// FulfillOrder marks a paid order picked up or delivered.
func (s *OrderService) FulfillOrder(ctx context.Context, userID uuid.UUID, role models.UserRole, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	allowed := role == models.UserRoleAdmin
	if !allowed && role == models.UserRoleVendor {
		if allowed, err = s.vendorHasItems(ctx, order.ID, userID); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}
	if !allowed && role == models.UserRoleOrganizer {
		if allowed, err = s.organizerHasItems(ctx, order.ID, userID); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: you cannot fulfill this order", utils.ErrForbidden)
	}
	if order.Status != models.OrderStatusPaid {
		return nil, fmt.Errorf("%w: only paid orders can be fulfilled", utils.ErrConflict)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(order).Updates(map[string]interface{}{
		"status":       models.OrderStatusFulfilled,
		"fulfilled_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	order.Status = models.OrderStatusFulfilled
	order.FulfilledAt = &now
	return order, nil
}

// CancelOrder lets a shopper abandon an unpaid order, pending or failed.
func (s *OrderService) CancelOrder(ctx context.Context, userID uuid.UUID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShopperID != userID {
		return nil, fmt.Errorf("%w: order belongs to another user", utils.ErrForbidden)
	}
	if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusFailed {
		return nil, fmt.Errorf("%w: only unpaid orders can be cancelled", utils.ErrConflict)
	}

	if err := s.cancel(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) cancel(ctx context.Context, order *models.Order) error {
	if order.PaymentIntentID != "" {
		if err := s.gateway.CancelPaymentIntent(ctx, order.PaymentIntentID); err != nil {
			if err := s.resolveUncancellable(ctx, order, err); err != nil {
				return err
			}
		}
	}

	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", order.ID, payableStatuses).
		Update("status", models.OrderStatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("failed to cancel order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order is no longer awaiting payment", utils.ErrConflict)
	}
	order.Status = models.OrderStatusCancelled
	return nil
}

// resolveUncancellable decides what a refused intent cancellation means. An
// intent that already succeeded settles the order instead, and one that is
// already canceled lets the cancellation proceed.
func (s *OrderService) resolveUncancellable(ctx context.Context, order *models.Order, cancelErr error) error {
	intent, err := s.gateway.GetPaymentIntent(ctx, order.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to cancel payment: %w", cancelErr)
	}

	log := logrus.WithFields(logrus.Fields{"order_id": order.ID, "payment_intent": intent.ID, "intent_status": intent.Status})
	switch intent.Status {
	case IntentStatusCanceled:
		log.Debug("Payment intent already canceled")
		return nil
	case IntentStatusSucceeded:
		log.Warn("Cancel refused, payment already succeeded; settling order")
		if len(order.Items) == 0 {
			full, err := s.loadOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			*order = *full
		}
		if err := s.markPaid(ctx, order); err != nil {
			return err
		}
		return fmt.Errorf("%w: order has already been paid", utils.ErrConflict)
	default:
		log.WithError(cancelErr).Warn("Payment intent cannot be cancelled")
		return fmt.Errorf("%w: payment is %s and cannot be cancelled", utils.ErrConflict, intent.Status)
	}
}

// RefundOrder refunds a paid order in full (or the given amount) and voids
// its unsettled commissions.
func (s *OrderService) RefundOrder(ctx context.Context, orderID uuid.UUID, req *RefundRequest) (*models.Order, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPaid && order.Status != models.OrderStatusFulfilled {
		return nil, fmt.Errorf("%w: only paid orders can be refunded", utils.ErrConflict)
	}

	amount := req.Amount
	if amount <= 0 || amount > order.Total {
		amount = order.Total
	}
	if order.PaymentIntentID != "" {
		if _, err := s.gateway.Refund(ctx, order.PaymentIntentID, utils.ToCents(amount)); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(order).Updates(map[string]interface{}{
			"status":      models.OrderStatusRefunded,
			"refunded_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if err := tx.Where("order_id = ? AND status = ?", order.ID, models.CommissionStatusPending).
			Delete(&models.Commission{}).Error; err != nil {
			return fmt.Errorf("failed to void commissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusRefunded
	order.RefundedAt = &now
	s.email.SendRefundNotice(order, order.Shopper.Email)

	logrus.WithFields(logrus.Fields{"order_id": order.ID, "amount": amount, "reason": req.Reason}).Info("Order refunded")
	return order, nil
}

// CancelStaleOrders cancels orders left unpaid longer than maxAge.
func (s *OrderService) CancelStaleOrders(ctx context.Context, maxAge time.Duration) (int, error) {
	var orders []models.Order
	cutoff := time.Now().Add(-maxAge)
	if err := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", payableStatuses, cutoff).
		Find(&orders).Error; err != nil {
		return 0, fmt.Errorf("failed to find stale orders: %w", err)
	}

	cancelled := 0
	for i := range orders {
		if err := s.cancel(ctx, &orders[i]); err != nil {
			logrus.WithError(err).WithField("order_id", orders[i].ID).Warn("Failed to cancel stale order")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s not found", utils.ErrNotFound, resource)
	}
	return fmt.Errorf("database error: %w", err)
}
