// internal/services/payment_method_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type PaymentMethodService struct {
	db      *gorm.DB
	gateway PaymentGateway
}

type SavePaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	SetDefault      bool   `json:"set_default"`
}

func NewPaymentMethodService(db *gorm.DB, gateway PaymentGateway) *PaymentMethodService {
	return &PaymentMethodService{db: db, gateway: gateway}
}

// CreateSetupIntent starts saving a card for later, creating the processor
// customer on first use.
func (s *PaymentMethodService) CreateSetupIntent(ctx context.Context, userID uuid.UUID) (*GatewaySetupIntent, error) {
	user, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateSetupIntent(ctx, user.StripeCustomerID)
}

func (s *PaymentMethodService) SavePaymentMethod(ctx context.Context, userID uuid.UUID, req *SavePaymentMethodRequest) (*models.PaymentMethod, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	user, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	var existing models.PaymentMethod
	err = s.db.WithContext(ctx).Where("stripe_payment_method_id = ?", req.PaymentMethodID).First(&existing).Error
	if err == nil {
		if existing.UserID != userID {
			return nil, fmt.Errorf("%w: payment method belongs to another user", utils.ErrForbidden)
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	pm, err := s.gateway.GetPaymentMethod(ctx, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	switch pm.CustomerID {
	case "":
		if err := s.gateway.AttachPaymentMethod(ctx, pm.ID, user.StripeCustomerID); err != nil {
			return nil, err
		}
	case user.StripeCustomerID:
	default:
		return nil, fmt.Errorf("%w: payment method belongs to another customer", utils.ErrForbidden)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.PaymentMethod{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	method := &models.PaymentMethod{
		UserID:                userID,
		StripePaymentMethodID: pm.ID,
		Brand:                 pm.Brand,
		Last4:                 pm.Last4,
		ExpMonth:              pm.ExpMonth,
		ExpYear:               pm.ExpYear,
	}
	if err := s.db.WithContext(ctx).Create(method).Error; err != nil {
		return nil, fmt.Errorf("failed to save payment method: %w", err)
	}

	if count == 0 || req.SetDefault {
		return s.SetDefault(ctx, userID, method.ID)
	}
	return method, nil
}

func (s *PaymentMethodService) List(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").Find(&methods).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch payment methods: %w", err)
	}
	return methods, nil
}

// SetDefault keeps exactly one default method per user.
func (s *PaymentMethodService) SetDefault(ctx context.Context, userID, methodID uuid.UUID) (*models.PaymentMethod, error) {
	method, err := s.owned(ctx, userID, methodID)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	if user.StripeCustomerID != "" {
		if err := s.gateway.SetDefaultPaymentMethod(ctx, user.StripeCustomerID, method.StripePaymentMethodID); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PaymentMethod{}).Where("user_id = ? AND id <> ?", userID, methodID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(method).Update("is_default", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set default payment method: %w", err)
	}

	method.IsDefault = true
	return method, nil
}

func (s *PaymentMethodService) Delete(ctx context.Context, userID, methodID uuid.UUID) error {
	method, err := s.owned(ctx, userID, methodID)
	if err != nil {
		return err
	}

	if err := s.gateway.DetachPaymentMethod(ctx, method.StripePaymentMethodID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(method).Error; err != nil {
		return fmt.Errorf("failed to delete payment method: %w", err)
	}

	if method.IsDefault {
		var next models.PaymentMethod
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").First(&next).Error; err == nil {
			if _, err := s.SetDefault(ctx, userID, next.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *PaymentMethodService) owned(ctx context.Context, userID, methodID uuid.UUID) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", methodID, userID).First(&method).Error; err != nil {
		return nil, notFoundOr(err, "payment method")
	}
	return &method, nil
}

func (s *PaymentMethodService) ensureCustomer(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	if user.StripeCustomerID != "" {
		return &user, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user.Email, user.FullName)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("stripe_customer_id", customerID).Error; err != nil {
		return nil, fmt.Errorf("failed to store customer id: %w", err)
	}
	user.StripeCustomerID = customerID
	return &user, nil
}
