// internal/router/services.go
package router

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/realtime"
	"github.com/javajoker/farmers-market-backend/internal/services"
)

// Services holds every service the API and the scheduler share.
type Services struct {
	Auth           *services.AuthService
	Markets        *services.MarketService
	Submissions    *services.SubmissionService
	Carts          *services.CartService
	Orders         *services.OrderService
	PaymentMethods *services.PaymentMethodService
	Chat           *services.ChatService
	Places         *services.PlacesService
	Reports        *services.ReportService
	Admin          *services.AdminService
	Addresses      *services.AddressService
	Storage        *services.StorageService

	closeCarts func() error
}

func NewServices(ctx context.Context, db *gorm.DB, cfg *config.Config, hub *realtime.Hub) (*Services, error) {
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	cartStore, closeCarts, err := services.NewCartStore(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("cart store: %w", err)
	}

	emailService := services.NewEmailService(cfg)
	placesService := services.NewPlacesService(cfg)
	gateway := services.NewStripeGateway(cfg.Payment)
	cartService := services.NewCartService(db, cartStore)

	orderService, err := services.NewOrderService(db, cfg, gateway, cartService, emailService)
	if err != nil {
		closeCarts()
		return nil, fmt.Errorf("orders: %w", err)
	}

	return &Services{
		Auth:           services.NewAuthService(db, cfg, emailService),
		Markets:        services.NewMarketService(db, placesService, storageService),
		Submissions:    services.NewSubmissionService(db, emailService, storageService),
		Carts:          cartService,
		Orders:         orderService,
		PaymentMethods: services.NewPaymentMethodService(db, gateway),
		Chat:           services.NewChatService(db, hub, emailService),
		Places:         placesService,
		Reports:        services.NewReportService(db),
		Admin:          services.NewAdminService(db, cfg, emailService),
		Addresses:      services.NewAddressService(db, placesService),
		Storage:        storageService,
		closeCarts:     closeCarts,
	}, nil
}

func (s *Services) Close() error {
	if s.closeCarts != nil {
		return s.closeCarts()
	}
	return nil
}
