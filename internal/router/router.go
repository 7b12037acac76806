// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/handlers"
	"github.com/javajoker/farmers-market-backend/internal/middleware"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/realtime"
)

const version = "1.0.0"

func Initialize(db *gorm.DB, cfg *config.Config, svc *Services, hub *realtime.Hub, registry *prometheus.Registry) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	marketHandler := handlers.NewMarketHandler(svc.Markets)
	submissionHandler := handlers.NewSubmissionHandler(svc.Submissions)
	cartHandler := handlers.NewCartHandler(svc.Carts)
	paymentHandler := handlers.NewPaymentHandler(svc.Orders, svc.PaymentMethods)
	chatHandler := handlers.NewChatHandler(svc.Chat, hub, cfg.Frontend.AllowedOrigins)
	placesHandler := handlers.NewPlacesHandler(svc.Places)
	reportHandler := handlers.NewReportHandler(svc.Reports)
	adminHandler := handlers.NewAdminHandler(svc.Admin)
	addressHandler := handlers.NewAddressHandler(svc.Addresses)
	uploadHandler := handlers.NewUploadHandler(svc.Storage)

	metrics := middleware.NewHTTPMetrics(registry)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(metrics.Middleware())
	r.Use(middleware.CORS(cfg.Frontend.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	organizer := middleware.RoleRequired(models.UserRoleOrganizer)
	vendor := middleware.RoleRequired(models.UserRoleVendor)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", middleware.AuthRequired(), authHandler.Logout)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.GET("/verify-email/:token", authHandler.VerifyEmail)
		}

		// Profile routes
		me := v1.Group("/auth")
		me.Use(middleware.AuthRequired())
		{
			me.GET("/me", authHandler.GetProfile)
			me.PUT("/me", authHandler.UpdateProfile)
			me.DELETE("/me", authHandler.DeleteAccount)
			me.PUT("/password", authHandler.ChangePassword)
		}

		// Market routes
		markets := v1.Group("/markets")
		{
			markets.GET("", marketHandler.ListMarkets)
			markets.GET("/nearby", middleware.PlacesRateLimit(), marketHandler.NearbyMarkets)
			markets.GET("/:id", marketHandler.GetMarket)
			markets.GET("/:id/vendors", marketHandler.ListVendors)

			protected := markets.Group("")
			protected.Use(middleware.AuthRequired(), organizer)
			{
				protected.POST("", marketHandler.CreateMarket)
				protected.PUT("/:id", marketHandler.UpdateMarket)
				protected.DELETE("/:id", marketHandler.DeleteMarket)
				protected.POST("/:id/images", middleware.UploadRateLimit(), marketHandler.UploadImage)
				protected.DELETE("/:id/images", marketHandler.RemoveImage)
				protected.GET("/:id/submissions", submissionHandler.ListForMarket)
				protected.GET("/:id/orders", paymentHandler.ListMarketOrders)
				protected.GET("/:id/reports", reportHandler.ListReports)
				protected.POST("/:id/reports", reportHandler.GenerateReport)
				protected.GET("/:id/commissions", reportHandler.ListCommissions)
			}
		}

		// Vendor submission routes
		submissions := v1.Group("/submissions")
		submissions.Use(middleware.AuthRequired())
		{
			submissions.POST("", vendor, submissionHandler.Apply)
			submissions.GET("/mine", submissionHandler.ListMine)
			submissions.GET("/:id", submissionHandler.GetSubmission)
			submissions.PUT("/:id", submissionHandler.UpdateSubmission)
			submissions.DELETE("/:id", submissionHandler.DeleteSubmission)
			submissions.PUT("/:id/status", submissionHandler.ChangeStatus)
			submissions.POST("/:id/images", middleware.UploadRateLimit(), submissionHandler.UploadImage)
			submissions.POST("/:id/products", submissionHandler.AddProduct)
			submissions.PUT("/:id/products", submissionHandler.ReplaceProducts)
			submissions.PATCH("/:id/products/:productId", submissionHandler.UpdateProduct)
			submissions.DELETE("/:id/products/:productId", submissionHandler.RemoveProduct)
		}

		// Public catalog
		v1.GET("/catalog", submissionHandler.Catalog)

		// Cart routes
		cart := v1.Group("/cart")
		cart.Use(middleware.AuthRequired())
		{
			cart.GET("", cartHandler.GetCart)
			cart.DELETE("", cartHandler.ClearCart)
			cart.POST("/items", cartHandler.AddItem)
			cart.PUT("/items", cartHandler.UpdateItem)
			cart.DELETE("/items/:submissionId/:productId", cartHandler.RemoveItem)
		}

		// Checkout and orders
		v1.POST("/checkout", middleware.AuthRequired(), middleware.CheckoutRateLimit(), paymentHandler.Checkout)

		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.GET("", paymentHandler.ListOrders)
			orders.GET("/:id", paymentHandler.GetOrder)
			orders.POST("/:id/cancel", middleware.CheckoutRateLimit(), paymentHandler.CancelOrder)
			orders.POST("/:id/fulfill", middleware.RoleRequired(models.UserRoleVendor, models.UserRoleOrganizer), paymentHandler.FulfillOrder)
		}
		v1.GET("/vendor/orders", middleware.AuthRequired(), vendor, paymentHandler.ListVendorOrders)

		// Payment routes; the webhook authenticates by signature
		payments := v1.Group("/payments")
		{
			payments.POST("/webhook", paymentHandler.Webhook)
			payments.POST("/confirm", middleware.AuthRequired(), middleware.CheckoutRateLimit(), paymentHandler.ConfirmPayment)
		}

		paymentMethods := v1.Group("/payment-methods")
		paymentMethods.Use(middleware.AuthRequired())
		{
			paymentMethods.GET("", paymentHandler.ListPaymentMethods)
			paymentMethods.POST("", paymentHandler.SavePaymentMethod)
			paymentMethods.POST("/setup-intent", paymentHandler.CreateSetupIntent)
			paymentMethods.PUT("/:id/default", paymentHandler.SetDefaultPaymentMethod)
			paymentMethods.DELETE("/:id", paymentHandler.DeletePaymentMethod)
		}

		// Chat routes
		conversations := v1.Group("/conversations")
		conversations.Use(middleware.AuthRequired())
		{
			conversations.POST("", middleware.MessageRateLimit(), chatHandler.StartConversation)
			conversations.GET("", chatHandler.ListConversations)
			conversations.GET("/unread", chatHandler.UnreadCount)
			conversations.GET("/:id", chatHandler.GetConversation)
			conversations.GET("/:id/messages", chatHandler.ListMessages)
			conversations.POST("/:id/messages", middleware.MessageRateLimit(), chatHandler.SendMessage)
			conversations.POST("/:id/read", chatHandler.MarkRead)
			conversations.GET("/:id/ws", chatHandler.Subscribe)
		}

		// Places proxy
		places := v1.Group("/places")
		places.Use(middleware.PlacesRateLimit())
		{
			places.GET("/autocomplete", placesHandler.Autocomplete)
			places.GET("/details/:placeId", placesHandler.Details)
			places.GET("/geocode", placesHandler.Geocode)
			places.POST("/distance", placesHandler.Distance)
		}

		// Reports
		reports := v1.Group("/reports")
		reports.Use(middleware.AuthRequired(), organizer)
		{
			reports.GET("/:id", reportHandler.GetReport)
			reports.GET("/:id/csv", reportHandler.ExportCSV)
		}

		// Addresses
		addresses := v1.Group("/addresses")
		addresses.Use(middleware.AuthRequired())
		{
			addresses.GET("", addressHandler.List)
			addresses.POST("", addressHandler.Create)
			addresses.PUT("/:id", addressHandler.Update)
			addresses.PUT("/:id/default", addressHandler.SetDefault)
			addresses.DELETE("/:id", addressHandler.Delete)
		}

		// Standalone uploads
		v1.POST("/uploads", middleware.AuthRequired(), middleware.UploadRateLimit(), uploadHandler.UploadImage)

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)

			adminUsers := admin.Group("/users")
			{
				adminUsers.GET("", adminHandler.GetUsers)
				adminUsers.PUT("/:id", adminHandler.UpdateUser)
			}

			invites := admin.Group("/invites")
			{
				invites.GET("", adminHandler.ListInvites)
				invites.POST("", adminHandler.CreateInvite)
				invites.DELETE("/:id", adminHandler.RevokeInvite)
			}

			admin.POST("/orders/:id/refund", paymentHandler.RefundOrder)
			admin.POST("/markets/:id/commissions/settle", reportHandler.SettleCommissions)
		}
	}

	// Local uploads are served from disk when S3 is not configured
	if cfg.AWS.AccessKeyID == "" {
		r.Static("/uploads", "./uploads")
	}

	return r
}
