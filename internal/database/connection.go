// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("target", cfg.Target()).Info("Database connection established successfully")
	return db, nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	default:
		return logger.Info
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"pgcrypto\"").Error; err != nil {
		return fmt.Errorf("failed to create pgcrypto extension: %w", err)
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Market{},
		&models.Submission{},
		&models.Order{},
		&models.OrderItem{},
		&models.Commission{},
		&models.Conversation{},
		&models.Message{},
		&models.PaymentMethod{},
		&models.Address{},
		&models.Report{},
		&models.Invite{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	createIndexes(db)

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_markets_city_state ON markets(city, state)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_markets_name_city ON markets(LOWER(name), LOWER(city)) WHERE deleted_at IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_markets_coords ON markets(latitude, longitude)",
		"CREATE INDEX IF NOT EXISTS idx_submissions_market_status ON submissions(market_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_submissions_user_market ON submissions(user_id, market_id)",
		"CREATE INDEX IF NOT EXISTS idx_orders_shopper_created ON orders(shopper_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_market_created ON order_items(market_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair ON conversations(shopper_id, submission_id) WHERE deleted_at IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_reports_market_period ON reports(market_id, period_start DESC)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_markets_search ON markets USING GIN(to_tsvector('english', name || ' ' || coalesce(description, '')))",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}
}

// SeedInitialData creates the bootstrap admin account when none exists.
func SeedInitialData(db *gorm.DB, email, password string) error {
	var adminCount int64
	if err := db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&adminCount).Error; err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if adminCount > 0 || email == "" || password == "" {
		return nil
	}

	admin := &models.User{
		Email:    email,
		FullName: "System Administrator",
		Role:     models.UserRoleAdmin,
		Status:   models.UserStatusActive,
	}
	if err := admin.SetPassword(password); err != nil {
		return fmt.Errorf("failed to set admin password: %w", err)
	}
	if err := db.Create(admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logrus.WithField("email", email).Info("Default admin user created")
	return nil
}
