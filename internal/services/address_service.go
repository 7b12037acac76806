// internal/services/address_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// AddressService manages shopper delivery/billing addresses.
type AddressService struct {
	db     *gorm.DB
	places *PlacesService
}

type AddressRequest struct {
	Label     string   `json:"label" validate:"max=50"`
	Line1     string   `json:"line1" validate:"required,max=255"`
	Line2     string   `json:"line2" validate:"max=255"`
	City      string   `json:"city" validate:"required,max=100"`
	State     string   `json:"state" validate:"required,max=50"`
	Zip       string   `json:"zip" validate:"required,zip"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	PlaceID   string   `json:"place_id" validate:"max=255"`
	IsDefault bool     `json:"is_default"`
}

func NewAddressService(db *gorm.DB, places *PlacesService) *AddressService {
	return &AddressService{db: db, places: places}
}

func (s *AddressService) List(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var addresses []models.Address
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&addresses).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch addresses: %w", err)
	}
	return addresses, nil
}

func (s *AddressService) Get(ctx context.Context, userID, addressID uuid.UUID) (*models.Address, error) {
	var address models.Address
	if err := s.db.WithContext(ctx).First(&address, "id = ? AND user_id = ?", addressID, userID).Error; err != nil {
		return nil, notFoundOr(err, "address")
	}
	return &address, nil
}

func (s *AddressService) Create(ctx context.Context, userID uuid.UUID, req *AddressRequest) (*models.Address, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Address{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	address := &models.Address{UserID: userID}
	applyAddress(address, req)
	address.IsDefault = req.IsDefault || count == 0
	s.geocode(ctx, address)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if address.IsDefault {
			if err := clearDefaultAddress(tx, userID); err != nil {
				return err
			}
		}
		return tx.Create(address).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return address, nil
}

func (s *AddressService) Update(ctx context.Context, userID, addressID uuid.UUID, req *AddressRequest) (*models.Address, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	address, err := s.Get(ctx, userID, addressID)
	if err != nil {
		return nil, err
	}

	before := address.OneLine()
	wasDefault := address.IsDefault
	applyAddress(address, req)
	if address.OneLine() != before && req.Latitude == nil {
		address.Latitude, address.Longitude, address.PlaceID = nil, nil, req.PlaceID
	}
	// The default can be moved, not dropped.
	address.IsDefault = wasDefault || req.IsDefault
	s.geocode(ctx, address)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if address.IsDefault && !wasDefault {
			if err := clearDefaultAddress(tx, userID); err != nil {
				return err
			}
		}
		return tx.Save(address).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update address: %w", err)
	}
	return address, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	address, err := s.Get(ctx, userID, addressID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(address).Error; err != nil {
			return fmt.Errorf("failed to delete address: %w", err)
		}
		if !address.IsDefault {
			return nil
		}

		var next models.Address
		err := tx.Where("user_id = ?", userID).Order("created_at DESC").First(&next).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&next).Update("is_default", true).Error
	})
}

func (s *AddressService) SetDefault(ctx context.Context, userID, addressID uuid.UUID) (*models.Address, error) {
	address, err := s.Get(ctx, userID, addressID)
	if err != nil {
		return nil, err
	}
	if address.IsDefault {
		return address, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearDefaultAddress(tx, userID); err != nil {
			return err
		}
		return tx.Model(address).Update("is_default", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set default address: %w", err)
	}
	address.IsDefault = true
	return address, nil
}

func (s *AddressService) geocode(ctx context.Context, address *models.Address) {
	if (address.Latitude != nil && address.Longitude != nil) || s.places == nil {
		return
	}

	result, err := s.places.Geocode(ctx, address.OneLine())
	if err != nil {
		logrus.WithError(err).WithField("user_id", address.UserID).Warn("Failed to geocode address")
		return
	}
	address.Latitude = &result.Latitude
	address.Longitude = &result.Longitude
	if address.PlaceID == "" {
		address.PlaceID = result.PlaceID
	}
}

func applyAddress(address *models.Address, req *AddressRequest) {
	address.Label = req.Label
	address.Line1 = req.Line1
	address.Line2 = req.Line2
	address.City = req.City
	address.State = req.State
	address.Zip = req.Zip
	if req.Latitude != nil && req.Longitude != nil {
		address.Latitude = req.Latitude
		address.Longitude = req.Longitude
	}
	if req.PlaceID != "" {
		address.PlaceID = req.PlaceID
	}
}

func clearDefaultAddress(tx *gorm.DB, userID uuid.UUID) error {
	return tx.Model(&models.Address{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}
