// internal/services/market_service.go
package services

import (
	"context"
	"fmt"
	"math"
	"mime/multipart"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

const (
	defaultNearbyRadius = 25.0
	maxNearbyRadius     = 250.0
	milesPerDegreeLat   = 69.0
)

var weekdays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

type MarketService struct {
	db      *gorm.DB
	places  *PlacesService
	storage *StorageService
}

type MarketHours struct {
	Open  string `json:"open" validate:"required,clock"`
	Close string `json:"close" validate:"required,clock"`
}

type CreateMarketRequest struct {
	Name              string                 `json:"name" validate:"required,min=2,max=255"`
	Description       string                 `json:"description" validate:"max=5000"`
	Address           string                 `json:"address" validate:"required,max=255"`
	City              string                 `json:"city" validate:"required,max=100"`
	State             string                 `json:"state" validate:"required,max=50"`
	Zip               string                 `json:"zip" validate:"omitempty,zip"`
	Latitude          *float64               `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude         *float64               `json:"longitude" validate:"omitempty,min=-180,max=180"`
	PlaceID           string                 `json:"place_id" validate:"max=255"`
	Schedule          map[string]MarketHours `json:"schedule" validate:"omitempty,dive"`
	SeasonStart       *time.Time             `json:"season_start"`
	SeasonEnd         *time.Time             `json:"season_end"`
	Website           string                 `json:"website" validate:"omitempty,url"`
	ApplicationFee    float64                `json:"application_fee" validate:"min=0"`
	CommissionPercent float64                `json:"commission_percent" validate:"min=0,max=100"`
	AcceptingVendors  *bool                  `json:"accepting_vendors"`
}

type UpdateMarketRequest struct {
	Name              *string                `json:"name" validate:"omitempty,min=2,max=255"`
	Description       *string                `json:"description" validate:"omitempty,max=5000"`
	Address           *string                `json:"address" validate:"omitempty,max=255"`
	City              *string                `json:"city" validate:"omitempty,max=100"`
	State             *string                `json:"state" validate:"omitempty,max=50"`
	Zip               *string                `json:"zip" validate:"omitempty,zip"`
	Latitude          *float64               `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude         *float64               `json:"longitude" validate:"omitempty,min=-180,max=180"`
	PlaceID           *string                `json:"place_id" validate:"omitempty,max=255"`
	Schedule          map[string]MarketHours `json:"schedule" validate:"omitempty,dive"`
	SeasonStart       *time.Time             `json:"season_start"`
	SeasonEnd         *time.Time             `json:"season_end"`
	Website           *string                `json:"website" validate:"omitempty,url"`
	ApplicationFee    *float64               `json:"application_fee" validate:"omitempty,min=0"`
	CommissionPercent *float64               `json:"commission_percent" validate:"omitempty,min=0,max=100"`
	AcceptingVendors  *bool                  `json:"accepting_vendors"`
	Status            *models.MarketStatus   `json:"status" validate:"omitempty,oneof=active inactive"`
}

type MarketFilter struct {
	State            string
	City             string
	Day              string
	AcceptingVendors *bool
	OrganizerID      *uuid.UUID
}

type NearbyRequest struct {
	Latitude    *float64 `form:"lat" validate:"omitempty,min=-90,max=90"`
	Longitude   *float64 `form:"lng" validate:"omitempty,min=-180,max=180"`
	Query       string   `form:"q"`
	RadiusMiles float64  `form:"radius" validate:"min=0"`
	Limit       int      `form:"limit" validate:"min=0,max=100"`
}

func NewMarketService(db *gorm.DB, places *PlacesService, storage *StorageService) *MarketService {
	return &MarketService{db: db, places: places, storage: storage}
}

func (s *MarketService) CreateMarket(ctx context.Context, organizerID uuid.UUID, req *CreateMarketRequest) (*models.Market, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	schedule, days, err := normalizeSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}
	if err := validateSeason(req.SeasonStart, req.SeasonEnd); err != nil {
		return nil, err
	}
	if err := s.checkDuplicate(ctx, req.Name, req.City, uuid.Nil); err != nil {
		return nil, err
	}

	market := &models.Market{
		OrganizerID:       organizerID,
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Address:           req.Address,
		City:              strings.TrimSpace(req.City),
		State:             strings.TrimSpace(req.State),
		Zip:               req.Zip,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		PlaceID:           req.PlaceID,
		Schedule:          schedule,
		MarketDays:        days,
		SeasonStart:       req.SeasonStart,
		SeasonEnd:         req.SeasonEnd,
		Website:           req.Website,
		ImageURLs:         pq.StringArray{},
		ApplicationFee:    utils.RoundMoney(req.ApplicationFee),
		CommissionPercent: req.CommissionPercent,
		AcceptingVendors:  true,
		Status:            models.MarketStatusActive,
	}
	if req.AcceptingVendors != nil {
		market.AcceptingVendors = *req.AcceptingVendors
	}

	s.geocode(ctx, market)

	if err := s.db.WithContext(ctx).Create(market).Error; err != nil {
		return nil, fmt.Errorf("failed to create market: %w", err)
	}
	return market, nil
}

func (s *MarketService) UpdateMarket(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID, req *UpdateMarketRequest) (*models.Market, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	market, err := loadOwnedMarket(ctx, s.db, marketID, userID, role)
	if err != nil {
		return nil, err
	}

	addressChanged := false
	if req.Name != nil {
		market.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		market.Description = *req.Description
	}
	if req.Address != nil && *req.Address != market.Address {
		market.Address = *req.Address
		addressChanged = true
	}
	if req.City != nil && *req.City != market.City {
		market.City = strings.TrimSpace(*req.City)
		addressChanged = true
	}
	if req.State != nil && *req.State != market.State {
		market.State = strings.TrimSpace(*req.State)
		addressChanged = true
	}
	if req.Zip != nil && *req.Zip != market.Zip {
		market.Zip = *req.Zip
		addressChanged = true
	}
	if req.Name != nil || req.City != nil {
		if err := s.checkDuplicate(ctx, market.Name, market.City, market.ID); err != nil {
			return nil, err
		}
	}
	if addressChanged {
		market.Latitude, market.Longitude, market.PlaceID = nil, nil, ""
	}
	if req.Latitude != nil && req.Longitude != nil {
		market.Latitude, market.Longitude = req.Latitude, req.Longitude
	}
	if req.PlaceID != nil {
		market.PlaceID = *req.PlaceID
	}
	if req.Schedule != nil {
		schedule, days, err := normalizeSchedule(req.Schedule)
		if err != nil {
			return nil, err
		}
		market.Schedule, market.MarketDays = schedule, days
	}
	if req.SeasonStart != nil {
		market.SeasonStart = req.SeasonStart
	}
	if req.SeasonEnd != nil {
		market.SeasonEnd = req.SeasonEnd
	}
	if err := validateSeason(market.SeasonStart, market.SeasonEnd); err != nil {
		return nil, err
	}
	if req.Website != nil {
		market.Website = *req.Website
	}
	if req.ApplicationFee != nil {
		market.ApplicationFee = utils.RoundMoney(*req.ApplicationFee)
	}
	if req.CommissionPercent != nil {
		market.CommissionPercent = *req.CommissionPercent
	}
	if req.AcceptingVendors != nil {
		market.AcceptingVendors = *req.AcceptingVendors
	}
	if req.Status != nil {
		market.Status = *req.Status
	}

	s.geocode(ctx, market)

	if err := s.db.WithContext(ctx).Omit("Organizer", "Submissions").Save(market).Error; err != nil {
		return nil, fmt.Errorf("failed to update market: %w", err)
	}
	return market, nil
}

func (s *MarketService) DeleteMarket(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID) error {
	market, err := loadOwnedMarket(ctx, s.db, marketID, userID, role)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(market).Error; err != nil {
		return fmt.Errorf("failed to delete market: %w", err)
	}
	return nil
}

func (s *MarketService) GetMarket(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	var market models.Market
	if err := s.db.WithContext(ctx).First(&market, "id = ?", marketID).Error; err != nil {
		return nil, notFoundOr(err, "market")
	}
	return &market, nil
}

// SearchMarkets lists active markets. Organizers listing their own markets
// also see inactive ones.
func (s *MarketService) SearchMarkets(ctx context.Context, params utils.PaginationParams, filter MarketFilter) ([]models.Market, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Market{})

	if filter.OrganizerID != nil {
		query = query.Where("organizer_id = ?", *filter.OrganizerID)
		query = utils.ApplyStatusFilter(query, "status", params)
	} else {
		query = query.Where("status = ?", models.MarketStatusActive)
	}
	if params.Search != "" {
		like := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(city) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}
	if filter.State != "" {
		query = query.Where("LOWER(state) = LOWER(?)", filter.State)
	}
	if filter.City != "" {
		query = query.Where("LOWER(city) = LOWER(?)", filter.City)
	}
	if filter.Day != "" {
		query = query.Where("? = ANY(market_days)", strings.ToLower(filter.Day))
	}
	if filter.AcceptingVendors != nil {
		query = query.Where("accepting_vendors = ?", *filter.AcceptingVendors)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count markets: %w", err)
	}

	query = utils.ApplySort(query, params, utils.MarketSort, "created_at")
	query = utils.ApplyPagination(query, params)

	var markets []models.Market
	if err := query.Find(&markets).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch markets: %w", err)
	}
	return markets, total, nil
}

// NearbyMarkets returns active markets within the radius of the origin,
// nearest first. A free-text origin is geocoded.
func (s *MarketService) NearbyMarkets(ctx context.Context, req *NearbyRequest) ([]models.Market, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	lat, lng := req.Latitude, req.Longitude
	if lat == nil || lng == nil {
		if strings.TrimSpace(req.Query) == "" {
			return nil, fmt.Errorf("%w: lat/lng or q is required", utils.ErrInvalidInput)
		}
		if s.places == nil {
			return nil, fmt.Errorf("%w: geocoding is not configured", utils.ErrUpstream)
		}
		result, err := s.places.Geocode(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		lat, lng = &result.Latitude, &result.Longitude
	}

	radius := req.RadiusMiles
	if radius <= 0 {
		radius = defaultNearbyRadius
	}
	if radius > maxNearbyRadius {
		radius = maxNearbyRadius
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	minLat, maxLat, minLng, maxLng := boundingBox(*lat, *lng, radius)
	var candidates []models.Market
	if err := s.db.WithContext(ctx).
		Where("status = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", models.MarketStatusActive).
		Where("latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?", minLat, maxLat, minLng, maxLng).
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch markets: %w", err)
	}

	return FilterByDistance(candidates, *lat, *lng, radius, limit), nil
}

// FilterByDistance keeps markets within radius miles, nearest first.
func FilterByDistance(markets []models.Market, lat, lng, radius float64, limit int) []models.Market {
	out := make([]models.Market, 0, len(markets))
	for _, m := range markets {
		if !m.HasCoordinates() {
			continue
		}
		d := math.Round(DistanceMiles(lat, lng, *m.Latitude, *m.Longitude)*100) / 100
		if d > radius {
			continue
		}
		m.Distance = &d
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool { return *out[i].Distance < *out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func boundingBox(lat, lng, radius float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radius / milesPerDegreeLat
	cos := math.Cos(lat * math.Pi / 180)
	dLng := 180.0
	if cos > 0.01 {
		dLng = radius / (milesPerDegreeLat * cos)
	}
	return lat - dLat, lat + dLat, lng - dLng, lng + dLng
}

// ListVendors returns the approved vendors of a market.
func (s *MarketService) ListVendors(ctx context.Context, marketID uuid.UUID, params utils.PaginationParams) ([]models.Submission, int64, error) {
	if _, err := s.GetMarket(ctx, marketID); err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("market_id = ? AND status = ?", marketID, models.SubmissionStatusApproved)
	if params.Search != "" {
		query = query.Where("LOWER(business_name) LIKE ?", "%"+strings.ToLower(params.Search)+"%")
	}
	if params.Category != "" {
		query = query.Where("? = ANY(categories)", params.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count vendors: %w", err)
	}

	query = utils.ApplySort(query, params, utils.VendorSort, "created_at")
	query = utils.ApplyPagination(query, params)

	var vendors []models.Submission
	if err := query.Find(&vendors).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch vendors: %w", err)
	}
	return vendors, total, nil
}

func (s *MarketService) UploadImage(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID, file multipart.File, header *multipart.FileHeader) (*models.Market, error) {
	market, err := loadOwnedMarket(ctx, s.db, marketID, userID, role)
	if err != nil {
		return nil, err
	}

	if err := s.storage.ValidateImage(file); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidInput, err)
	}
	result, err := s.storage.UploadFile(ctx, file, header, s.storage.GetDefaultUploadOptions("markets"))
	if err != nil {
		return nil, err
	}

	market.ImageURLs = append(market.ImageURLs, result.URL)
	if err := s.db.WithContext(ctx).Model(market).Update("image_urls", market.ImageURLs).Error; err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}
	return market, nil
}

func (s *MarketService) RemoveImage(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID, imageURL string) (*models.Market, error) {
	market, err := loadOwnedMarket(ctx, s.db, marketID, userID, role)
	if err != nil {
		return nil, err
	}

	kept := make(pq.StringArray, 0, len(market.ImageURLs))
	for _, u := range market.ImageURLs {
		if u != imageURL {
			kept = append(kept, u)
		}
	}
	if len(kept) == len(market.ImageURLs) {
		return nil, fmt.Errorf("%w: image", utils.ErrNotFound)
	}

	if err := s.db.WithContext(ctx).Model(market).Update("image_urls", kept).Error; err != nil {
		return nil, fmt.Errorf("failed to remove image: %w", err)
	}
	market.ImageURLs = kept

	if key := s.storage.KeyFromURL(imageURL); key != "" {
		if err := s.storage.DeleteFile(ctx, key); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to delete market image")
		}
	}
	return market, nil
}

func (s *MarketService) checkDuplicate(ctx context.Context, name, city string, exclude uuid.UUID) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.Market{}).
		Where("LOWER(name) = LOWER(?) AND LOWER(city) = LOWER(?)", strings.TrimSpace(name), strings.TrimSpace(city))
	if exclude != uuid.Nil {
		query = query.Where("id <> ?", exclude)
	}
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: a market named %q already exists in %s", utils.ErrConflict, name, city)
	}
	return nil
}

// geocode fills coordinates from the address when they are missing. Failures
// leave the market without coordinates.
func (s *MarketService) geocode(ctx context.Context, market *models.Market) {
	if market.HasCoordinates() || s.places == nil {
		return
	}
	address := market.FullAddress()
	if address == "" {
		return
	}

	result, err := s.places.Geocode(ctx, address)
	if err != nil {
		logrus.WithError(err).WithField("address", address).Warn("Failed to geocode market address")
		return
	}
	market.Latitude = &result.Latitude
	market.Longitude = &result.Longitude
	if market.PlaceID == "" {
		market.PlaceID = result.PlaceID
	}
}

func normalizeSchedule(in map[string]MarketHours) (models.JSONB, pq.StringArray, error) {
	schedule := models.JSONB{}
	days := pq.StringArray{}
	for day, hours := range in {
		key := strings.ToLower(strings.TrimSpace(day))
		if !weekdays[key] {
			return nil, nil, fmt.Errorf("%w: unknown day %q", utils.ErrInvalidInput, day)
		}
		if hours.Close <= hours.Open {
			return nil, nil, fmt.Errorf("%w: %s closes before it opens", utils.ErrInvalidInput, key)
		}
		schedule[key] = map[string]interface{}{"open": hours.Open, "close": hours.Close}
		days = append(days, key)
	}
	sort.Strings(days)
	return schedule, days, nil
}

func validateSeason(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return fmt.Errorf("%w: season ends before it starts", utils.ErrInvalidInput)
	}
	return nil
}

// loadOwnedMarket loads a market the caller organizes. Admins may act on any.
func loadOwnedMarket(ctx context.Context, db *gorm.DB, marketID, userID uuid.UUID, role models.UserRole) (*models.Market, error) {
	var market models.Market
	if err := db.WithContext(ctx).First(&market, "id = ?", marketID).Error; err != nil {
		return nil, notFoundOr(err, "market")
	}
	if role != models.UserRoleAdmin && market.OrganizerID != userID {
		return nil, fmt.Errorf("%w: you do not manage this market", utils.ErrForbidden)
	}
	return &market, nil
}
