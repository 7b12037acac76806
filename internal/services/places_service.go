// internal/services/places_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// PlacesService forwards requests to the Google Maps web services. The API
// key never leaves the server; response bodies are passed through as-is.
type PlacesService struct {
	client       *resty.Client
	apiKey       string
	geocodeCache *expirable.LRU[string, *GeocodeResult]
}

type AutocompleteRequest struct {
	Input        string `form:"input" json:"input" validate:"required,min=2,max=200"`
	SessionToken string `form:"session_token" json:"session_token,omitempty"`
	Types        string `form:"types" json:"types,omitempty"`
	Country      string `form:"country" json:"country,omitempty" validate:"omitempty,len=2"`
}

type DistanceRequest struct {
	Origins      []string `json:"origins" validate:"required,min=1,max=25,dive,required"`
	Destinations []string `json:"destinations" validate:"required,min=1,max=25,dive,required"`
	Units        string   `json:"units,omitempty" validate:"omitempty,oneof=imperial metric"`
}

type GeocodeResult struct {
	FormattedAddress string  `json:"formatted_address"`
	PlaceID          string  `json:"place_id"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}

func NewPlacesService(cfg *config.Config) *PlacesService {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Maps.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.Maps.TimeoutSeconds) * time.Second).
		SetHeader("Accept", "application/json")

	size := cfg.Maps.GeocodeCacheSize
	if size <= 0 {
		size = 256
	}

	return &PlacesService{
		client:       client,
		apiKey:       cfg.Maps.GoogleAPIKey,
		geocodeCache: expirable.NewLRU[string, *GeocodeResult](size, nil, time.Duration(cfg.Maps.GeocodeCacheTTL)*time.Minute),
	}
}

func (s *PlacesService) Autocomplete(ctx context.Context, req *AutocompleteRequest) (json.RawMessage, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	params := map[string]string{"input": req.Input}
	if req.SessionToken != "" {
		params["sessiontoken"] = req.SessionToken
	}
	if req.Types != "" {
		params["types"] = req.Types
	}
	if req.Country != "" {
		params["components"] = "country:" + strings.ToLower(req.Country)
	}

	return s.get(ctx, "/place/autocomplete/json", params, true)
}

func (s *PlacesService) PlaceDetails(ctx context.Context, placeID, sessionToken string) (json.RawMessage, error) {
	if strings.TrimSpace(placeID) == "" {
		return nil, fmt.Errorf("%w: place_id is required", utils.ErrInvalidInput)
	}

	params := map[string]string{
		"place_id": placeID,
		"fields":   "place_id,name,formatted_address,geometry/location,address_components",
	}
	if sessionToken != "" {
		params["sessiontoken"] = sessionToken
	}

	return s.get(ctx, "/place/details/json", params, false)
}

// Geocode resolves a free-form address to coordinates. Results are cached
// by normalized address.
func (s *PlacesService) Geocode(ctx context.Context, address string) (*GeocodeResult, error) {
	key := strings.ToLower(strings.Join(strings.Fields(address), " "))
	if key == "" {
		return nil, fmt.Errorf("%w: address is required", utils.ErrInvalidInput)
	}

	if cached, ok := s.geocodeCache.Get(key); ok {
		return cached, nil
	}

	body, err := s.get(ctx, "/geocode/json", map[string]string{"address": address}, true)
	if err != nil {
		return nil, err
	}

	first := gjson.GetBytes(body, "results.0")
	if !first.Exists() {
		return nil, fmt.Errorf("%w: no geocoding results for address", utils.ErrNotFound)
	}

	result := &GeocodeResult{
		FormattedAddress: first.Get("formatted_address").String(),
		PlaceID:          first.Get("place_id").String(),
		Latitude:         first.Get("geometry.location.lat").Float(),
		Longitude:        first.Get("geometry.location.lng").Float(),
	}
	s.geocodeCache.Add(key, result)

	return result, nil
}

func (s *PlacesService) Distance(ctx context.Context, req *DistanceRequest) (json.RawMessage, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	units := req.Units
	if units == "" {
		units = "imperial"
	}

	return s.get(ctx, "/distancematrix/json", map[string]string{
		"origins":      strings.Join(req.Origins, "|"),
		"destinations": strings.Join(req.Destinations, "|"),
		"units":        units,
	}, false)
}

// get performs the upstream call and maps Google's body-level status field
// onto service errors. ZERO_RESULTS is a successful empty response.
func (s *PlacesService) get(ctx context.Context, path string, params map[string]string, zeroOK bool) (json.RawMessage, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("%w: maps API key is not configured", utils.ErrUpstream)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("key", s.apiKey).
		Get(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Error("Maps request failed")
		return nil, fmt.Errorf("%w: maps request failed", utils.ErrUpstream)
	}

	body := resp.Body()
	if resp.IsError() {
		return nil, fmt.Errorf("%w: maps returned HTTP %d", utils.ErrUpstream, resp.StatusCode())
	}

	switch status := gjson.GetBytes(body, "status").String(); status {
	case "OK":
	case "ZERO_RESULTS":
		if !zeroOK {
			return nil, fmt.Errorf("%w: no results", utils.ErrNotFound)
		}
	case "INVALID_REQUEST", "NOT_FOUND":
		return nil, fmt.Errorf("%w: %s", utils.ErrInvalidInput, googleErrorMessage(body, status))
	default:
		logrus.WithFields(logrus.Fields{"path": path, "status": status}).Warn("Maps returned error status")
		return nil, fmt.Errorf("%w: %s", utils.ErrUpstream, googleErrorMessage(body, status))
	}

	return json.RawMessage(body), nil
}

func googleErrorMessage(body []byte, status string) string {
	if msg := gjson.GetBytes(body, "error_message").String(); msg != "" {
		return status + ": " + msg
	}
	return status
}

const earthRadiusMiles = 3958.8

// DistanceMiles is the great-circle distance between two coordinates.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(a))
}
