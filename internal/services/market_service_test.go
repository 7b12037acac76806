package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

func floatPtr(v float64) *float64 { return &v }

func TestFilterByDistance(t *testing.T) {
	portland := models.Market{Name: "Portland", Latitude: floatPtr(45.5152), Longitude: floatPtr(-122.6784)}
	beaverton := models.Market{Name: "Beaverton", Latitude: floatPtr(45.4871), Longitude: floatPtr(-122.8037)}
	seattle := models.Market{Name: "Seattle", Latitude: floatPtr(47.6062), Longitude: floatPtr(-122.3321)}
	unknown := models.Market{Name: "Unknown"}

	got := FilterByDistance([]models.Market{seattle, beaverton, unknown, portland}, 45.5152, -122.6784, 25, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "Portland", got[0].Name)
	assert.Equal(t, 0.0, *got[0].Distance)
	assert.Equal(t, "Beaverton", got[1].Name)
	assert.InDelta(t, 6.4, *got[1].Distance, 0.5)

	got = FilterByDistance([]models.Market{seattle, beaverton, portland}, 45.5152, -122.6784, 200, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Portland", got[0].Name)
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	minLat, maxLat, minLng, maxLng := boundingBox(45.5, -122.6, 69)
	assert.InDelta(t, 44.5, minLat, 0.001)
	assert.InDelta(t, 46.5, maxLat, 0.001)
	assert.Less(t, minLng, -123.9)
	assert.Greater(t, maxLng, -121.3)
}

func TestNormalizeSchedule(t *testing.T) {
	schedule, days, err := normalizeSchedule(map[string]MarketHours{
		"Saturday":  {Open: "08:00", Close: "13:00"},
		"wednesday": {Open: "15:00", Close: "19:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"saturday", "wednesday"}, []string(days))
	assert.Equal(t, map[string]interface{}{"open": "08:00", "close": "13:00"}, schedule["saturday"])

	_, _, err = normalizeSchedule(map[string]MarketHours{"funday": {Open: "08:00", Close: "09:00"}})
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))

	_, _, err = normalizeSchedule(map[string]MarketHours{"monday": {Open: "13:00", Close: "08:00"}})
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
}

func TestCreateMarketDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewMarketService(db, nil, nil)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "markets"`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := svc.CreateMarket(context.Background(), uuid.New(), &CreateMarketRequest{
		Name: "Saturday Market", Address: "108 W Burnside St", City: "Portland", State: "OR", Zip: "97209",
	})
	assert.True(t, errors.Is(err, utils.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMarket(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewMarketService(db, nil, nil)
	organizerID := uuid.New()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "markets"`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "markets"`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))

	closed := false
	market, err := svc.CreateMarket(context.Background(), organizerID, &CreateMarketRequest{
		Name:              " Saturday Market ",
		Address:           "108 W Burnside St",
		City:              "Portland",
		State:             "OR",
		Zip:               "97209",
		Latitude:          floatPtr(45.5229),
		Longitude:         floatPtr(-122.6706),
		Schedule:          map[string]MarketHours{"saturday": {Open: "10:00", Close: "17:00"}},
		CommissionPercent: 8,
		AcceptingVendors:  &closed,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "Saturday Market", market.Name)
	assert.Equal(t, organizerID, market.OrganizerID)
	assert.False(t, market.AcceptingVendors)
	assert.Equal(t, models.MarketStatusActive, market.Status)
	assert.True(t, market.OpenOn(6))
}

func TestCreateMarketValidation(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewMarketService(db, nil, nil)

	_, err := svc.CreateMarket(context.Background(), uuid.New(), &CreateMarketRequest{Name: "X", City: "Portland"})
	require.Error(t, err)
	assert.NotEmpty(t, utils.GetValidationErrors(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMarketRequiresOwner(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewMarketService(db, nil, nil)
	marketID, ownerID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "markets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organizer_id", "name"}).AddRow(marketID.String(), ownerID.String(), "Saturday Market"))

	name := "Renamed"
	_, err := svc.UpdateMarket(context.Background(), uuid.New(), models.UserRoleOrganizer, marketID, &UpdateMarketRequest{Name: &name})
	assert.True(t, errors.Is(err, utils.ErrForbidden))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNearbyRequiresOrigin(t *testing.T) {
	db, _ := newMockDB(t)
	svc := NewMarketService(db, nil, nil)

	_, err := svc.NearbyMarkets(context.Background(), &NearbyRequest{})
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))

	_, err = svc.NearbyMarkets(context.Background(), &NearbyRequest{Query: "Portland, OR"})
	assert.True(t, errors.Is(err, utils.ErrUpstream))
}

func TestRemoveMarketImage(t *testing.T) {
	db, mock := newMockDB(t)
	storage, err := NewStorageService(&config.Config{})
	require.NoError(t, err)
	storage.localDir = t.TempDir()
	svc := NewMarketService(db, nil, storage)

	organizerID, marketID := uuid.New(), uuid.New()
	keep := "http://localhost:8080/uploads/markets/keep.png"
	drop := "http://localhost:8080/uploads/markets/drop.png"

	mock.ExpectQuery(`SELECT \* FROM "markets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organizer_id", "name", "image_urls"}).
			AddRow(marketID, organizerID, "Riverside", "{"+keep+","+drop+"}"))
	mock.ExpectExec(`UPDATE "markets"`).WillReturnResult(sqlmock.NewResult(0, 1))

	market, err := svc.RemoveImage(context.Background(), organizerID, models.UserRoleOrganizer, marketID, drop)

	require.NoError(t, err)
	assert.Equal(t, []string{keep}, []string(market.ImageURLs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMarketImageUnknownURL(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewMarketService(db, nil, nil)
	organizerID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "markets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organizer_id", "image_urls"}).
			AddRow(uuid.New(), organizerID, "{}"))

	_, err := svc.RemoveImage(context.Background(), organizerID, models.UserRoleOrganizer, uuid.New(), "http://x/y.png")

	assert.ErrorIs(t, err, utils.ErrNotFound)
}
