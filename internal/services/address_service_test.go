package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

func addressRequest() *AddressRequest {
	return &AddressRequest{
		Label:     "Home",
		Line1:     "123 Orchard Ln",
		City:      "Portland",
		State:     "OR",
		Zip:       "97201",
		Latitude:  floatPtr(45.5),
		Longitude: floatPtr(-122.6),
	}
}

func TestCreateFirstAddressBecomesDefault(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewAddressService(db, nil)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "addresses"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "addresses" SET "is_default"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO "addresses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()

	address, err := svc.Create(context.Background(), uuid.New(), addressRequest())
	require.NoError(t, err)
	assert.True(t, address.IsDefault)
	assert.Equal(t, "123 Orchard Ln, Portland, OR 97201", address.OneLine())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAddressValidation(t *testing.T) {
	db, _ := newMockDB(t)
	svc := NewAddressService(db, nil)

	req := addressRequest()
	req.Zip = "ABCDE"
	req.Line1 = ""
	_, err := svc.Create(context.Background(), uuid.New(), req)

	fields := map[string]bool{}
	for _, e := range utils.GetValidationErrors(err) {
		fields[e.Field] = true
	}
	assert.True(t, fields["zip"])
	assert.True(t, fields["line1"])
}

func TestApplyAddressKeepsCoordinatesWithoutPair(t *testing.T) {
	address := &models.Address{Latitude: floatPtr(1), Longitude: floatPtr(2)}
	req := addressRequest()
	req.Longitude = nil

	applyAddress(address, req)
	assert.Equal(t, 1.0, *address.Latitude)
	assert.Equal(t, 2.0, *address.Longitude)
	assert.Equal(t, "Portland", address.City)
}
