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

func TestCheckStatusChange(t *testing.T) {
	vendorID, organizerID, strangerID := uuid.New(), uuid.New(), uuid.New()
	market := &models.Market{OrganizerID: organizerID}

	tests := []struct {
		name    string
		current models.SubmissionStatus
		next    models.SubmissionStatus
		actor   uuid.UUID
		role    models.UserRole
		wantErr error
	}{
		{"organizer approves", models.SubmissionStatusPending, models.SubmissionStatusApproved, organizerID, models.UserRoleOrganizer, nil},
		{"organizer rejects approved", models.SubmissionStatusApproved, models.SubmissionStatusRejected, organizerID, models.UserRoleOrganizer, nil},
		{"admin approves", models.SubmissionStatusPending, models.SubmissionStatusApproved, strangerID, models.UserRoleAdmin, nil},
		{"other organizer cannot approve", models.SubmissionStatusPending, models.SubmissionStatusApproved, strangerID, models.UserRoleOrganizer, utils.ErrForbidden},
		{"vendor cannot approve self", models.SubmissionStatusPending, models.SubmissionStatusApproved, vendorID, models.UserRoleVendor, utils.ErrForbidden},
		{"vendor withdraws", models.SubmissionStatusPending, models.SubmissionStatusWithdrawn, vendorID, models.UserRoleVendor, nil},
		{"organizer cannot withdraw", models.SubmissionStatusApproved, models.SubmissionStatusWithdrawn, organizerID, models.UserRoleOrganizer, utils.ErrForbidden},
		{"same status", models.SubmissionStatusApproved, models.SubmissionStatusApproved, organizerID, models.UserRoleOrganizer, utils.ErrConflict},
		{"withdrawn is final", models.SubmissionStatusWithdrawn, models.SubmissionStatusApproved, organizerID, models.UserRoleOrganizer, utils.ErrConflict},
		{"back to pending", models.SubmissionStatusRejected, models.SubmissionStatusPending, organizerID, models.UserRoleOrganizer, utils.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submission := &models.Submission{UserID: vendorID, Status: tt.current}
			err := CheckStatusChange(submission, market, tt.actor, tt.role, tt.next)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestFlattenCatalog(t *testing.T) {
	a := models.Submission{BusinessName: "Sunny Farm", Products: models.Products{
		{ID: "1", Name: "Strawberries", Available: true},
		{ID: "2", Name: "Apples", Description: "Crisp honeycrisp", Available: true},
		{ID: "3", Name: "Pears", Available: false},
	}}
	b := models.Submission{BusinessName: "Bee Happy", Products: models.Products{
		{ID: "4", Name: "Raw honey", Available: true},
	}}
	a.ID, b.ID = uuid.New(), uuid.New()

	all := FlattenCatalog([]models.Submission{a, b}, "")
	require.Len(t, all, 3)
	assert.Equal(t, "Bee Happy", all[0].BusinessName)
	assert.Equal(t, "Apples", all[1].Product.Name)
	assert.Equal(t, "Strawberries", all[2].Product.Name)

	honey := FlattenCatalog([]models.Submission{a, b}, "HONEY")
	require.Len(t, honey, 2)
	assert.Equal(t, "Raw honey", honey[0].Product.Name)
	assert.Equal(t, "Apples", honey[1].Product.Name)

	vendor := FlattenCatalog([]models.Submission{a, b}, "sunny")
	assert.Len(t, vendor, 2)
}

func TestApplyProductUpdate(t *testing.T) {
	p := &models.EmbeddedProduct{Name: "Eggs", Price: 6, Stock: intPtr(12), Available: true}

	price, unavailable := 6.499, false
	ApplyProductUpdate(p, &UpdateProductRequest{Price: &price, Available: &unavailable})
	assert.Equal(t, 6.5, p.Price)
	assert.False(t, p.Available)
	assert.Equal(t, 12, *p.Stock)

	ApplyProductUpdate(p, &UpdateProductRequest{ClearStock: true})
	assert.Nil(t, p.Stock)
}

func TestProductInputDefaultsAvailable(t *testing.T) {
	p := ProductInput{Name: " Kale ", Price: 3}.toProduct()
	assert.True(t, p.Available)
	assert.Equal(t, "Kale", p.Name)
	assert.Len(t, p.ID, 12)
}

func submissionService(t *testing.T) (*SubmissionService, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	cfg := &config.Config{}
	cfg.Email.FromName = "Market"
	return NewSubmissionService(db, NewEmailService(cfg), nil), mock
}

func validApplication(marketID uuid.UUID) *CreateSubmissionRequest {
	return &CreateSubmissionRequest{
		MarketID:     marketID,
		BusinessName: "Green Acres",
		Email:        "farm@example.com",
		Phone:        "(503) 555-0199",
		Categories:   []string{"Produce"},
		Products:     []ProductInput{{Name: "Tomatoes", Price: 4.5, Unit: "lb"}},
	}
}

func TestApplyRejectsDuplicate(t *testing.T) {
	svc, mock := submissionService(t)
	mock.MatchExpectationsInOrder(false)
	marketID, organizerID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "markets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organizer_id", "name", "status", "accepting_vendors"}).
			AddRow(marketID.String(), organizerID.String(), "Saturday Market", "active", true))
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(organizerID.String(), "org@example.com"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "submissions"`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := svc.Apply(context.Background(), uuid.New(), validApplication(marketID))
	assert.True(t, errors.Is(err, utils.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyClosedMarket(t *testing.T) {
	svc, mock := submissionService(t)
	mock.MatchExpectationsInOrder(false)
	marketID, organizerID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "markets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organizer_id", "name", "status", "accepting_vendors"}).
			AddRow(marketID.String(), organizerID.String(), "Saturday Market", "active", false))
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(organizerID.String()))

	_, err := svc.Apply(context.Background(), uuid.New(), validApplication(marketID))
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
}

func TestApplyCreatesPendingSubmission(t *testing.T) {
	svc, mock := submissionService(t)
	mock.MatchExpectationsInOrder(false)
	marketID, organizerID, userID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "markets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organizer_id", "name", "status", "accepting_vendors"}).
			AddRow(marketID.String(), organizerID.String(), "Saturday Market", "active", true))
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(organizerID.String(), "org@example.com"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "submissions"`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "submissions"`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))

	submission, err := svc.Apply(context.Background(), userID, validApplication(marketID))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.SubmissionStatusPending, submission.Status)
	assert.Equal(t, userID, submission.UserID)
	assert.Equal(t, []string{"produce"}, []string(submission.Categories))
	require.Len(t, submission.Products, 1)
	assert.True(t, submission.Products[0].Available)
	assert.NotEmpty(t, submission.Products[0].ID)
}

func expectLockedCatalog(mock sqlmock.Sqlmock, id, ownerID uuid.UUID) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "submissions" .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "business_name", "status", "products"}).
			AddRow(id.String(), ownerID.String(), "Green Acres", "approved", submissionProducts))
}

func TestCatalogEditsRunUnderRowLock(t *testing.T) {
	ctx := context.Background()
	subID, ownerID := uuid.New(), uuid.New()

	t.Run("add product", func(t *testing.T) {
		svc, mock := submissionService(t)
		expectLockedCatalog(mock, subID, ownerID)
		mock.ExpectExec(`UPDATE "submissions" SET "products"`).
			WithArgs(catalogArg(func(p models.Products) bool { return len(p) == 4 }), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		product, err := svc.AddProduct(ctx, ownerID, subID, &ProductInput{Name: "Sweet corn", Price: 0.75, Unit: "ear"})
		require.NoError(t, err)
		assert.Equal(t, "Sweet corn", product.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update stock keeps other products", func(t *testing.T) {
		svc, mock := submissionService(t)
		expectLockedCatalog(mock, subID, ownerID)
		mock.ExpectExec(`UPDATE "submissions" SET "products"`).
			WithArgs(productStock{id: "tomato", stock: 7}, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		product, err := svc.UpdateProduct(ctx, ownerID, subID, "tomato", &UpdateProductRequest{Stock: intPtr(7)})
		require.NoError(t, err)
		require.NotNil(t, product.Stock)
		assert.Equal(t, 7, *product.Stock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("remove product", func(t *testing.T) {
		svc, mock := submissionService(t)
		expectLockedCatalog(mock, subID, ownerID)
		mock.ExpectExec(`UPDATE "submissions" SET "products"`).
			WithArgs(catalogArg(func(p models.Products) bool {
				idx, _ := p.Find("kale")
				return len(p) == 2 && idx < 0
			}), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, svc.RemoveProduct(ctx, ownerID, subID, "kale"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown product rolls back", func(t *testing.T) {
		svc, mock := submissionService(t)
		expectLockedCatalog(mock, subID, ownerID)
		mock.ExpectRollback()

		err := svc.RemoveProduct(ctx, ownerID, subID, "turnips")
		assert.True(t, errors.Is(err, utils.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other vendor is forbidden", func(t *testing.T) {
		svc, mock := submissionService(t)
		expectLockedCatalog(mock, subID, ownerID)
		mock.ExpectRollback()

		_, err := svc.AddProduct(ctx, uuid.New(), subID, &ProductInput{Name: "Sweet corn", Price: 0.75})
		assert.True(t, errors.Is(err, utils.ErrForbidden))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
