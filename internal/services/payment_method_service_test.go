package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/utils"
)

func TestCreateSetupIntentCreatesCustomerOnce(t *testing.T) {
	db, mock := newMockDB(t)
	gateway := newFakeGateway()
	svc := NewPaymentMethodService(db, gateway)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "stripe_customer_id"}).
			AddRow(userID, "sam@example.com", "Sam", ""))
	mock.ExpectExec(`UPDATE "users"`).WillReturnResult(sqlmock.NewResult(0, 1))

	intent, err := svc.CreateSetupIntent(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, "seti_secret", intent.ClientSecret)
	assert.Equal(t, 1, gateway.customers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePaymentMethodOwnedByAnotherCustomer(t *testing.T) {
	db, mock := newMockDB(t)
	gateway := newFakeGateway()
	gateway.methods["pm_card"] = &GatewayPaymentMethod{ID: "pm_card", CustomerID: "cus_other", Brand: "visa", Last4: "4242"}
	svc := NewPaymentMethodService(db, gateway)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stripe_customer_id"}).AddRow(userID, "cus_mine"))
	mock.ExpectQuery(`SELECT \* FROM "payment_methods"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.SavePaymentMethod(context.Background(), userID, &SavePaymentMethodRequest{PaymentMethodID: "pm_card"})

	assert.ErrorIs(t, err, utils.ErrForbidden)
	assert.Empty(t, gateway.attached)
}

func TestSaveFirstPaymentMethodBecomesDefault(t *testing.T) {
	db, mock := newMockDB(t)
	gateway := newFakeGateway()
	gateway.methods["pm_card"] = &GatewayPaymentMethod{ID: "pm_card", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}
	svc := NewPaymentMethodService(db, gateway)
	userID := uuid.New()
	methodID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stripe_customer_id"}).AddRow(userID, "cus_mine"))
	mock.ExpectQuery(`SELECT \* FROM "payment_methods"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "payment_methods"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "payment_methods"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(methodID))
	mock.ExpectQuery(`SELECT \* FROM "payment_methods"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "stripe_payment_method_id", "brand", "last4"}).
			AddRow(methodID, userID, "pm_card", "visa", "4242"))
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stripe_customer_id"}).AddRow(userID, "cus_mine"))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "payment_methods"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "payment_methods"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	method, err := svc.SavePaymentMethod(context.Background(), userID, &SavePaymentMethodRequest{PaymentMethodID: "pm_card"})

	require.NoError(t, err)
	assert.True(t, method.IsDefault)
	assert.Equal(t, "4242", method.Last4)
	assert.Equal(t, "cus_mine", gateway.attached["pm_card"])
	assert.Equal(t, "pm_card", gateway.defaults["cus_mine"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePaymentMethodNotOwned(t *testing.T) {
	db, mock := newMockDB(t)
	gateway := newFakeGateway()
	svc := NewPaymentMethodService(db, gateway)

	mock.ExpectQuery(`SELECT \* FROM "payment_methods"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := svc.Delete(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, utils.ErrNotFound)
	assert.Empty(t, gateway.detached)
}
