package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

func authConfig() *config.Config {
	return &config.Config{JWT: config.JWTConfig{SecretKey: "test", AccessTokenTTL: 1, RefreshTokenTTL: 24}}
}

func TestRegisterDefaultsToShopper(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewAuthService(db, authConfig(), nil)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()

	resp, err := svc.Register(context.Background(), &RegisterRequest{
		Email:    "Shopper@Example.com",
		Password: "TestPass123!",
		FullName: "Sam Shopper",
	})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleShopper, resp.User.Role)
	assert.Equal(t, "shopper@example.com", resp.User.Email)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)

	claims, err := utils.ValidateJWT(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "shopper", claims.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewAuthService(db, authConfig(), nil)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Email:    "taken@example.com",
		Password: "TestPass123!",
		FullName: "Taken",
	})
	assert.True(t, errors.Is(err, utils.ErrConflict))
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	db, _ := newMockDB(t)
	svc := NewAuthService(db, authConfig(), nil)

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Email:    "boss@example.com",
		Password: "TestPass123!",
		FullName: "Boss",
		Role:     models.UserRoleAdmin,
	})
	assert.NotEmpty(t, utils.GetValidationErrors(err))
}

func TestRegisterWithInviteAssignsRole(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewAuthService(db, authConfig(), nil)

	inviteID := uuid.New()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "invites"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token", "email", "role", "expires_at"}).
			AddRow(inviteID, "tok", "", "organizer", time.Now().Add(time.Hour)))
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectExec(`UPDATE "invites" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.Register(context.Background(), &RegisterRequest{
		Email:       "org@example.com",
		Password:    "TestPass123!",
		FullName:    "Olive Organizer",
		InviteToken: "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleOrganizer, resp.User.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterWithExpiredInvite(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewAuthService(db, authConfig(), nil)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "invites"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token", "role", "expires_at"}).
			AddRow(uuid.New(), "tok", "organizer", time.Now().Add(-time.Hour)))
	mock.ExpectRollback()

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Email:       "late@example.com",
		Password:    "TestPass123!",
		FullName:    "Late",
		InviteToken: "tok",
	})
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
}

func TestLoginWrongPassword(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewAuthService(db, authConfig(), nil)

	user := &models.User{}
	require.NoError(t, user.SetPassword("TestPass123!"))

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "status"}).
			AddRow(uuid.New(), "a@example.com", user.PasswordHash, "shopper", "active"))

	_, err := svc.Login(context.Background(), &LoginRequest{Email: "a@example.com", Password: "nope"})
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
}

func TestLoginSuspended(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewAuthService(db, authConfig(), nil)

	user := &models.User{}
	require.NoError(t, user.SetPassword("TestPass123!"))

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "status"}).
			AddRow(uuid.New(), "a@example.com", user.PasswordHash, "vendor", "suspended"))

	_, err := svc.Login(context.Background(), &LoginRequest{Email: "a@example.com", Password: "TestPass123!"})
	assert.True(t, errors.Is(err, utils.ErrForbidden))
}

func TestResetTokenValid(t *testing.T) {
	now := time.Now()
	assert.True(t, resetTokenValid(models.JSONB{"reset_token_expires": float64(now.Add(time.Minute).Unix())}, now))
	assert.False(t, resetTokenValid(models.JSONB{"reset_token_expires": float64(now.Add(-time.Minute).Unix())}, now))
	assert.False(t, resetTokenValid(models.JSONB{}, now))
}
