// internal/tests/api_test.go
package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/realtime"
	"github.com/javajoker/farmers-market-backend/internal/router"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type APITestSuite struct {
	suite.Suite
	db     *gorm.DB
	mock   sqlmock.Sqlmock
	router *gin.Engine
	svc    *router.Services
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Host: "localhost", Port: "8080", NodeID: 1},
		JWT:         config.JWTConfig{SecretKey: "test-secret", AccessTokenTTL: 1, RefreshTokenTTL: 24},
		Payment:     config.PaymentConfig{Currency: "usd", PlatformFeePercent: 5},
		Maps:        config.MapsConfig{BaseURL: "http://127.0.0.1:0", TimeoutSeconds: 1},
		Email:       config.EmailConfig{ResendURL: "http://127.0.0.1:0", FromEmail: "noreply@example.com"},
		I18n:        config.I18nConfig{DefaultLocale: "en"},
		Frontend:    config.FrontendConfig{BaseURL: "http://localhost:3000", AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func (suite *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret")
	require.NoError(suite.T(), i18n.Initialize("en"))
}

func (suite *APITestSuite) SetupTest() {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(suite.T(), err)
	suite.T().Cleanup(func() { sqlDB.Close() })

	suite.db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(suite.T(), err)
	suite.mock = mock

	cfg := testConfig()
	hub := realtime.NewHub()
	suite.svc, err = router.NewServices(context.Background(), suite.db, cfg, hub)
	require.NoError(suite.T(), err)

	suite.router = router.Initialize(suite.db, cfg, suite.svc, hub, prometheus.NewRegistry())
}

func (suite *APITestSuite) TearDownTest() {
	suite.svc.Close()
}

func (suite *APITestSuite) request(method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		jsonData, _ := json.Marshal(body)
		buf.Write(jsonData)
	}

	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

func (suite *APITestSuite) token(role models.UserRole) (uuid.UUID, string) {
	id := uuid.New()
	token, err := utils.GenerateJWT(id, string(role)+"@example.com", string(role), 1)
	require.NoError(suite.T(), err)
	return id, token
}

func (suite *APITestSuite) TestHealth() {
	w, response := suite.request("GET", "/health", nil, "")

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "healthy", response["status"])
}

func (suite *APITestSuite) TestMetricsExposeRouteCounters() {
	suite.request("GET", "/health", nil, "")

	w, _ := suite.request("GET", "/metrics", nil, "")

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `farmers_market_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func (suite *APITestSuite) TestRegistrationRejectsWeakPassword() {
	w, response := suite.request("POST", "/v1/auth/register", map[string]interface{}{
		"email":     "shopper@example.com",
		"password":  "short",
		"full_name": "Sam Shopper",
		"role":      "shopper",
	}, "")

	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.False(suite.T(), response["success"].(bool))
	assert.Equal(suite.T(), "VALIDATION_ERROR", response["error"].(map[string]interface{})["code"])
}

func (suite *APITestSuite) TestLoginUnknownEmail() {
	suite.mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w, response := suite.request("POST", "/v1/auth/login", map[string]interface{}{
		"email":    "nobody@example.com",
		"password": "TestPass123!",
	}, "")

	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
	assert.False(suite.T(), response["success"].(bool))
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *APITestSuite) TestProfileRequiresToken() {
	w, response := suite.request("GET", "/v1/auth/me", nil, "")

	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
	assert.Equal(suite.T(), "UNAUTHORIZED", response["error"].(map[string]interface{})["code"])
}

func (suite *APITestSuite) TestProfileWithToken() {
	userID, token := suite.token(models.UserRoleShopper)
	suite.mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "role", "status", "created_at"}).
			AddRow(userID, "shopper@example.com", "Sam Shopper", "shopper", "active", time.Now()))

	w, response := suite.request("GET", "/v1/auth/me", nil, token)

	require.Equal(suite.T(), http.StatusOK, w.Code)
	user := response["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(suite.T(), userID.String(), user["id"])
	assert.Equal(suite.T(), "shopper@example.com", user["email"])
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *APITestSuite) TestShopperCannotCreateMarket() {
	_, token := suite.token(models.UserRoleShopper)

	w, _ := suite.request("POST", "/v1/markets", map[string]interface{}{"name": "Downtown Market"}, token)

	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
}

func (suite *APITestSuite) TestVendorCannotReachAdmin() {
	_, token := suite.token(models.UserRoleVendor)

	w, _ := suite.request("GET", "/v1/admin/dashboard/stats", nil, token)

	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
}

func (suite *APITestSuite) TestEmptyCartFromMemoryStore() {
	_, token := suite.token(models.UserRoleShopper)

	w, response := suite.request("GET", "/v1/cart", nil, token)

	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.True(suite.T(), response["success"].(bool))
}

func (suite *APITestSuite) TestWebhookRejectsMissingSignature() {
	req, _ := http.NewRequest("POST", "/v1/payments/webhook", strings.NewReader(`{"type":"payment_intent.succeeded"}`))
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
