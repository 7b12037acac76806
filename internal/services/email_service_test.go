package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

func emailConfig(url, key string) *config.Config {
	cfg := &config.Config{}
	cfg.Email = config.EmailConfig{ResendAPIKey: key, ResendURL: url, FromEmail: "hello@market.test", FromName: "Market"}
	cfg.Frontend.BaseURL = "https://market.test"
	return cfg
}

func TestSendPostsToResend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Market <hello@market.test>", body["from"])
		assert.Equal(t, []interface{}{"shopper@example.com"}, body["to"])
		assert.Equal(t, "Hi", body["subject"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	svc := NewEmailService(emailConfig(srv.URL, "re_test"))
	id, err := svc.Send(context.Background(), EmailMessage{To: []string{"shopper@example.com"}, Subject: "Hi", HTML: "<p>Hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)
}

func TestSendProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	svc := NewEmailService(emailConfig(srv.URL, "re_test"))
	_, err := svc.Send(context.Background(), EmailMessage{To: []string{"a@b.co"}, Subject: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrUpstream))
	assert.Contains(t, err.Error(), "invalid from")
}

func TestSendWithoutKeyOnlyLogs(t *testing.T) {
	svc := NewEmailService(emailConfig("http://127.0.0.1:1", ""))
	id, err := svc.Send(context.Background(), EmailMessage{To: []string{"a@b.co"}, Subject: "x"})
	assert.NoError(t, err)
	assert.Empty(t, id)

	_, err = svc.Send(context.Background(), EmailMessage{Subject: "x"})
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
}

func TestTemplatesRender(t *testing.T) {
	svc := NewEmailService(emailConfig("http://127.0.0.1:1", ""))

	order := &models.Order{
		OrderNumber: "1789",
		Subtotal:    12,
		PlatformFee: 0.36,
		Total:       12.36,
		Items:       []models.OrderItem{{ProductName: "Heirloom tomatoes", Quantity: 2, LineTotal: 12}},
	}
	order.ID = uuid.New()

	html, err := svc.render("order_receipt", map[string]interface{}{
		"OrderNumber": order.OrderNumber, "Items": order.Items,
		"Subtotal": "12.00", "Fee": "0.36", "Total": "12.36",
		"OrderURL": "https://market.test/orders/" + order.ID.String(), "PlatformName": "Market",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "2 x Heirloom tomatoes - $12.00")
	assert.Contains(t, html, "Total: $12.36")

	invite := &models.Invite{Role: models.UserRoleOrganizer, URL: "https://market.test/signup?invite=abc", ExpiresAt: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)}
	html, err = svc.render("invite", map[string]interface{}{"Role": string(invite.Role), "InviteURL": invite.URL, "ExpiresAt": invite.ExpiresAt.Format("January 2, 2006"), "PlatformName": "Market"})
	require.NoError(t, err)
	assert.Contains(t, html, "as a organizer")
	assert.Contains(t, html, "November 1, 2026")
}
