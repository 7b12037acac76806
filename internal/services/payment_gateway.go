// internal/services/payment_gateway.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/customer"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/paymentmethod"
	"github.com/stripe/stripe-go/v74/refund"
	"github.com/stripe/stripe-go/v74/setupintent"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// Stripe payment intent states we act on.
const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusCanceled  = "canceled"

	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

// PaymentGateway is the subset of the payment processor used by checkout and
// saved payment methods.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, in *PaymentIntentInput) (*GatewayIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*GatewayIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) error
	Refund(ctx context.Context, paymentIntentID string, amountCents int64) (string, error)
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*GatewaySetupIntent, error)
	GetPaymentMethod(ctx context.Context, id string) (*GatewayPaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	ParseWebhook(payload []byte, signature string) (*GatewayEvent, error)
}

type PaymentIntentInput struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Description     string
	ReceiptEmail    string
	Metadata        map[string]string
}

type GatewayIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       string            `json:"status"`
	AmountCents  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RequiresAction covers every requires_* state, which leaves the order pending.
func (i *GatewayIntent) RequiresAction() bool {
	switch stripe.PaymentIntentStatus(i.Status) {
	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusProcessing:
		return true
	}
	return false
}

type GatewaySetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type GatewayPaymentMethod struct {
	ID         string
	CustomerID string
	Brand      string
	Last4      string
	ExpMonth   int
	ExpYear    int
}

type GatewayEvent struct {
	ID     string
	Type   string
	Intent *GatewayIntent
}

// StripeGateway talks to Stripe with the package-level client.
type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway(cfg config.PaymentConfig) *StripeGateway {
	stripe.Key = cfg.StripeSecretKey

	return &StripeGateway{webhookSecret: cfg.StripeWebhookSecret}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, in *PaymentIntentInput) (*GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	if in.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(in.PaymentMethodID)
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(in.ReceiptEmail)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create payment intent: %v", utils.ErrUpstream, err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, id string) (*GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get payment intent: %v", utils.ErrUpstream, err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := paymentintent.Cancel(id, params); err != nil {
		return fmt.Errorf("%w: failed to cancel payment intent: %v", utils.ErrUpstream, err)
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string, amountCents int64) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: failed to process refund: %v", utils.ErrUpstream, err)
	}
	return r.ID, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}

	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create customer: %v", utils.ErrUpstream, err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, customerID string) (*GatewaySetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.Context = ctx

	si, err := setupintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create setup intent: %v", utils.ErrUpstream, err)
	}
	return &GatewaySetupIntent{ID: si.ID, ClientSecret: si.ClientSecret, Status: string(si.Status)}, nil
}

func (g *StripeGateway) GetPaymentMethod(ctx context.Context, id string) (*GatewayPaymentMethod, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := paymentmethod.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get payment method: %v", utils.ErrUpstream, err)
	}

	out := &GatewayPaymentMethod{ID: pm.ID}
	if pm.Customer != nil {
		out.CustomerID = pm.Customer.ID
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = int(pm.Card.ExpMonth)
		out.ExpYear = int(pm.Card.ExpYear)
	}
	return out, nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx

	if _, err := paymentmethod.Attach(paymentMethodID, params); err != nil {
		return fmt.Errorf("%w: failed to attach payment method: %v", utils.ErrUpstream, err)
	}
	return nil
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx

	if _, err := paymentmethod.Detach(paymentMethodID, params); err != nil {
		return fmt.Errorf("%w: failed to detach payment method: %v", utils.ErrUpstream, err)
	}
	return nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx

	if _, err := customer.Update(customerID, params); err != nil {
		return fmt.Errorf("%w: failed to set default payment method: %v", utils.ErrUpstream, err)
	}
	return nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes payment intent events.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*GatewayEvent, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", utils.ErrInvalidInput)
	}

	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid webhook signature: %v", utils.ErrInvalidInput, err)
	}

	out := &GatewayEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil && len(event.Data.Raw) > 0 && event.Data.Object["object"] == "payment_intent" {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: malformed payment intent payload: %v", utils.ErrInvalidInput, err)
		}
		out.Intent = intentFromStripe(&pi)
	}
	return out, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *GatewayIntent {
	return &GatewayIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
