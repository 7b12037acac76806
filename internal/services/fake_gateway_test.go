package services

import (
	"context"
	"sync"

	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type fakeGateway struct {
	mu          sync.Mutex
	intents     map[string]*GatewayIntent
	lastInput   *PaymentIntentInput
	cancelled   []string
	refunds     map[string]int64
	customers   int
	methods     map[string]*GatewayPaymentMethod
	attached    map[string]string
	detached    []string
	defaults    map[string]string
	event       *GatewayEvent
	createError error
	cancelError error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents:  map[string]*GatewayIntent{},
		refunds:  map[string]int64{},
		methods:  map[string]*GatewayPaymentMethod{},
		attached: map[string]string{},
		defaults: map[string]string{},
	}
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, in *PaymentIntentInput) (*GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createError != nil {
		return nil, g.createError
	}
	g.lastInput = in
	intent := &GatewayIntent{
		ID:           "pi_test",
		ClientSecret: "pi_test_secret",
		Status:       "requires_payment_method",
		AmountCents:  in.AmountCents,
		Currency:     in.Currency,
		Metadata:     in.Metadata,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *fakeGateway) GetPaymentIntent(ctx context.Context, id string) (*GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, utils.ErrUpstream
	}
	return intent, nil
}

func (g *fakeGateway) CancelPaymentIntent(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelError != nil {
		return g.cancelError
	}
	g.cancelled = append(g.cancelled, id)
	return nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentIntentID string, amountCents int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds[paymentIntentID] = amountCents
	return "re_test", nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers++
	return "cus_test", nil
}

func (g *fakeGateway) CreateSetupIntent(ctx context.Context, customerID string) (*GatewaySetupIntent, error) {
	return &GatewaySetupIntent{ID: "seti_test", ClientSecret: "seti_secret", Status: "requires_payment_method"}, nil
}

func (g *fakeGateway) GetPaymentMethod(ctx context.Context, id string) (*GatewayPaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pm, ok := g.methods[id]
	if !ok {
		return nil, utils.ErrUpstream
	}
	return pm, nil
}

func (g *fakeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attached[paymentMethodID] = customerID
	return nil
}

func (g *fakeGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detached = append(g.detached, paymentMethodID)
	return nil
}

func (g *fakeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.defaults[customerID] = paymentMethodID
	return nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*GatewayEvent, error) {
	if signature != "valid" {
		return nil, utils.ErrInvalidInput
	}
	return g.event, nil
}
