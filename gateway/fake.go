package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

var _ Orders = &Fake{}

// Fake is an in-process payment gateway. It issues order ids, accepts
// captures and failures, and delivers webhook events to whatever sink is
// registered, which is how the backend learns the authoritative outcome.
type Fake struct {
	mu       sync.Mutex
	orders   map[string]Order
	payments map[string]string // orderID -> paymentID

	// Deliver receives webhook events for captures and failures. May be nil,
	// in which case events are dropped, same as a lost webhook.
	Deliver func(ctx context.Context, event WebhookEvent) error
}

func NewFake() *Fake {
	return &Fake{
		orders:   map[string]Order{},
		payments: map[string]string{},
	}
}

func (f *Fake) CreateOrder(ctx context.Context, amount int64, currency string, receipt string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order := Order{
		ID:        "order_" + randomID(),
		Amount:    amount,
		Currency:  currency,
		Receipt:   receipt,
		CreatedAt: time.Now().UTC(),
	}
	f.orders[order.ID] = order

	return order, nil
}

// Capture marks the order paid and fires the capture webhook. Capturing the
// same order twice returns the original payment id.
func (f *Fake) Capture(ctx context.Context, orderID string) (string, error) {
	f.mu.Lock()
	if _, ok := f.orders[orderID]; !ok {
		f.mu.Unlock()
		return "", fmt.Errorf("no such order %q", orderID)
	}
	paymentID, ok := f.payments[orderID]
	if !ok {
		paymentID = "pay_" + randomID()
		f.payments[orderID] = paymentID
	}
	deliver := f.Deliver
	f.mu.Unlock()

	if deliver != nil {
		err := deliver(ctx, WebhookEvent{OrderID: orderID, PaymentID: paymentID, Captured: true})
		if err != nil {
			return "", fmt.Errorf("webhook delivery failed: %w", err)
		}
	}

	return paymentID, nil
}

// Fail reports a declined charge for the order and fires the failure webhook.
func (f *Fake) Fail(ctx context.Context, orderID string, reason string) error {
	f.mu.Lock()
	if _, ok := f.orders[orderID]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("no such order %q", orderID)
	}
	deliver := f.Deliver
	f.mu.Unlock()

	if deliver != nil {
		return deliver(ctx, WebhookEvent{OrderID: orderID, Captured: false, Reason: reason})
	}

	return nil
}

// Order returns the stored order, for tests.
func (f *Fake) Order(orderID string) (Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	return order, ok
}

// OrderCount reports how many orders were ever created, for tests asserting
// the single-live-order property.
func (f *Fake) OrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.orders)
}

func randomID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic("failed to read random bytes")
	}
	return hex.EncodeToString(b)
}
