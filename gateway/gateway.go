// Package gateway holds the payment-gateway order contract the backend uses
// and an in-process fake for local runs and tests.
package gateway

import (
	"context"
	"time"
)

// Order is a gateway-side payment order. IDs are opaque gateway strings, not
// UUIDs of ours.
type Order struct {
	ID        string
	Amount    int64
	Currency  string
	Receipt   string
	CreatedAt time.Time
}

type Orders interface {
	CreateOrder(ctx context.Context, amount int64, currency string, receipt string) (Order, error)
}

// WebhookEvent is what the gateway reports back about an order, out of band
// from any client. Captured false means the charge failed.
type WebhookEvent struct {
	OrderID   string
	PaymentID string
	Captured  bool
	Reason    string
}
