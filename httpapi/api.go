// Package httpapi exposes the four backend operations the registration saga
// consumes, plus the gateway webhook that settles payments.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/International-Combat-Archery-Alliance/email"
	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/gateway"
	"github.com/pulsefest/registration/registration"
)

type Environment int

const (
	LOCAL Environment = iota
	PROD
)

type DB interface {
	events.Repository
	registration.Repository
}

type API struct {
	db               DB
	orders           gateway.Orders
	gatewayPublicKey string
	emailSender      email.Sender
	emailFrom        string
	logger           *slog.Logger
	env              Environment

	// fake is set when the in-process gateway is used, which unlocks the
	// /dev/gateway routes for driving captures locally.
	fake *gateway.Fake
}

func NewAPI(db DB, orders gateway.Orders, gatewayPublicKey string, logger *slog.Logger, env Environment) *API {
	a := &API{
		db:               db,
		orders:           orders,
		gatewayPublicKey: gatewayPublicKey,
		logger:           logger,
		env:              env,
	}

	// The in-process gateway delivers its webhooks straight into the API.
	if fake, ok := orders.(*gateway.Fake); ok {
		a.fake = fake
		fake.Deliver = func(ctx context.Context, event gateway.WebhookEvent) error {
			return a.applyGatewayEvent(ctx, event.OrderID, event.PaymentID, event.Captured)
		}
	}

	return a
}

// WithEmailSender enables confirmation emails on successful registrations.
func (a *API) WithEmailSender(sender email.Sender, fromAddress string) *API {
	a.emailSender = sender
	a.emailFrom = fromAddress
	return a
}

// Handler builds the routed handler with logging and CORS applied.
func (a *API) Handler() http.Handler {
	r := http.NewServeMux()

	r.HandleFunc("GET /events", a.getEvents)
	r.HandleFunc("POST /events/{eventId}/registrations", a.postRegistration)
	r.HandleFunc("POST /registrations/{registrationId}/order", a.postPaymentOrder)
	r.HandleFunc("GET /registrations/{registrationId}", a.getRegistration)
	r.HandleFunc("POST /payments/confirm", a.postConfirmPayment)
	r.HandleFunc("POST /webhooks/gateway", a.postGatewayWebhook)

	if a.fake != nil && a.env == LOCAL {
		r.HandleFunc("POST /dev/gateway/orders/{orderId}/capture", a.postDevCapture)
		r.HandleFunc("POST /dev/gateway/orders/{orderId}/fail", a.postDevFail)
	}

	return useMiddlewares(r,
		a.corsMiddleware(),
		a.loggingMiddleware(),
	)
}
