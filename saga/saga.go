// Package saga coordinates the registration-payment flow on the client side:
// draft (or resume) a registration, create a payment order, hand control to
// the payment widget, relay the observed success, and poll the authoritative
// status endpoint until a terminal state. Every step's identifiers are
// persisted to a correlation store first, so a crashed or reloaded client
// resumes instead of duplicating work.
package saga

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/correlation"
	"github.com/pulsefest/registration/registration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Backend is the registration backend the saga drives. All operations are
// idempotent on the backend side: drafting per (event, leader email), order
// creation per registration, and status reads are pure.
type Backend interface {
	CreateOrResumeRegistration(ctx context.Context, eventID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error)
	CreatePaymentOrder(ctx context.Context, registrationID uuid.UUID) (registration.PaymentOrder, error)
	ConfirmPayment(ctx context.Context, orderID string, paymentID string, registrationID uuid.UUID) error
	GetRegistrationStatus(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error)
}

type Saga struct {
	backend   Backend
	collector Collector
	store     correlation.Store
	logger    *slog.Logger
	tracer    trace.Tracer

	pollInterval  time.Duration
	relayMaxTries uint
}

type Option func(*Saga)

// WithPollInterval overrides the status poll interval. The default is two
// seconds.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Saga) {
		s.pollInterval = interval
	}
}

// WithRelayMaxTries caps how often the confirmation relay is attempted before
// the saga gives up and leaves it to the poller.
func WithRelayMaxTries(tries uint) Option {
	return func(s *Saga) {
		s.relayMaxTries = tries
	}
}

func New(backend Backend, collector Collector, store correlation.Store, logger *slog.Logger, opts ...Option) *Saga {
	s := &Saga{
		backend:       backend,
		collector:     collector,
		store:         store,
		logger:        logger,
		tracer:        otel.Tracer("github.com/pulsefest/registration/saga"),
		pollInterval:  2 * time.Second,
		relayMaxTries: 3,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}
