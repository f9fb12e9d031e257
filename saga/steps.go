package saga

import (
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/pulsefest/registration/correlation"
	"github.com/pulsefest/registration/registration"
)

// DraftOrResume validates the participant set locally, drafts (or resumes)
// the registration at the backend, and records the registration id in the
// correlation store. Validation failures never reach the network.
func (s *Saga) DraftOrResume(ctx context.Context, eventID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "saga.DraftOrResume")
	defer span.End()

	if err := registration.ValidateDraft(displayName, participants); err != nil {
		span.RecordError(err)
		return registration.Registration{}, err
	}

	reg, err := s.backend.CreateOrResumeRegistration(ctx, eventID, displayName, participants)
	if err != nil {
		span.RecordError(err)
		return registration.Registration{}, err
	}

	err = s.store.Put(ctx, eventID, correlation.Record{RegistrationID: &reg.ID})
	if err != nil {
		span.RecordError(err)
		return registration.Registration{}, NewStoreFailedError("Failed to record drafted registration id", err)
	}

	s.logger.InfoContext(ctx, "Registration drafted",
		slog.String("eventId", eventID.String()),
		slog.String("registrationId", reg.ID.String()),
		slog.String("status", string(reg.Status)),
	)

	return reg, nil
}

// EnsureOrder requests the payment order for the registration and records
// the order id. The backend keeps at most one live order per registration,
// so calling this again after a crash returns the original order.
func (s *Saga) EnsureOrder(ctx context.Context, eventID uuid.UUID, registrationID uuid.UUID) (registration.PaymentOrder, error) {
	ctx, span := s.tracer.Start(ctx, "saga.EnsureOrder")
	defer span.End()

	order, err := s.backend.CreatePaymentOrder(ctx, registrationID)
	if err != nil {
		span.RecordError(err)
		return registration.PaymentOrder{}, err
	}

	err = s.store.Put(ctx, eventID, correlation.Record{OrderID: &order.OrderID})
	if err != nil {
		span.RecordError(err)
		return registration.PaymentOrder{}, NewStoreFailedError("Failed to record payment order id", err)
	}

	s.logger.InfoContext(ctx, "Payment order ready",
		slog.String("eventId", eventID.String()),
		slog.String("registrationId", registrationID.String()),
		slog.String("orderId", order.OrderID),
		slog.Int64("amount", order.Amount),
	)

	return order, nil
}

// CollectPayment cedes control to the payment widget and handles its one
// outcome. On success the payment id is persisted before the confirmation
// relay fires, so a crash mid-relay is still recoverable by polling.
func (s *Saga) CollectPayment(ctx context.Context, eventID uuid.UUID, registrationID uuid.UUID, order registration.PaymentOrder, displayName string) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "saga.CollectPayment")
	defer span.End()

	outcome, err := s.collector.Collect(ctx, order, displayName)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}

	switch outcome.Kind {
	case OutcomeSucceeded:
		err = s.store.Put(ctx, eventID, correlation.Record{PaymentID: &outcome.PaymentID})
		if err != nil {
			span.RecordError(err)
			return Outcome{}, NewStoreFailedError("Failed to record observed payment id", err)
		}
		s.relay(ctx, order.OrderID, outcome.PaymentID, registrationID)
	case OutcomeFailed:
		s.logger.WarnContext(ctx, "Widget reported a declined charge",
			slog.String("orderId", order.OrderID),
			slog.String("reason", outcome.Reason),
		)
	case OutcomeDismissed:
		s.logger.InfoContext(ctx, "Widget dismissed, registration stays resumable",
			slog.String("orderId", order.OrderID),
		)
	}

	return outcome, nil
}

// relay tells the backend about a client-observed payment success. Advisory
// and at-least-once: the gateway's own webhook is the authoritative source,
// so failures here are retried briefly, then logged and swallowed.
func (s *Saga) relay(ctx context.Context, orderID string, paymentID string, registrationID uuid.UUID) {
	ctx, span := s.tracer.Start(ctx, "saga.relay")
	defer span.End()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.backend.ConfirmPayment(ctx, orderID, paymentID, registrationID)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(s.relayMaxTries),
	)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "Confirmation relay failed, leaving it to the poller",
			slog.String("orderId", orderID),
			slog.String("registrationId", registrationID.String()),
			slog.String("error", err.Error()),
		)
	}
}
