package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/registration"
)

// RunResult is where one pass through the flow ended up.
type RunResult struct {
	Registration registration.Registration
	// Outcome is set when the payment widget ran, nil otherwise (free event
	// or resume straight into polling).
	Outcome *Outcome
	// Watch is the status poller. Nil exactly when the widget was dismissed:
	// nothing is in flight and the flow resumes later from the stored ids.
	Watch *Watch
}

// Run drives one full pass of the flow for a fresh entry with participant
// data in hand. The correlation store is consulted first, so a reload that
// still has its form state lands on the same registration instead of
// drafting a second one.
func (s *Saga) Run(ctx context.Context, eventID uuid.UUID, displayName string, participants []registration.Participant) (RunResult, error) {
	record, found, err := s.store.Get(ctx, eventID)
	if err != nil {
		return RunResult{}, NewStoreFailedError("Failed to read correlation record", err)
	}

	if found && record.RegistrationID != nil {
		reg, err := s.backend.GetRegistrationStatus(ctx, *record.RegistrationID)
		switch {
		case err == nil && reg.Status != registration.FAILED:
			return s.continueFlow(ctx, eventID, reg, record.PaymentID)
		case err == nil:
			// A failed payment is not the end of the road: the backend
			// releases the leader's slot, so drop the record and draft fresh.
			s.logger.InfoContext(ctx, "Stored registration failed, drafting fresh",
				slog.String("eventId", eventID.String()),
				slog.String("registrationId", record.RegistrationID.String()),
			)
		case HasReason(err, REASON_DRAFT_NOT_FOUND):
			// Stale record: the backend no longer knows the id. Start over.
			s.logger.WarnContext(ctx, "Stored registration id is stale, drafting fresh",
				slog.String("eventId", eventID.String()),
				slog.String("registrationId", record.RegistrationID.String()),
			)
		default:
			return RunResult{}, err
		}

		if err := s.store.Clear(ctx, eventID); err != nil {
			return RunResult{}, NewStoreFailedError("Failed to clear dead correlation record", err)
		}
	}

	reg, err := s.DraftOrResume(ctx, eventID, displayName, participants)
	if err != nil {
		return RunResult{}, err
	}

	return s.continueFlow(ctx, eventID, reg, nil)
}

// Resume re-enters the flow with nothing but the correlation store, the
// fresh-page-load path. SessionLost when no identifiers are recoverable.
func (s *Saga) Resume(ctx context.Context, eventID uuid.UUID) (RunResult, error) {
	record, found, err := s.store.Get(ctx, eventID)
	if err != nil {
		return RunResult{}, NewStoreFailedError("Failed to read correlation record", err)
	}
	if !found || record.RegistrationID == nil {
		return RunResult{}, NewSessionLostError(fmt.Sprintf("No correlation record for event %q", eventID), nil)
	}

	reg, err := s.backend.GetRegistrationStatus(ctx, *record.RegistrationID)
	if err != nil {
		if HasReason(err, REASON_DRAFT_NOT_FOUND) {
			return RunResult{}, NewSessionLostError("Stored registration id is no longer known to the backend", err)
		}
		return RunResult{}, err
	}

	return s.continueFlow(ctx, eventID, reg, record.PaymentID)
}

// continueFlow picks the right next step from the registration's state, which
// is what makes crash recovery and fresh runs converge on the same behavior.
func (s *Saga) continueFlow(ctx context.Context, eventID uuid.UUID, reg registration.Registration, observedPaymentID *string) (RunResult, error) {
	// Nothing left to pay for, or the outcome is already decided: the
	// resolver is the only remaining step either way.
	if reg.Status.IsTerminal() || !reg.RequiresPayment() || reg.Status == registration.PROCESSING {
		return RunResult{Registration: reg, Watch: s.Resolve(ctx, reg.ID)}, nil
	}

	// A payment id was observed before a crash, but the backend still shows
	// PENDING: the relay may never have arrived. Re-relay, then poll.
	if observedPaymentID != nil && reg.GatewayOrderID != "" {
		s.relay(ctx, reg.GatewayOrderID, *observedPaymentID, reg.ID)
		return RunResult{Registration: reg, Watch: s.Resolve(ctx, reg.ID)}, nil
	}

	order, err := s.EnsureOrder(ctx, eventID, reg.ID)
	if err != nil {
		return RunResult{}, err
	}

	outcome, err := s.CollectPayment(ctx, eventID, reg.ID, order, reg.DisplayName)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{Registration: reg, Outcome: &outcome}
	if outcome.Kind != OutcomeDismissed {
		result.Watch = s.Resolve(ctx, reg.ID)
	}

	return result, nil
}
