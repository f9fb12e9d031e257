package registration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/events"
)

type Status string

const (
	PENDING    Status = "PENDING"
	PROCESSING Status = "PROCESSING"
	SUCCESS    Status = "SUCCESS"
	FAILED     Status = "FAILED"
)

func (s Status) IsTerminal() bool {
	return s == SUCCESS || s == FAILED
}

// CanTransitionTo reports whether moving to next keeps the status monotonic.
// The only legal chain is PENDING -> PROCESSING -> SUCCESS/FAILED; terminal
// states never move again and nothing ever goes back toward PENDING.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}

	switch s {
	case PENDING:
		return next == PROCESSING || next == SUCCESS || next == FAILED
	case PROCESSING:
		return next == SUCCESS || next == FAILED
	default:
		return false
	}
}

type Participant struct {
	FullName string
	Email    string
	Phone    string
	College  string
	IsLeader bool
}

type Registration struct {
	ID           uuid.UUID
	Version      int
	EventID      uuid.UUID
	DisplayName  string
	Participants []Participant

	// Amount is the fee owed in integer minor units, with Currency as the
	// ISO code. Zero means no payment is required.
	Amount   int64
	Currency string

	Status    Status
	CreatedAt time.Time
	PaidAt    *time.Time

	GatewayOrderID   string
	GatewayPaymentID string
}

func (r Registration) RequiresPayment() bool {
	return r.Amount > 0
}

func (r Registration) Leader() (Participant, bool) {
	for _, p := range r.Participants {
		if p.IsLeader {
			return p, true
		}
	}
	return Participant{}, false
}

func (r Registration) LeaderEmail() string {
	leader, ok := r.Leader()
	if !ok {
		return ""
	}
	return leader.Email
}

// PaymentOrder is the ephemeral gateway order handed to the payment widget.
// It is never persisted beyond the client's correlation record.
type PaymentOrder struct {
	OrderID          string
	Amount           int64
	Currency         string
	GatewayPublicKey string
}

type Repository interface {
	// CreateRegistration persists the registration and the updated event
	// stats in one transaction. It must refuse a second registration for
	// the same (event, leader email).
	CreateRegistration(ctx context.Context, reg Registration, event events.Event) error
	// CreateRegistrationReplacing persists reg in place of a FAILED
	// registration by the same leader, repointing the leader's slot claim in
	// the same transaction. The write must lose when the claim no longer
	// points at replacedID.
	CreateRegistrationReplacing(ctx context.Context, reg Registration, replacedID uuid.UUID, event events.Event) error
	GetRegistration(ctx context.Context, id uuid.UUID) (Registration, error)
	GetRegistrationByLeader(ctx context.Context, eventID uuid.UUID, leaderEmail string) (Registration, error)
	GetRegistrationByOrderID(ctx context.Context, orderID string) (Registration, error)
	// UpdateRegistration writes the registration conditional on the stored
	// version being reg.Version - 1. When the update attaches a gateway
	// order id it must also refuse a second live order for the registration.
	UpdateRegistration(ctx context.Context, reg Registration) error
}
