package saga

import (
	"context"

	"github.com/pulsefest/registration/registration"
)

type OutcomeKind int

const (
	// OutcomeSucceeded means the widget observed a successful charge. A hint,
	// not proof; the status resolver confirms it.
	OutcomeSucceeded OutcomeKind = iota
	// OutcomeFailed means the widget observed a declined or errored charge.
	OutcomeFailed
	// OutcomeDismissed means the user closed the widget without paying. Not
	// an error; the flow is resumable with the same order.
	OutcomeDismissed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "SUCCEEDED"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeDismissed:
		return "DISMISSED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the single tagged result of one widget interaction, so the rest
// of the saga reads as straight-line branches instead of nested callbacks.
type Outcome struct {
	Kind OutcomeKind
	// PaymentID is set only for OutcomeSucceeded. Opaque and untrusted.
	PaymentID string
	// Reason is set only for OutcomeFailed.
	Reason string
}

// Collector wraps the external payment widget: blocking from the user's
// perspective, a single call from the program's. It yields exactly one
// outcome per invocation.
type Collector interface {
	Collect(ctx context.Context, order registration.PaymentOrder, displayName string) (Outcome, error)
}
