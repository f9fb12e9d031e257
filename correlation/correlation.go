// Package correlation stores the identifiers needed to resume an in-flight
// registration-payment flow after a crash or restart. The record never holds
// the registration status itself; that is always re-derived from the backend.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// Record is everything the client durably owns for one event's flow. A nil
// field means that step has not been reached yet; resume from there.
type Record struct {
	RegistrationID *uuid.UUID
	OrderID        *string
	PaymentID      *string
}

// Merge returns the record with any non-nil field of update applied on top.
// Fields absent from update are left untouched.
func (r Record) Merge(update Record) Record {
	if update.RegistrationID != nil {
		r.RegistrationID = update.RegistrationID
	}
	if update.OrderID != nil {
		r.OrderID = update.OrderID
	}
	if update.PaymentID != nil {
		r.PaymentID = update.PaymentID
	}
	return r
}

type Store interface {
	// Put merges update into the stored record for the event. Unset fields
	// of update never clobber previously stored ones.
	Put(ctx context.Context, eventID uuid.UUID, update Record) error
	Get(ctx context.Context, eventID uuid.UUID) (Record, bool, error)
	Clear(ctx context.Context, eventID uuid.UUID) error
}
