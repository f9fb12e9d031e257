package events

import (
	"context"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
)

type Event struct {
	ID      uuid.UUID
	Version int
	Name    string
	// Fee is the flat registration fee per team. A nil or zero fee means
	// the event is free and registrations complete without a payment order.
	Fee                  *money.Money
	AllowedTeamSizeRange Range
	// Capacity is the max number of registrations. Zero means unlimited.
	Capacity              int
	NumRegistrations      int
	RegistrationCloseTime time.Time
}

type Range struct {
	Min int
	Max int
}

func (e Event) IsFree() bool {
	return e.Fee == nil || e.Fee.IsZero()
}

func (e Event) IsClosedAt(t time.Time) bool {
	return t.After(e.RegistrationCloseTime)
}

func (e Event) IsFull() bool {
	return e.Capacity > 0 && e.NumRegistrations >= e.Capacity
}

// FeeMinorUnits returns the fee as integer minor units plus currency code,
// which is the representation registrations and payment orders carry.
func (e Event) FeeMinorUnits() (int64, string) {
	if e.Fee == nil {
		return 0, money.INR
	}
	return e.Fee.Amount(), e.Fee.Currency().Code
}

type GetEventsResponse struct {
	Data        []Event
	Cursor      *string
	HasNextPage bool
}

type Repository interface {
	GetEvent(ctx context.Context, id uuid.UUID) (Event, error)
	GetEvents(ctx context.Context, limit int32, cursor *string) (GetEventsResponse, error)
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
}
