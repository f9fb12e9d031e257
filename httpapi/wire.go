package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/registration"
	"github.com/pulsefest/registration/slices"
)

type ErrorCode string

const (
	EmptyBody          ErrorCode = "EmptyBody"
	InvalidBody        ErrorCode = "InvalidBody"
	ValidationFailed   ErrorCode = "ValidationFailed"
	NotFound           ErrorCode = "NotFound"
	AlreadyRegistered  ErrorCode = "AlreadyRegistered"
	RegistrationClosed ErrorCode = "RegistrationClosed"
	EventFull          ErrorCode = "EventFull"
	TeamSizeNotAllowed ErrorCode = "TeamSizeNotAllowed"
	NoPaymentDue       ErrorCode = "NoPaymentDue"
	OrderMismatch      ErrorCode = "OrderMismatch"
	LimitOutOfBounds   ErrorCode = "LimitOutOfBounds"
	InvalidCursor      ErrorCode = "InvalidCursor"
	InternalError      ErrorCode = "InternalError"
)

type Error struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Participant struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	College  string `json:"college"`
	IsLeader bool   `json:"isLeader"`
}

type DraftRequest struct {
	DisplayName  string        `json:"displayName"`
	Participants []Participant `json:"participants"`
}

type Registration struct {
	ID               uuid.UUID     `json:"id"`
	EventID          uuid.UUID     `json:"eventId"`
	DisplayName      string        `json:"displayName"`
	Participants     []Participant `json:"participants"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	Status           string        `json:"status"`
	CreatedAt        time.Time     `json:"createdAt"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	GatewayOrderID   string        `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string        `json:"gatewayPaymentId,omitempty"`
}

type Event struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	FeeAmount             int64     `json:"feeAmount"`
	FeeCurrency           string    `json:"feeCurrency"`
	AllowedTeamSizeRange  Range     `json:"allowedTeamSizeRange"`
	Capacity              int       `json:"capacity"`
	NumRegistrations      int       `json:"numRegistrations"`
	RegistrationCloseTime time.Time `json:"registrationCloseTime"`
}

type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type EventsResponse struct {
	Data        []Event `json:"data"`
	Cursor      *string `json:"cursor,omitempty"`
	HasNextPage bool    `json:"hasNextPage"`
}

type PaymentOrder struct {
	OrderID          string `json:"orderId"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	GatewayPublicKey string `json:"gatewayPublicKey"`
}

type ConfirmRequest struct {
	OrderID        string    `json:"orderId"`
	PaymentID      string    `json:"paymentId"`
	RegistrationID uuid.UUID `json:"registrationId"`
}

type WebhookRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId,omitempty"`
	// Event is "payment.captured" or "payment.failed".
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
}

const (
	WebhookPaymentCaptured = "payment.captured"
	WebhookPaymentFailed   = "payment.failed"
)

func eventToWire(event events.Event) Event {
	amount, currency := event.FeeMinorUnits()
	return Event{
		ID:                    event.ID,
		Name:                  event.Name,
		FeeAmount:             amount,
		FeeCurrency:           currency,
		AllowedTeamSizeRange:  Range{Min: event.AllowedTeamSizeRange.Min, Max: event.AllowedTeamSizeRange.Max},
		Capacity:              event.Capacity,
		NumRegistrations:      event.NumRegistrations,
		RegistrationCloseTime: event.RegistrationCloseTime,
	}
}

func registrationToWire(reg registration.Registration) Registration {
	return Registration{
		ID:          reg.ID,
		EventID:     reg.EventID,
		DisplayName: reg.DisplayName,
		Participants: slices.Map(reg.Participants, func(p registration.Participant) Participant {
			return Participant{
				FullName: p.FullName,
				Email:    p.Email,
				Phone:    p.Phone,
				College:  p.College,
				IsLeader: p.IsLeader,
			}
		}),
		Amount:           reg.Amount,
		Currency:         reg.Currency,
		Status:           string(reg.Status),
		CreatedAt:        reg.CreatedAt,
		PaidAt:           reg.PaidAt,
		GatewayOrderID:   reg.GatewayOrderID,
		GatewayPaymentID: reg.GatewayPaymentID,
	}
}

func wireToParticipants(participants []Participant) []registration.Participant {
	return slices.Map(participants, func(p Participant) registration.Participant {
		return registration.Participant{
			FullName: p.FullName,
			Email:    p.Email,
			Phone:    p.Phone,
			College:  p.College,
			IsLeader: p.IsLeader,
		}
	})
}
