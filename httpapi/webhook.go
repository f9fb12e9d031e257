package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pulsefest/registration/registration"
)

// postGatewayWebhook settles a payment from the gateway's out-of-band event.
// This is the authoritative path to SUCCESS/FAILED; the client's confirm call
// only ever reaches PROCESSING. Signature verification is deliberately not
// done here.
func (a *API) postGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, 65536)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to read gateway webhook body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, Error{Code: InvalidBody, Message: "Invalid webhook body"})
		return
	}

	var captured bool
	switch req.Event {
	case WebhookPaymentCaptured:
		captured = true
	case WebhookPaymentFailed:
		captured = false
	default:
		a.writeError(w, http.StatusBadRequest, Error{Code: InvalidBody, Message: "Unknown webhook event"})
		return
	}

	err = a.applyGatewayEvent(ctx, req.OrderID, req.PaymentID, captured)
	if err != nil {
		var regErr *registration.Error
		if errors.As(err, &regErr) {
			switch regErr.Reason {
			case registration.REASON_REGISTRATION_DOES_NOT_EXIST:
				a.writeError(w, http.StatusNotFound, Error{Code: NotFound, Message: "No registration for that order"})
				return
			case registration.REASON_STATUS_REGRESSION:
				// A contradictory event after settlement. Ack it so the
				// gateway stops retrying; the stored outcome stands.
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// applyGatewayEvent settles the order and sends the confirmation email on a
// fresh SUCCESS. Shared between the webhook route and in-process delivery
// from the fake gateway.
func (a *API) applyGatewayEvent(ctx context.Context, orderID string, paymentID string, captured bool) error {
	reg, transitioned, err := registration.ApplyGatewayEvent(ctx, orderID, paymentID, captured, a.db)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to apply gateway event",
			slog.String("error", err.Error()),
			slog.String("orderId", orderID),
		)
		return err
	}

	if transitioned && reg.Status == registration.SUCCESS {
		a.sendConfirmationEmail(ctx, reg)
	}

	return nil
}

func (a *API) sendConfirmationEmail(ctx context.Context, reg registration.Registration) {
	if a.emailSender == nil {
		return
	}

	event, err := a.db.GetEvent(ctx, reg.EventID)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to get event to send confirmation email with",
			slog.String("error", err.Error()),
			slog.String("eventId", reg.EventID.String()),
		)
		return
	}

	err = registration.SendRegistrationConfirmationEmail(ctx, a.emailSender, a.emailFrom, reg, event)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to send confirmation email",
			slog.String("error", err.Error()),
			slog.String("email", reg.LeaderEmail()),
		)
	}
}
