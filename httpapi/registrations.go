package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/registration"
	"github.com/pulsefest/registration/slices"
)

func (a *API) postRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := uuid.Parse(r.PathValue("eventId"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, Error{Code: InvalidBody, Message: "Event id must be a UUID"})
		return
	}

	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, Error{Code: EmptyBody, Message: "Must specify a valid JSON body"})
		return
	}

	reg, resumed, err := registration.DraftOrResume(ctx, eventID, req.DisplayName, wireToParticipants(req.Participants), a.db, a.db)
	if err != nil {
		a.logger.ErrorContext(ctx, "Error trying to draft registration", slog.String("error", err.Error()))

		var regErr *registration.Error
		if errors.As(err, &regErr) {
			switch regErr.Reason {
			case registration.REASON_INVALID_PARTICIPANTS:
				a.writeError(w, http.StatusBadRequest, Error{
					Code:    ValidationFailed,
					Message: "Participant data is invalid",
					Fields: slices.Map(regErr.Fields, func(f registration.FieldError) FieldError {
						return FieldError{Field: f.Field, Message: f.Message}
					}),
				})
				return
			case registration.REASON_ASSOCIATED_EVENT_DOES_NOT_EXIST:
				a.writeError(w, http.StatusNotFound, Error{Code: NotFound, Message: "Event to register with was not found"})
				return
			case registration.REASON_ALREADY_REGISTERED:
				a.writeError(w, http.StatusConflict, Error{Code: AlreadyRegistered, Message: "Leader already has a completed registration for this event"})
				return
			case registration.REASON_REGISTRATION_IS_CLOSED:
				a.writeError(w, http.StatusConflict, Error{Code: RegistrationClosed, Message: "Registration for this event has closed"})
				return
			case registration.REASON_EVENT_FULL:
				a.writeError(w, http.StatusConflict, Error{Code: EventFull, Message: "Event has reached capacity"})
				return
			case registration.REASON_TEAM_SIZE_NOT_ALLOWED:
				a.writeError(w, http.StatusConflict, Error{Code: TeamSizeNotAllowed, Message: regErr.Message})
				return
			}
		}

		a.writeError(w, http.StatusInternalServerError, Error{Code: InternalError, Message: "Failed to register"})
		return
	}

	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}

	// Free events settle at draft time, so the confirmation goes out here.
	if !resumed && reg.Status == registration.SUCCESS {
		a.sendConfirmationEmail(ctx, reg)
	}

	a.writeJSON(w, status, registrationToWire(reg))
}

func (a *API) postPaymentOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	registrationID, err := uuid.Parse(r.PathValue("registrationId"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, Error{Code: InvalidBody, Message: "Registration id must be a UUID"})
		return
	}

	order, err := registration.EnsureOrder(ctx, registrationID, a.db, a.orders, a.gatewayPublicKey)
	if err != nil {
		a.logger.ErrorContext(ctx, "Error trying to create payment order",
			slog.String("error", err.Error()),
			slog.String("registrationId", registrationID.String()),
		)

		var regErr *registration.Error
		if errors.As(err, &regErr) {
			switch regErr.Reason {
			case registration.REASON_REGISTRATION_DOES_NOT_EXIST:
				a.writeError(w, http.StatusNotFound, Error{Code: NotFound, Message: "Registration was not found"})
				return
			case registration.REASON_NO_PAYMENT_DUE:
				a.writeError(w, http.StatusConflict, Error{Code: NoPaymentDue, Message: regErr.Message})
				return
			}
		}

		a.writeError(w, http.StatusInternalServerError, Error{Code: InternalError, Message: "Failed to create payment order"})
		return
	}

	a.writeJSON(w, http.StatusOK, PaymentOrder{
		OrderID:          order.OrderID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		GatewayPublicKey: order.GatewayPublicKey,
	})
}

func (a *API) getRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	registrationID, err := uuid.Parse(r.PathValue("registrationId"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, Error{Code: InvalidBody, Message: "Registration id must be a UUID"})
		return
	}

	reg, err := a.db.GetRegistration(ctx, registrationID)
	if err != nil {
		var regErr *registration.Error
		if errors.As(err, &regErr) && regErr.Reason == registration.REASON_REGISTRATION_DOES_NOT_EXIST {
			a.writeError(w, http.StatusNotFound, Error{Code: NotFound, Message: "Registration was not found"})
			return
		}

		a.logger.ErrorContext(ctx, "Failed to fetch registration",
			slog.String("error", err.Error()),
			slog.String("registrationId", registrationID.String()),
		)
		a.writeError(w, http.StatusInternalServerError, Error{Code: InternalError, Message: "Failed to fetch registration"})
		return
	}

	a.writeJSON(w, http.StatusOK, registrationToWire(reg))
}

func (a *API) postConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, Error{Code: EmptyBody, Message: "Must specify a valid JSON body"})
		return
	}

	_, err := registration.ConfirmPayment(ctx, req.OrderID, req.PaymentID, req.RegistrationID, a.db)
	if err != nil {
		a.logger.ErrorContext(ctx, "Error confirming payment",
			slog.String("error", err.Error()),
			slog.String("orderId", req.OrderID),
			slog.String("registrationId", req.RegistrationID.String()),
		)

		var regErr *registration.Error
		if errors.As(err, &regErr) {
			switch regErr.Reason {
			case registration.REASON_REGISTRATION_DOES_NOT_EXIST:
				a.writeError(w, http.StatusNotFound, Error{Code: NotFound, Message: "Registration was not found"})
				return
			case registration.REASON_ORDER_MISMATCH:
				a.writeError(w, http.StatusConflict, Error{Code: OrderMismatch, Message: regErr.Message})
				return
			}
		}

		a.writeError(w, http.StatusInternalServerError, Error{Code: InternalError, Message: "Failed to confirm payment"})
		return
	}

	// Advisory ack: the webhook remains the authoritative settlement path.
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("Failed to encode response body", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, e Error) {
	a.writeJSON(w, status, e)
}
