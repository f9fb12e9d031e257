package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConfirmPayment records a client-observed payment success. It is advisory:
// the payment id is untrusted input and only moves the registration to
// PROCESSING; the gateway webhook is what produces a terminal state. Confirms
// against an already-terminal registration are acked as no-ops.
func ConfirmPayment(ctx context.Context, orderID string, paymentID string, registrationID uuid.UUID, regRepo Repository) (Registration, error) {
	reg, err := regRepo.GetRegistration(ctx, registrationID)
	if err != nil {
		return Registration{}, err
	}

	if reg.GatewayOrderID == "" || reg.GatewayOrderID != orderID {
		return Registration{}, NewOrderMismatchError(fmt.Sprintf("Order %q does not belong to registration %q", orderID, registrationID))
	}

	if reg.Status.IsTerminal() {
		return reg, nil
	}

	if !reg.Status.CanTransitionTo(PROCESSING) {
		return Registration{}, NewStatusRegressionError(reg.Status, PROCESSING)
	}

	reg.GatewayPaymentID = paymentID
	reg.Status = PROCESSING
	reg.Version++

	err = regRepo.UpdateRegistration(ctx, reg)
	if err != nil {
		return Registration{}, err
	}

	return reg, nil
}

// ApplyGatewayEvent applies an authoritative capture or failure reported by
// the gateway for an order. Idempotent: replays against a registration that
// already reached the matching terminal state are no-ops.
func ApplyGatewayEvent(ctx context.Context, orderID string, paymentID string, captured bool, regRepo Repository) (Registration, bool, error) {
	reg, err := regRepo.GetRegistrationByOrderID(ctx, orderID)
	if err != nil {
		return Registration{}, false, err
	}

	target := FAILED
	if captured {
		target = SUCCESS
	}

	if reg.Status == target {
		return reg, false, nil
	}
	if !reg.Status.CanTransitionTo(target) {
		return Registration{}, false, NewStatusRegressionError(reg.Status, target)
	}

	if paymentID != "" {
		reg.GatewayPaymentID = paymentID
	}
	reg.Status = target
	if captured {
		now := time.Now().UTC()
		reg.PaidAt = &now
	}
	reg.Version++

	err = regRepo.UpdateRegistration(ctx, reg)
	if err != nil {
		return Registration{}, false, err
	}

	return reg, true, nil
}
