package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/gateway"
)

// EnsureOrder returns the live payment order for the registration, creating
// one at the gateway only if none exists yet. At most one live order ever
// exists per registration, so a crashed client re-requesting an order gets
// the original back instead of a second billable one.
func EnsureOrder(ctx context.Context, registrationID uuid.UUID, regRepo Repository, orders gateway.Orders, publicKey string) (PaymentOrder, error) {
	reg, err := regRepo.GetRegistration(ctx, registrationID)
	if err != nil {
		return PaymentOrder{}, err
	}

	if !reg.RequiresPayment() {
		return PaymentOrder{}, NewNoPaymentDueError(fmt.Sprintf("Registration %q has no fee to pay", registrationID))
	}
	if reg.Status.IsTerminal() {
		return PaymentOrder{}, NewNoPaymentDueError(fmt.Sprintf("Registration %q is already %s", registrationID, reg.Status))
	}

	if reg.GatewayOrderID != "" {
		return paymentOrderFor(reg, publicKey), nil
	}

	order, err := orders.CreateOrder(ctx, reg.Amount, reg.Currency, reg.ID.String())
	if err != nil {
		return PaymentOrder{}, NewFailedToWriteError("Failed to create order at the payment gateway", err)
	}

	reg.GatewayOrderID = order.ID
	reg.Version++

	err = regRepo.UpdateRegistration(ctx, reg)
	if err != nil {
		var regErr *Error
		if errors.As(err, &regErr) && regErr.Reason == REASON_VERSION_CONFLICT {
			// Lost the race to a concurrent order request; theirs won.
			current, fetchErr := regRepo.GetRegistration(ctx, registrationID)
			if fetchErr != nil {
				return PaymentOrder{}, fetchErr
			}
			if current.GatewayOrderID != "" {
				return paymentOrderFor(current, publicKey), nil
			}
		}
		return PaymentOrder{}, err
	}

	return paymentOrderFor(reg, publicKey), nil
}

func paymentOrderFor(reg Registration, publicKey string) PaymentOrder {
	return PaymentOrder{
		OrderID:          reg.GatewayOrderID,
		Amount:           reg.Amount,
		Currency:         reg.Currency,
		GatewayPublicKey: publicKey,
	}
}
