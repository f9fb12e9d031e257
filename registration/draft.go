package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/events"
)

// DraftOrResume creates a registration for the event, or returns the existing
// one when the same leader already drafted. Idempotent per (event, leader
// email): retries and reloads never produce a duplicate. Free events complete
// immediately with SUCCESS.
func DraftOrResume(ctx context.Context, eventID uuid.UUID, displayName string, participants []Participant, eventRepo events.Repository, regRepo Repository) (Registration, bool, error) {
	if err := ValidateDraft(displayName, participants); err != nil {
		return Registration{}, false, err
	}

	leaderEmail := leaderEmailOf(participants)

	event, err := eventRepo.GetEvent(ctx, eventID)
	if err != nil {
		var eventErr *events.Error
		if errors.As(err, &eventErr) && eventErr.Reason == events.REASON_EVENT_DOES_NOT_EXIST {
			return Registration{}, false, NewAssociatedEventDoesNotExistError(fmt.Sprintf("Event does not exist with ID %q", eventID), err)
		}
		return Registration{}, false, NewFailedToFetchError(fmt.Sprintf("Failed to fetch event with ID %q", eventID), err)
	}

	var replacedID *uuid.UUID
	existing, err := regRepo.GetRegistrationByLeader(ctx, eventID, leaderEmail)
	if err == nil {
		if existing.Status != FAILED {
			return resumeExisting(existing)
		}
		// A failed payment releases the leader's slot: draft fresh and
		// repoint the claim, keeping the failed registration as history.
		replacedID = &existing.ID
	} else {
		var regErr *Error
		if !errors.As(err, &regErr) || regErr.Reason != REASON_REGISTRATION_DOES_NOT_EXIST {
			return Registration{}, false, err
		}
	}

	now := time.Now().UTC()

	if event.IsClosedAt(now) {
		return Registration{}, false, NewRegistrationIsClosedError(fmt.Sprintf("Registration closed at %s", event.RegistrationCloseTime))
	}
	// A replacement reuses the failed registration's slot, so capacity does
	// not apply to it.
	if event.IsFull() && replacedID == nil {
		return Registration{}, false, NewEventFullError(fmt.Sprintf("Event %q has reached its capacity of %d", event.Name, event.Capacity))
	}
	teamSize := len(participants)
	if teamSize < event.AllowedTeamSizeRange.Min || teamSize > event.AllowedTeamSizeRange.Max {
		return Registration{}, false, NewTeamSizeNotAllowedError(teamSize, event.AllowedTeamSizeRange.Min, event.AllowedTeamSizeRange.Max)
	}

	amount, currency := event.FeeMinorUnits()

	reg := Registration{
		ID:           uuid.New(),
		Version:      1,
		EventID:      eventID,
		DisplayName:  displayName,
		Participants: participants,
		Amount:       amount,
		Currency:     currency,
		Status:       PENDING,
		CreatedAt:    now,
	}
	if !reg.RequiresPayment() {
		reg.Status = SUCCESS
		reg.PaidAt = &now
	}

	event.Version++
	if replacedID == nil {
		event.NumRegistrations++
		err = regRepo.CreateRegistration(ctx, reg, event)
	} else {
		err = regRepo.CreateRegistrationReplacing(ctx, reg, *replacedID, event)
	}
	if err != nil {
		var regErr *Error
		if errors.As(err, &regErr) && regErr.Reason == REASON_REGISTRATION_ALREADY_EXISTS {
			// Lost the race to a concurrent draft for the same leader.
			existing, fetchErr := regRepo.GetRegistrationByLeader(ctx, eventID, leaderEmail)
			if fetchErr != nil {
				return Registration{}, false, fetchErr
			}
			return resumeExisting(existing)
		}
		return Registration{}, false, err
	}

	return reg, false, nil
}

func resumeExisting(existing Registration) (Registration, bool, error) {
	// A paid-up leader cannot draft again; anything non-terminal resumes.
	// FAILED never lands here on the main path, a fresh draft replaces it.
	if existing.Status == SUCCESS && existing.RequiresPayment() {
		return Registration{}, false, NewAlreadyRegisteredError(fmt.Sprintf("Leader %q already has a completed registration", existing.LeaderEmail()))
	}
	return existing, true, nil
}

func leaderEmailOf(participants []Participant) string {
	for _, p := range participants {
		if p.IsLeader {
			return p.Email
		}
	}
	return ""
}
