package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/registration"
	"github.com/stretchr/testify/assert"
)

func testEvent() events.Event {
	return events.Event{
		ID:                    uuid.New(),
		Version:               1,
		Name:                  "Battle of Bands",
		Fee:                   money.New(150000, money.INR),
		AllowedTeamSizeRange:  events.Range{Min: 1, Max: 8},
		Capacity:              10,
		RegistrationCloseTime: time.Now().Add(24 * time.Hour),
	}
}

func testRegistration(eventID uuid.UUID, leaderEmail string) registration.Registration {
	return registration.Registration{
		ID:      uuid.New(),
		Version: 1,
		EventID: eventID,
		Amount:  150000,
		Status:  registration.PENDING,
		Participants: []registration.Participant{
			{FullName: "Asha Rao", Email: leaderEmail, IsLeader: true},
		},
	}
}

func TestEventLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()
	event := testEvent()

	_, err := store.GetEvent(ctx, event.ID)
	var eventErr *events.Error
	assert.True(t, errors.As(err, &eventErr))
	assert.Equal(t, events.REASON_EVENT_DOES_NOT_EXIST, eventErr.Reason)

	assert.NoError(t, store.CreateEvent(ctx, event))

	err = store.CreateEvent(ctx, event)
	assert.True(t, errors.As(err, &eventErr))
	assert.Equal(t, events.REASON_EVENT_ALREADY_EXISTS, eventErr.Reason)

	got, err := store.GetEvent(ctx, event.ID)
	assert.NoError(t, err)
	assert.Equal(t, event.Name, got.Name)

	event.Version = 2
	event.Name = "Battle of Bands Finals"
	assert.NoError(t, store.UpdateEvent(ctx, event))

	// A second update from the same base version loses.
	err = store.UpdateEvent(ctx, event)
	assert.True(t, errors.As(err, &eventErr))
	assert.Equal(t, events.REASON_VERSION_CONFLICT, eventErr.Reason)
}

func TestGetEventsPaginates(t *testing.T) {
	ctx := context.Background()
	store := New()

	for range 5 {
		assert.NoError(t, store.CreateEvent(ctx, testEvent()))
	}

	first, err := store.GetEvents(ctx, 3, nil)
	assert.NoError(t, err)
	assert.Len(t, first.Data, 3)
	assert.True(t, first.HasNextPage)
	assert.NotNil(t, first.Cursor)

	second, err := store.GetEvents(ctx, 3, first.Cursor)
	assert.NoError(t, err)
	assert.Len(t, second.Data, 2)
	assert.False(t, second.HasNextPage)
}

func TestCreateRegistrationClaimsLeaderSlot(t *testing.T) {
	ctx := context.Background()
	store := New()
	event := testEvent()
	assert.NoError(t, store.CreateEvent(ctx, event))

	reg := testRegistration(event.ID, "asha@college.edu")
	event.Version = 2
	event.NumRegistrations = 1
	assert.NoError(t, store.CreateRegistration(ctx, reg, event))

	// Same leader, different casing: the slot is taken.
	dup := testRegistration(event.ID, "ASHA@college.edu")
	event.Version = 3
	err := store.CreateRegistration(ctx, dup, event)
	var regErr *registration.Error
	assert.True(t, errors.As(err, &regErr))
	assert.Equal(t, registration.REASON_REGISTRATION_ALREADY_EXISTS, regErr.Reason)

	found, err := store.GetRegistrationByLeader(ctx, event.ID, "Asha@College.edu")
	assert.NoError(t, err)
	assert.Equal(t, reg.ID, found.ID)
}

func TestCreateRegistrationRejectsStaleEvent(t *testing.T) {
	ctx := context.Background()
	store := New()
	event := testEvent()
	assert.NoError(t, store.CreateEvent(ctx, event))

	reg := testRegistration(event.ID, "asha@college.edu")
	// Event version not bumped against the stored one.
	event.Version = 3

	err := store.CreateRegistration(ctx, reg, event)
	var regErr *registration.Error
	assert.True(t, errors.As(err, &regErr))
	assert.Equal(t, registration.REASON_VERSION_CONFLICT, regErr.Reason)
}

func TestCreateRegistrationReplacingRepointsLeader(t *testing.T) {
	ctx := context.Background()
	store := New()
	event := testEvent()
	assert.NoError(t, store.CreateEvent(ctx, event))

	failed := testRegistration(event.ID, "asha@college.edu")
	event.Version = 2
	event.NumRegistrations = 1
	assert.NoError(t, store.CreateRegistration(ctx, failed, event))

	failed.Status = registration.FAILED
	failed.Version = 2
	assert.NoError(t, store.UpdateRegistration(ctx, failed))

	fresh := testRegistration(event.ID, "asha@college.edu")
	event.Version = 3
	assert.NoError(t, store.CreateRegistrationReplacing(ctx, fresh, failed.ID, event))

	// The slot now belongs to the fresh registration; the failed one stays
	// readable by id.
	byLeader, err := store.GetRegistrationByLeader(ctx, event.ID, "asha@college.edu")
	assert.NoError(t, err)
	assert.Equal(t, fresh.ID, byLeader.ID)

	kept, err := store.GetRegistration(ctx, failed.ID)
	assert.NoError(t, err)
	assert.Equal(t, registration.FAILED, kept.Status)

	// Replacing an id that no longer holds the slot loses.
	again := testRegistration(event.ID, "asha@college.edu")
	event.Version = 4
	err = store.CreateRegistrationReplacing(ctx, again, failed.ID, event)
	var regErr *registration.Error
	assert.True(t, errors.As(err, &regErr))
	assert.Equal(t, registration.REASON_REGISTRATION_ALREADY_EXISTS, regErr.Reason)
}

func TestUpdateRegistrationIndexesOrder(t *testing.T) {
	ctx := context.Background()
	store := New()
	event := testEvent()
	assert.NoError(t, store.CreateEvent(ctx, event))

	reg := testRegistration(event.ID, "asha@college.edu")
	event.Version = 2
	assert.NoError(t, store.CreateRegistration(ctx, reg, event))

	reg.GatewayOrderID = "order_1"
	reg.Version = 2
	assert.NoError(t, store.UpdateRegistration(ctx, reg))

	byOrder, err := store.GetRegistrationByOrderID(ctx, "order_1")
	assert.NoError(t, err)
	assert.Equal(t, reg.ID, byOrder.ID)

	// Stale-version writes are rejected.
	stale := reg
	stale.Version = 2
	err = store.UpdateRegistration(ctx, stale)
	var regErr *registration.Error
	assert.True(t, errors.As(err, &regErr))
	assert.Equal(t, registration.REASON_VERSION_CONFLICT, regErr.Reason)

	_, err = store.GetRegistrationByOrderID(ctx, "order_nope")
	assert.True(t, errors.As(err, &regErr))
	assert.Equal(t, registration.REASON_REGISTRATION_DOES_NOT_EXIST, regErr.Reason)
}
