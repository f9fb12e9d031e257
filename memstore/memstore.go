// Package memstore is an in-memory store for local runs and tests. It
// enforces the same conditional-write semantics as the DynamoDB store so the
// registration flow behaves identically against either.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/registration"
)

type Store struct {
	mu sync.Mutex

	events        map[uuid.UUID]events.Event
	registrations map[uuid.UUID]registration.Registration
	// leaderIdx maps eventID + lowercased leader email to the registration
	// holding that leader's slot, mirroring the idempotency item in Dynamo.
	leaderIdx map[string]uuid.UUID
	orderIdx  map[string]uuid.UUID
}

func New() *Store {
	return &Store{
		events:        map[uuid.UUID]events.Event{},
		registrations: map[uuid.UUID]registration.Registration{},
		leaderIdx:     map[string]uuid.UUID{},
		orderIdx:      map[string]uuid.UUID{},
	}
}

func leaderKey(eventID uuid.UUID, leaderEmail string) string {
	return eventID.String() + "#" + strings.ToLower(leaderEmail)
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return events.Event{}, events.NewEventDoesNotExistsError(fmt.Sprintf("No event with id %s", id), nil)
	}
	return event, nil
}

func (s *Store) GetEvents(ctx context.Context, limit int32, cursor *string) (events.GetEventsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]events.Event, 0, len(s.events))
	for _, event := range s.events {
		all = append(all, event)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID.String() < all[j].ID.String()
	})

	start := 0
	if cursor != nil {
		for i, event := range all {
			if event.ID.String() > *cursor {
				start = i
				break
			}
			start = len(all)
		}
	}

	end := start + int(limit)
	if limit <= 0 || end > len(all) {
		end = len(all)
	}

	resp := events.GetEventsResponse{
		Data:        all[start:end],
		HasNextPage: end < len(all),
	}
	if resp.HasNextPage {
		last := all[end-1].ID.String()
		resp.Cursor = &last
	}
	return resp, nil
}

func (s *Store) CreateEvent(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return events.NewEventAlreadyExistsError(fmt.Sprintf("Event with id %s already exists", event.ID), nil)
	}
	s.events[event.ID] = event
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return events.NewEventDoesNotExistsError(fmt.Sprintf("No event with id %s", event.ID), nil)
	}
	if existing.Version != event.Version-1 {
		return events.NewVersionConflictError(fmt.Sprintf("Event %s was modified concurrently", event.ID), nil)
	}
	s.events[event.ID] = event
	return nil
}

func (s *Store) CreateRegistration(ctx context.Context, reg registration.Registration, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := leaderKey(reg.EventID, reg.LeaderEmail())
	if _, ok := s.leaderIdx[key]; ok {
		return registration.NewRegistrationAlreadyExistsError(
			fmt.Sprintf("Leader %s already has a registration for event %s", reg.LeaderEmail(), reg.EventID), nil)
	}

	existingEvent, ok := s.events[event.ID]
	if !ok {
		return registration.NewAssociatedEventDoesNotExistError(fmt.Sprintf("No event with id %s", event.ID), nil)
	}
	if existingEvent.Version != event.Version-1 {
		return registration.NewVersionConflictError(fmt.Sprintf("Event %s was modified concurrently", event.ID), nil)
	}

	s.events[event.ID] = event
	s.registrations[reg.ID] = reg
	s.leaderIdx[key] = reg.ID
	return nil
}

// CreateRegistrationReplacing repoints the leader's slot from a failed
// registration to reg. The failed registration stays readable by id.
func (s *Store) CreateRegistrationReplacing(ctx context.Context, reg registration.Registration, replacedID uuid.UUID, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := leaderKey(reg.EventID, reg.LeaderEmail())
	if claimed, ok := s.leaderIdx[key]; !ok || claimed != replacedID {
		return registration.NewRegistrationAlreadyExistsError(
			fmt.Sprintf("Leader %s slot for event %s no longer points at %s", reg.LeaderEmail(), reg.EventID, replacedID), nil)
	}

	existingEvent, ok := s.events[event.ID]
	if !ok {
		return registration.NewAssociatedEventDoesNotExistError(fmt.Sprintf("No event with id %s", event.ID), nil)
	}
	if existingEvent.Version != event.Version-1 {
		return registration.NewVersionConflictError(fmt.Sprintf("Event %s was modified concurrently", event.ID), nil)
	}

	s.events[event.ID] = event
	s.registrations[reg.ID] = reg
	s.leaderIdx[key] = reg.ID
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, id uuid.UUID) (registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[id]
	if !ok {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("No registration with id %s", id), nil)
	}
	return reg, nil
}

func (s *Store) GetRegistrationByLeader(ctx context.Context, eventID uuid.UUID, leaderEmail string) (registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.leaderIdx[leaderKey(eventID, leaderEmail)]
	if !ok {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(
			fmt.Sprintf("No registration for leader %s on event %s", leaderEmail, eventID), nil)
	}
	return s.registrations[id], nil
}

func (s *Store) GetRegistrationByOrderID(ctx context.Context, orderID string) (registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.orderIdx[orderID]
	if !ok {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(
			fmt.Sprintf("No registration for order %s", orderID), nil)
	}
	return s.registrations[id], nil
}

func (s *Store) UpdateRegistration(ctx context.Context, reg registration.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.registrations[reg.ID]
	if !ok {
		return registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("No registration with id %s", reg.ID), nil)
	}
	if existing.Version != reg.Version-1 {
		return registration.NewVersionConflictError(fmt.Sprintf("Registration %s was modified concurrently", reg.ID), nil)
	}

	s.registrations[reg.ID] = reg
	if reg.GatewayOrderID != "" {
		s.orderIdx[reg.GatewayOrderID] = reg.ID
	}
	return nil
}
