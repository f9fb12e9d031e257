package saga

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/correlation"
	"github.com/pulsefest/registration/ptr"
	"github.com/pulsefest/registration/registration"
	"github.com/stretchr/testify/assert"
)

var noopLogger = slog.New(slog.DiscardHandler)

var _ Backend = &mockBackend{}

type mockBackend struct {
	mu sync.Mutex

	CreateOrResumeRegistrationFunc func(ctx context.Context, eventID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error)
	CreatePaymentOrderFunc         func(ctx context.Context, registrationID uuid.UUID) (registration.PaymentOrder, error)
	ConfirmPaymentFunc             func(ctx context.Context, orderID string, paymentID string, registrationID uuid.UUID) error
	GetRegistrationStatusFunc      func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error)

	draftCalls   int
	orderCalls   int
	confirmCalls int
}

func (m *mockBackend) CreateOrResumeRegistration(ctx context.Context, eventID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
	m.mu.Lock()
	m.draftCalls++
	m.mu.Unlock()
	return m.CreateOrResumeRegistrationFunc(ctx, eventID, displayName, participants)
}

func (m *mockBackend) CreatePaymentOrder(ctx context.Context, registrationID uuid.UUID) (registration.PaymentOrder, error) {
	m.mu.Lock()
	m.orderCalls++
	m.mu.Unlock()
	return m.CreatePaymentOrderFunc(ctx, registrationID)
}

func (m *mockBackend) ConfirmPayment(ctx context.Context, orderID string, paymentID string, registrationID uuid.UUID) error {
	m.mu.Lock()
	m.confirmCalls++
	m.mu.Unlock()
	if m.ConfirmPaymentFunc != nil {
		return m.ConfirmPaymentFunc(ctx, orderID, paymentID, registrationID)
	}
	return nil
}

func (m *mockBackend) GetRegistrationStatus(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
	return m.GetRegistrationStatusFunc(ctx, registrationID)
}

func (m *mockBackend) counts() (draft, order, confirm int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draftCalls, m.orderCalls, m.confirmCalls
}

type scriptedCollector struct {
	outcomes []Outcome
	calls    int
}

func (c *scriptedCollector) Collect(ctx context.Context, order registration.PaymentOrder, displayName string) (Outcome, error) {
	if c.calls >= len(c.outcomes) {
		return Outcome{}, errors.New("collector called more times than scripted")
	}
	outcome := c.outcomes[c.calls]
	c.calls++
	return outcome, nil
}

func testParticipants() []registration.Participant {
	return []registration.Participant{
		{FullName: "Asha Rao", Email: "asha@college.edu", Phone: "9876543210", College: "NIT Trichy", IsLeader: true},
	}
}

// statusSequence hands out statuses one poll at a time, sticking on the last.
type statusSequence struct {
	mu       sync.Mutex
	statuses []registration.Status
	idx      int
}

func (s *statusSequence) next() registration.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx < len(s.statuses)-1 {
		status := s.statuses[s.idx]
		s.idx++
		return status
	}
	return s.statuses[len(s.statuses)-1]
}

func newTestSaga(backend Backend, collector Collector, store correlation.Store) *Saga {
	return New(backend, collector, store, noopLogger, WithPollInterval(5*time.Millisecond))
}

func TestRunPaidFlowSucceeds(t *testing.T) {
	eventID := uuid.New()
	regID := uuid.New()

	seq := &statusSequence{statuses: []registration.Status{registration.PROCESSING, registration.SUCCESS}}

	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			return registration.Registration{ID: regID, EventID: evID, Amount: 150000, Status: registration.PENDING}, nil
		},
		CreatePaymentOrderFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.PaymentOrder, error) {
			return registration.PaymentOrder{OrderID: "order_1", Amount: 150000, Currency: "INR"}, nil
		},
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			return registration.Registration{ID: regID, Status: seq.next()}, nil
		},
	}
	collector := &scriptedCollector{outcomes: []Outcome{{Kind: OutcomeSucceeded, PaymentID: "pay_1"}}}
	store := correlation.NewMemoryStore()

	s := newTestSaga(backend, collector, store)

	result, err := s.Run(context.Background(), eventID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.NotNil(t, result.Outcome)
	assert.Equal(t, OutcomeSucceeded, result.Outcome.Kind)
	assert.NotNil(t, result.Watch)

	final, err := result.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)

	_, _, confirms := backend.counts()
	assert.Equal(t, 1, confirms)

	record, found, err := store.Get(context.Background(), eventID)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, regID, *record.RegistrationID)
	assert.Equal(t, "order_1", *record.OrderID)
	assert.Equal(t, "pay_1", *record.PaymentID)
}

func TestRunFreeEventSkipsPayment(t *testing.T) {
	eventID := uuid.New()
	regID := uuid.New()

	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			return registration.Registration{ID: regID, EventID: evID, Amount: 0, Status: registration.SUCCESS}, nil
		},
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			return registration.Registration{ID: regID, Status: registration.SUCCESS}, nil
		},
	}
	s := newTestSaga(backend, &scriptedCollector{}, correlation.NewMemoryStore())

	result, err := s.Run(context.Background(), eventID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.Nil(t, result.Outcome)
	assert.NotNil(t, result.Watch)

	final, err := result.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)

	_, orders, confirms := backend.counts()
	assert.Equal(t, 0, orders)
	assert.Equal(t, 0, confirms)
}

func TestWidgetFailureStillResolvesAuthoritatively(t *testing.T) {
	eventID := uuid.New()
	regID := uuid.New()

	// The widget reported failure, but the gateway captured anyway. The
	// resolver believes the backend, not the widget.
	seq := &statusSequence{statuses: []registration.Status{registration.PENDING, registration.SUCCESS}}

	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			return registration.Registration{ID: regID, EventID: evID, Amount: 150000, Status: registration.PENDING}, nil
		},
		CreatePaymentOrderFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.PaymentOrder, error) {
			return registration.PaymentOrder{OrderID: "order_1", Amount: 150000, Currency: "INR"}, nil
		},
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			return registration.Registration{ID: regID, Status: seq.next()}, nil
		},
	}
	collector := &scriptedCollector{outcomes: []Outcome{{Kind: OutcomeFailed, Reason: "card declined"}}}

	s := newTestSaga(backend, collector, correlation.NewMemoryStore())

	result, err := s.Run(context.Background(), eventID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome.Kind)
	assert.NotNil(t, result.Watch)

	final, err := result.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)

	// A widget-observed failure is never relayed.
	_, _, confirms := backend.counts()
	assert.Equal(t, 0, confirms)
}

func TestDismissThenResume(t *testing.T) {
	eventID := uuid.New()
	regID := uuid.New()

	var mu sync.Mutex
	status := registration.PENDING
	setStatus := func(s registration.Status) {
		mu.Lock()
		defer mu.Unlock()
		status = s
	}

	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			return registration.Registration{ID: regID, EventID: evID, Amount: 150000, Status: registration.PENDING}, nil
		},
		CreatePaymentOrderFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.PaymentOrder, error) {
			// Same order both times, the backend keeps one live order.
			return registration.PaymentOrder{OrderID: "order_1", Amount: 150000, Currency: "INR"}, nil
		},
		ConfirmPaymentFunc: func(ctx context.Context, orderID string, paymentID string, registrationID uuid.UUID) error {
			setStatus(registration.PROCESSING)
			return nil
		},
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			mu.Lock()
			defer mu.Unlock()
			return registration.Registration{ID: regID, Amount: 150000, Status: status, GatewayOrderID: "order_1"}, nil
		},
	}
	collector := &scriptedCollector{outcomes: []Outcome{
		{Kind: OutcomeDismissed},
		{Kind: OutcomeSucceeded, PaymentID: "pay_1"},
	}}
	store := correlation.NewMemoryStore()

	s := newTestSaga(backend, collector, store)

	result, err := s.Run(context.Background(), eventID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeDismissed, result.Outcome.Kind)
	assert.Nil(t, result.Watch)

	// Later, with no form state: resume from the store alone.
	resumed, err := s.Resume(context.Background(), eventID)
	assert.NoError(t, err)
	assert.NotNil(t, resumed.Outcome)
	assert.Equal(t, OutcomeSucceeded, resumed.Outcome.Kind)
	assert.NotNil(t, resumed.Watch)

	go func() {
		time.Sleep(20 * time.Millisecond)
		setStatus(registration.SUCCESS)
	}()

	final, err := resumed.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)

	drafts, orders, _ := backend.counts()
	assert.Equal(t, 1, drafts)
	assert.Equal(t, 2, orders)
}

func TestRunReusesStoredRegistration(t *testing.T) {
	eventID := uuid.New()
	regID := uuid.New()

	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			t.Fatal("should not draft when the store already has a live registration")
			return registration.Registration{}, nil
		},
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			return registration.Registration{ID: regID, Amount: 150000, Status: registration.PROCESSING}, nil
		},
	}
	store := correlation.NewMemoryStore()
	assert.NoError(t, store.Put(context.Background(), eventID, correlation.Record{RegistrationID: ptr.UUID(regID)}))

	s := newTestSaga(backend, &scriptedCollector{}, store)

	result, err := s.Run(context.Background(), eventID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.NotNil(t, result.Watch)
	result.Watch.Stop()
}

func TestRunStaleRecordDraftsFresh(t *testing.T) {
	eventID := uuid.New()
	staleID := uuid.New()
	freshID := uuid.New()

	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			return registration.Registration{ID: freshID, EventID: evID, Amount: 0, Status: registration.SUCCESS}, nil
		},
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			if registrationID == staleID {
				return registration.Registration{}, NewDraftNotFoundError("unknown id", nil)
			}
			return registration.Registration{ID: freshID, Status: registration.SUCCESS}, nil
		},
	}
	store := correlation.NewMemoryStore()
	assert.NoError(t, store.Put(context.Background(), eventID, correlation.Record{RegistrationID: ptr.UUID(staleID)}))

	s := newTestSaga(backend, &scriptedCollector{}, store)

	result, err := s.Run(context.Background(), eventID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.Equal(t, freshID, result.Registration.ID)

	record, found, err := store.Get(context.Background(), eventID)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, freshID, *record.RegistrationID)
}

func TestRunAfterFailedPaymentDraftsFresh(t *testing.T) {
	eventID := uuid.New()
	failedID := uuid.New()
	freshID := uuid.New()

	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			return registration.Registration{ID: freshID, EventID: evID, Amount: 0, Status: registration.SUCCESS}, nil
		},
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			if registrationID == failedID {
				return registration.Registration{ID: failedID, Amount: 150000, Status: registration.FAILED}, nil
			}
			return registration.Registration{ID: freshID, Status: registration.SUCCESS}, nil
		},
	}
	store := correlation.NewMemoryStore()
	assert.NoError(t, store.Put(context.Background(), eventID, correlation.Record{RegistrationID: ptr.UUID(failedID)}))

	s := newTestSaga(backend, &scriptedCollector{}, store)

	result, err := s.Run(context.Background(), eventID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.Equal(t, freshID, result.Registration.ID)

	// The failed attempt never traps the next run.
	drafts, _, _ := backend.counts()
	assert.Equal(t, 1, drafts)

	record, found, err := store.Get(context.Background(), eventID)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, freshID, *record.RegistrationID)
}

func TestResumeWithoutRecordIsSessionLost(t *testing.T) {
	backend := &mockBackend{}
	s := newTestSaga(backend, &scriptedCollector{}, correlation.NewMemoryStore())

	_, err := s.Resume(context.Background(), uuid.New())
	assert.True(t, IsSessionLost(err))
}

func TestResumeAfterCrashMidRelay(t *testing.T) {
	eventID := uuid.New()
	regID := uuid.New()
	orderID := "order_1"
	paymentID := "pay_1"

	// The crash happened after the widget succeeded but before the relay
	// landed: the store has all three ids, the backend still shows PENDING.
	seq := &statusSequence{statuses: []registration.Status{registration.PENDING, registration.SUCCESS}}

	backend := &mockBackend{
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			return registration.Registration{ID: regID, Amount: 150000, Status: seq.next(), GatewayOrderID: orderID}, nil
		},
	}
	store := correlation.NewMemoryStore()
	assert.NoError(t, store.Put(context.Background(), eventID, correlation.Record{
		RegistrationID: ptr.UUID(regID),
		OrderID:        ptr.String(orderID),
		PaymentID:      ptr.String(paymentID),
	}))

	s := newTestSaga(backend, &scriptedCollector{}, store)

	result, err := s.Resume(context.Background(), eventID)
	assert.NoError(t, err)
	assert.Nil(t, result.Outcome)
	assert.NotNil(t, result.Watch)

	final, err := result.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)

	// The widget never reran; the stored payment id was re-relayed instead.
	_, orders, confirms := backend.counts()
	assert.Equal(t, 0, orders)
	assert.Equal(t, 1, confirms)
}

func TestRelayFailureIsSwallowed(t *testing.T) {
	eventID := uuid.New()
	regID := uuid.New()

	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			return registration.Registration{ID: regID, EventID: evID, Amount: 150000, Status: registration.PENDING}, nil
		},
		CreatePaymentOrderFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.PaymentOrder, error) {
			return registration.PaymentOrder{OrderID: "order_1", Amount: 150000, Currency: "INR"}, nil
		},
		ConfirmPaymentFunc: func(ctx context.Context, orderID string, paymentID string, registrationID uuid.UUID) error {
			return NewRetryableError("backend unavailable", nil)
		},
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			// The webhook settles it even though the relay never landed.
			return registration.Registration{ID: regID, Status: registration.SUCCESS}, nil
		},
	}
	collector := &scriptedCollector{outcomes: []Outcome{{Kind: OutcomeSucceeded, PaymentID: "pay_1"}}}

	s := New(backend, collector, correlation.NewMemoryStore(), noopLogger,
		WithPollInterval(5*time.Millisecond),
		WithRelayMaxTries(1),
	)

	result, err := s.Run(context.Background(), eventID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.NotNil(t, result.Watch)

	final, err := result.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)
}

func TestDraftRejectionPropagates(t *testing.T) {
	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			return registration.Registration{}, NewDraftRejectedError("event is full", nil)
		},
	}
	s := newTestSaga(backend, &scriptedCollector{}, correlation.NewMemoryStore())

	_, err := s.Run(context.Background(), uuid.New(), "The Amps", testParticipants())
	assert.True(t, HasReason(err, REASON_DRAFT_REJECTED))
}

func TestInvalidParticipantsNeverReachTheBackend(t *testing.T) {
	backend := &mockBackend{
		CreateOrResumeRegistrationFunc: func(ctx context.Context, evID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
			t.Fatal("validation failures must not hit the network")
			return registration.Registration{}, nil
		},
	}
	s := newTestSaga(backend, &scriptedCollector{}, correlation.NewMemoryStore())

	participants := testParticipants()
	participants[0].Email = "not-an-email"

	_, err := s.Run(context.Background(), uuid.New(), "The Amps", participants)
	var regErr *registration.Error
	assert.True(t, errors.As(err, &regErr))
	assert.Equal(t, registration.REASON_INVALID_PARTICIPANTS, regErr.Reason)
}

func TestWatchStop(t *testing.T) {
	regID := uuid.New()
	backend := &mockBackend{
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			return registration.Registration{ID: regID, Amount: 150000, Status: registration.PENDING}, nil
		},
	}
	s := newTestSaga(backend, &scriptedCollector{}, correlation.NewMemoryStore())

	watch := s.Resolve(context.Background(), regID)
	watch.Stop()

	_, err := watch.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatchStreamsStatusChanges(t *testing.T) {
	regID := uuid.New()
	seq := &statusSequence{statuses: []registration.Status{
		registration.PENDING,
		registration.PROCESSING,
		registration.SUCCESS,
	}}

	backend := &mockBackend{
		GetRegistrationStatusFunc: func(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
			return registration.Registration{ID: regID, Status: seq.next()}, nil
		},
	}
	s := newTestSaga(backend, &scriptedCollector{}, correlation.NewMemoryStore())

	watch := s.Resolve(context.Background(), regID)

	var seen []registration.Status
	for status := range watch.Updates() {
		seen = append(seen, status)
	}

	assert.Equal(t, []registration.Status{
		registration.PENDING,
		registration.PROCESSING,
		registration.SUCCESS,
	}, seen)
}
