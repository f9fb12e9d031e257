package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/pulsefest/registration/correlation"
	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/gateway"
	"github.com/pulsefest/registration/httpapi"
	"github.com/pulsefest/registration/memstore"
	"github.com/pulsefest/registration/registration"
	"github.com/pulsefest/registration/saga"
	"github.com/stretchr/testify/assert"
)

var noopLogger = slog.New(slog.DiscardHandler)

func testParticipants() []registration.Participant {
	return []registration.Participant{
		{FullName: "Asha Rao", Email: "asha@college.edu", Phone: "9876543210", College: "NIT Trichy", IsLeader: true},
	}
}

func errorServer(t *testing.T, status int, apiErr httpapi.Error) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(apiErr)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("transport failure is retryable", func(t *testing.T) {
		c := New("http://127.0.0.1:1") // nothing listens there

		_, err := c.GetRegistrationStatus(ctx, uuid.New())
		assert.True(t, saga.IsRetryable(err))
	})

	t.Run("5xx is retryable", func(t *testing.T) {
		server := errorServer(t, http.StatusInternalServerError, httpapi.Error{Code: httpapi.InternalError})
		c := New(server.URL)

		_, err := c.GetRegistrationStatus(ctx, uuid.New())
		assert.True(t, saga.IsRetryable(err))
	})

	t.Run("draft conflict is a terminal rejection", func(t *testing.T) {
		server := errorServer(t, http.StatusConflict, httpapi.Error{Code: httpapi.EventFull, Message: "full"})
		c := New(server.URL)

		_, err := c.CreateOrResumeRegistration(ctx, uuid.New(), "The Amps", testParticipants())
		assert.True(t, saga.HasReason(err, saga.REASON_DRAFT_REJECTED))
	})

	t.Run("draft validation error carries fields", func(t *testing.T) {
		server := errorServer(t, http.StatusBadRequest, httpapi.Error{
			Code:    httpapi.ValidationFailed,
			Message: "bad participants",
			Fields:  []httpapi.FieldError{{Field: "participants[0].email", Message: "invalid"}},
		})
		c := New(server.URL)

		_, err := c.CreateOrResumeRegistration(ctx, uuid.New(), "The Amps", testParticipants())
		var regErr *registration.Error
		assert.True(t, errors.As(err, &regErr))
		assert.Equal(t, registration.REASON_INVALID_PARTICIPANTS, regErr.Reason)
		assert.Equal(t, "participants[0].email", regErr.Fields[0].Field)
	})

	t.Run("order 404 means the draft is gone", func(t *testing.T) {
		server := errorServer(t, http.StatusNotFound, httpapi.Error{Code: httpapi.NotFound})
		c := New(server.URL)

		_, err := c.CreatePaymentOrder(ctx, uuid.New())
		assert.True(t, saga.HasReason(err, saga.REASON_DRAFT_NOT_FOUND))
	})

	t.Run("order conflict fails order creation", func(t *testing.T) {
		server := errorServer(t, http.StatusConflict, httpapi.Error{Code: httpapi.NoPaymentDue})
		c := New(server.URL)

		_, err := c.CreatePaymentOrder(ctx, uuid.New())
		assert.True(t, saga.HasReason(err, saga.REASON_ORDER_CREATION_FAILED))
	})

	t.Run("status 404 means the draft is gone", func(t *testing.T) {
		server := errorServer(t, http.StatusNotFound, httpapi.Error{Code: httpapi.NotFound})
		c := New(server.URL)

		_, err := c.GetRegistrationStatus(ctx, uuid.New())
		assert.True(t, saga.HasReason(err, saga.REASON_DRAFT_NOT_FOUND))
	})
}

// capturingCollector pays through the fake gateway the moment the widget
// opens, standing in for a user clicking through a successful charge.
type capturingCollector struct {
	fake *gateway.Fake
}

func (c *capturingCollector) Collect(ctx context.Context, order registration.PaymentOrder, displayName string) (saga.Outcome, error) {
	paymentID, err := c.fake.Capture(ctx, order.OrderID)
	if err != nil {
		return saga.Outcome{}, err
	}
	return saga.Outcome{Kind: saga.OutcomeSucceeded, PaymentID: paymentID}, nil
}

type dismissingCollector struct{}

func (dismissingCollector) Collect(ctx context.Context, order registration.PaymentOrder, displayName string) (saga.Outcome, error) {
	return saga.Outcome{Kind: saga.OutcomeDismissed}, nil
}

func newBackendServer(t *testing.T, fee *money.Money) (*httptest.Server, *gateway.Fake, events.Event) {
	t.Helper()

	store := memstore.New()
	fake := gateway.NewFake()
	api := httpapi.NewAPI(store, fake, "pk_test", noopLogger, httpapi.LOCAL)

	event := events.Event{
		ID:                    uuid.New(),
		Version:               1,
		Name:                  "Battle of Bands",
		Fee:                   fee,
		AllowedTeamSizeRange:  events.Range{Min: 1, Max: 8},
		Capacity:              10,
		RegistrationCloseTime: time.Now().Add(24 * time.Hour),
	}
	assert.NoError(t, store.CreateEvent(context.Background(), event))

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	return server, fake, event
}

func TestFullFlowOverHTTP(t *testing.T) {
	server, fake, event := newBackendServer(t, money.New(150000, money.INR))

	s := saga.New(New(server.URL), &capturingCollector{fake: fake}, correlation.NewMemoryStore(), noopLogger,
		saga.WithPollInterval(5*time.Millisecond))

	result, err := s.Run(context.Background(), event.ID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.NotNil(t, result.Watch)

	final, err := result.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)
	assert.Equal(t, 1, fake.OrderCount())
}

func TestFreeFlowOverHTTP(t *testing.T) {
	server, fake, event := newBackendServer(t, nil)

	s := saga.New(New(server.URL), &capturingCollector{fake: fake}, correlation.NewMemoryStore(), noopLogger,
		saga.WithPollInterval(5*time.Millisecond))

	result, err := s.Run(context.Background(), event.ID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.Nil(t, result.Outcome)

	final, err := result.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)
	assert.Equal(t, 0, fake.OrderCount())
}

func TestDismissThenResumeOverHTTP(t *testing.T) {
	server, fake, event := newBackendServer(t, money.New(150000, money.INR))
	store := correlation.NewMemoryStore()

	dismissing := saga.New(New(server.URL), dismissingCollector{}, store, noopLogger,
		saga.WithPollInterval(5*time.Millisecond))

	result, err := dismissing.Run(context.Background(), event.ID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.Equal(t, saga.OutcomeDismissed, result.Outcome.Kind)
	assert.Nil(t, result.Watch)

	// A later session with the same store pays through.
	paying := saga.New(New(server.URL), &capturingCollector{fake: fake}, store, noopLogger,
		saga.WithPollInterval(5*time.Millisecond))

	resumed, err := paying.Resume(context.Background(), event.ID)
	assert.NoError(t, err)
	assert.Equal(t, result.Registration.ID, resumed.Registration.ID)

	final, err := resumed.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)

	// The resumed order is the original, not a second billable one.
	assert.Equal(t, 1, fake.OrderCount())
}

// failingCollector walks through a declined charge at the fake gateway.
type failingCollector struct {
	fake *gateway.Fake
}

func (c *failingCollector) Collect(ctx context.Context, order registration.PaymentOrder, displayName string) (saga.Outcome, error) {
	if err := c.fake.Fail(ctx, order.OrderID, "card declined"); err != nil {
		return saga.Outcome{}, err
	}
	return saga.Outcome{Kind: saga.OutcomeFailed, Reason: "card declined"}, nil
}

func TestFailedPaymentThenRetryOverHTTP(t *testing.T) {
	server, fake, event := newBackendServer(t, money.New(150000, money.INR))
	store := correlation.NewMemoryStore()

	failing := saga.New(New(server.URL), &failingCollector{fake: fake}, store, noopLogger,
		saga.WithPollInterval(5*time.Millisecond))

	first, err := failing.Run(context.Background(), event.ID, "The Amps", testParticipants())
	assert.NoError(t, err)

	final, err := first.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.FAILED, final)

	// The declined attempt does not trap the leader: the next run drafts a
	// fresh registration and pays it through.
	paying := saga.New(New(server.URL), &capturingCollector{fake: fake}, store, noopLogger,
		saga.WithPollInterval(5*time.Millisecond))

	second, err := paying.Run(context.Background(), event.ID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.NotEqual(t, first.Registration.ID, second.Registration.ID)

	final, err = second.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)
	assert.Equal(t, 2, fake.OrderCount())
}

func TestListEventsOverHTTP(t *testing.T) {
	server, _, event := newBackendServer(t, money.New(150000, money.INR))

	page, err := New(server.URL).ListEvents(context.Background(), 10, nil)
	assert.NoError(t, err)
	assert.False(t, page.HasNextPage)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, event.ID, page.Data[0].ID)
	assert.Equal(t, event.Name, page.Data[0].Name)
	assert.Equal(t, int64(150000), page.Data[0].Fee.Amount())
}

func TestRerunWithStoreLandsOnSameRegistration(t *testing.T) {
	server, fake, event := newBackendServer(t, money.New(150000, money.INR))
	store := correlation.NewMemoryStore()

	dismissing := saga.New(New(server.URL), dismissingCollector{}, store, noopLogger,
		saga.WithPollInterval(5*time.Millisecond))

	first, err := dismissing.Run(context.Background(), event.ID, "The Amps", testParticipants())
	assert.NoError(t, err)

	// Same form data again: Run resumes off the store instead of drafting.
	paying := saga.New(New(server.URL), &capturingCollector{fake: fake}, store, noopLogger,
		saga.WithPollInterval(5*time.Millisecond))

	second, err := paying.Run(context.Background(), event.ID, "The Amps", testParticipants())
	assert.NoError(t, err)
	assert.Equal(t, first.Registration.ID, second.Registration.ID)

	final, err := second.Watch.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, registration.SUCCESS, final)
}
