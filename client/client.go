// Package client implements saga.Backend over the httpapi wire protocol,
// translating HTTP failures into the saga's error taxonomy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/httpapi"
	"github.com/pulsefest/registration/registration"
	"github.com/pulsefest/registration/saga"
	"github.com/pulsefest/registration/slices"
)

var _ saga.Backend = &BackendClient{}

type BackendClient struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *BackendClient {
	return &BackendClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewWithHTTPClient is for tests and callers that need transport control.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *BackendClient {
	return &BackendClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (c *BackendClient) CreateOrResumeRegistration(ctx context.Context, eventID uuid.UUID, displayName string, participants []registration.Participant) (registration.Registration, error) {
	req := httpapi.DraftRequest{
		DisplayName: displayName,
		Participants: slices.Map(participants, func(p registration.Participant) httpapi.Participant {
			return httpapi.Participant{
				FullName: p.FullName,
				Email:    p.Email,
				Phone:    p.Phone,
				College:  p.College,
				IsLeader: p.IsLeader,
			}
		}),
	}

	var resp httpapi.Registration
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/events/%s/registrations", eventID), req, &resp, draftErrorMapper)
	if err != nil {
		return registration.Registration{}, err
	}

	return wireToRegistration(resp), nil
}

func (c *BackendClient) CreatePaymentOrder(ctx context.Context, registrationID uuid.UUID) (registration.PaymentOrder, error) {
	var resp httpapi.PaymentOrder
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/registrations/%s/order", registrationID), nil, &resp, orderErrorMapper)
	if err != nil {
		return registration.PaymentOrder{}, err
	}

	return registration.PaymentOrder{
		OrderID:          resp.OrderID,
		Amount:           resp.Amount,
		Currency:         resp.Currency,
		GatewayPublicKey: resp.GatewayPublicKey,
	}, nil
}

func (c *BackendClient) ConfirmPayment(ctx context.Context, orderID string, paymentID string, registrationID uuid.UUID) error {
	req := httpapi.ConfirmRequest{
		OrderID:        orderID,
		PaymentID:      paymentID,
		RegistrationID: registrationID,
	}

	return c.do(ctx, http.MethodPost, "/payments/confirm", req, nil, statusErrorMapper)
}

func (c *BackendClient) GetRegistrationStatus(ctx context.Context, registrationID uuid.UUID) (registration.Registration, error) {
	var resp httpapi.Registration
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/registrations/%s", registrationID), nil, &resp, statusErrorMapper)
	if err != nil {
		return registration.Registration{}, err
	}

	return wireToRegistration(resp), nil
}

// ListEvents pages through the backend's event catalog. It sits outside
// saga.Backend: the flow itself never lists, only callers picking an event.
func (c *BackendClient) ListEvents(ctx context.Context, limit int32, cursor *string) (events.GetEventsResponse, error) {
	path := fmt.Sprintf("/events?limit=%d", limit)
	if cursor != nil {
		path += "&cursor=" + url.QueryEscape(*cursor)
	}

	var resp httpapi.EventsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp, listErrorMapper)
	if err != nil {
		return events.GetEventsResponse{}, err
	}

	return events.GetEventsResponse{
		Data: slices.Map(resp.Data, func(e httpapi.Event) events.Event {
			return events.Event{
				ID:                    e.ID,
				Name:                  e.Name,
				Fee:                   money.New(e.FeeAmount, e.FeeCurrency),
				AllowedTeamSizeRange:  events.Range{Min: e.AllowedTeamSizeRange.Min, Max: e.AllowedTeamSizeRange.Max},
				Capacity:              e.Capacity,
				NumRegistrations:      e.NumRegistrations,
				RegistrationCloseTime: e.RegistrationCloseTime,
			}
		}),
		Cursor:      resp.Cursor,
		HasNextPage: resp.HasNextPage,
	}, nil
}

type errorMapper func(statusCode int, apiErr httpapi.Error) error

func (c *BackendClient) do(ctx context.Context, method string, path string, reqBody any, respBody any, mapError errorMapper) error {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return saga.NewRetryableError(fmt.Sprintf("Request to %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return saga.NewRetryableError(fmt.Sprintf("Backend returned %d for %s", resp.StatusCode, path), nil)
	}

	if resp.StatusCode >= 400 {
		var apiErr httpapi.Error
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return saga.NewRetryableError(fmt.Sprintf("Backend returned %d with an unreadable body for %s", resp.StatusCode, path), err)
		}
		return mapError(resp.StatusCode, apiErr)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return saga.NewRetryableError("Failed to decode backend response", err)
		}
	}

	return nil
}

func draftErrorMapper(statusCode int, apiErr httpapi.Error) error {
	switch apiErr.Code {
	case httpapi.ValidationFailed:
		return registration.NewInvalidParticipantsError(apiErr.Message, slices.Map(apiErr.Fields, func(f httpapi.FieldError) registration.FieldError {
			return registration.FieldError{Field: f.Field, Message: f.Message}
		}))
	case httpapi.NotFound, httpapi.AlreadyRegistered, httpapi.RegistrationClosed, httpapi.EventFull, httpapi.TeamSizeNotAllowed:
		return saga.NewDraftRejectedError(apiErr.Message, nil)
	default:
		return saga.NewRetryableError(fmt.Sprintf("Unexpected draft rejection (%d): %s", statusCode, apiErr.Message), nil)
	}
}

func orderErrorMapper(statusCode int, apiErr httpapi.Error) error {
	switch apiErr.Code {
	case httpapi.NotFound:
		return saga.NewDraftNotFoundError(apiErr.Message, nil)
	default:
		return saga.NewOrderCreationFailedError(fmt.Sprintf("Order creation rejected (%d): %s", statusCode, apiErr.Message), nil)
	}
}

func listErrorMapper(statusCode int, apiErr httpapi.Error) error {
	return saga.NewRetryableError(fmt.Sprintf("Event listing failed (%d): %s", statusCode, apiErr.Message), nil)
}

func statusErrorMapper(statusCode int, apiErr httpapi.Error) error {
	switch apiErr.Code {
	case httpapi.NotFound:
		return saga.NewDraftNotFoundError(apiErr.Message, nil)
	default:
		return saga.NewRetryableError(fmt.Sprintf("Unexpected backend error (%d): %s", statusCode, apiErr.Message), nil)
	}
}

func wireToRegistration(resp httpapi.Registration) registration.Registration {
	return registration.Registration{
		ID:          resp.ID,
		EventID:     resp.EventID,
		DisplayName: resp.DisplayName,
		Participants: slices.Map(resp.Participants, func(p httpapi.Participant) registration.Participant {
			return registration.Participant{
				FullName: p.FullName,
				Email:    p.Email,
				Phone:    p.Phone,
				College:  p.College,
				IsLeader: p.IsLeader,
			}
		}),
		Amount:           resp.Amount,
		Currency:         resp.Currency,
		Status:           registration.Status(resp.Status),
		CreatedAt:        resp.CreatedAt,
		PaidAt:           resp.PaidAt,
		GatewayOrderID:   resp.GatewayOrderID,
		GatewayPaymentID: resp.GatewayPaymentID,
	}
}
