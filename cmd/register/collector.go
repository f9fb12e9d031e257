package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pulsefest/registration/registration"
	"github.com/pulsefest/registration/saga"
)

var _ saga.Collector = &consoleCollector{}

// consoleCollector stands in for the payment widget. It asks the terminal
// what happened and, for a success, drives the server's dev gateway so the
// charge actually lands and the webhook fires.
type consoleCollector struct {
	backendURL string
	in         *bufio.Reader
}

func (c *consoleCollector) Collect(ctx context.Context, order registration.PaymentOrder, displayName string) (saga.Outcome, error) {
	fmt.Printf("\nPayment due for %q: %d %s (order %s)\n", displayName, order.Amount, order.Currency, order.OrderID)

	for {
		fmt.Print("Pay now? [s]ucceed / [f]ail / [d]ismiss: ")
		line, err := c.in.ReadString('\n')
		if err != nil {
			return saga.Outcome{}, fmt.Errorf("failed to read choice: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "s":
			paymentID, err := c.capture(ctx, order.OrderID)
			if err != nil {
				return saga.Outcome{}, err
			}
			return saga.Outcome{Kind: saga.OutcomeSucceeded, PaymentID: paymentID}, nil
		case "f":
			if err := c.fail(ctx, order.OrderID); err != nil {
				return saga.Outcome{}, err
			}
			return saga.Outcome{Kind: saga.OutcomeFailed, Reason: "declined at the terminal"}, nil
		case "d":
			return saga.Outcome{Kind: saga.OutcomeDismissed}, nil
		}
	}
}

func (c *consoleCollector) capture(ctx context.Context, orderID string) (string, error) {
	resp, err := c.post(ctx, fmt.Sprintf("%s/dev/gateway/orders/%s/capture", c.backendURL, orderID))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dev gateway capture returned %d", resp.StatusCode)
	}

	var body struct {
		PaymentID string `json:"paymentId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode capture response: %w", err)
	}

	return body.PaymentID, nil
}

func (c *consoleCollector) fail(ctx context.Context, orderID string) error {
	resp, err := c.post(ctx, fmt.Sprintf("%s/dev/gateway/orders/%s/fail", c.backendURL, orderID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dev gateway fail returned %d", resp.StatusCode)
	}

	return nil
}

func (c *consoleCollector) post(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}

	return http.DefaultClient.Do(req)
}
