// Package relay talks to the remote email-relay API that performs actual
// outbound delivery. Calls carry a hard timeout and fail closed: a relay
// error is reported as a delivery failure, never retried, never allowed to
// hang the request.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lettermill/lettermill/internal/common"
)

// Delivery is a single outbound email handed to the relay.
type Delivery struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers email through an external transport.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// Client implements Sender against the relay HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Send(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	url := fmt.Sprintf("%s/api/send-email", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: unexpected status %d: %s", common.ErrDeliveryFailed, resp.StatusCode, string(body))
	}
	return nil
}

// Noop is the Sender used when no relay is configured: messages are stored
// locally and outbound delivery is skipped.
type Noop struct{}

func (Noop) Send(ctx context.Context, d Delivery) error { return nil }
