package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shineum/smtp-discord-relay/internal/email"
)

// DefaultTimeout bounds a single webhook request when ClientConfig.Timeout
// is zero.
const DefaultTimeout = 30 * time.Second

// ClientConfig holds the configuration for creating a Client.
type ClientConfig struct {
	// Timeout bounds one delivery attempt, including reading the response.
	Timeout time.Duration

	// HTTPClient overrides the HTTP client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client delivers notifications to Discord webhook endpoints.
// It is stateless per call and safe for concurrent use.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client with the given configuration.
func NewClient(cfg ClientConfig) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: client}
}

// DeliveryError reports a failed webhook delivery. StatusCode is zero when
// the endpoint could not be reached or did not answer in time.
type DeliveryError struct {
	StatusCode int
	Status     string
	Detail     string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("failed to send Discord message: %s", e.Detail)
	}
	return fmt.Sprintf("failed to send Discord message: %d %s: %q", e.StatusCode, e.Status, e.Detail)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the sender may reasonably retry the message.
func (e *DeliveryError) Temporary() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// Deliver posts n to endpoint as a single embed. Exactly one request is made;
// there are no retries. Any non-2xx answer or transport fault yields a
// *DeliveryError.
func (c *Client) Deliver(ctx context.Context, endpoint string, n *email.Notification) error {
	body, err := json.Marshal(buildPayload(n))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	slog.Debug("sending Discord message",
		"webhook_id", WebhookID(endpoint),
		"payload", string(body),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		err = stripURL(err)
		return &DeliveryError{Detail: fmt.Sprintf("invalid webhook request: %v", err), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = stripURL(err)
		return &DeliveryError{
			Detail: fmt.Sprintf("HTTP request to webhook %s failed: %v", WebhookID(endpoint), err),
			Err:    err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Detail:     fmt.Sprintf("failed to read response body: %v", err),
			Err:        err,
		}
	}

	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Detail:     responseMessage(raw),
	}
}

// Name returns the deliverer name.
func (c *Client) Name() string {
	return "discord"
}

// responseMessage extracts the "message" field from a JSON error body. A JSON
// body without one is returned indented, anything else as raw text.
func responseMessage(body []byte) string {
	if !json.Valid(body) {
		return string(body)
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Message) > 0 && string(errResp.Message) != "null" {
		var msg string
		if err := json.Unmarshal(errResp.Message, &msg); err == nil {
			return msg
		}
		return string(errResp.Message)
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, body, "", "  "); err != nil {
		return string(body)
	}
	return strings.TrimSpace(indented.String())
}

// stripURL drops the request URL from net/http errors. The URL carries the
// webhook token and must not reach logs or replies.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

// MarshalPayload renders the webhook body for n as indented JSON.
func MarshalPayload(n *email.Notification) ([]byte, error) {
	return json.MarshalIndent(buildPayload(n), "", "  ")
}
