// Package mailout wraps the transactional mail submission API.
package mailout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/eventcrew/secretariat/internal/platform/timeouts"
)

// Message is one outbound email.
type Message struct {
	ToName  string `json:"to_name"`
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Result is the provider's verdict on one submission. A non-accepted result
// is a retryable condition, not a client error.
type Result struct {
	Accepted       bool
	ProviderStatus string
}

// Client submits messages to the mail provider over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	from       string
}

// NewClient creates a mail submission client.
func NewClient(baseURL, token, from string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeouts.HTTPRequest},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		from:       strings.TrimSpace(from),
	}
}

type submitRequest struct {
	From string `json:"from"`
	Message
}

type submitResponse struct {
	Status string `json:"status"`
}

// Submit hands one message to the provider. A transport or server failure is
// an error; a reachable provider that declines the message is a non-accepted
// Result.
func (c *Client) Submit(ctx context.Context, message Message) (Result, error) {
	if c == nil || c.httpClient == nil {
		return Result{}, fmt.Errorf("mail client is not configured")
	}
	if strings.TrimSpace(message.ToEmail) == "" {
		return Result{}, fmt.Errorf("recipient email is required")
	}

	payload, err := json.Marshal(submitRequest{From: c.from, Message: message})
	if err != nil {
		return Result{}, fmt.Errorf("encode mail submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build mail submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("submit mail: %w", err)
	}
	defer resp.Body.Close()

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded.Status = resp.Status
	}
	return Result{
		Accepted:       resp.StatusCode >= 200 && resp.StatusCode < 300,
		ProviderStatus: decoded.Status,
	}, nil
}
