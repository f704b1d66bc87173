// Package groupdir wraps the external directory-group membership API.
// Membership is keyed by email address; add and remove are tolerant of
// duplicate calls on the provider side.
package groupdir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/eventcrew/secretariat/internal/platform/timeouts"
)

// Client mutates directory-group membership over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a directory-group client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeouts.HTTPRequest},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

// AddMember adds one email address to a group.
func (c *Client) AddMember(ctx context.Context, group, email string) error {
	group = strings.TrimSpace(group)
	email = strings.TrimSpace(email)
	if group == "" || email == "" {
		return fmt.Errorf("group and email are required")
	}

	payload, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return fmt.Errorf("encode group member: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/groups/%s/members", c.baseURL, url.PathEscape(group))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build add-member request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "add member")
}

// RemoveMember removes one email address from a group.
func (c *Client) RemoveMember(ctx context.Context, group, email string) error {
	group = strings.TrimSpace(group)
	email = strings.TrimSpace(email)
	if group == "" || email == "" {
		return fmt.Errorf("group and email are required")
	}

	endpoint := fmt.Sprintf("%s/v1/groups/%s/members/%s",
		c.baseURL, url.PathEscape(group), url.PathEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build remove-member request: %w", err)
	}
	return c.do(req, "remove member")
}

func (c *Client) do(req *http.Request, action string) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("directory client is not configured")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: directory responded %s: %s", action, resp.Status, strings.TrimSpace(string(body)))
}
