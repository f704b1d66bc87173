// Package chatplat wraps the chat platform's user, channel, and profile APIs.
package chatplat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/eventcrew/secretariat/internal/platform/timeouts"
)

const listPageSize = 200

// User is one chat-platform account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Position string `json:"position"`
}

// Stats is the platform-wide user census.
type Stats struct {
	TotalUsers int `json:"total_users_count"`
}

// Client calls the chat platform over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a chat-platform client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeouts.HTTPRequest},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

// UserStats returns the platform's total user count.
func (c *Client) UserStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.getJSON(ctx, "/api/v4/users/stats", &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// ListUsers enumerates every platform user, invoking fn once per user. It
// pages through the roster until a short page is returned.
func (c *Client) ListUsers(ctx context.Context, fn func(User) error) error {
	if fn == nil {
		return fmt.Errorf("user callback is required")
	}
	for page := 0; ; page++ {
		var users []User
		path := fmt.Sprintf("/api/v4/users?page=%d&per_page=%d", page, listPageSize)
		if err := c.getJSON(ctx, path, &users); err != nil {
			return err
		}
		for _, user := range users {
			if err := fn(user); err != nil {
				return err
			}
		}
		if len(users) < listPageSize {
			return nil
		}
	}
}

// InviteByEmail submits one bulk invite for the given addresses.
func (c *Client) InviteByEmail(ctx context.Context, teamID string, emails []string) error {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return fmt.Errorf("chat team id is required")
	}
	if len(emails) == 0 {
		return nil
	}
	path := fmt.Sprintf("/api/v4/teams/%s/invite/email", teamID)
	return c.postJSON(ctx, path, emails, nil)
}

// AddToChannel adds one platform member to a channel.
func (c *Client) AddToChannel(ctx context.Context, channelID, memberID string) error {
	channelID = strings.TrimSpace(channelID)
	memberID = strings.TrimSpace(memberID)
	if channelID == "" || memberID == "" {
		return fmt.Errorf("channel id and member id are required")
	}
	path := fmt.Sprintf("/api/v4/channels/%s/members", channelID)
	return c.postJSON(ctx, path, map[string]string{"user_id": memberID}, nil)
}

// SetPosition updates one member's visible position string.
func (c *Client) SetPosition(ctx context.Context, memberID, position string) error {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return fmt.Errorf("member id is required")
	}
	path := fmt.Sprintf("/api/v4/users/%s/patch", memberID)
	return c.putJSON(ctx, path, map[string]string{"position": position})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) putJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("chat client is not configured")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call chat platform: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat platform responded %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode chat response: %w", err)
	}
	return nil
}
