package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"classroom/internal/apperr"
)

// Provider creates video-meeting rooms for sessions.
type Provider interface {
	CreateMeeting(ctx context.Context, sessionID string) (string, error)
}

// Client calls the meeting provider's REST API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set no request is made and a fake
// meeting id is returned, which keeps local setups working without a
// provider account.
func New(baseURL, token string, skip bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateMeeting asks the provider for a room tagged with the session id.
// Network failures and 5xx/429 answers are TransientProvider errors.
func (c *Client) CreateMeeting(ctx context.Context, sessionID string) (string, error) {
	const op = "meeting.CreateMeeting"
	if sessionID == "" {
		return "", apperr.New(apperr.Validation, op, "session id required")
	}
	if c.Skip {
		return "dev-" + sessionID, nil
	}

	body, _ := json.Marshal(map[string]string{
		"title":      "session " + sessionID,
		"session_id": sessionID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/meetings", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.TransientProvider, op, fmt.Errorf("meeting provider request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := apperr.Internal
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = apperr.TransientProvider
		}
		return "", apperr.New(kind, op, "meeting provider error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		ID   string `json:"id"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	id := out.ID
	if id == "" {
		id = out.Data.ID
	}
	if id == "" {
		return "", errors.New("meeting provider returned no meeting id")
	}
	return id, nil
}

// Health checks if the provider is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("meeting provider unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("meeting provider unhealthy: %s", resp.Status)
	}

	return nil
}
