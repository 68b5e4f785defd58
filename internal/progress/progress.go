// Package progress mirrors completed sessions to the remote progress
// service. Local stats stay authoritative; this is best-effort.
package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDisabled is returned by Nop.
var ErrDisabled = errors.New("remote progress disabled")

// CustomAudio describes the external source a session played, if any.
type CustomAudio struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Entry is one session in the remote history.
type Entry struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Duration    int          `json:"duration"`
	SessionID   string       `json:"sessionId"`
	CompletedAt time.Time    `json:"completedAt"`
	CustomAudio *CustomAudio `json:"customAudio,omitempty"`
}

// NewEntry builds an Entry with a fresh id.
func NewEntry(modality string, seconds int, label string, completedAt time.Time, audio *CustomAudio) Entry {
	return Entry{
		ID:          uuid.NewString(),
		Type:        modality,
		Duration:    seconds,
		SessionID:   label,
		CompletedAt: completedAt.UTC(),
		CustomAudio: audio,
	}
}

// Committer sends an Entry somewhere.
type Committer interface {
	Commit(ctx context.Context, e Entry) error
}

// Nop drops every entry.
type Nop struct{}

func (Nop) Commit(context.Context, Entry) error { return ErrDisabled }

// Client posts entries to <base>/users/<user>/sessions.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewClient returns a Client for the service at base. An empty user id is
// sent as "me".
func NewClient(base, userID, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid remote url %q", base)
	}
	if userID == "" {
		userID = "me"
	}
	return &Client{
		endpoint: u.JoinPath("users", userID, "sessions").String(),
		token:    token,
		http:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Commit posts e. Any non-2xx status is an error.
func (c *Client) Commit(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post progress: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post progress: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
