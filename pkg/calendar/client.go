// Package calendar books meetings through a scheduling API.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.schedulely.com/v1"

// Client books meetings.
type Client interface {
	Schedule(ctx context.Context, req MeetingRequest) (*Meeting, error)
}

// MeetingRequest describes a meeting to book.
type MeetingRequest struct {
	ProspectName  string `json:"prospect_name"`
	ProspectEmail string `json:"prospect_email"`
	Notes         string `json:"notes,omitempty"`
}

// Meeting is a booked meeting slot.
type Meeting struct {
	ID       string    `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	JoinURL  string    `json:"join_url"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a calendar client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Schedule implements Client.
func (c *httpClient) Schedule(ctx context.Context, req MeetingRequest) (*Meeting, error) {
	if req.ProspectEmail == "" {
		return nil, eris.New("calendar: prospect email required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "calendar: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/meetings", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "calendar: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "calendar: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "calendar: read response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, eris.Errorf("calendar: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var meeting Meeting
	if err := json.Unmarshal(respBody, &meeting); err != nil {
		return nil, eris.Wrap(err, "calendar: unmarshal response")
	}
	return &meeting, nil
}
