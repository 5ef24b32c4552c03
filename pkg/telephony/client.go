// Package telephony wraps an outbound voice-agent API. A call is placed
// with a script and polled until it reaches a terminal state; the
// transcript of the conversation comes back with the result.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
)

const (
	defaultBaseURL      = "https://api.voicerelay.io/v1"
	defaultPollInterval = 5 * time.Second
)

// e164 matches phone numbers in E.164 format: +, country code, up to 14 more digits.
var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Client places outbound calls.
type Client interface {
	PlaceCall(ctx context.Context, req CallRequest) (*CallResult, error)
}

// CallRequest describes an outbound call.
type CallRequest struct {
	// PhoneNumber must be in E.164 format.
	PhoneNumber string
	// Script is the conversation guide handed to the voice agent.
	Script string
}

// CallResult is the outcome of a completed call attempt.
type CallResult struct {
	CallID     string
	Status     model.CallStatus
	Transcript []model.Turn
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

// WithPollInterval overrides the default status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *httpClient) {
		c.pollInterval = d
	}
}

type httpClient struct {
	apiKey       string
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
}

// NewClient creates a telephony client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollInterval: defaultPollInterval,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type createCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Script      string `json:"script"`
}

type callResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Transcript []struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"transcript"`
}

// PlaceCall implements Client. It blocks until the call reaches a
// terminal state or ctx is canceled. A call the prospect never answers
// returns status no_answer, not an error.
func (c *httpClient) PlaceCall(ctx context.Context, req CallRequest) (*CallResult, error) {
	if !e164.MatchString(req.PhoneNumber) {
		return nil, eris.Errorf("telephony: phone number %q is not E.164", req.PhoneNumber)
	}
	if req.Script == "" {
		return nil, eris.New("telephony: empty call script")
	}

	created, err := c.createCall(ctx, req)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	current := created
	for {
		if status, terminal := parseCallStatus(current.Status); terminal {
			return &CallResult{
				CallID:     current.ID,
				Status:     status,
				Transcript: convertTranscript(current),
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "telephony: wait for call")
		case <-ticker.C:
		}

		current, err = c.getCall(ctx, created.ID)
		if err != nil {
			return nil, err
		}
	}
}

func (c *httpClient) createCall(ctx context.Context, req CallRequest) (*callResponse, error) {
	body, err := json.Marshal(createCallRequest{
		PhoneNumber: req.PhoneNumber,
		Script:      req.Script,
	})
	if err != nil {
		return nil, eris.Wrap(err, "telephony: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "telephony: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(httpReq)
}

func (c *httpClient) getCall(ctx context.Context, callID string) (*callResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/calls/"+callID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "telephony: create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(httpReq)
}

func (c *httpClient) do(req *http.Request) (*callResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "telephony: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "telephony: read response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, eris.Errorf("telephony: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result callResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "telephony: unmarshal response")
	}
	return &result, nil
}

// parseCallStatus maps an upstream status to ours. The second return
// reports whether the status is terminal.
func parseCallStatus(s string) (model.CallStatus, bool) {
	switch s {
	case "completed", "done":
		return model.CallDone, true
	case "no_answer", "busy", "voicemail":
		return model.CallNoAnswer, true
	case "failed":
		return model.CallFailed, true
	case "error":
		return model.CallError, true
	default:
		return "", false
	}
}

func convertTranscript(resp *callResponse) []model.Turn {
	if len(resp.Transcript) == 0 {
		return nil
	}
	turns := make([]model.Turn, len(resp.Transcript))
	for i, t := range resp.Transcript {
		turns[i] = model.Turn{Role: t.Role, Text: t.Text}
	}
	return turns
}
