package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
)

func TestPlaceCall_RejectsNonE164(t *testing.T) {
	c := NewClient("test-key")

	for _, num := range []string{"", "555-0100", "15550100", "+0123", "(555) 010-0000"} {
		_, err := c.PlaceCall(context.Background(), CallRequest{PhoneNumber: num, Script: "hi"})
		require.Error(t, err, "number %q should be rejected", num)
		assert.Contains(t, err.Error(), "E.164")
	}
}

func TestPlaceCall_RejectsEmptyScript(t *testing.T) {
	c := NewClient("test-key")

	_, err := c.PlaceCall(context.Background(), CallRequest{PhoneNumber: "+15550100100"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script")
}

func TestPlaceCall_PollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/calls":
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req createCallRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "+15550100100", req.PhoneNumber)

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(callResponse{ID: "call-1", Status: "in_progress"})
		case r.Method == http.MethodGet && r.URL.Path == "/calls/call-1":
			resp := callResponse{ID: "call-1", Status: "in_progress"}
			if polls.Add(1) >= 2 {
				resp.Status = "completed"
				resp.Transcript = []struct {
					Role string `json:"role"`
					Text string `json:"text"`
				}{
					{Role: "agent", Text: "Hello, is this Joe?"},
					{Role: "prospect", Text: "Speaking."},
				}
			}
			json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithPollInterval(10*time.Millisecond))

	result, err := c.PlaceCall(context.Background(), CallRequest{
		PhoneNumber: "+15550100100",
		Script:      "Introduce yourself.",
	})
	require.NoError(t, err)
	assert.Equal(t, "call-1", result.CallID)
	assert.Equal(t, model.CallDone, result.Status)
	require.Len(t, result.Transcript, 2)
	assert.Equal(t, "prospect", result.Transcript[1].Role)
	assert.EqualValues(t, 2, polls.Load())
}

func TestPlaceCall_NoAnswerIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(callResponse{ID: "call-2", Status: "voicemail"})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithPollInterval(10*time.Millisecond))

	result, err := c.PlaceCall(context.Background(), CallRequest{
		PhoneNumber: "+15550100100",
		Script:      "Introduce yourself.",
	})
	require.NoError(t, err)
	assert.Equal(t, model.CallNoAnswer, result.Status)
	assert.Empty(t, result.Transcript)
}

func TestPlaceCall_ContextCancelWhilePolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(callResponse{ID: "call-3", Status: "ringing"})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithPollInterval(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.PlaceCall(ctx, CallRequest{PhoneNumber: "+15550100100", Script: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlaceCall_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))

	_, err := c.PlaceCall(context.Background(), CallRequest{PhoneNumber: "+15550100100", Script: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestParseCallStatus(t *testing.T) {
	tests := []struct {
		in       string
		want     model.CallStatus
		terminal bool
	}{
		{"completed", model.CallDone, true},
		{"done", model.CallDone, true},
		{"no_answer", model.CallNoAnswer, true},
		{"busy", model.CallNoAnswer, true},
		{"voicemail", model.CallNoAnswer, true},
		{"failed", model.CallFailed, true},
		{"error", model.CallError, true},
		{"ringing", "", false},
		{"in_progress", "", false},
	}
	for _, tt := range tests {
		got, terminal := parseCallStatus(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.terminal, terminal, tt.in)
	}
}
