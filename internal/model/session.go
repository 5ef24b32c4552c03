package model

import "time"

// SessionStatus represents the write-session lifecycle.
type SessionStatus string

const (
	SessionUploading SessionStatus = "uploading"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session tracks one logical discovery batch. It is created in uploading
// before any lead write begins and becomes completed only after the write
// verifier independently re-counts at least one durably visible lead.
// Once completed or failed it is immutable except for UpdatedAt.
type Session struct {
	SessionID      string        `json:"session_id"`
	Status         SessionStatus `json:"status"`
	RequestedCount int           `json:"requested_count"`
	InsertedCount  int           `json:"inserted_count"`
	UpdatedCount   int           `json:"updated_count"`
	VerifiedCount  int           `json:"verified_count"`
	FailedCount    int           `json:"failed_count"`
	LastError      string        `json:"last_error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Terminal reports whether the session reached a final state.
func (s *Session) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}
