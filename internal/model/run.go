package model

import "time"

// Stage is one step of the per-lead outreach pipeline. Stages are strictly
// ordered and each lead moves through them once.
type Stage string

const (
	StageResearch Stage = "research"
	StageDraft    Stage = "draft"
	StageReview   Stage = "review"
	StageCall     Stage = "call"
	StageClassify Stage = "classify"
	StageBranch   Stage = "branch"
	StageFinalize Stage = "finalize"
)

// StageStatus represents the current state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// BranchDecision is the closed classification outcome set. It is assigned
// exactly once, by the classify stage, and read by everything after it.
type BranchDecision string

const (
	BranchAgreedToEmail BranchDecision = "agreed_to_email"
	BranchInterested    BranchDecision = "interested"
	BranchNotInterested BranchDecision = "not_interested"
	BranchIssueAppeared BranchDecision = "issue_appeared"
	BranchOther         BranchDecision = "other"
)

// ParseBranchDecision maps classifier output onto the closed outcome enum.
// Anything unparsable is treated as other, not as an error.
func ParseBranchDecision(s string) BranchDecision {
	switch BranchDecision(s) {
	case BranchAgreedToEmail, BranchInterested, BranchNotInterested, BranchIssueAppeared, BranchOther:
		return BranchDecision(s)
	default:
		return BranchOther
	}
}

// CallStatus is the closed outcome set of the calling collaborator.
type CallStatus string

const (
	CallDone     CallStatus = "done"
	CallNoAnswer CallStatus = "no_answer"
	CallFailed   CallStatus = "failed"
	CallError    CallStatus = "error"
)

// Turn is a single transcript entry from an outbound call.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// StageResult records the outcome of one executed stage.
type StageResult struct {
	Name     Stage       `json:"name"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// PipelineRun is the per-lead execution audit record. Every lead that
// enters the pipeline gets exactly one, finalized on every path including
// errors and timeouts.
type PipelineRun struct {
	ID             string         `json:"id"`
	LeadID         string         `json:"lead_id"`
	SessionID      string         `json:"session_id"`
	Stage          Stage          `json:"stage"`
	StageStatus    StageStatus    `json:"stage_status"`
	BranchDecision BranchDecision `json:"branch_decision,omitempty"`
	CallOutcome    CallStatus     `json:"call_outcome,omitempty"`
	CallID         string         `json:"call_id,omitempty"`
	ProspectEmail  string         `json:"prospect_email,omitempty"`
	HotLead        bool           `json:"hot_lead"`
	MeetingRequest bool           `json:"meeting_request"`
	EmailSent      bool           `json:"email_sent"`
	MeetingID      string         `json:"meeting_id,omitempty"`
	Stages         []StageResult  `json:"stages,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// SessionSummary aggregates the outcome of one pipeline sweep over a
// session's leads.
type SessionSummary struct {
	SessionID      string `json:"session_id"`
	LeadsProcessed int    `json:"leads_processed"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	CallsPlaced    int    `json:"calls_placed"`
	EmailsSent     int    `json:"emails_sent"`
	MeetingsBooked int    `json:"meetings_booked"`
}
