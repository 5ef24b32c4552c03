package store

import (
	"context"

	"github.com/sells-group/leadflow/internal/model"
)

// LeadFilter specifies criteria for querying leads. A zero filter matches
// the most recent leads unconditionally; a zero Limit applies a default
// page size of 100.
type LeadFilter struct {
	SessionID    string `json:"session_id,omitempty"`
	RequireEmail bool   `json:"require_email,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	SessionID string `json:"session_id,omitempty"`
	LeadID    string `json:"lead_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Store defines the persistence contract shared by the ingestion subsystem
// and the pipeline orchestrator. The ingestion side owns leads and
// sessions; the orchestrator only reads leads and owns pipeline runs.
type Store interface {
	// Leads
	PutLead(ctx context.Context, lead *model.Lead) error
	GetLeadByKey(ctx context.Context, identityKey string) (*model.Lead, error)
	CountSessionLeads(ctx context.Context, sessionID string) (int, error)
	QueryLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)

	// Sessions
	UpsertSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)

	// Pipeline runs
	CreatePipelineRun(ctx context.Context, run *model.PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error
	GetPipelineRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	// Idempotency. MarkEventProcessed returns false when the event was
	// already recorded; the first caller to mark wins.
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
