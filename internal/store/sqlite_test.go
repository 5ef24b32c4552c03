package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testLead(id, key, sessionID string) *model.Lead {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Lead{
		ID:          id,
		IdentityKey: key,
		Name:        "Joe's Cafe",
		Address:     "12 Main St, Springfield",
		Phone:       "+15550100",
		Source:      model.SourceMapSearch,
		SessionID:   sessionID,
		Status:      model.LeadStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// --- Leads ---

func TestSQLite_PutLead_InsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lead := testLead("lead-1", "key-1", "sess-1")
	lead.Email = "joe@example.com"
	rating := 4.5
	lead.Rating = &rating

	require.NoError(t, st.PutLead(ctx, lead))

	got, err := st.GetLeadByKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "lead-1", got.ID)
	assert.Equal(t, "Joe's Cafe", got.Name)
	assert.Equal(t, "joe@example.com", got.Email)
	require.NotNil(t, got.Rating)
	assert.InDelta(t, 4.5, *got.Rating, 0.001)
	assert.Equal(t, model.SourceMapSearch, got.Source)
	assert.Equal(t, model.LeadStatusNew, got.Status)
}

func TestSQLite_PutLead_ConflictKeepsIDAndCreatedAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	original := testLead("lead-1", "key-1", "sess-1")
	require.NoError(t, st.PutLead(ctx, original))

	// Same identity key arriving under a different row id and session.
	update := testLead("lead-2", "key-1", "sess-2")
	update.Email = "late@example.com"
	update.Status = model.LeadStatusUpdated
	update.CreatedAt = original.CreatedAt.Add(time.Hour)
	require.NoError(t, st.PutLead(ctx, update))

	got, err := st.GetLeadByKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "lead-1", got.ID)
	assert.Equal(t, original.CreatedAt, got.CreatedAt.UTC())
	assert.Equal(t, "late@example.com", got.Email)
	assert.Equal(t, "sess-2", got.SessionID)
	assert.Equal(t, model.LeadStatusUpdated, got.Status)
}

func TestSQLite_PutLead_ConcurrentWritersCompose(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Two writers that each read an empty store, then both insert the same
	// identity key with disjoint fields. The second write must merge into
	// the first row rather than clobber it.
	withPhone := testLead("lead-1", "key-1", "sess-1")
	withPhone.Email = ""
	require.NoError(t, st.PutLead(ctx, withPhone))

	withEmail := testLead("lead-2", "key-1", "sess-1")
	withEmail.Phone = ""
	withEmail.Email = "joe@example.com"
	withEmail.Website = "https://joescafe.example"
	require.NoError(t, st.PutLead(ctx, withEmail))

	got, err := st.GetLeadByKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "lead-1", got.ID)
	assert.Equal(t, "+15550100", got.Phone, "phone from the first writer must survive")
	assert.Equal(t, "joe@example.com", got.Email)
	assert.Equal(t, "https://joescafe.example", got.Website)
}

func TestSQLite_GetLeadByKey_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetLeadByKey(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_CountSessionLeads(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.PutLead(ctx, testLead("l1", "k1", "sess-1")))
	require.NoError(t, st.PutLead(ctx, testLead("l2", "k2", "sess-1")))
	require.NoError(t, st.PutLead(ctx, testLead("l3", "k3", "sess-other")))

	n, err := st.CountSessionLeads(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.CountSessionLeads(ctx, "sess-empty")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_QueryLeads_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	withEmail := testLead("l1", "k1", "sess-1")
	withEmail.Email = "a@example.com"
	require.NoError(t, st.PutLead(ctx, withEmail))

	noEmail := testLead("l2", "k2", "sess-1")
	require.NoError(t, st.PutLead(ctx, noEmail))

	other := testLead("l3", "k3", "sess-2")
	require.NoError(t, st.PutLead(ctx, other))

	bySession, err := st.QueryLeads(ctx, LeadFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	emailOnly, err := st.QueryLeads(ctx, LeadFilter{SessionID: "sess-1", RequireEmail: true})
	require.NoError(t, err)
	require.Len(t, emailOnly, 1)
	assert.Equal(t, "l1", emailOnly[0].ID)

	all, err := st.QueryLeads(ctx, LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := st.QueryLeads(ctx, LeadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_QueryLeads_DefaultPageSize(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		id := "l" + strconv.Itoa(i)
		require.NoError(t, st.PutLead(ctx, testLead(id, "k"+id, "sess-1")))
	}

	// A zero limit pages at 100 rather than returning everything.
	leads, err := st.QueryLeads(ctx, LeadFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Len(t, leads, 100)

	all, err := st.QueryLeads(ctx, LeadFilter{SessionID: "sess-1", Limit: 200})
	require.NoError(t, err)
	assert.Len(t, all, 105)
}

// --- Sessions ---

func TestSQLite_Session_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	sess := &model.Session{
		SessionID:      "sess-1",
		Status:         model.SessionUploading,
		RequestedCount: 10,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, st.UpsertSession(ctx, sess))

	got, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.SessionUploading, got.Status)
	assert.Equal(t, 10, got.RequestedCount)

	sess.Status = model.SessionCompleted
	sess.InsertedCount = 8
	sess.VerifiedCount = 8
	sess.UpdatedAt = now.Add(time.Second)
	require.NoError(t, st.UpsertSession(ctx, sess))

	got, err = st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.SessionCompleted, got.Status)
	assert.Equal(t, 8, got.VerifiedCount)
	assert.True(t, got.Terminal())
}

func TestSQLite_GetSession_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetSession(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Pipeline runs ---

func TestSQLite_PipelineRun_CreateUpdateGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := &model.PipelineRun{
		ID:          "run-1",
		LeadID:      "lead-1",
		SessionID:   "sess-1",
		Stage:       model.StageResearch,
		StageStatus: model.StageStatusRunning,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, st.CreatePipelineRun(ctx, run))

	run.Stage = model.StageFinalize
	run.StageStatus = model.StageStatusComplete
	run.BranchDecision = model.BranchInterested
	run.HotLead = true
	run.MeetingRequest = true
	run.MeetingID = "mtg-7"
	completed := time.Now().UTC().Truncate(time.Second)
	run.CompletedAt = &completed
	run.Stages = []model.StageResult{
		{Name: model.StageResearch, Status: model.StageStatusComplete, Duration: 120},
	}
	require.NoError(t, st.UpdatePipelineRun(ctx, run))

	got, err := st.GetPipelineRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageFinalize, got.Stage)
	assert.Equal(t, model.BranchInterested, got.BranchDecision)
	assert.True(t, got.HotLead)
	assert.Equal(t, "mtg-7", got.MeetingID)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, model.StageResearch, got.Stages[0].Name)
}

func TestSQLite_UpdatePipelineRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdatePipelineRun(context.Background(), &model.PipelineRun{ID: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListPipelineRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, leadID := range []string{"lead-a", "lead-b"} {
		run := &model.PipelineRun{
			ID:          "run-" + leadID,
			LeadID:      leadID,
			SessionID:   "sess-1",
			Stage:       model.StageResearch,
			StageStatus: model.StageStatusRunning,
			StartedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, st.CreatePipelineRun(ctx, run))
	}

	bySession, err := st.ListPipelineRuns(ctx, RunFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	byLead, err := st.ListPipelineRuns(ctx, RunFilter{LeadID: "lead-a"})
	require.NoError(t, err)
	require.Len(t, byLead, 1)
	assert.Equal(t, "run-lead-a", byLead[0].ID)

	none, err := st.ListPipelineRuns(ctx, RunFilter{SessionID: "sess-other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// --- Processed events ---

func TestSQLite_MarkEventProcessed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.MarkEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := st.MarkEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := st.MarkEventProcessed(ctx, "evt-2")
	require.NoError(t, err)
	assert.True(t, other)
}
