package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
)

func TestRetriever_PrefersSessionLeadsWithEmail(t *testing.T) {
	st := newTestStore(t)
	w := NewWriter(st)
	ctx := context.Background()

	withEmail := rec("Joe's Cafe", "12 Main St", model.SourceMapSearch)
	withEmail.Email = "joe@example.com"
	noEmail := rec("Ace Plumbing", "400 Oak Ave", model.SourceMapSearch)
	_, err := w.Upsert(ctx, "sess-1", []model.RawRecord{withEmail, noEmail})
	require.NoError(t, err)

	r := NewRetriever(st, 1, time.Second, time.Millisecond)
	leads, err := r.FetchSessionLeads(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "joe@example.com", leads[0].Email)
}

func TestRetriever_FallsBackToSessionWithoutEmail(t *testing.T) {
	st := newTestStore(t)
	w := NewWriter(st)
	ctx := context.Background()

	_, err := w.Upsert(ctx, "sess-1", []model.RawRecord{
		rec("Ace Plumbing", "400 Oak Ave", model.SourceMapSearch),
	})
	require.NoError(t, err)

	r := NewRetriever(st, 1, time.Second, time.Millisecond)
	leads, err := r.FetchSessionLeads(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Ace Plumbing", leads[0].Name)
}

func TestRetriever_FallsBackToRecentLeads(t *testing.T) {
	st := newTestStore(t)
	w := NewWriter(st)
	ctx := context.Background()

	// Leads exist only under a different session tag: the session-scoped
	// queries come up empty and the recency fallback kicks in.
	withEmail := rec("Joe's Cafe", "12 Main St", model.SourceMapSearch)
	withEmail.Email = "joe@example.com"
	_, err := w.Upsert(ctx, "sess-other", []model.RawRecord{withEmail})
	require.NoError(t, err)

	r := NewRetriever(st, 1, time.Second, time.Millisecond)
	leads, err := r.FetchSessionLeads(ctx, "sess-wanted", 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "sess-other", leads[0].SessionID)
}

func TestRetriever_EmptyStoreReturnsNothing(t *testing.T) {
	st := newTestStore(t)

	r := NewRetriever(st, 1, time.Second, time.Millisecond)
	leads, err := r.FetchSessionLeads(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	assert.Empty(t, leads)
}
