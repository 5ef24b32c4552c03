package idempotency

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/store"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewGuard(st)
}

func TestGuard_FirstEventNotDuplicate(t *testing.T) {
	g := newTestGuard(t)

	duplicate, err := g.Check(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.False(t, duplicate)
}

func TestGuard_RepeatEventIsDuplicate(t *testing.T) {
	g := newTestGuard(t)
	ctx := context.Background()

	_, err := g.Check(ctx, "evt-1")
	require.NoError(t, err)

	duplicate, err := g.Check(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, duplicate)

	duplicate, err = g.Check(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, duplicate)
}

func TestGuard_EmptyEventIDRejected(t *testing.T) {
	g := newTestGuard(t)

	_, err := g.Check(context.Background(), "")
	require.Error(t, err)
}
