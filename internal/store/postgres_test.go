package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
)

// anyArgs returns n pgxmock.AnyArg matchers, for Exec expectations where the
// test does not care about individual argument values.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetLeadByKey_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM leads WHERE identity_key = \$1`).
		WithArgs("unknown-key").
		WillReturnError(pgx.ErrNoRows)

	lead, err := s.GetLeadByKey(context.Background(), "unknown-key")
	require.NoError(t, err)
	assert.Nil(t, lead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutLead_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads .+ ON CONFLICT \(identity_key\) DO UPDATE`).
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	now := time.Now().UTC()
	err := s.PutLead(context.Background(), &model.Lead{
		ID:          "lead-1",
		IdentityKey: "key-1",
		Name:        "Joe's Cafe",
		Address:     "12 Main St",
		Source:      model.SourceMapSearch,
		SessionID:   "sess-1",
		Status:      model.LeadStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountSessionLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM leads WHERE session_id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountSessionLeads(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM lead_sessions WHERE session_id = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	sess, err := s.GetSession(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM lead_sessions WHERE session_id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"session_id", "status", "requested_count", "inserted_count",
			"updated_count", "verified_count", "failed_count", "last_error",
			"created_at", "updated_at",
		}).AddRow("sess-1", "completed", 10, 8, 2, 10, 0, "", now, now))

	sess, err := s.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, model.SessionCompleted, sess.Status)
	assert.Equal(t, 10, sess.VerifiedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdatePipelineRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET`).
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdatePipelineRun(context.Background(), &model.PipelineRun{ID: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkEventProcessed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO processed_events .+ ON CONFLICT \(event_id\) DO NOTHING`).
		WithArgs(anyArgs(2)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO processed_events .+ ON CONFLICT \(event_id\) DO NOTHING`).
		WithArgs(anyArgs(2)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	first, err := s.MarkEventProcessed(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.MarkEventProcessed(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.False(t, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}
