package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/db"
	"github.com/sells-group/leadflow/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id           TEXT PRIMARY KEY,
	identity_key TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL,
	phone        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	rating       DOUBLE PRECISION,
	source       TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'new',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lead_sessions (
	session_id      TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'uploading',
	requested_count INT NOT NULL DEFAULT 0,
	inserted_count  INT NOT NULL DEFAULT 0,
	updated_count   INT NOT NULL DEFAULT 0,
	verified_count  INT NOT NULL DEFAULT 0,
	failed_count    INT NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	stage        TEXT NOT NULL,
	stage_status TEXT NOT NULL,
	doc          JSONB NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_session_id ON leads(session_id);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_session_id ON pipeline_runs(session_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_lead_id ON pipeline_runs(lead_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) PutLead(ctx context.Context, lead *model.Lead) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, identity_key, name, address, phone, email, website, category, rating, source, session_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (identity_key) DO UPDATE SET
			phone      = COALESCE(NULLIF(EXCLUDED.phone, ''), leads.phone),
			email      = COALESCE(NULLIF(EXCLUDED.email, ''), leads.email),
			website    = COALESCE(NULLIF(EXCLUDED.website, ''), leads.website),
			category   = COALESCE(NULLIF(EXCLUDED.category, ''), leads.category),
			rating     = COALESCE(EXCLUDED.rating, leads.rating),
			source     = EXCLUDED.source,
			session_id = EXCLUDED.session_id,
			status     = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		lead.ID, lead.IdentityKey, lead.Name, lead.Address, lead.Phone, lead.Email,
		lead.Website, lead.Category, lead.Rating, string(lead.Source),
		lead.SessionID, string(lead.Status), lead.CreatedAt, lead.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: put lead %s", lead.IdentityKey)
}

func (s *PostgresStore) GetLeadByKey(ctx context.Context, identityKey string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE identity_key = $1`,
		identityKey,
	)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", identityKey)
	}
	return lead, nil
}

func (s *PostgresStore) CountSessionLeads(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE session_id = $1`,
		sessionID,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count session leads %s", sessionID)
}

func (s *PostgresStore) QueryLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		query += ` AND session_id = $1`
	}
	if filter.RequireEmail {
		query += ` AND email != ''`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: query leads iterate")
}

func (s *PostgresStore) UpsertSession(ctx context.Context, session *model.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lead_sessions (session_id, status, requested_count, inserted_count, updated_count, verified_count, failed_count, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id) DO UPDATE SET
			status          = EXCLUDED.status,
			requested_count = EXCLUDED.requested_count,
			inserted_count  = EXCLUDED.inserted_count,
			updated_count   = EXCLUDED.updated_count,
			verified_count  = EXCLUDED.verified_count,
			failed_count    = EXCLUDED.failed_count,
			last_error      = EXCLUDED.last_error,
			updated_at      = EXCLUDED.updated_at`,
		session.SessionID, string(session.Status), session.RequestedCount,
		session.InsertedCount, session.UpdatedCount, session.VerifiedCount,
		session.FailedCount, session.LastError, session.CreatedAt, session.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert session %s", session.SessionID)
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, status, requested_count, inserted_count, updated_count, verified_count, failed_count, last_error, created_at, updated_at
		 FROM lead_sessions WHERE session_id = $1`,
		sessionID,
	)

	var sess model.Session
	var status string
	err := row.Scan(&sess.SessionID, &status, &sess.RequestedCount, &sess.InsertedCount,
		&sess.UpdatedCount, &sess.VerifiedCount, &sess.FailedCount, &sess.LastError,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", sessionID)
	}
	sess.Status = model.SessionStatus(status)
	return &sess, nil
}

func (s *PostgresStore) CreatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pipeline run")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, lead_id, session_id, stage, stage_status, doc, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.LeadID, run.SessionID, string(run.Stage), string(run.StageStatus),
		doc, run.StartedAt, run.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: insert pipeline run for lead %s", run.LeadID)
}

func (s *PostgresStore) UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pipeline run")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET stage = $1, stage_status = $2, doc = $3, completed_at = $4 WHERE id = $5`,
		string(run.Stage), string(run.StageStatus), doc, run.CompletedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update pipeline run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("pipeline run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetPipelineRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM pipeline_runs WHERE id = $1`,
		runID,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("pipeline run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pipeline run %s", runID)
	}
	return unmarshalRun(string(doc))
}

func (s *PostgresStore) ListPipelineRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT doc FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		query += ` AND session_id = $` + strconv.Itoa(len(args))
	}
	if filter.LeadID != "" {
		args = append(args, filter.LeadID)
		query += ` AND lead_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pipeline runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pipeline run")
		}
		run, err := unmarshalRun(string(doc))
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list pipeline runs iterate")
}

func (s *PostgresStore) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO processed_events (event_id, processed_at) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark event processed %s", eventID)
	}
	return tag.RowsAffected() == 1, nil
}
