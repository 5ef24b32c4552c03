package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id           TEXT PRIMARY KEY,
	identity_key TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL,
	phone        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	rating       REAL,
	source       TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'new',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_sessions (
	session_id      TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'uploading',
	requested_count INTEGER NOT NULL DEFAULT 0,
	inserted_count  INTEGER NOT NULL DEFAULT 0,
	updated_count   INTEGER NOT NULL DEFAULT 0,
	verified_count  INTEGER NOT NULL DEFAULT 0,
	failed_count    INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	stage        TEXT NOT NULL,
	stage_status TEXT NOT NULL,
	doc          TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	processed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_session_id ON leads(session_id);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_session_id ON pipeline_runs(session_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_lead_id ON pipeline_runs(lead_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutLead inserts a lead or, when the identity key already exists, merges
// field-by-field inside the conflict clause: the caller's non-empty values
// win, empty values never erase, so concurrent same-key writers compose
// instead of clobbering each other. The original row id, created_at, and
// the stored name/address casing survive the conflict.
func (s *SQLiteStore) PutLead(ctx context.Context, lead *model.Lead) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, identity_key, name, address, phone, email, website, category, rating, source, session_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(identity_key) DO UPDATE SET
			phone      = COALESCE(NULLIF(excluded.phone, ''), leads.phone),
			email      = COALESCE(NULLIF(excluded.email, ''), leads.email),
			website    = COALESCE(NULLIF(excluded.website, ''), leads.website),
			category   = COALESCE(NULLIF(excluded.category, ''), leads.category),
			rating     = COALESCE(excluded.rating, leads.rating),
			source     = excluded.source,
			session_id = excluded.session_id,
			status     = excluded.status,
			updated_at = excluded.updated_at`,
		lead.ID, lead.IdentityKey, lead.Name, lead.Address, lead.Phone, lead.Email,
		lead.Website, lead.Category, nullFloat(lead.Rating), string(lead.Source),
		lead.SessionID, string(lead.Status), lead.CreatedAt, lead.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: put lead %s", lead.IdentityKey)
}

func (s *SQLiteStore) GetLeadByKey(ctx context.Context, identityKey string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE identity_key = ?`,
		identityKey,
	)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", identityKey)
	}
	return lead, nil
}

func (s *SQLiteStore) CountSessionLeads(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE session_id = ?`,
		sessionID,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count session leads %s", sessionID)
}

func (s *SQLiteStore) QueryLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.RequireEmail {
		query += ` AND email != ''`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: query leads iterate")
}

func (s *SQLiteStore) UpsertSession(ctx context.Context, session *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_sessions (session_id, status, requested_count, inserted_count, updated_count, verified_count, failed_count, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			status          = excluded.status,
			requested_count = excluded.requested_count,
			inserted_count  = excluded.inserted_count,
			updated_count   = excluded.updated_count,
			verified_count  = excluded.verified_count,
			failed_count    = excluded.failed_count,
			last_error      = excluded.last_error,
			updated_at      = excluded.updated_at`,
		session.SessionID, string(session.Status), session.RequestedCount,
		session.InsertedCount, session.UpdatedCount, session.VerifiedCount,
		session.FailedCount, session.LastError, session.CreatedAt, session.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert session %s", session.SessionID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, status, requested_count, inserted_count, updated_count, verified_count, failed_count, last_error, created_at, updated_at
		 FROM lead_sessions WHERE session_id = ?`,
		sessionID,
	)

	var sess model.Session
	var status string
	err := row.Scan(&sess.SessionID, &status, &sess.RequestedCount, &sess.InsertedCount,
		&sess.UpdatedCount, &sess.VerifiedCount, &sess.FailedCount, &sess.LastError,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", sessionID)
	}
	sess.Status = model.SessionStatus(status)
	return &sess, nil
}

func (s *SQLiteStore) CreatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pipeline run")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, lead_id, session_id, stage, stage_status, doc, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.LeadID, run.SessionID, string(run.Stage), string(run.StageStatus),
		string(doc), run.StartedAt, nullTime(run.CompletedAt),
	)
	return eris.Wrapf(err, "sqlite: insert pipeline run for lead %s", run.LeadID)
}

func (s *SQLiteStore) UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pipeline run")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET stage = ?, stage_status = ?, doc = ?, completed_at = ? WHERE id = ?`,
		string(run.Stage), string(run.StageStatus), string(doc), nullTime(run.CompletedAt), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update pipeline run %s", run.ID)
	}
	return checkRowsAffected(res, "pipeline run", run.ID)
}

func (s *SQLiteStore) GetPipelineRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc FROM pipeline_runs WHERE id = ?`,
		runID,
	)

	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("pipeline run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pipeline run %s", runID)
	}
	return unmarshalRun(doc)
}

func (s *SQLiteStore) ListPipelineRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT doc FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.LeadID != "" {
		query += ` AND lead_id = ?`
		args = append(args, filter.LeadID)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pipeline runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pipeline run")
		}
		run, err := unmarshalRun(doc)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list pipeline runs iterate")
}

func (s *SQLiteStore) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_events (event_id, processed_at) VALUES (?, ?)`,
		eventID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark event processed %s", eventID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

// helpers

const leadColumns = `id, identity_key, name, address, phone, email, website, category, rating, source, session_id, status, created_at, updated_at`

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var rating sql.NullFloat64
	var source, status string

	err := row.Scan(&l.ID, &l.IdentityKey, &l.Name, &l.Address, &l.Phone, &l.Email,
		&l.Website, &l.Category, &rating, &source, &l.SessionID, &status,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		l.Rating = &rating.Float64
	}
	l.Source = model.SourceProvider(source)
	l.Status = model.LeadStatus(status)
	return &l, nil
}

func unmarshalRun(doc string) (*model.PipelineRun, error) {
	var run model.PipelineRun
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pipeline run")
	}
	return &run, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
