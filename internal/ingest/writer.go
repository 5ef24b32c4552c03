// Package ingest turns untrusted, possibly duplicate records from the two
// search producers into a deduplicated, durably stored, verifiably complete
// lead set for one session. It owns the Lead and Session records; nothing
// downstream mutates them.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/identity"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/internal/store"
)

// ValidationError describes one rejected raw record. Rejections are
// per-record; they never abort the batch.
type ValidationError struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// RecordError describes one record whose store write failed after
// validation and dedup.
type RecordError struct {
	IdentityKey string `json:"identity_key"`
	Name        string `json:"name"`
	Reason      string `json:"reason"`
}

// WriteReport summarizes one Upsert batch.
type WriteReport struct {
	SessionID        string            `json:"session_id"`
	Requested        int               `json:"requested"`
	Deduplicated     int               `json:"deduplicated"`
	Inserted         int               `json:"inserted"`
	Updated          int               `json:"updated"`
	Failed           int               `json:"failed"`
	VerifiedCount    int               `json:"verified_count"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	RecordErrors     []RecordError     `json:"record_errors,omitempty"`
}

// Writer performs idempotent, session-tagged upserts of deduplicated leads.
type Writer struct {
	store store.Store
}

// NewWriter creates a Writer on the given store.
func NewWriter(st store.Store) *Writer {
	return &Writer{store: st}
}

// Upsert validates, deduplicates and writes a batch of raw records under
// sessionID, then independently re-counts the session's stored leads before
// deciding the session's final status. Individual bad records are rejected
// without aborting the batch; only store connectivity failures abort, and
// those mark the session failed.
func (w *Writer) Upsert(ctx context.Context, sessionID string, records []model.RawRecord) (*WriteReport, error) {
	log := zap.L().With(zap.String("session_id", sessionID))

	report := &WriteReport{
		SessionID: sessionID,
		Requested: len(records),
	}

	// Session goes to uploading before any per-record write so a crash
	// mid-batch is still observable.
	now := time.Now().UTC()
	session := &model.Session{
		SessionID:      sessionID,
		Status:         model.SessionUploading,
		RequestedCount: len(records),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing, err := w.store.GetSession(ctx, sessionID); err == nil && existing != nil {
		session.CreatedAt = existing.CreatedAt
	}
	if err := w.store.UpsertSession(ctx, session); err != nil {
		return report, eris.Wrap(err, "ingest: open session")
	}

	deduped := w.dedupe(records, report)
	report.Deduplicated = len(deduped)

	for _, rec := range deduped {
		if err := w.upsertOne(ctx, sessionID, rec, report); err != nil {
			// Connectivity failures abort the batch; everything else is
			// recorded per record and the batch continues.
			if resilience.IsTransient(err) {
				return report, w.failSession(ctx, session, report, eris.Wrap(err, "ingest: store unreachable"))
			}
			report.Failed++
			report.RecordErrors = append(report.RecordErrors, RecordError{
				IdentityKey: identity.Key(rec.Name, rec.Address),
				Name:        rec.Name,
				Reason:      err.Error(),
			})
			log.Warn("ingest: record write failed",
				zap.String("name", rec.Name),
				zap.Error(err),
			)
		}
	}

	// Re-count from the store rather than trusting in-process counters; a
	// prior crash mid-batch must still be observable.
	verified, err := w.store.CountSessionLeads(ctx, sessionID)
	if err != nil {
		return report, w.failSession(ctx, session, report, eris.Wrap(err, "ingest: verify count"))
	}
	report.VerifiedCount = verified

	session.InsertedCount = report.Inserted
	session.UpdatedCount = report.Updated
	session.FailedCount = report.Failed
	session.VerifiedCount = verified
	session.UpdatedAt = time.Now().UTC()
	if verified > 0 {
		session.Status = model.SessionCompleted
	} else {
		session.Status = model.SessionFailed
		session.LastError = "no leads durably visible after write"
	}
	if err := w.store.UpsertSession(ctx, session); err != nil {
		return report, eris.Wrap(err, "ingest: close session")
	}

	log.Info("ingest: batch complete",
		zap.Int("requested", report.Requested),
		zap.Int("deduplicated", report.Deduplicated),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Int("verified", verified),
		zap.String("status", string(session.Status)),
	)
	return report, nil
}

// dedupe validates each record and collapses in-batch duplicates by
// identity key. The variant with the most populated optional fields anchors
// the collapsed record (ties broken by first-seen order) and the loser's
// populated fields fill its gaps, so the survivor carries the union. The
// same policy applies whether the duplicate came from the same provider or
// the other one.
func (w *Writer) dedupe(records []model.RawRecord, report *WriteReport) []model.RawRecord {
	type slot struct {
		rec   model.RawRecord
		order int
	}
	byKey := make(map[string]slot)
	order := make([]string, 0, len(records))

	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			report.ValidationErrors = append(report.ValidationErrors, ValidationError{
				Index:  i,
				Name:   rec.Name,
				Reason: err.Error(),
			})
			continue
		}

		key := identity.Key(rec.Name, rec.Address)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = slot{rec: rec, order: len(order)}
			order = append(order, key)
			continue
		}
		if rec.PopulatedFields() > existing.rec.PopulatedFields() {
			byKey[key] = slot{rec: rec.UnionWith(existing.rec), order: existing.order}
		} else {
			byKey[key] = slot{rec: existing.rec.UnionWith(rec), order: existing.order}
		}
	}

	out := make([]model.RawRecord, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key].rec)
	}
	return out
}

// upsertOne merges one surviving record into the store: insert when the
// identity key is absent, otherwise field-level merge where the caller's
// non-empty values win and empty values never erase.
func (w *Writer) upsertOne(ctx context.Context, sessionID string, rec model.RawRecord, report *WriteReport) error {
	key := identity.Key(rec.Name, rec.Address)

	existing, err := w.store.GetLeadByKey(ctx, key)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing == nil {
		lead := &model.Lead{
			ID:          uuid.New().String(),
			IdentityKey: key,
			Name:        rec.Name,
			Address:     rec.Address,
			Source:      rec.Source,
			SessionID:   sessionID,
			Status:      model.LeadStatusNew,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		lead.MergeFrom(rec)
		if err := w.store.PutLead(ctx, lead); err != nil {
			return err
		}
		report.Inserted++
		return nil
	}

	existing.MergeFrom(rec)
	existing.SessionID = sessionID
	existing.Status = model.LeadStatusUpdated
	existing.UpdatedAt = now
	if err := w.store.PutLead(ctx, existing); err != nil {
		return err
	}
	report.Updated++
	return nil
}

// failSession marks the session failed with the cause, then returns the
// cause. The session write itself is best effort at this point.
func (w *Writer) failSession(ctx context.Context, session *model.Session, report *WriteReport, cause error) error {
	session.Status = model.SessionFailed
	session.LastError = cause.Error()
	session.InsertedCount = report.Inserted
	session.UpdatedCount = report.Updated
	session.FailedCount = report.Failed
	session.UpdatedAt = time.Now().UTC()
	if err := w.store.UpsertSession(ctx, session); err != nil {
		zap.L().Warn("ingest: failed to mark session failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
	return cause
}
