package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/internal/store"
)

// Retriever fetches a session's leads with a cascading fallback query
// strategy: the upstream write path may silently fail to tag every record
// with the session, so strict isolation is traded for forward progress.
// Callers that need strict isolation must check the returned leads'
// SessionID themselves.
type Retriever struct {
	store          store.Store
	attempts       int
	attemptTimeout time.Duration
	backoffStep    time.Duration
}

// NewRetriever creates a Retriever. Zero values default to 5 attempts,
// a 10s per-attempt timeout and a 2s linear backoff step.
func NewRetriever(st store.Store, attempts int, attemptTimeout, backoffStep time.Duration) *Retriever {
	if attempts <= 0 {
		attempts = 5
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 10 * time.Second
	}
	if backoffStep <= 0 {
		backoffStep = 2 * time.Second
	}
	return &Retriever{
		store:          st,
		attempts:       attempts,
		attemptTimeout: attemptTimeout,
		backoffStep:    backoffStep,
	}
}

// FetchSessionLeads returns up to limit leads for the session, trying each
// fallback in order until one yields at least one result:
//  1. exact session match, leads with an email
//  2. exact session match, any lead
//  3. most recent leads overall with an email (tolerates tag loss)
//  4. most recent leads overall, unconditional
func (r *Retriever) FetchSessionLeads(ctx context.Context, sessionID string, limit int) ([]model.Lead, error) {
	log := zap.L().With(zap.String("session_id", sessionID))

	cascade := []struct {
		name   string
		filter store.LeadFilter
	}{
		{"session_with_email", store.LeadFilter{SessionID: sessionID, RequireEmail: true, Limit: limit}},
		{"session_any", store.LeadFilter{SessionID: sessionID, Limit: limit}},
		{"recent_with_email", store.LeadFilter{RequireEmail: true, Limit: limit}},
		{"recent_any", store.LeadFilter{Limit: limit}},
	}

	cfg := resilience.LinearRetryConfig(r.attempts, r.backoffStep)
	cfg.OnRetry = resilience.RetryLogger("store", "query_leads")

	var lastErr error
	for _, step := range cascade {
		leads, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.Lead, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
			defer cancel()
			return r.store.QueryLeads(attemptCtx, step.filter)
		})
		if err != nil {
			lastErr = err
			log.Warn("retrieve: query failed",
				zap.String("strategy", step.name),
				zap.Error(err),
			)
			continue
		}
		if len(leads) > 0 {
			if step.name != "session_with_email" {
				log.Info("retrieve: fallback strategy used",
					zap.String("strategy", step.name),
					zap.Int("leads", len(leads)),
				)
			}
			return leads, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}
