package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/store"
)

// Verifier confirms that a session's writes are durably visible by reading
// them back, rather than trusting the writer's own success return. The
// session status field is a convenience signal; the live row count is
// authoritative.
type Verifier struct {
	store    store.Store
	interval time.Duration
}

// NewVerifier creates a Verifier polling at the given interval. A zero
// interval defaults to one second.
func NewVerifier(st store.Store, interval time.Duration) *Verifier {
	if interval <= 0 {
		interval = time.Second
	}
	return &Verifier{store: st, interval: interval}
}

// WaitForSessionReady polls the session record and the live lead count
// until the session is ready, definitively failed, or maxWait elapses.
// Per poll:
//   - status completed with leads visible: ready immediately
//   - status failed: not ready immediately, no further polling
//   - status uploading: keep polling, a nonzero count is a positive signal
//
// On timeout, data presence outweighs a missed status transition: a
// nonzero count returns ready even if the status never reached completed.
func (v *Verifier) WaitForSessionReady(ctx context.Context, sessionID string, maxWait time.Duration) (bool, int) {
	log := zap.L().With(zap.String("session_id", sessionID))
	deadline := time.Now().Add(maxWait)

	maxSeen := 0
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		count, err := v.store.CountSessionLeads(ctx, sessionID)
		if err != nil {
			log.Warn("verify: count failed, will retry", zap.Error(err))
		} else if count > maxSeen {
			maxSeen = count
		}

		session, err := v.store.GetSession(ctx, sessionID)
		if err != nil {
			log.Warn("verify: session read failed, will retry", zap.Error(err))
		}

		if session != nil {
			switch session.Status {
			case model.SessionCompleted:
				if maxSeen > 0 {
					log.Info("verify: session ready", zap.Int("verified_count", maxSeen))
					return true, maxSeen
				}
			case model.SessionFailed:
				log.Warn("verify: session failed", zap.String("last_error", session.LastError))
				return false, maxSeen
			}
		}

		if time.Now().After(deadline) {
			if maxSeen > 0 {
				// Status never transitioned but the rows are there; the
				// data write succeeded even if the status update did not.
				log.Warn("verify: timeout with data present, treating as ready",
					zap.Int("verified_count", maxSeen),
				)
				return true, maxSeen
			}
			log.Warn("verify: timeout with no visible leads")
			return false, 0
		}

		select {
		case <-ctx.Done():
			return maxSeen > 0, maxSeen
		case <-ticker.C:
		}
	}
}
