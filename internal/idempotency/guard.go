// Package idempotency acknowledges repeat events by a caller-supplied
// identifier without reprocessing them. Both the webhook intake path and
// the pipeline use it; the processed-event record is durable so restarts
// do not forget what was already handled.
package idempotency

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/store"
)

// Guard records processed event identifiers in the store.
type Guard struct {
	store store.Store
}

// NewGuard creates a Guard on the given store.
func NewGuard(st store.Store) *Guard {
	return &Guard{store: st}
}

// Check marks eventID processed and reports whether it was a duplicate.
// The first caller to mark an id wins; every later caller sees
// duplicate=true and must acknowledge without reprocessing.
func (g *Guard) Check(ctx context.Context, eventID string) (duplicate bool, err error) {
	if eventID == "" {
		return false, eris.New("idempotency: empty event id")
	}
	first, err := g.store.MarkEventProcessed(ctx, eventID)
	if err != nil {
		return false, eris.Wrapf(err, "idempotency: mark %s", eventID)
	}
	return !first, nil
}
