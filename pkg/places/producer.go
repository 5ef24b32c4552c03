// Package places provides business discovery producers. Each producer
// searches a single upstream source and returns raw lead records in a
// common shape so the ingest layer can merge them.
package places

import (
	"context"

	"github.com/sells-group/leadflow/internal/model"
)

// Query describes a discovery search.
type Query struct {
	City     string
	Category string
	// RadiusMeters bounds the search around the city center where the
	// backend supports it. Zero means backend default.
	RadiusMeters int
	Limit        int
}

// Producer represents a single discovery backend.
type Producer interface {
	Name() model.SourceProvider
	Search(ctx context.Context, q Query) ([]model.RawRecord, error)
}
