package tabular

import (
	"context"
	"time"
)

// Engine is a bounded, read-only view over one dataset's rows.
// Implementations own their connection and must be closed when done.
// Every call is bounded by the engine's configured query timeout; nulls are
// surfaced as empty strings so parser strategies can treat them uniformly.
type Engine interface {
	// Columns returns the dataset's column names in source order.
	Columns(ctx context.Context) ([]string, error)

	// RowCount returns the total number of rows via a count scan.
	// This is the only full-table scan the profiling core ever issues.
	RowCount(ctx context.Context) (int64, error)

	// SampleColumn returns up to limit values for one column, in a
	// deterministic order (the source's natural row order). The same limit
	// against the same source always yields the same draw, which keeps
	// rebuilds reproducible.
	SampleColumn(ctx context.Context, column string, limit int) ([]string, error)

	// Close releases the underlying connection.
	Close() error
}

// Options configures engine construction.
type Options struct {
	// QueryTimeout bounds every read issued against the source.
	QueryTimeout time.Duration
}

// DefaultQueryTimeout applies when Options.QueryTimeout is zero.
const DefaultQueryTimeout = 30 * time.Second

// Timeout returns the effective query timeout.
func (o Options) Timeout() time.Duration {
	if o.QueryTimeout <= 0 {
		return DefaultQueryTimeout
	}
	return o.QueryTimeout
}
