// Package postgres implements the tabular query engine over a PostgreSQL
// table, for datasets that live in an external database rather than the
// local CSV ingest store.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insightlabs/insight-engine/pkg/adapters/tabular"
	"github.com/insightlabs/insight-engine/pkg/models"
)

// Engine serves one dataset table from a PostgreSQL source.
type Engine struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
}

// NewEngine connects to the dataset's source DSN and binds to its table.
func NewEngine(ctx context.Context, ds *models.Dataset, opts tabular.Options) (*Engine, error) {
	poolConfig, err := pgxpool.ParseConfig(ds.SourceDSN)
	if err != nil {
		return nil, fmt.Errorf("parse source DSN: %w", err)
	}
	// Profiling reads are bursty but short-lived; a small pool is enough.
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to source: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout())
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping source: %w", err)
	}

	return &Engine{
		pool:    pool,
		table:   ds.TableName,
		timeout: opts.Timeout(),
	}, nil
}

// Constructor adapts NewEngine to the factory registry.
func Constructor() tabular.EngineConstructor {
	return func(ctx context.Context, ds *models.Dataset, opts tabular.Options) (tabular.Engine, error) {
		return NewEngine(ctx, ds, opts)
	}
}

func (e *Engine) Columns(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`
	rows, err := e.pool.Query(ctx, query, e.table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s: %w", e.table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist or has no columns", e.table)
	}
	return columns, nil
}

func (e *Engine) RowCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdentifier(e.table))
	if err := e.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", e.table, err)
	}
	return count, nil
}

func (e *Engine) SampleColumn(ctx context.Context, column string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// ctid order follows physical layout, which is stable between rebuilds
	// as long as the table is not rewritten.
	query := fmt.Sprintf(`SELECT %s::text FROM %s ORDER BY ctid LIMIT $1`,
		quoteIdentifier(column), quoteIdentifier(e.table))
	rows, err := e.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sample column %s: %w", column, err)
	}
	defer rows.Close()

	values := make([]string, 0, limit)
	for rows.Next() {
		var v *string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan sample value: %w", err)
		}
		if v == nil {
			values = append(values, "")
		} else {
			values = append(values, *v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample: %w", err)
	}
	return values, nil
}

func (e *Engine) Close() error {
	e.pool.Close()
	return nil
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var _ tabular.Engine = (*Engine)(nil)
