// Package sqlite implements the tabular query engine over a local ingest
// database. Uploaded CSV datasets are loaded into TEXT-typed tables and
// served back through bounded read-only queries.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/insightlabs/insight-engine/pkg/adapters/tabular"
	"github.com/insightlabs/insight-engine/pkg/models"
)

// Engine serves one dataset table from the shared ingest database.
type Engine struct {
	db      *sql.DB
	table   string
	timeout time.Duration
}

// NewEngine opens the ingest database and binds to the dataset's table.
func NewEngine(ctx context.Context, path string, ds *models.Dataset, opts tabular.Options) (*Engine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ingest database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ingest database: %w", err)
	}

	return &Engine{
		db:      db,
		table:   ds.TableName,
		timeout: opts.Timeout(),
	}, nil
}

// Constructor adapts NewEngine to the factory registry, binding the ingest
// database path from configuration.
func Constructor(path string) tabular.EngineConstructor {
	return func(ctx context.Context, ds *models.Dataset, opts tabular.Options) (tabular.Engine, error) {
		return NewEngine(ctx, path, ds, opts)
	}
}

func (e *Engine) Columns(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(e.table)))
	if err != nil {
		return nil, fmt.Errorf("table info for %s: %w", e.table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", e.table)
	}
	return columns, nil
}

func (e *Engine) RowCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdentifier(e.table))
	if err := e.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", e.table, err)
	}
	return count, nil
}

func (e *Engine) SampleColumn(ctx context.Context, column string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// rowid order makes the draw deterministic across rebuilds.
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY rowid LIMIT ?`,
		quoteIdentifier(column), quoteIdentifier(e.table))
	rows, err := e.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sample column %s: %w", column, err)
	}
	defer rows.Close()

	values := make([]string, 0, limit)
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan sample value: %w", err)
		}
		values = append(values, v.String) // NULL -> ""
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample: %w", err)
	}
	return values, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// quoteIdentifier safely quotes a SQLite identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var _ tabular.Engine = (*Engine)(nil)
