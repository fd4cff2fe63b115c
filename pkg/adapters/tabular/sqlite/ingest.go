package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite"
)

// IngestCSV loads a CSV stream into a TEXT-typed table in the ingest
// database, replacing any previous table of the same name. The first record
// is the header. Returns the number of data rows loaded.
//
// All columns get TEXT affinity on purpose: type inference happens later,
// from a bounded sample, and must see the raw tokens.
func IngestCSV(ctx context.Context, path, tableName string, r io.Reader) (int64, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, fmt.Errorf("open ingest database: %w", err)
	}
	defer db.Close()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return 0, errors.New("csv source is empty")
	}
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) == 0 {
		return 0, errors.New("csv header has no columns")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ingest transaction: %w", err)
	}
	defer tx.Rollback()

	quoted := quoteIdentifier(tableName)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoted)); err != nil {
		return 0, fmt.Errorf("drop previous table: %w", err)
	}

	columnDefs := make([]string, len(header))
	placeholders := make([]string, len(header))
	for i, name := range header {
		columnDefs[i] = quoteIdentifier(strings.TrimSpace(name)) + " TEXT"
		placeholders[i] = "?"
	}
	createSQL := fmt.Sprintf(`CREATE TABLE %s (%s)`, quoted, strings.Join(columnDefs, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("create table %s: %w", tableName, err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s VALUES (%s)`, quoted, strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var loaded int64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read csv row %d: %w", loaded+1, err)
		}

		args := make([]any, len(header))
		for i := range header {
			if i < len(record) {
				args[i] = record[i]
			} else {
				args[i] = "" // short row: missing trailing fields are null-equivalent
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert csv row %d: %w", loaded+1, err)
		}
		loaded++

		// Cooperative cancellation at iteration boundaries.
		if loaded%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ingest: %w", err)
	}
	return loaded, nil
}
