package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the backend that serves a dataset's rows.
type SourceType string

const (
	SourceTypeSQLite   SourceType = "sqlite"
	SourceTypePostgres SourceType = "postgres"
)

// Dataset is the registry record for an ingested tabular source.
// The storage resolver maps a dataset id to this record; the tabular query
// engine uses SourceType and TableName to reach the rows.
type Dataset struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	SourceType SourceType `json:"source_type"`

	// TableName is the table holding the dataset rows in the backing store.
	TableName string `json:"table_name"`

	// SourceDSN is the connection string for postgres-backed datasets.
	// Empty for sqlite datasets, which live in the shared ingest database.
	SourceDSN string `json:"source_dsn,omitempty"`

	RowCount  int64     `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}
