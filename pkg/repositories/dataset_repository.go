package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/insightlabs/insight-engine/pkg/apperrors"
	"github.com/insightlabs/insight-engine/pkg/database"
	"github.com/insightlabs/insight-engine/pkg/models"
)

// DatasetRepository is the dataset registry: it maps a dataset id to the
// source the tabular query engine should read.
type DatasetRepository interface {
	// Create registers a new dataset.
	Create(ctx context.Context, ds *models.Dataset) error

	// Get returns a dataset by id, or apperrors.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error)

	// List returns all datasets, newest first.
	List(ctx context.Context) ([]*models.Dataset, error)

	// UpdateRowCount records the source's total row count after ingest.
	UpdateRowCount(ctx context.Context, id uuid.UUID, rowCount int64) error

	// Delete removes a dataset and, via cascade, its index and build record.
	Delete(ctx context.Context, id uuid.UUID) error
}

type datasetRepository struct {
	db *database.DB
}

// NewDatasetRepository creates a new dataset repository.
func NewDatasetRepository(db *database.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

func (r *datasetRepository) Create(ctx context.Context, ds *models.Dataset) error {
	query := `
		INSERT INTO datasets (id, name, source_type, table_name, source_dsn, row_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at`
	err := r.db.QueryRow(ctx, query,
		ds.ID, ds.Name, ds.SourceType, ds.TableName, ds.SourceDSN, ds.RowCount,
	).Scan(&ds.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

func (r *datasetRepository) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	query := `
		SELECT id, name, source_type, table_name, source_dsn, row_count, created_at
		FROM datasets WHERE id = $1`
	ds := &models.Dataset{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ds.ID, &ds.Name, &ds.SourceType, &ds.TableName, &ds.SourceDSN, &ds.RowCount, &ds.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	return ds, nil
}

func (r *datasetRepository) List(ctx context.Context) ([]*models.Dataset, error) {
	query := `
		SELECT id, name, source_type, table_name, source_dsn, row_count, created_at
		FROM datasets ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		ds := &models.Dataset{}
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.SourceType, &ds.TableName,
			&ds.SourceDSN, &ds.RowCount, &ds.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return datasets, nil
}

func (r *datasetRepository) UpdateRowCount(ctx context.Context, id uuid.UUID, rowCount int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE datasets SET row_count = $2 WHERE id = $1`, id, rowCount)
	if err != nil {
		return fmt.Errorf("update dataset row count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *datasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
