package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/insightlabs/insight-engine/pkg/apperrors"
	"github.com/insightlabs/insight-engine/pkg/database"
	"github.com/insightlabs/insight-engine/pkg/models"
)

// IndexRepository persists dataset indexes and their build-status records.
// An index is always written wholesale; there is no partial update path.
type IndexRepository interface {
	// SaveIndex upserts the full index for a dataset.
	SaveIndex(ctx context.Context, idx *models.DatasetIndex) error

	// GetIndex returns the stored index, or apperrors.ErrNotFound.
	GetIndex(ctx context.Context, datasetID uuid.UUID) (*models.DatasetIndex, error)

	// GetBuildRecord returns the build-status record. A dataset with no
	// record yet reports StatusNotBuilt rather than an error.
	GetBuildRecord(ctx context.Context, datasetID uuid.UUID) (*models.BuildRecord, error)

	// UpsertBuildRecord writes the build-status record (last write wins).
	UpsertBuildRecord(ctx context.Context, rec *models.BuildRecord) error

	// DeleteIndex removes the stored index, if any.
	DeleteIndex(ctx context.Context, datasetID uuid.UUID) error
}

type indexRepository struct {
	db *database.DB
}

// NewIndexRepository creates a new index repository.
func NewIndexRepository(db *database.DB) IndexRepository {
	return &indexRepository{db: db}
}

func (r *indexRepository) SaveIndex(ctx context.Context, idx *models.DatasetIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	query := `
		INSERT INTO dataset_indexes (dataset_id, built_at, index_data)
		VALUES ($1, $2, $3)
		ON CONFLICT (dataset_id) DO UPDATE SET built_at = $2, index_data = $3`
	if _, err := r.db.Exec(ctx, query, idx.DatasetID, idx.BuiltAt, data); err != nil {
		return fmt.Errorf("upsert index: %w", err)
	}
	return nil
}

func (r *indexRepository) GetIndex(ctx context.Context, datasetID uuid.UUID) (*models.DatasetIndex, error) {
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT index_data FROM dataset_indexes WHERE dataset_id = $1`, datasetID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	idx := &models.DatasetIndex{}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	return idx, nil
}

func (r *indexRepository) GetBuildRecord(ctx context.Context, datasetID uuid.UUID) (*models.BuildRecord, error) {
	rec := &models.BuildRecord{DatasetID: datasetID}
	err := r.db.QueryRow(ctx,
		`SELECT status, error, started_at, finished_at
		 FROM dataset_build_records WHERE dataset_id = $1`, datasetID,
	).Scan(&rec.Status, &rec.Error, &rec.StartedAt, &rec.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		rec.Status = models.StatusNotBuilt
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query build record: %w", err)
	}
	return rec, nil
}

func (r *indexRepository) UpsertBuildRecord(ctx context.Context, rec *models.BuildRecord) error {
	query := `
		INSERT INTO dataset_build_records (dataset_id, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dataset_id) DO UPDATE SET
			status = $2, error = $3, started_at = $4, finished_at = $5`
	_, err := r.db.Exec(ctx, query,
		rec.DatasetID, rec.Status, rec.Error, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("upsert build record: %w", err)
	}
	return nil
}

func (r *indexRepository) DeleteIndex(ctx context.Context, datasetID uuid.UUID) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM dataset_indexes WHERE dataset_id = $1`, datasetID); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}
