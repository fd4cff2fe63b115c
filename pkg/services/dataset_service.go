package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightlabs/insight-engine/pkg/adapters/tabular/sqlite"
	"github.com/insightlabs/insight-engine/pkg/apperrors"
	"github.com/insightlabs/insight-engine/pkg/models"
	"github.com/insightlabs/insight-engine/pkg/repositories"
)

// RegisterDatasetInput is the payload for registering a new dataset.
type RegisterDatasetInput struct {
	Name       string            `json:"name"`
	SourceType models.SourceType `json:"source_type"`
	TableName  string            `json:"table_name"`
	SourceDSN  string            `json:"source_dsn,omitempty"`
}

// DatasetService manages the dataset registry and CSV ingestion.
type DatasetService interface {
	// Register adds a dataset to the registry.
	Register(ctx context.Context, input RegisterDatasetInput) (*models.Dataset, error)

	// Get returns a dataset by id, or apperrors.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error)

	// List returns all registered datasets, newest first.
	List(ctx context.Context) ([]*models.Dataset, error)

	// Delete removes a dataset and its index.
	Delete(ctx context.Context, id uuid.UUID) error

	// UploadCSV loads CSV rows into a sqlite-backed dataset's table,
	// replacing any previous rows, and marks an existing index stale.
	UploadCSV(ctx context.Context, id uuid.UUID, r io.Reader) (int64, error)
}

type datasetService struct {
	datasets   repositories.DatasetRepository
	indexes    IndexService
	sqlitePath string
	logger     *zap.Logger
}

// NewDatasetService creates the dataset registry service. The sqlite path is
// the shared ingest database for CSV-backed datasets.
func NewDatasetService(
	datasets repositories.DatasetRepository,
	indexes IndexService,
	sqlitePath string,
	logger *zap.Logger,
) DatasetService {
	return &datasetService{
		datasets:   datasets,
		indexes:    indexes,
		sqlitePath: sqlitePath,
		logger:     logger.Named("dataset-service"),
	}
}

var _ DatasetService = (*datasetService)(nil)

func (s *datasetService) Register(ctx context.Context, input RegisterDatasetInput) (*models.Dataset, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("name", "must not be empty")
	}
	if strings.TrimSpace(input.TableName) == "" {
		return nil, apperrors.NewValidationError("tableName", "must not be empty")
	}
	switch input.SourceType {
	case models.SourceTypeSQLite:
		// sqlite datasets live in the shared ingest database
	case models.SourceTypePostgres:
		if strings.TrimSpace(input.SourceDSN) == "" {
			return nil, apperrors.NewValidationError("sourceDSN", "required for postgres datasets")
		}
	default:
		return nil, apperrors.NewValidationError("sourceType", "must be sqlite or postgres")
	}

	ds := &models.Dataset{
		ID:         uuid.New(),
		Name:       input.Name,
		SourceType: input.SourceType,
		TableName:  input.TableName,
		SourceDSN:  input.SourceDSN,
	}
	if err := s.datasets.Create(ctx, ds); err != nil {
		return nil, err
	}

	s.logger.Info("dataset registered",
		zap.String("dataset_id", ds.ID.String()),
		zap.String("name", ds.Name),
		zap.String("source_type", string(ds.SourceType)))
	return ds, nil
}

func (s *datasetService) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.datasets.Get(ctx, id)
}

func (s *datasetService) List(ctx context.Context) ([]*models.Dataset, error) {
	return s.datasets.List(ctx)
}

func (s *datasetService) Delete(ctx context.Context, id uuid.UUID) error {
	// Stored index rows cascade with the registry row; the in-process cache
	// does not, so drop it first.
	if err := s.indexes.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate index before delete",
			zap.String("dataset_id", id.String()), zap.Error(err))
	}
	return s.datasets.Delete(ctx, id)
}

func (s *datasetService) UploadCSV(ctx context.Context, id uuid.UUID, r io.Reader) (int64, error) {
	ds, err := s.datasets.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if ds.SourceType != models.SourceTypeSQLite {
		return 0, apperrors.NewValidationError("sourceType", "CSV upload is only supported for sqlite datasets")
	}

	rows, err := sqlite.IngestCSV(ctx, s.sqlitePath, ds.TableName, r)
	if err != nil {
		return 0, fmt.Errorf("ingest csv: %w", err)
	}

	if err := s.datasets.UpdateRowCount(ctx, id, rows); err != nil {
		return 0, err
	}

	// Replacing the rows makes any Ready index stale.
	if err := s.indexes.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate index after upload",
			zap.String("dataset_id", id.String()), zap.Error(err))
	}

	s.logger.Info("csv ingested",
		zap.String("dataset_id", id.String()),
		zap.String("table", ds.TableName),
		zap.Int64("rows", rows))
	return rows, nil
}
