package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/insightlabs/insight-engine/pkg/adapters/tabular"
	"github.com/insightlabs/insight-engine/pkg/apperrors"
	"github.com/insightlabs/insight-engine/pkg/models"
	"github.com/insightlabs/insight-engine/pkg/repositories"
)

// IndexService builds, serves and invalidates dataset indexes.
type IndexService interface {
	// BuildIndex runs the full profiling pipeline for a dataset and persists
	// the resulting index. Concurrent calls for the same dataset coalesce
	// into one build; a dataset already Building returns
	// apperrors.ErrBuildInProgress.
	BuildIndex(ctx context.Context, datasetID uuid.UUID, opts models.IndexBuildOptions) (*models.DatasetIndex, error)

	// GetIndex returns the last persisted index, or apperrors.ErrNotFound
	// when no build has completed yet.
	GetIndex(ctx context.Context, datasetID uuid.UUID) (*models.DatasetIndex, error)

	// GetStatus returns the build-status record for a dataset.
	GetStatus(ctx context.Context, datasetID uuid.UUID) (*models.BuildRecord, error)

	// Invalidate marks a Ready index Stale and evicts it from the read
	// cache. Invalidating a dataset that is not Ready is a no-op.
	Invalidate(ctx context.Context, datasetID uuid.UUID) error
}

// IndexServiceConfig carries the orchestrator's resource limits.
type IndexServiceConfig struct {
	ColumnWorkers int
	StageTimeout  time.Duration
	QueryTimeout  time.Duration
	CacheSize     int
	Defaults      models.IndexBuildOptions
}

type indexService struct {
	datasets repositories.DatasetRepository
	indexes  repositories.IndexRepository
	engines  tabular.EngineFactory
	cfg      IndexServiceConfig
	logger   *zap.Logger

	// flights coalesces concurrent builds per dataset id.
	flights singleflight.Group

	// statusMu guards the read-check-write of build-status transitions.
	statusMu sync.Mutex

	cache *lru.Cache[uuid.UUID, *models.DatasetIndex]
}

// NewIndexService creates the index build orchestrator.
func NewIndexService(
	datasets repositories.DatasetRepository,
	indexes repositories.IndexRepository,
	engines tabular.EngineFactory,
	cfg IndexServiceConfig,
	logger *zap.Logger,
) (IndexService, error) {
	if cfg.ColumnWorkers < 1 {
		cfg.ColumnWorkers = 1
	}
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 128
	}
	if cfg.Defaults == (models.IndexBuildOptions{}) {
		cfg.Defaults = models.DefaultBuildOptions()
	}

	cache, err := lru.New[uuid.UUID, *models.DatasetIndex](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create index cache: %w", err)
	}

	return &indexService{
		datasets: datasets,
		indexes:  indexes,
		engines:  engines,
		cfg:      cfg,
		logger:   logger.Named("index-service"),
		cache:    cache,
	}, nil
}

var _ IndexService = (*indexService)(nil)

func (s *indexService) BuildIndex(ctx context.Context, datasetID uuid.UUID, opts models.IndexBuildOptions) (*models.DatasetIndex, error) {
	if opts == (models.IndexBuildOptions{}) {
		opts = s.cfg.Defaults
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	result, err, _ := s.flights.Do(datasetID.String(), func() (interface{}, error) {
		return s.build(ctx, datasetID, opts)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.DatasetIndex), nil
}

func (s *indexService) GetIndex(ctx context.Context, datasetID uuid.UUID) (*models.DatasetIndex, error) {
	if idx, ok := s.cache.Get(datasetID); ok {
		return idx, nil
	}
	idx, err := s.indexes.GetIndex(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	// Only a current Ready index is worth caching; Stale and mid-rebuild
	// reads always go to the store.
	if rec, rerr := s.indexes.GetBuildRecord(ctx, datasetID); rerr == nil && rec.Status == models.StatusReady {
		s.cache.Add(datasetID, idx)
	}
	return idx, nil
}

func (s *indexService) GetStatus(ctx context.Context, datasetID uuid.UUID) (*models.BuildRecord, error) {
	if _, err := s.datasets.Get(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.indexes.GetBuildRecord(ctx, datasetID)
}

func (s *indexService) Invalidate(ctx context.Context, datasetID uuid.UUID) error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	s.cache.Remove(datasetID)

	rec, err := s.indexes.GetBuildRecord(ctx, datasetID)
	if err != nil {
		return err
	}
	if !models.CanTransition(rec.Status, models.StatusStale) {
		return nil
	}
	rec.Status = models.StatusStale
	return s.indexes.UpsertBuildRecord(ctx, rec)
}

// transitionToBuilding atomically moves the dataset into Building, rejecting
// datasets that are already mid-build.
func (s *indexService) transitionToBuilding(ctx context.Context, datasetID uuid.UUID) error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	rec, err := s.indexes.GetBuildRecord(ctx, datasetID)
	if err != nil {
		return err
	}
	if rec.Status == models.StatusBuilding {
		return apperrors.ErrBuildInProgress
	}
	if !models.CanTransition(rec.Status, models.StatusBuilding) {
		return fmt.Errorf("%w: cannot start build from status %s", apperrors.ErrConflict, rec.Status)
	}

	now := time.Now().UTC()
	rec.Status = models.StatusBuilding
	rec.Error = ""
	rec.StartedAt = &now
	rec.FinishedAt = nil
	return s.indexes.UpsertBuildRecord(ctx, rec)
}

func (s *indexService) finishBuild(datasetID uuid.UUID, status models.BuildStatus, idx *models.DatasetIndex, buildErr error) {
	// Status writes survive request cancellation; a cancelled build must
	// still land in Error, never stay Building.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	now := time.Now().UTC()
	rec := &models.BuildRecord{
		DatasetID:  datasetID,
		Status:     status,
		FinishedAt: &now,
	}
	if buildErr != nil {
		rec.Error = buildErr.Error()
	}
	if prev, err := s.indexes.GetBuildRecord(ctx, datasetID); err == nil {
		rec.StartedAt = prev.StartedAt
	}
	if err := s.indexes.UpsertBuildRecord(ctx, rec); err != nil {
		s.logger.Error("failed to persist build status",
			zap.String("dataset_id", datasetID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}

	// Caching happens under statusMu so an Invalidate cannot slip between the
	// Ready transition and the cache write and leave a stale index cached.
	if status == models.StatusReady && idx != nil {
		s.cache.Add(datasetID, idx)
	}
}

// build runs the pipeline: resolve, sample, profile per column, then the
// cross-column stages, then persist. Per-column failures are fatal;
// cross-column stage failures degrade the index and land in Notes.
func (s *indexService) build(ctx context.Context, datasetID uuid.UUID, opts models.IndexBuildOptions) (*models.DatasetIndex, error) {
	logger := s.logger.With(zap.String("dataset_id", datasetID.String()))

	ds, err := s.datasets.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	if err := s.transitionToBuilding(ctx, datasetID); err != nil {
		return nil, err
	}

	start := time.Now()
	idx, err := s.runPipeline(ctx, ds, opts, logger)
	if err != nil {
		logger.Error("index build failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		s.finishBuild(datasetID, models.StatusError, nil, err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBuildFailed, err)
	}

	if err := s.indexes.SaveIndex(ctx, idx); err != nil {
		s.finishBuild(datasetID, models.StatusError, nil, err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBuildFailed, err)
	}
	s.finishBuild(datasetID, models.StatusReady, idx, nil)

	logger.Info("index built",
		zap.Int("columns", len(idx.Columns)),
		zap.Int("edges", len(idx.Edges)),
		zap.Int("key_candidates", len(idx.KeyCandidates)),
		zap.Int64("sampled_rows", idx.SampledRows),
		zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}

func (s *indexService) runPipeline(ctx context.Context, ds *models.Dataset, opts models.IndexBuildOptions, logger *zap.Logger) (*models.DatasetIndex, error) {
	engine, err := s.engines.NewEngine(ctx, ds, tabular.Options{QueryTimeout: s.cfg.QueryTimeout})
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer engine.Close()

	idx := &models.DatasetIndex{
		DatasetID: ds.ID,
		BuiltAt:   time.Now().UTC(),
		Limits:    opts,
	}

	var columnNames []string
	err = runStage(ctx, logger, "discover", s.cfg.StageTimeout, func(ctx context.Context) error {
		total, err := engine.RowCount(ctx)
		if err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		idx.TotalRows = total

		columnNames, err = engine.Columns(ctx)
		if err != nil {
			return fmt.Errorf("list columns: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// An empty dataset yields a valid, Ready index with no columns.
	if idx.TotalRows == 0 || len(columnNames) == 0 {
		return idx, nil
	}

	idx.SampledRows = idx.TotalRows
	if int64(opts.SampleRows) < idx.SampledRows {
		idx.SampledRows = int64(opts.SampleRows)
	}

	profiled, err := s.profileColumns(ctx, engine, columnNames, opts, logger)
	if err != nil {
		return nil, err
	}

	// Tagging is pure and cheap; it runs at the barrier so the association
	// engine can exclude identifier-tagged columns.
	TagColumns(profiled)
	idx.Tags = TagDataset(profiled)

	s.runCrossColumnStages(ctx, profiled, opts, idx, logger)

	idx.Columns = make([]models.ColumnProfile, len(profiled))
	for i, p := range profiled {
		idx.Columns[i] = p.Profile
	}
	return idx, nil
}

// profileColumns samples and profiles every column with bounded parallelism.
// Any column failure aborts the build.
func (s *indexService) profileColumns(ctx context.Context, engine tabular.Engine, columnNames []string, opts models.IndexBuildOptions, logger *zap.Logger) ([]ProfiledColumn, error) {
	profiled := make([]ProfiledColumn, len(columnNames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ColumnWorkers)
	for i, name := range columnNames {
		g.Go(func() error {
			values, err := engine.SampleColumn(gctx, name, opts.SampleRows)
			if err != nil {
				return fmt.Errorf("sample column %q: %w", name, err)
			}
			profiled[i] = ProfiledColumn{
				Profile: ComputeColumnProfile(name, values, opts),
				Values:  values,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("columns profiled", zap.Int("count", len(profiled)))
	return profiled, nil
}

// runCrossColumnStages runs key detection and the association engine
// concurrently. Both are non-essential: a failure or timeout leaves its
// section empty and adds a degradation note.
func (s *indexService) runCrossColumnStages(ctx context.Context, profiled []ProfiledColumn, opts models.IndexBuildOptions, idx *models.DatasetIndex, logger *zap.Logger) {
	var wg sync.WaitGroup
	var mu sync.Mutex

	note := func(stage string, err error) {
		perr := &apperrors.PartialError{Stage: stage, Cause: err}
		mu.Lock()
		idx.Notes = append(idx.Notes, perr.Error())
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		err := runStage(ctx, logger, "key-detection", s.cfg.StageTimeout, func(ctx context.Context) error {
			candidates, err := DetectKeyCandidates(ctx, profiled)
			if err != nil {
				return err
			}
			mu.Lock()
			idx.KeyCandidates = candidates
			mu.Unlock()
			return nil
		})
		if err != nil {
			note("key-detection", err)
		}
	}()
	go func() {
		defer wg.Done()
		err := runStage(ctx, logger, "association", s.cfg.StageTimeout, func(ctx context.Context) error {
			edges, err := ComputeAssociations(ctx, profiled, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			idx.Edges = edges
			mu.Unlock()
			return nil
		})
		if err != nil {
			note("association", err)
		}
	}()
	wg.Wait()
}
