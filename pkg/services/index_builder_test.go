package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightlabs/insight-engine/pkg/adapters/tabular"
	"github.com/insightlabs/insight-engine/pkg/apperrors"
	"github.com/insightlabs/insight-engine/pkg/models"
)

// mockDatasetRepo implements repositories.DatasetRepository for testing.
type mockDatasetRepo struct {
	datasets map[uuid.UUID]*models.Dataset
}

func (m *mockDatasetRepo) Create(_ context.Context, ds *models.Dataset) error {
	m.datasets[ds.ID] = ds
	return nil
}

func (m *mockDatasetRepo) Get(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	ds, ok := m.datasets[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ds, nil
}

func (m *mockDatasetRepo) List(_ context.Context) ([]*models.Dataset, error) {
	var out []*models.Dataset
	for _, ds := range m.datasets {
		out = append(out, ds)
	}
	return out, nil
}

func (m *mockDatasetRepo) UpdateRowCount(_ context.Context, id uuid.UUID, rowCount int64) error {
	ds, ok := m.datasets[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	ds.RowCount = rowCount
	return nil
}

func (m *mockDatasetRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.datasets, id)
	return nil
}

// mockIndexRepo implements repositories.IndexRepository in memory.
type mockIndexRepo struct {
	mu      sync.Mutex
	indexes map[uuid.UUID]*models.DatasetIndex
	records map[uuid.UUID]*models.BuildRecord
	saveErr error

	// onUpsert, when set, runs after each build-record write.
	onUpsert func(rec *models.BuildRecord)
}

func newMockIndexRepo() *mockIndexRepo {
	return &mockIndexRepo{
		indexes: make(map[uuid.UUID]*models.DatasetIndex),
		records: make(map[uuid.UUID]*models.BuildRecord),
	}
}

func (m *mockIndexRepo) SaveIndex(_ context.Context, idx *models.DatasetIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.indexes[idx.DatasetID] = idx
	return nil
}

func (m *mockIndexRepo) GetIndex(_ context.Context, datasetID uuid.UUID) (*models.DatasetIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[datasetID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return idx, nil
}

func (m *mockIndexRepo) GetBuildRecord(_ context.Context, datasetID uuid.UUID) (*models.BuildRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[datasetID]
	if !ok {
		return &models.BuildRecord{DatasetID: datasetID, Status: models.StatusNotBuilt}, nil
	}
	clone := *rec
	return &clone, nil
}

func (m *mockIndexRepo) UpsertBuildRecord(_ context.Context, rec *models.BuildRecord) error {
	m.mu.Lock()
	clone := *rec
	m.records[rec.DatasetID] = &clone
	hook := m.onUpsert
	m.mu.Unlock()
	if hook != nil {
		hook(rec)
	}
	return nil
}

func (m *mockIndexRepo) DeleteIndex(_ context.Context, datasetID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.indexes, datasetID)
	return nil
}

func (m *mockIndexRepo) status(datasetID uuid.UUID) models.BuildStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[datasetID]
	if !ok {
		return models.StatusNotBuilt
	}
	return rec.Status
}

// mockEngine implements tabular.Engine over fixed in-memory columns.
type mockEngine struct {
	columns   []string
	data      map[string][]string
	rowCount  int64
	sampleErr error
	closed    bool
}

func (m *mockEngine) Columns(_ context.Context) ([]string, error) { return m.columns, nil }
func (m *mockEngine) RowCount(_ context.Context) (int64, error)   { return m.rowCount, nil }
func (m *mockEngine) Close() error                                { m.closed = true; return nil }

func (m *mockEngine) SampleColumn(_ context.Context, column string, limit int) ([]string, error) {
	if m.sampleErr != nil {
		return nil, m.sampleErr
	}
	values := m.data[column]
	if len(values) > limit {
		values = values[:limit]
	}
	return values, nil
}

// mockFactory always hands out the same engine.
type mockFactory struct {
	engine *mockEngine
	err    error
}

func (m *mockFactory) NewEngine(_ context.Context, _ *models.Dataset, _ tabular.Options) (tabular.Engine, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.engine, nil
}

// ============================================================================
// Test Fixtures
// ============================================================================

type builderFixture struct {
	svc       IndexService
	datasets  *mockDatasetRepo
	indexes   *mockIndexRepo
	engine    *mockEngine
	datasetID uuid.UUID
}

func newBuilderFixture(t *testing.T, engine *mockEngine) *builderFixture {
	t.Helper()
	return newBuilderFixtureWithConfig(t, engine, IndexServiceConfig{
		ColumnWorkers: 2,
		StageTimeout:  time.Minute,
		CacheSize:     8,
	})
}

func newBuilderFixtureWithConfig(t *testing.T, engine *mockEngine, cfg IndexServiceConfig) *builderFixture {
	t.Helper()

	datasetID := uuid.New()
	datasets := &mockDatasetRepo{datasets: map[uuid.UUID]*models.Dataset{
		datasetID: {
			ID:         datasetID,
			Name:       "orders",
			SourceType: models.SourceTypeSQLite,
			TableName:  "orders",
		},
	}}
	indexes := newMockIndexRepo()

	svc, err := NewIndexService(datasets, indexes, &mockFactory{engine: engine}, cfg, zap.NewNop())
	require.NoError(t, err)

	return &builderFixture{
		svc:       svc,
		datasets:  datasets,
		indexes:   indexes,
		engine:    engine,
		datasetID: datasetID,
	}
}

func ordersEngine(rows int) *mockEngine {
	created := make([]string, rows)
	amount := make([]string, rows)
	status := make([]string, rows)
	for i := 0; i < rows; i++ {
		created[i] = fmt.Sprintf("2024-%02d-%02d", i%12+1, i%28+1)
		amount[i] = fmt.Sprintf("%d.75", i*7%509)
		if i%2 == 0 {
			status[i] = "open"
		} else {
			status[i] = "closed"
		}
	}
	return &mockEngine{
		columns:  []string{"created_at", "amount", "status"},
		data:     map[string][]string{"created_at": created, "amount": amount, "status": status},
		rowCount: int64(rows),
	}
}

// ============================================================================
// Build Pipeline Tests
// ============================================================================

func TestBuildIndexHappyPath(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(200))

	idx, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, f.datasetID, idx.DatasetID)
	assert.Equal(t, int64(200), idx.TotalRows)
	assert.Equal(t, int64(200), idx.SampledRows)
	require.Len(t, idx.Columns, 3)

	// Columns keep source order and carry inferred types.
	assert.Equal(t, "created_at", idx.Columns[0].Name)
	assert.Equal(t, models.ColumnTypeDate, idx.Columns[0].Type)
	assert.Equal(t, models.ColumnTypeNumber, idx.Columns[1].Type)
	assert.Equal(t, models.ColumnTypeCategory, idx.Columns[2].Type)

	assert.NotEmpty(t, idx.Columns[0].Tags, "tagging must run before assembly")
	assert.Empty(t, idx.Notes)

	assert.Equal(t, models.StatusReady, f.indexes.status(f.datasetID))
	assert.True(t, f.engine.closed)

	stored, err := f.indexes.GetIndex(context.Background(), f.datasetID)
	require.NoError(t, err)
	assert.Equal(t, idx, stored)
}

func TestBuildIndexRecordsLimitsUsed(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(50))

	opts := models.DefaultBuildOptions()
	opts.SampleRows = 2000
	opts.TopKEdgesPerColumn = 3

	idx, err := f.svc.BuildIndex(context.Background(), f.datasetID, opts)
	require.NoError(t, err)
	assert.Equal(t, opts, idx.Limits)
	assert.Equal(t, int64(50), idx.SampledRows, "sample bounded by total rows")
}

func TestBuildIndexEmptyDataset(t *testing.T) {
	f := newBuilderFixture(t, &mockEngine{rowCount: 0})

	idx, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)

	assert.Empty(t, idx.Columns)
	assert.Empty(t, idx.Edges)
	assert.Empty(t, idx.KeyCandidates)
	assert.Equal(t, models.StatusReady, f.indexes.status(f.datasetID))
	assert.Empty(t, GenerateRecommendations(idx))
}

func TestBuildIndexValidationRejectedBeforeIO(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(10))

	opts := models.DefaultBuildOptions()
	opts.SampleRows = 5 // below the documented minimum

	_, err := f.svc.BuildIndex(context.Background(), f.datasetID, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "sampleRows", verr.Field)

	// No side effects: status untouched, engine never opened.
	assert.Equal(t, models.StatusNotBuilt, f.indexes.status(f.datasetID))
	assert.False(t, f.engine.closed)
}

func TestBuildIndexDatasetNotFound(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(10))

	_, err := f.svc.BuildIndex(context.Background(), uuid.New(), models.IndexBuildOptions{})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestBuildIndexSamplingFailureIsFatal(t *testing.T) {
	engine := ordersEngine(100)
	engine.sampleErr = errors.New("table vanished")
	f := newBuilderFixture(t, engine)

	_, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrBuildFailed))

	rec, rerr := f.indexes.GetBuildRecord(context.Background(), f.datasetID)
	require.NoError(t, rerr)
	assert.Equal(t, models.StatusError, rec.Status)
	assert.Contains(t, rec.Error, "table vanished")
	require.NotNil(t, rec.FinishedAt)
}

func TestBuildIndexRetryableAfterError(t *testing.T) {
	engine := ordersEngine(100)
	engine.sampleErr = errors.New("transient")
	f := newBuilderFixture(t, engine)

	_, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.Error(t, err)

	engine.sampleErr = nil
	idx, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)
	assert.Len(t, idx.Columns, 3)
	assert.Equal(t, models.StatusReady, f.indexes.status(f.datasetID))
}

func TestBuildIndexRejectsConcurrentBuild(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(10))

	// A record stuck in Building (say, from another replica) blocks a new build.
	require.NoError(t, f.indexes.UpsertBuildRecord(context.Background(), &models.BuildRecord{
		DatasetID: f.datasetID,
		Status:    models.StatusBuilding,
	}))

	_, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	assert.True(t, errors.Is(err, apperrors.ErrBuildInProgress))
}

// gatedEngine blocks RowCount until released, so a build can be held
// in flight while another caller arrives.
type gatedEngine struct {
	*mockEngine
	mu            sync.Mutex
	rowCountCalls int
	started       chan struct{}
	release       chan struct{}
}

func (g *gatedEngine) RowCount(ctx context.Context) (int64, error) {
	g.mu.Lock()
	g.rowCountCalls++
	g.mu.Unlock()

	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	return g.mockEngine.RowCount(ctx)
}

func (g *gatedEngine) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rowCountCalls
}

// countingFactory counts how many engines it hands out.
type countingFactory struct {
	mu     sync.Mutex
	opens  int
	engine tabular.Engine
}

func (c *countingFactory) NewEngine(_ context.Context, _ *models.Dataset, _ tabular.Options) (tabular.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	return c.engine, nil
}

func (c *countingFactory) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func TestBuildIndexCoalescesConcurrentCalls(t *testing.T) {
	engine := &gatedEngine{
		mockEngine: ordersEngine(50),
		started:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	factory := &countingFactory{engine: engine}

	datasetID := uuid.New()
	datasets := &mockDatasetRepo{datasets: map[uuid.UUID]*models.Dataset{
		datasetID: {ID: datasetID, Name: "orders", SourceType: models.SourceTypeSQLite, TableName: "orders"},
	}}
	indexes := newMockIndexRepo()

	svc, err := NewIndexService(datasets, indexes, factory, IndexServiceConfig{
		ColumnWorkers: 2,
		StageTimeout:  time.Minute,
		CacheSize:     8,
	}, zap.NewNop())
	require.NoError(t, err)

	type result struct {
		idx *models.DatasetIndex
		err error
	}
	results := make(chan result, 2)
	build := func() {
		idx, berr := svc.BuildIndex(context.Background(), datasetID, models.IndexBuildOptions{})
		results <- result{idx, berr}
	}

	go build()
	<-engine.started // first call is inside the engine scan

	go build()
	time.Sleep(50 * time.Millisecond) // let the second call join the in-flight build
	close(engine.release)

	first := <-results
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)

	// One scan, one engine, one shared result for both callers.
	assert.Same(t, first.idx, second.idx)
	assert.Equal(t, 1, factory.openCount())
	assert.Equal(t, 1, engine.calls())
}

func TestBuildIndexDegradedCrossColumnStages(t *testing.T) {
	// A stage timeout too small to finish key detection or association leaves
	// those sections empty and noted, while the build still lands Ready.
	f := newBuilderFixtureWithConfig(t, ordersEngine(100), IndexServiceConfig{
		ColumnWorkers: 2,
		StageTimeout:  time.Nanosecond,
		CacheSize:     8,
	})

	idx, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)

	assert.Empty(t, idx.KeyCandidates)
	assert.Empty(t, idx.Edges)
	require.Len(t, idx.Notes, 2)
	joined := strings.Join(idx.Notes, "\n")
	assert.Contains(t, joined, "key-detection")
	assert.Contains(t, joined, "association")

	// Per-column profiling is unaffected and the index is served as Ready.
	assert.Len(t, idx.Columns, 3)
	assert.Equal(t, models.StatusReady, f.indexes.status(f.datasetID))

	stored, err := f.svc.GetIndex(context.Background(), f.datasetID)
	require.NoError(t, err)
	assert.Equal(t, idx.Notes, stored.Notes)
}

func TestRebuildFromReady(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(50))

	_, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)

	idx, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)
	assert.Len(t, idx.Columns, 3)
	assert.Equal(t, models.StatusReady, f.indexes.status(f.datasetID))
}

func TestBuildIndexDeterministic(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(150))

	first, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)
	second, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, first.Edges, second.Edges)
	assert.Equal(t, first.KeyCandidates, second.KeyCandidates)
	assert.Equal(t, first.Tags, second.Tags)
}

// ============================================================================
// Read Path Tests
// ============================================================================

func TestGetIndexBeforeBuild(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(10))

	_, err := f.svc.GetIndex(context.Background(), f.datasetID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGetIndexServedFromCacheAfterBuild(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(50))

	built, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)

	// Wipe the store; the cache still serves the built index.
	require.NoError(t, f.indexes.DeleteIndex(context.Background(), f.datasetID))

	got, err := f.svc.GetIndex(context.Background(), f.datasetID)
	require.NoError(t, err)
	assert.Equal(t, built, got)
}

func TestGetStatusLifecycle(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(20))

	rec, err := f.svc.GetStatus(context.Background(), f.datasetID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotBuilt, rec.Status)

	_, err = f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)

	rec, err = f.svc.GetStatus(context.Background(), f.datasetID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, rec.Status)
	assert.NotNil(t, rec.StartedAt)
	assert.NotNil(t, rec.FinishedAt)
}

func TestGetStatusUnknownDataset(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(10))
	_, err := f.svc.GetStatus(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

// ============================================================================
// Invalidation Tests
// ============================================================================

func TestInvalidateMarksStale(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(50))

	_, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Invalidate(context.Background(), f.datasetID))
	assert.Equal(t, models.StatusStale, f.indexes.status(f.datasetID))

	// The stored index remains readable while stale.
	_, err = f.svc.GetIndex(context.Background(), f.datasetID)
	assert.NoError(t, err)

	// A stale dataset can be rebuilt.
	_, err = f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, f.indexes.status(f.datasetID))
}

func TestInvalidateDuringBuildCompletionEvictsCache(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(50))

	// Fire an invalidation the moment the build record turns Ready, racing
	// the build's own cache write.
	var wg sync.WaitGroup
	f.indexes.onUpsert = func(rec *models.BuildRecord) {
		if rec.Status != models.StatusReady {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.svc.Invalidate(context.Background(), f.datasetID)
		}()
	}

	_, err := f.svc.BuildIndex(context.Background(), f.datasetID, models.IndexBuildOptions{})
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, models.StatusStale, f.indexes.status(f.datasetID))

	// The stale index must not linger in the cache: with the store wiped,
	// the read path reports not found instead of serving it.
	require.NoError(t, f.indexes.DeleteIndex(context.Background(), f.datasetID))
	_, err = f.svc.GetIndex(context.Background(), f.datasetID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestInvalidateBeforeBuildIsNoop(t *testing.T) {
	f := newBuilderFixture(t, ordersEngine(10))

	require.NoError(t, f.svc.Invalidate(context.Background(), f.datasetID))
	assert.Equal(t, models.StatusNotBuilt, f.indexes.status(f.datasetID))
}
