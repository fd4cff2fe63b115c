package models

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/insightlabs/insight-engine/pkg/apperrors"
)

// KeyCandidate is a column set whose sampled values are unique enough to
// plausibly identify a row.
type KeyCandidate struct {
	Columns         []string `json:"columns"`
	UniquenessRatio float64  `json:"uniqueness_ratio"`
	IsComposite     bool     `json:"is_composite"`
}

// CorrelationMethod identifies the statistic used for an association edge.
type CorrelationMethod string

const (
	MethodPearson    CorrelationMethod = "pearson"
	MethodSpearman   CorrelationMethod = "spearman"
	MethodCramersV   CorrelationMethod = "cramers_v"
	MethodEtaSquared CorrelationMethod = "eta_squared"
	MethodMutualInfo CorrelationMethod = "mutual_info"
)

// Signed reports whether the method's coefficient carries a direction.
func (m CorrelationMethod) Signed() bool {
	return m == MethodPearson || m == MethodSpearman
}

// Strength labels for association edges.
type Strength string

const (
	StrengthLow    Strength = "low"
	StrengthMedium Strength = "medium"
	StrengthHigh   Strength = "high"
)

// StrengthFor maps an absolute coefficient to its label.
// Non-Pearson methods are normalized to [0,1] before labeling.
func StrengthFor(coefficient float64) Strength {
	abs := math.Abs(coefficient)
	switch {
	case abs < 0.2:
		return StrengthLow
	case abs < 0.5:
		return StrengthMedium
	default:
		return StrengthHigh
	}
}

// Direction labels for association edges.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNone     Direction = "none"
)

// DirectionFor derives the direction label from the coefficient sign.
// Unsigned methods always report none.
func DirectionFor(method CorrelationMethod, coefficient float64) Direction {
	if !method.Signed() {
		return DirectionNone
	}
	if coefficient < 0 {
		return DirectionNegative
	}
	return DirectionPositive
}

// Confidence labels for association edges.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ConfidenceFor derives the confidence label jointly from sample size and
// strength. Small samples never yield high confidence, and a strong signal
// on a modest sample is capped at medium.
func ConfidenceFor(sampleSize int64, strength Strength) Confidence {
	switch {
	case sampleSize < 30:
		return ConfidenceLow
	case sampleSize < 100:
		if strength == StrengthHigh {
			return ConfidenceMedium
		}
		return ConfidenceLow
	case strength == StrengthLow:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// CorrelationEdge is a scored, typed relationship between two columns.
// Coefficients are symmetric: the edge for (A,B) carries the same value as
// the edge for (B,A) would.
type CorrelationEdge struct {
	ColumnA     string            `json:"column_a"`
	ColumnB     string            `json:"column_b"`
	Method      CorrelationMethod `json:"method"`
	Coefficient float64           `json:"coefficient"`
	Strength    Strength          `json:"strength"`
	Direction   Direction         `json:"direction"`
	Confidence  Confidence        `json:"confidence"`
}

// DatasetTag is a heuristic label describing the dataset as a whole.
type DatasetTag struct {
	Name   string  `json:"name"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Bounds for IndexBuildOptions. Out-of-range values are a validation error,
// not silently clamped, except HistogramBins which is documented as clamped.
const (
	MinColumnsForCorrelation = 2
	MaxColumnsForCorrelation = 50
	MinTopKEdgesPerColumn    = 1
	MaxTopKEdgesPerColumn    = 20
	MinSampleRows            = 1000
	MaxSampleRows            = 100000

	MinHistogramBins = 5
	MaxHistogramBins = 50
)

// IndexBuildOptions bound the cost of a single index build.
type IndexBuildOptions struct {
	MaxColumnsForCorrelation int `json:"max_columns_for_correlation"`
	TopKEdgesPerColumn       int `json:"top_k_edges_per_column"`
	SampleRows               int `json:"sample_rows"`

	// HistogramBins is clamped into [MinHistogramBins, MaxHistogramBins]
	// rather than rejected; zero means the default.
	HistogramBins int `json:"histogram_bins"`

	IncludeStringPatterns bool `json:"include_string_patterns"`
	IncludeDistributions  bool `json:"include_distributions"`
}

// DefaultBuildOptions returns the engine defaults.
func DefaultBuildOptions() IndexBuildOptions {
	return IndexBuildOptions{
		MaxColumnsForCorrelation: 25,
		TopKEdgesPerColumn:       5,
		SampleRows:               10000,
		HistogramBins:            20,
		IncludeStringPatterns:    true,
		IncludeDistributions:     true,
	}
}

// Validate checks every option against its documented bounds.
// It returns the first violation as a ValidationError and performs no I/O.
func (o *IndexBuildOptions) Validate() error {
	if o.MaxColumnsForCorrelation < MinColumnsForCorrelation || o.MaxColumnsForCorrelation > MaxColumnsForCorrelation {
		return apperrors.NewValidationError("maxColumnsForCorrelation",
			"must be between 2 and 50")
	}
	if o.TopKEdgesPerColumn < MinTopKEdgesPerColumn || o.TopKEdgesPerColumn > MaxTopKEdgesPerColumn {
		return apperrors.NewValidationError("topKEdgesPerColumn",
			"must be between 1 and 20")
	}
	if o.SampleRows < MinSampleRows || o.SampleRows > MaxSampleRows {
		return apperrors.NewValidationError("sampleRows",
			"must be between 1000 and 100000")
	}
	return nil
}

// EffectiveHistogramBins applies the documented clamp.
func (o *IndexBuildOptions) EffectiveHistogramBins() int {
	bins := o.HistogramBins
	if bins == 0 {
		bins = DefaultBuildOptions().HistogramBins
	}
	if bins < MinHistogramBins {
		return MinHistogramBins
	}
	if bins > MaxHistogramBins {
		return MaxHistogramBins
	}
	return bins
}

// DatasetIndex is the composite statistical/semantic index for one dataset.
// It is rebuilt wholesale and read-only once Ready.
type DatasetIndex struct {
	DatasetID uuid.UUID `json:"dataset_id"`
	BuiltAt   time.Time `json:"built_at"`

	// Limits records the options actually used for this build.
	Limits IndexBuildOptions `json:"limits"`

	TotalRows   int64 `json:"total_rows"`
	SampledRows int64 `json:"sampled_rows"`

	// Columns are ordered as they appear in the source.
	Columns []ColumnProfile `json:"columns"`

	KeyCandidates []KeyCandidate    `json:"key_candidates,omitempty"`
	Edges         []CorrelationEdge `json:"edges,omitempty"`
	Tags          []DatasetTag      `json:"tags,omitempty"`

	// Notes record degraded sections (non-fatal stage failures).
	Notes []string `json:"notes,omitempty"`
}

// Column returns the profile with the given name, or nil.
func (idx *DatasetIndex) Column(name string) *ColumnProfile {
	for i := range idx.Columns {
		if idx.Columns[i].Name == name {
			return &idx.Columns[i]
		}
	}
	return nil
}

// BuildStatus is the index lifecycle state.
type BuildStatus string

const (
	StatusNotBuilt BuildStatus = "not_built"
	StatusBuilding BuildStatus = "building"
	StatusReady    BuildStatus = "ready"
	StatusStale    BuildStatus = "stale"
	StatusError    BuildStatus = "error"
)

// validTransitions encodes the build status state machine.
var validTransitions = map[BuildStatus][]BuildStatus{
	StatusNotBuilt: {StatusBuilding},
	StatusBuilding: {StatusReady, StatusError},
	StatusReady:    {StatusBuilding, StatusStale},
	StatusStale:    {StatusBuilding},
	StatusError:    {StatusBuilding},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to BuildStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BuildRecord is the persisted build-status record for a dataset.
type BuildRecord struct {
	DatasetID  uuid.UUID   `json:"dataset_id"`
	Status     BuildStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}
