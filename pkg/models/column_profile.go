package models

import "time"

// ColumnType is the semantic type inferred for a column from its sample.
type ColumnType string

const (
	ColumnTypeNumber   ColumnType = "number"
	ColumnTypeDate     ColumnType = "date"
	ColumnTypeBoolean  ColumnType = "boolean"
	ColumnTypeCategory ColumnType = "category"
	ColumnTypeString   ColumnType = "string"
)

// ColumnProfile holds everything the engine learned about one column from a
// single bounded sample draw. Immutable once the build that produced it
// completes; every statistic inside derives from the same sample.
type ColumnProfile struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`

	// NullRate is the fraction of sampled values that were null/empty (0.0 - 1.0).
	NullRate float64 `json:"null_rate"`

	// DistinctCount is the number of unique non-null values in the sample.
	DistinctCount int64 `json:"distinct_count"`

	// SampleSize is the number of rows actually drawn for this column.
	SampleSize int64 `json:"sample_size"`

	Numeric *NumericStats `json:"numeric,omitempty"`
	Date    *DateStats    `json:"date,omitempty"`
	String  *StringStats  `json:"string,omitempty"`

	// TopValues are the most frequent sampled values, frequency descending,
	// ties broken by first-seen order.
	TopValues []TopValue `json:"top_values,omitempty"`

	Tags []ColumnTag `json:"tags,omitempty"`
}

// Cardinality returns distinct_count / sample_size (0 when the sample is empty).
func (p *ColumnProfile) Cardinality() float64 {
	if p.SampleSize == 0 {
		return 0
	}
	return float64(p.DistinctCount) / float64(p.SampleSize)
}

// HasTag reports whether the profile carries a tag with the given name.
func (p *ColumnProfile) HasTag(name string) bool {
	for _, t := range p.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// TopValue is one entry of a column's most-frequent-values list.
type TopValue struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// NumericStats holds sample statistics for Number-typed columns.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`

	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`

	// Histogram is ordered by bin lower bound.
	Histogram []HistogramBin `json:"histogram,omitempty"`

	SampleSize int64 `json:"sample_size"`
}

// HistogramBin is one equal-width bin of a numeric distribution.
type HistogramBin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int64   `json:"count"`
}

// DateGranularity is the coarsest unit that explains all sampled dates.
type DateGranularity string

const (
	GranularityDay   DateGranularity = "day"
	GranularityMonth DateGranularity = "month"
	GranularityYear  DateGranularity = "year"
)

// DateStats holds sample statistics for Date-typed columns.
type DateStats struct {
	Min           time.Time       `json:"min"`
	Max           time.Time       `json:"max"`
	Granularity   DateGranularity `json:"granularity"`
	DistinctCount int64           `json:"distinct_count"`
}

// StringStats holds sample statistics for String- and Category-typed columns.
type StringStats struct {
	AvgLength float64 `json:"avg_length"`
	MaxLength int64   `json:"max_length"`

	// Patterns are fixed-format tokens detected in the sample, if pattern
	// detection was enabled for the build.
	Patterns []DetectedPattern `json:"patterns,omitempty"`

	SampleSize int64 `json:"sample_size"`
}

// DetectedPattern is a regex pattern match result over sample values.
// Patterns are matched against column data, not column names.
type DetectedPattern struct {
	Name      string  `json:"name"`
	MatchRate float64 `json:"match_rate"`
}

// Pattern names recognized by string pattern detection.
const (
	PatternUUID        = "uuid"
	PatternEmail       = "email"
	PatternURL         = "url"
	PatternISO4217     = "iso4217"
	PatternUnixSeconds = "unix_seconds"
	PatternUnixMillis  = "unix_millis"
)

// ColumnTag is a heuristic role label attached to a column.
type ColumnTag struct {
	Name   string  `json:"name"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Column tag names assigned by the semantic tagger.
const (
	TagIdentifier = "identifier"
	TagTimestamp  = "timestamp"
	TagAmount     = "amount"
	TagRate       = "rate"
	TagCategory   = "category"
	TagFreeText   = "freeText"
	TagMeasure    = "measure"
)

// Tag sources distinguish how a tag was derived.
const (
	TagSourceType      = "type"
	TagSourceName      = "name"
	TagSourceStatistic = "statistic"
	TagSourceDomain    = "domain"
)
