package models

// ChartType identifies the visual form of a recommendation.
type ChartType string

const (
	ChartTypeLine      ChartType = "line"
	ChartTypeBar       ChartType = "bar"
	ChartTypeScatter   ChartType = "scatter"
	ChartTypeHistogram ChartType = "histogram"
)

// Aggregation names the aggregate applied to a chart's measures.
type Aggregation string

const (
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationCount Aggregation = "count"
	AggregationNone  Aggregation = "none"
)

// ChartQuery is the parameterized query spec behind a recommendation.
type ChartQuery struct {
	XColumn      string      `json:"x_column,omitempty"`
	YColumns     []string    `json:"y_columns,omitempty"`
	SeriesColumn string      `json:"series_column,omitempty"`
	Aggregation  Aggregation `json:"aggregation,omitempty"`
	BinCount     int         `json:"bin_count,omitempty"`
}

// ChartRecommendation is a ranked, parameterized chart specification derived
// from column roles and scores.
type ChartRecommendation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Rationale string     `json:"rationale"`
	ChartType ChartType  `json:"chart_type"`
	Query     ChartQuery `json:"query"`

	// Score drives the primary ranking; ImpactScore breaks ties.
	Score       float64 `json:"score"`
	ImpactScore float64 `json:"impact_score"`

	// Criteria is the trail of ranking criteria that contributed to the score.
	Criteria []string `json:"criteria,omitempty"`
}

// MaxRecommendations caps the recommendation list length.
const MaxRecommendations = 12
