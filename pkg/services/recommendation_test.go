package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightlabs/insight-engine/pkg/models"
)

func indexFromColumns(t *testing.T, columns ...ProfiledColumn) *models.DatasetIndex {
	t.Helper()
	TagColumns(columns)
	idx := &models.DatasetIndex{Limits: models.DefaultBuildOptions()}
	for _, c := range columns {
		idx.Columns = append(idx.Columns, c.Profile)
	}
	return idx
}

func dateValues(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("2024-01-%02d", i%28+1)
	}
	return out
}

func measureValues(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%d.25", i*13%997)
	}
	return out
}

// ============================================================================
// Scenario Tests
// ============================================================================

func TestDateAndRevenueProduceLineAboveHistogram(t *testing.T) {
	idx := indexFromColumns(t,
		profiledColumn(t, "created_at", dateValues(100)),
		profiledColumn(t, "revenue", measureValues(100)),
	)

	recs := GenerateRecommendations(idx)
	require.NotEmpty(t, recs)

	var lines, histograms []int
	for i, r := range recs {
		switch r.ChartType {
		case models.ChartTypeLine:
			lines = append(lines, i)
			assert.Equal(t, "created_at", r.Query.XColumn)
			assert.Equal(t, []string{"revenue"}, r.Query.YColumns)
		case models.ChartTypeHistogram:
			histograms = append(histograms, i)
		}
	}
	require.Len(t, lines, 1)
	require.NotEmpty(t, histograms)
	assert.Less(t, lines[0], histograms[0], "line must rank above histogram")
}

func TestEmptyIndexNoRecommendations(t *testing.T) {
	assert.Empty(t, GenerateRecommendations(&models.DatasetIndex{}))
	assert.Empty(t, GenerateRecommendations(nil))
}

func TestIdentifierColumnsNeverCharted(t *testing.T) {
	idx := indexFromColumns(t,
		sequenceColumn(t, "user_id", 100),
		profiledColumn(t, "created_at", dateValues(100)),
		profiledColumn(t, "amount", measureValues(100)),
	)

	for _, r := range GenerateRecommendations(idx) {
		assert.NotEqual(t, "user_id", r.Query.XColumn)
		assert.NotContains(t, r.Query.YColumns, "user_id")
	}
}

// ============================================================================
// Candidate Generation Tests
// ============================================================================

func TestCreatedTimeColumnWinsTieBreak(t *testing.T) {
	idx := indexFromColumns(t,
		profiledColumn(t, "updated_at", dateValues(50)),
		profiledColumn(t, "created_at", dateValues(50)),
		profiledColumn(t, "revenue", measureValues(50)),
	)

	recs := GenerateRecommendations(idx)
	for _, r := range recs {
		if r.ChartType == models.ChartTypeLine {
			assert.Equal(t, "created_at", r.Query.XColumn)
		}
	}
}

func TestBarChartsForLowCardinalityCategories(t *testing.T) {
	idx := indexFromColumns(t,
		profiledColumn(t, "region", repeat([]string{"north", "south", "east", "west"}, 25)),
		profiledColumn(t, "sales", measureValues(100)),
	)

	recs := GenerateRecommendations(idx)
	var bars int
	for _, r := range recs {
		if r.ChartType == models.ChartTypeBar {
			bars++
			assert.Equal(t, "region", r.Query.XColumn)
			assert.Equal(t, models.AggregationSum, r.Query.Aggregation)
		}
	}
	assert.Equal(t, 1, bars)
}

func TestBarChartCap(t *testing.T) {
	columns := []ProfiledColumn{}
	for i := 0; i < 5; i++ {
		columns = append(columns, profiledColumn(t,
			fmt.Sprintf("cat%d", i), repeat([]string{"a", "b", "c"}, 20)))
	}
	for i := 0; i < 3; i++ {
		columns = append(columns, profiledColumn(t, fmt.Sprintf("m%d", i), measureValues(60)))
	}
	idx := indexFromColumns(t, columns...)

	var bars int
	for _, r := range GenerateRecommendations(idx) {
		if r.ChartType == models.ChartTypeBar {
			bars++
		}
	}
	assert.LessOrEqual(t, bars, maxBarCharts)
}

func TestScatterPrefersScoreAndBalanceColumns(t *testing.T) {
	idx := indexFromColumns(t,
		profiledColumn(t, "quantity", measureValues(80)),
		profiledColumn(t, "account_balance", measureValues(80)),
		profiledColumn(t, "risk_score", measureValues(80)),
	)

	var scatters []models.ChartRecommendation
	for _, r := range GenerateRecommendations(idx) {
		if r.ChartType == models.ChartTypeScatter {
			scatters = append(scatters, r)
		}
	}
	require.NotEmpty(t, scatters)
	assert.LessOrEqual(t, len(scatters), maxScatterPairs)
	// The score column leads every retained pair.
	assert.Equal(t, "risk_score", scatters[0].Query.XColumn)
	assert.Equal(t, []string{"account_balance"}, scatters[0].Query.YColumns)
}

// ============================================================================
// Ranking Tests
// ============================================================================

func TestRecommendationsSortedAndCapped(t *testing.T) {
	columns := []ProfiledColumn{
		profiledColumn(t, "created_at", dateValues(100)),
		profiledColumn(t, "category", repeat([]string{"a", "b", "c", "d"}, 25)),
		profiledColumn(t, "segment", repeat([]string{"x", "y"}, 50)),
	}
	for i := 0; i < 4; i++ {
		columns = append(columns, profiledColumn(t, fmt.Sprintf("metric%d", i), measureValues(100)))
	}
	idx := indexFromColumns(t, columns...)

	recs := GenerateRecommendations(idx)
	require.NotEmpty(t, recs)
	assert.LessOrEqual(t, len(recs), models.MaxRecommendations)

	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		assert.True(t,
			prev.Score > cur.Score ||
				(prev.Score == cur.Score && prev.ImpactScore >= cur.ImpactScore),
			"recommendations out of order at %d", i)
	}
}

func TestRecommendationsAreDeterministic(t *testing.T) {
	build := func() []models.ChartRecommendation {
		idx := indexFromColumns(t,
			profiledColumn(t, "created_at", dateValues(60)),
			profiledColumn(t, "status", repeat([]string{"ok", "fail"}, 30)),
			profiledColumn(t, "latency", measureValues(60)),
		)
		return GenerateRecommendations(idx)
	}
	assert.Equal(t, build(), build())
}

func TestEveryRecommendationCarriesCriteria(t *testing.T) {
	idx := indexFromColumns(t,
		profiledColumn(t, "created_at", dateValues(50)),
		profiledColumn(t, "amount", measureValues(50)),
	)

	for _, r := range GenerateRecommendations(idx) {
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.Title)
		assert.NotEmpty(t, r.Rationale)
		assert.NotEmpty(t, r.Criteria)
		assert.Greater(t, r.Score, 0.0)
	}
}
