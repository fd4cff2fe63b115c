package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/insightlabs/insight-engine/pkg/models"
)

// Chart-type base scores. Order encodes how much insight each form usually
// carries: a trend over time beats a grouped comparison beats a relationship
// plot beats a plain distribution.
const (
	lineBaseScore      = 0.9
	barBaseScore       = 0.8
	scatterBaseScore   = 0.7
	histogramBaseScore = 0.6
)

// Candidate caps per chart type.
const (
	maxLineMeasures    = 2
	maxBarCharts       = 6
	maxBarMeasures     = 2
	maxHistograms      = 2
	maxScatterPairs    = 2
	maxScatterMeasures = 3
)

// lowCardinalityLimit bounds category axes and series columns.
const lowCardinalityLimit = 20

// columnRoles is the role split the scorer works from.
type columnRoles struct {
	time       []models.ColumnProfile
	measures   []models.ColumnProfile
	categories []models.ColumnProfile
}

// GenerateRecommendations derives a ranked chart list from a built index.
// It is a pure function of the index: identical input yields an identical
// list. Output is sorted by score, then impact score, then generation order,
// and capped at MaxRecommendations.
func GenerateRecommendations(idx *models.DatasetIndex) []models.ChartRecommendation {
	if idx == nil || len(idx.Columns) == 0 {
		return nil
	}

	roles := detectRoles(idx.Columns)

	var recs []models.ChartRecommendation
	recs = append(recs, lineCandidates(roles)...)
	recs = append(recs, barCandidates(roles)...)
	recs = append(recs, histogramCandidates(roles, idx.Limits.EffectiveHistogramBins())...)
	recs = append(recs, scatterCandidates(roles)...)

	// Stable sort preserves generation order as the final tie-break.
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ImpactScore > recs[j].ImpactScore
	})

	if len(recs) > models.MaxRecommendations {
		recs = recs[:models.MaxRecommendations]
	}
	return recs
}

// detectRoles splits columns into chartable roles. Identifier and rate
// columns never chart as measures; near-unique strings are identifiers even
// without a tag.
func detectRoles(columns []models.ColumnProfile) columnRoles {
	var roles columnRoles
	for _, col := range columns {
		switch {
		case col.Type == models.ColumnTypeDate:
			roles.time = append(roles.time, col)
		case col.HasTag(models.TagIdentifier):
			// not chartable
		case col.Type == models.ColumnTypeNumber:
			// Unix-epoch columns carry the timestamp tag and make bad measures.
			if !col.HasTag(models.TagRate) && !col.HasTag(models.TagTimestamp) {
				roles.measures = append(roles.measures, col)
			}
		case col.Type == models.ColumnTypeCategory || col.Type == models.ColumnTypeBoolean:
			roles.categories = append(roles.categories, col)
		case col.Type == models.ColumnTypeString:
			if col.Cardinality() < identifierCardinalityFloor && col.DistinctCount <= lowCardinalityLimit {
				roles.categories = append(roles.categories, col)
			}
		}
	}
	return roles
}

// preferredTimeColumn picks the time axis: a name containing "created" wins,
// otherwise the first time column in source order.
func preferredTimeColumn(times []models.ColumnProfile) models.ColumnProfile {
	for _, t := range times {
		if strings.Contains(NormalizeColumnName(t.Name), "created") {
			return t
		}
	}
	return times[0]
}

func lineCandidates(roles columnRoles) []models.ChartRecommendation {
	if len(roles.time) == 0 || len(roles.measures) == 0 {
		return nil
	}
	x := preferredTimeColumn(roles.time)

	var series string
	for _, c := range roles.categories {
		if c.DistinctCount <= lowCardinalityLimit/2 {
			series = c.Name
			break
		}
	}

	measures := roles.measures
	if len(measures) > maxLineMeasures {
		measures = measures[:maxLineMeasures]
	}

	var recs []models.ChartRecommendation
	for _, m := range measures {
		rec := models.ChartRecommendation{
			ID:        chartID(models.ChartTypeLine, x.Name, m.Name),
			Title:     fmt.Sprintf("%s over %s", m.Name, x.Name),
			Rationale: fmt.Sprintf("%q is a time axis and %q is a numeric measure; a trend view usually carries the most signal", x.Name, m.Name),
			ChartType: models.ChartTypeLine,
			Query: models.ChartQuery{
				XColumn:      x.Name,
				YColumns:     []string{m.Name},
				SeriesColumn: series,
				Aggregation:  models.AggregationSum,
			},
		}
		score(&rec, x, []models.ColumnProfile{m})
		recs = append(recs, rec)
	}
	return recs
}

func barCandidates(roles columnRoles) []models.ChartRecommendation {
	if len(roles.categories) == 0 || len(roles.measures) == 0 {
		return nil
	}

	measures := roles.measures
	if len(measures) > maxBarMeasures {
		measures = measures[:maxBarMeasures]
	}

	var recs []models.ChartRecommendation
	for _, cat := range roles.categories {
		if cat.DistinctCount > lowCardinalityLimit {
			continue
		}
		for _, m := range measures {
			if len(recs) >= maxBarCharts {
				return recs
			}
			rec := models.ChartRecommendation{
				ID:        chartID(models.ChartTypeBar, cat.Name, m.Name),
				Title:     fmt.Sprintf("%s by %s", m.Name, cat.Name),
				Rationale: fmt.Sprintf("%q has %d distinct groups, few enough to compare %q across", cat.Name, cat.DistinctCount, m.Name),
				ChartType: models.ChartTypeBar,
				Query: models.ChartQuery{
					XColumn:     cat.Name,
					YColumns:    []string{m.Name},
					Aggregation: models.AggregationSum,
				},
			}
			score(&rec, cat, []models.ColumnProfile{m})
			recs = append(recs, rec)
		}
	}
	return recs
}

func histogramCandidates(roles columnRoles, bins int) []models.ChartRecommendation {
	measures := roles.measures
	if len(measures) > maxHistograms {
		measures = measures[:maxHistograms]
	}

	var recs []models.ChartRecommendation
	for _, m := range measures {
		rec := models.ChartRecommendation{
			ID:        chartID(models.ChartTypeHistogram, m.Name),
			Title:     fmt.Sprintf("Distribution of %s", m.Name),
			Rationale: fmt.Sprintf("%q is a numeric measure; its distribution shape is worth a look", m.Name),
			ChartType: models.ChartTypeHistogram,
			Query: models.ChartQuery{
				XColumn:     m.Name,
				Aggregation: models.AggregationCount,
				BinCount:    bins,
			},
		}
		score(&rec, m, []models.ColumnProfile{m})
		recs = append(recs, rec)
	}
	return recs
}

// scatterCandidates pairs up to three preferred measures. Preference order:
// a name containing "score", then one containing "balance", then higher
// distinct count.
func scatterCandidates(roles columnRoles) []models.ChartRecommendation {
	if len(roles.measures) < 2 {
		return nil
	}

	preferred := make([]models.ColumnProfile, len(roles.measures))
	copy(preferred, roles.measures)
	sort.SliceStable(preferred, func(i, j int) bool {
		pi, pj := scatterPreference(preferred[i]), scatterPreference(preferred[j])
		if pi != pj {
			return pi > pj
		}
		return preferred[i].DistinctCount > preferred[j].DistinctCount
	})
	if len(preferred) > maxScatterMeasures {
		preferred = preferred[:maxScatterMeasures]
	}

	var recs []models.ChartRecommendation
	for i := 0; i < len(preferred) && len(recs) < maxScatterPairs; i++ {
		for j := i + 1; j < len(preferred) && len(recs) < maxScatterPairs; j++ {
			x, y := preferred[i], preferred[j]
			rec := models.ChartRecommendation{
				ID:        chartID(models.ChartTypeScatter, x.Name, y.Name),
				Title:     fmt.Sprintf("%s vs %s", y.Name, x.Name),
				Rationale: fmt.Sprintf("%q and %q are both numeric measures; a scatter surfaces their relationship", x.Name, y.Name),
				ChartType: models.ChartTypeScatter,
				Query: models.ChartQuery{
					XColumn:     x.Name,
					YColumns:    []string{y.Name},
					Aggregation: models.AggregationNone,
				},
			}
			score(&rec, x, []models.ColumnProfile{y})
			recs = append(recs, rec)
		}
	}
	return recs
}

func scatterPreference(m models.ColumnProfile) int {
	name := NormalizeColumnName(m.Name)
	switch {
	case strings.Contains(name, "score"):
		return 2
	case strings.Contains(name, "balance"):
		return 1
	default:
		return 0
	}
}

// score fills Score, ImpactScore and the criteria trail for one candidate.
// Score starts from the chart-type base, then adds coverage and distinctness
// bonuses for the target columns, an X-axis bonus for time or low-cardinality
// axes, and a penalty for a high-cardinality X axis. The impact score weights
// distinctness and completeness more heavily and rewards grouped views.
func score(rec *models.ChartRecommendation, x models.ColumnProfile, ys []models.ColumnProfile) {
	base := map[models.ChartType]float64{
		models.ChartTypeLine:      lineBaseScore,
		models.ChartTypeBar:       barBaseScore,
		models.ChartTypeScatter:   scatterBaseScore,
		models.ChartTypeHistogram: histogramBaseScore,
	}[rec.ChartType]
	rec.Score = base
	rec.Criteria = append(rec.Criteria, fmt.Sprintf("base[%s]=%.2f", rec.ChartType, base))

	var coverage, distinctness float64
	for _, y := range ys {
		coverage += 1 - y.NullRate
		distinctness += y.Cardinality()
	}
	coverage /= float64(len(ys))
	distinctness /= float64(len(ys))

	coverageBonus := coverage * 0.05
	distinctnessBonus := distinctness * 0.05
	rec.Score += coverageBonus + distinctnessBonus
	rec.Criteria = append(rec.Criteria,
		fmt.Sprintf("coverage=%.2f", coverageBonus),
		fmt.Sprintf("distinctness=%.2f", distinctnessBonus))

	switch {
	case x.Type == models.ColumnTypeDate || x.DistinctCount <= lowCardinalityLimit:
		rec.Score += 0.05
		rec.Criteria = append(rec.Criteria, "x-axis=+0.05")
	case x.Cardinality() > 0.5 && rec.ChartType != models.ChartTypeScatter && rec.ChartType != models.ChartTypeHistogram:
		rec.Score -= 0.1
		rec.Criteria = append(rec.Criteria, "x-axis=-0.10")
	}

	rec.ImpactScore = 0.6*distinctness + 0.4*coverage
	if rec.Query.SeriesColumn != "" {
		rec.ImpactScore += 0.1
		rec.Criteria = append(rec.Criteria, "series=+0.10")
	}
}

func chartID(t models.ChartType, columns ...string) string {
	return string(t) + ":" + strings.Join(columns, ":")
}
