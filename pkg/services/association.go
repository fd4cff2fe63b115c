package services

import (
	"context"
	"math"
	"sort"

	"github.com/insightlabs/insight-engine/pkg/models"
)

// Association engine constants.
const (
	// minPairObservations is the smallest complete-case count for which a
	// coefficient is considered meaningful at all.
	minPairObservations = 10

	// spearmanMargin decides when a monotonic (Spearman) signal supersedes a
	// weak linear (Pearson) one.
	spearmanMargin = 0.2

	// mutualInfoBins discretizes numeric columns for the fallback method.
	mutualInfoBins = 10

	// mutualInfoMaxCategories caps category alphabets for the fallback
	// method; rarer values collapse into one bucket.
	mutualInfoMaxCategories = 20
)

// ComputeAssociations computes pairwise column relationships over an
// informativeness-ranked subset of columns, using type-appropriate methods,
// and retains the top-K edges per column by absolute coefficient.
// Coefficients are symmetric by construction: each unordered pair is
// computed exactly once, in canonical (source-order) direction.
// Cancellation is observed between pairs; an expired context aborts the
// remaining work.
func ComputeAssociations(ctx context.Context, columns []ProfiledColumn, opts models.IndexBuildOptions) ([]models.CorrelationEdge, error) {
	selected := selectCorrelationColumns(columns, opts.MaxColumnsForCorrelation)

	var edges []models.CorrelationEdge
	for i := 0; i < len(selected); i++ {
		for j := i + 1; j < len(selected); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if edge, ok := computePairEdge(selected[i], selected[j]); ok {
				edges = append(edges, edge)
			}
		}
	}

	return retainTopK(edges, opts.TopKEdgesPerColumn), nil
}

// selectCorrelationColumns ranks columns by informativeness
// (distinct count scaled by completeness), drops identifier-tagged columns,
// and caps the subset. Ranking ties resolve by source order.
func selectCorrelationColumns(columns []ProfiledColumn, max int) []ProfiledColumn {
	type ranked struct {
		col   ProfiledColumn
		score float64
		order int
	}

	var candidates []ranked
	for i, col := range columns {
		p := col.Profile
		if p.HasTag(models.TagIdentifier) {
			continue
		}
		if p.SampleSize == 0 || p.DistinctCount < 2 {
			continue
		}
		candidates = append(candidates, ranked{
			col:   col,
			score: float64(p.DistinctCount) * (1 - p.NullRate),
			order: i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}

	// Restore source order so pair enumeration stays deterministic.
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].order < candidates[j].order })

	selected := make([]ProfiledColumn, len(candidates))
	for i, c := range candidates {
		selected[i] = c.col
	}
	return selected
}

// computePairEdge picks the method for a type pair and computes the edge.
func computePairEdge(a, b ProfiledColumn) (models.CorrelationEdge, bool) {
	ta, tb := a.Profile.Type, b.Profile.Type

	var (
		method      models.CorrelationMethod
		coefficient float64
		n           int
		ok          bool
	)

	switch {
	case isNumericType(ta) && isNumericType(tb):
		method, coefficient, n, ok = numericPair(a, b)
	case isCategoricalType(ta) && isCategoricalType(tb):
		method = models.MethodCramersV
		coefficient, n, ok = cramersV(a.Values, b.Values)
	case isNumericType(ta) && isCategoricalType(tb):
		method = models.MethodEtaSquared
		coefficient, n, ok = etaSquared(a.Values, b.Values)
	case isCategoricalType(ta) && isNumericType(tb):
		method = models.MethodEtaSquared
		coefficient, n, ok = etaSquared(b.Values, a.Values)
	default:
		// Mixed or indeterminate pairs (dates, free text) fall back to
		// normalized mutual information.
		method = models.MethodMutualInfo
		coefficient, n, ok = mutualInformation(a, b)
	}

	if !ok || n < minPairObservations {
		return models.CorrelationEdge{}, false
	}

	strength := models.StrengthFor(coefficient)
	return models.CorrelationEdge{
		ColumnA:     a.Profile.Name,
		ColumnB:     b.Profile.Name,
		Method:      method,
		Coefficient: coefficient,
		Strength:    strength,
		Direction:   models.DirectionFor(method, coefficient),
		Confidence:  models.ConfidenceFor(int64(n), strength),
	}, true
}

func isNumericType(t models.ColumnType) bool {
	return t == models.ColumnTypeNumber
}

func isCategoricalType(t models.ColumnType) bool {
	return t == models.ColumnTypeCategory || t == models.ColumnTypeBoolean
}

// numericPair computes Pearson, with Spearman as a secondary signal: when
// the linear coefficient is weak but the rank coefficient is clearly
// stronger, the relationship is monotonic rather than linear and the
// Spearman edge wins.
func numericPair(a, b ProfiledColumn) (models.CorrelationMethod, float64, int, bool) {
	xs, ys := completeNumericPairs(a.Values, b.Values)
	if len(xs) < 2 {
		return models.MethodPearson, 0, 0, false
	}

	pearson, pok := pearsonCoefficient(xs, ys)
	if !pok {
		return models.MethodPearson, 0, 0, false
	}

	if math.Abs(pearson) < 0.3 {
		if spearman, sok := pearsonCoefficient(ranks(xs), ranks(ys)); sok &&
			math.Abs(spearman) > math.Abs(pearson)+spearmanMargin {
			return models.MethodSpearman, spearman, len(xs), true
		}
	}
	return models.MethodPearson, pearson, len(xs), true
}

// completeNumericPairs extracts rows where both values parse as numbers.
func completeNumericPairs(a, b []string) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var xs, ys []float64
	for i := 0; i < n; i++ {
		x, okA := parseNumber(a[i])
		y, okB := parseNumber(b[i])
		if okA && okB {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys
}

// pearsonCoefficient returns false when either series has zero variance.
func pearsonCoefficient(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}

// ranks assigns average ranks, handling ties, for Spearman computation.
func ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return values[idx[i]] < values[idx[j]] })

	result := make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1 // ranks are 1-based
		for k := i; k <= j; k++ {
			result[idx[k]] = avg
		}
		i = j + 1
	}
	return result
}

// cramersV computes the chi-squared based association for two categorical
// columns, normalized to [0,1].
func cramersV(a, b []string) (float64, int, bool) {
	table, rowTotals, colTotals, n := contingency(a, b)
	if n == 0 || len(rowTotals) < 2 || len(colTotals) < 2 {
		return 0, n, false
	}

	var chi2 float64
	for ra, row := range table {
		for cb, observed := range row {
			expected := float64(rowTotals[ra]) * float64(colTotals[cb]) / float64(n)
			if expected > 0 {
				d := float64(observed) - expected
				chi2 += d * d / expected
			}
		}
	}

	minDim := len(rowTotals) - 1
	if len(colTotals)-1 < minDim {
		minDim = len(colTotals) - 1
	}
	v := math.Sqrt(chi2 / (float64(n) * float64(minDim)))
	if v > 1 {
		v = 1
	}
	return v, n, true
}

func contingency(a, b []string) (map[string]map[string]int, map[string]int, map[string]int, int) {
	table := make(map[string]map[string]int)
	rowTotals := make(map[string]int)
	colTotals := make(map[string]int)
	n := 0

	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	for i := 0; i < limit; i++ {
		if isNull(a[i]) || isNull(b[i]) {
			continue
		}
		if table[a[i]] == nil {
			table[a[i]] = make(map[string]int)
		}
		table[a[i]][b[i]]++
		rowTotals[a[i]]++
		colTotals[b[i]]++
		n++
	}
	return table, rowTotals, colTotals, n
}

// etaSquared computes the fraction of numeric variance explained by category
// membership (between-group sum of squares over total sum of squares).
func etaSquared(numeric, category []string) (float64, int, bool) {
	limit := len(numeric)
	if len(category) < limit {
		limit = len(category)
	}

	groups := make(map[string][]float64)
	var all []float64
	for i := 0; i < limit; i++ {
		if isNull(category[i]) {
			continue
		}
		v, ok := parseNumber(numeric[i])
		if !ok {
			continue
		}
		groups[category[i]] = append(groups[category[i]], v)
		all = append(all, v)
	}
	if len(all) == 0 || len(groups) < 2 {
		return 0, len(all), false
	}

	var grandSum float64
	for _, v := range all {
		grandSum += v
	}
	grandMean := grandSum / float64(len(all))

	var ssTotal, ssBetween float64
	for _, v := range all {
		d := v - grandMean
		ssTotal += d * d
	}
	if ssTotal == 0 {
		return 0, len(all), false
	}
	for _, vals := range groups {
		var sum float64
		for _, v := range vals {
			sum += v
		}
		groupMean := sum / float64(len(vals))
		d := groupMean - grandMean
		ssBetween += float64(len(vals)) * d * d
	}

	return ssBetween / ssTotal, len(all), true
}

// mutualInformation discretizes both columns and computes mutual information
// normalized by the smaller marginal entropy, yielding a [0,1] coefficient.
func mutualInformation(a, b ProfiledColumn) (float64, int, bool) {
	da := discretize(a)
	db := discretize(b)

	table, rowTotals, colTotals, n := contingency(da, db)
	if n == 0 || len(rowTotals) < 2 || len(colTotals) < 2 {
		return 0, n, false
	}

	var mi float64
	for ra, row := range table {
		for cb, joint := range row {
			pxy := float64(joint) / float64(n)
			px := float64(rowTotals[ra]) / float64(n)
			py := float64(colTotals[cb]) / float64(n)
			mi += pxy * math.Log(pxy/(px*py))
		}
	}

	hx := entropy(rowTotals, n)
	hy := entropy(colTotals, n)
	minH := hx
	if hy < minH {
		minH = hy
	}
	if minH == 0 {
		return 0, n, false
	}

	nmi := mi / minH
	if nmi < 0 {
		nmi = 0
	}
	if nmi > 1 {
		nmi = 1
	}
	return nmi, n, true
}

func entropy(totals map[string]int, n int) float64 {
	var h float64
	for _, c := range totals {
		p := float64(c) / float64(n)
		h -= p * math.Log(p)
	}
	return h
}

// discretize maps a column's values onto a bounded symbol alphabet: numeric
// values get equal-width bins, everything else keeps its most frequent
// values and collapses the rest.
func discretize(col ProfiledColumn) []string {
	if col.Profile.Type == models.ColumnTypeNumber || col.Profile.Type == models.ColumnTypeDate {
		return discretizeOrdered(col)
	}
	return collapseRare(col.Values)
}

func discretizeOrdered(col ProfiledColumn) []string {
	nums := make([]float64, len(col.Values))
	valid := make([]bool, len(col.Values))
	min, max := math.Inf(1), math.Inf(-1)
	for i, v := range col.Values {
		var f float64
		var ok bool
		if col.Profile.Type == models.ColumnTypeDate {
			if t, dok := parseDate(v); dok {
				f, ok = float64(t.Unix()), true
			}
		} else {
			f, ok = parseNumber(v)
		}
		if ok {
			nums[i], valid[i] = f, true
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
	}

	out := make([]string, len(col.Values))
	if min >= max {
		for i := range out {
			if valid[i] {
				out[i] = "0"
			}
		}
		return out
	}

	width := (max - min) / float64(mutualInfoBins)
	for i := range out {
		if !valid[i] {
			continue // stays "", treated as null downstream
		}
		bin := int((nums[i] - min) / width)
		if bin >= mutualInfoBins {
			bin = mutualInfoBins - 1
		}
		out[i] = string(rune('a' + bin))
	}
	return out
}

func collapseRare(values []string) []string {
	counts := make(map[string]int)
	for _, v := range values {
		if !isNull(v) {
			counts[v]++
		}
	}
	if len(counts) <= mutualInfoMaxCategories {
		return values
	}

	type vc struct {
		v string
		c int
	}
	ordered := make([]vc, 0, len(counts))
	for v, c := range counts {
		ordered = append(ordered, vc{v, c})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].c != ordered[j].c {
			return ordered[i].c > ordered[j].c
		}
		return ordered[i].v < ordered[j].v
	})

	keep := make(map[string]bool, mutualInfoMaxCategories)
	for i := 0; i < mutualInfoMaxCategories-1 && i < len(ordered); i++ {
		keep[ordered[i].v] = true
	}

	out := make([]string, len(values))
	for i, v := range values {
		switch {
		case isNull(v):
			out[i] = ""
		case keep[v]:
			out[i] = v
		default:
			out[i] = "\x1eother"
		}
	}
	return out
}

// retainTopK keeps the strongest edges while guaranteeing that no column
// retains more than k edges. Edges are considered strongest-first; an edge
// is kept only while both endpoints have quota left, which keeps the
// per-column bound hard.
func retainTopK(edges []models.CorrelationEdge, k int) []models.CorrelationEdge {
	sort.SliceStable(edges, func(i, j int) bool {
		ai, aj := math.Abs(edges[i].Coefficient), math.Abs(edges[j].Coefficient)
		if ai != aj {
			return ai > aj
		}
		if edges[i].ColumnA != edges[j].ColumnA {
			return edges[i].ColumnA < edges[j].ColumnA
		}
		return edges[i].ColumnB < edges[j].ColumnB
	})

	quota := make(map[string]int)
	var kept []models.CorrelationEdge
	for _, e := range edges {
		if quota[e.ColumnA] >= k || quota[e.ColumnB] >= k {
			continue
		}
		quota[e.ColumnA]++
		quota[e.ColumnB]++
		kept = append(kept, e)
	}
	return kept
}
