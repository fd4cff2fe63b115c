package services

import (
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/insightlabs/insight-engine/pkg/models"
)

// topValueCount caps the most-frequent-values list per column.
const topValueCount = 10

// samplePatterns defines regex patterns for detecting fixed-format tokens in
// sample values. Patterns are matched against column data, not column names.
var samplePatterns = map[string]*regexp.Regexp{
	models.PatternUUID:        regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`),
	models.PatternEmail:       regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	models.PatternURL:         regexp.MustCompile(`^https?://`),
	models.PatternISO4217:     regexp.MustCompile(`^[A-Z]{3}$`),
	models.PatternUnixSeconds: regexp.MustCompile(`^[0-9]{10}$`),
	models.PatternUnixMillis:  regexp.MustCompile(`^[0-9]{13}$`),
}

// ComputeColumnProfile builds the full profile for one column from a single
// sample draw. The draw feeds every statistic inside the profile; nothing is
// re-sampled, so rebuilds over identical input are identical.
func ComputeColumnProfile(name string, values []string, opts models.IndexBuildOptions) models.ColumnProfile {
	profile := models.ColumnProfile{
		Name:       name,
		SampleSize: int64(len(values)),
	}

	var nonNull []string
	counts := make(map[string]int64)
	var firstSeen []string
	for _, v := range values {
		if isNull(v) {
			continue
		}
		nonNull = append(nonNull, v)
		if counts[v] == 0 {
			firstSeen = append(firstSeen, v)
		}
		counts[v]++
	}

	if len(values) > 0 {
		profile.NullRate = float64(len(values)-len(nonNull)) / float64(len(values))
	}
	profile.DistinctCount = int64(len(counts))
	profile.Type = InferColumnType(values)
	profile.TopValues = topValues(firstSeen, counts)

	switch profile.Type {
	case models.ColumnTypeNumber:
		profile.Numeric = computeNumericStats(nonNull, opts)
	case models.ColumnTypeDate:
		profile.Date = computeDateStats(nonNull)
	case models.ColumnTypeString, models.ColumnTypeCategory:
		profile.String = computeStringStats(nonNull, opts.IncludeStringPatterns)
	}

	return profile
}

// topValues returns the most frequent values, frequency descending, ties
// broken by first-seen order.
func topValues(firstSeen []string, counts map[string]int64) []models.TopValue {
	if len(firstSeen) == 0 {
		return nil
	}

	order := make(map[string]int, len(firstSeen))
	for i, v := range firstSeen {
		order[v] = i
	}

	sorted := make([]string, len(firstSeen))
	copy(sorted, firstSeen)
	sort.SliceStable(sorted, func(i, j int) bool {
		if counts[sorted[i]] != counts[sorted[j]] {
			return counts[sorted[i]] > counts[sorted[j]]
		}
		return order[sorted[i]] < order[sorted[j]]
	})

	n := topValueCount
	if len(sorted) < n {
		n = len(sorted)
	}
	top := make([]models.TopValue, n)
	for i := 0; i < n; i++ {
		top[i] = models.TopValue{Value: sorted[i], Count: counts[sorted[i]]}
	}
	return top
}

func computeNumericStats(nonNull []string, opts models.IndexBuildOptions) *models.NumericStats {
	var nums []float64
	for _, v := range nonNull {
		if f, ok := parseNumber(v); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return nil
	}

	stats := &models.NumericStats{SampleSize: int64(len(nums))}

	var sum float64
	stats.Min = nums[0]
	stats.Max = nums[0]
	for _, f := range nums {
		sum += f
		if f < stats.Min {
			stats.Min = f
		}
		if f > stats.Max {
			stats.Max = f
		}
	}
	stats.Mean = sum / float64(len(nums))

	var sqDiff float64
	for _, f := range nums {
		d := f - stats.Mean
		sqDiff += d * d
	}
	stats.StdDev = math.Sqrt(sqDiff / float64(len(nums)))

	sorted := make([]float64, len(nums))
	copy(sorted, nums)
	sort.Float64s(sorted)
	stats.P25 = percentile(sorted, 0.25)
	stats.P50 = percentile(sorted, 0.50)
	stats.P75 = percentile(sorted, 0.75)
	stats.P95 = percentile(sorted, 0.95)

	if opts.IncludeDistributions {
		stats.Histogram = histogram(sorted, opts.EffectiveHistogramBins())
	}

	return stats
}

// percentile computes the nearest-rank percentile over a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// histogram builds equal-width bins over a sorted slice. A degenerate range
// (min == max) collapses to a single bin.
func histogram(sorted []float64, bins int) []models.HistogramBin {
	if len(sorted) == 0 || bins < 1 {
		return nil
	}

	min, max := sorted[0], sorted[len(sorted)-1]
	if min == max {
		return []models.HistogramBin{{Low: min, High: max, Count: int64(len(sorted))}}
	}

	width := (max - min) / float64(bins)
	result := make([]models.HistogramBin, bins)
	for i := range result {
		result[i].Low = min + float64(i)*width
		result[i].High = min + float64(i+1)*width
	}
	result[bins-1].High = max

	for _, v := range sorted {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1 // max lands in the last bin
		}
		result[idx].Count++
	}
	return result
}

func computeDateStats(nonNull []string) *models.DateStats {
	var dates []time.Time
	distinct := make(map[time.Time]struct{})
	for _, v := range nonNull {
		if t, ok := parseDate(v); ok {
			dates = append(dates, t)
			distinct[t] = struct{}{}
		}
	}
	if len(dates) == 0 {
		return nil
	}

	stats := &models.DateStats{
		Min:           dates[0],
		Max:           dates[0],
		DistinctCount: int64(len(distinct)),
	}
	for _, t := range dates {
		if t.Before(stats.Min) {
			stats.Min = t
		}
		if t.After(stats.Max) {
			stats.Max = t
		}
	}
	stats.Granularity = detectGranularity(dates)
	return stats
}

// detectGranularity returns the coarsest unit that explains all dates:
// year when every value is January 1st, month when every value is the first
// of a month, day otherwise.
func detectGranularity(dates []time.Time) models.DateGranularity {
	allYear, allMonth := true, true
	for _, t := range dates {
		if t.Day() != 1 {
			allYear, allMonth = false, false
			break
		}
		if t.Month() != time.January {
			allYear = false
		}
	}
	switch {
	case allYear:
		return models.GranularityYear
	case allMonth:
		return models.GranularityMonth
	default:
		return models.GranularityDay
	}
}

func computeStringStats(nonNull []string, includePatterns bool) *models.StringStats {
	if len(nonNull) == 0 {
		return nil
	}

	stats := &models.StringStats{SampleSize: int64(len(nonNull))}
	var totalLen int64
	for _, v := range nonNull {
		l := int64(len(v))
		totalLen += l
		if l > stats.MaxLength {
			stats.MaxLength = l
		}
	}
	stats.AvgLength = float64(totalLen) / float64(len(nonNull))

	if includePatterns {
		stats.Patterns = detectPatterns(nonNull)
	}
	return stats
}

// detectPatterns runs the pattern table against sample values and keeps
// patterns matching at least half the sample, sorted by name for determinism.
func detectPatterns(nonNull []string) []models.DetectedPattern {
	var detected []models.DetectedPattern
	for name, re := range samplePatterns {
		matches := 0
		for _, v := range nonNull {
			if re.MatchString(v) {
				matches++
			}
		}
		rate := float64(matches) / float64(len(nonNull))
		if rate >= 0.5 {
			detected = append(detected, models.DetectedPattern{Name: name, MatchRate: rate})
		}
	}
	sort.Slice(detected, func(i, j int) bool { return detected[i].Name < detected[j].Name })
	return detected
}
