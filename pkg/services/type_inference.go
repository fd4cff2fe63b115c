package services

import "github.com/insightlabs/insight-engine/pkg/models"

// typeMatchThreshold is the fraction of non-null sampled values that must
// parse for a parser-backed type to win.
const typeMatchThreshold = 0.90

// categoryFloor and categoryFraction bound the Category-vs-String split:
// a column is Category when its distinct count is at most
// max(categoryFloor, categoryFraction * sample size).
const (
	categoryFloor    = 20
	categoryFraction = 0.05
)

// InferColumnType classifies a column from its bounded sample.
// Classification order is fixed: Number before Date before Boolean before
// Category/String. Null/empty tokens are ignored for parser matching; an
// all-null column defaults to String.
func InferColumnType(values []string) models.ColumnType {
	var nonNull, numbers, dates, bools int
	distinct := make(map[string]struct{})

	for _, v := range values {
		if isNull(v) {
			continue
		}
		nonNull++
		distinct[v] = struct{}{}

		if _, ok := parseNumber(v); ok {
			numbers++
		}
		if _, ok := parseDate(v); ok {
			dates++
		}
		if _, ok := parseBool(v); ok {
			bools++
		}
	}

	if nonNull == 0 {
		return models.ColumnTypeString
	}

	threshold := int(float64(nonNull)*typeMatchThreshold + 0.5)
	if threshold < 1 {
		threshold = 1
	}

	switch {
	case numbers >= threshold:
		return models.ColumnTypeNumber
	case dates >= threshold:
		return models.ColumnTypeDate
	case bools >= threshold:
		return models.ColumnTypeBoolean
	}

	limit := float64(categoryFloor)
	if frac := categoryFraction * float64(len(values)); frac > limit {
		limit = frac
	}
	if float64(len(distinct)) <= limit {
		return models.ColumnTypeCategory
	}
	return models.ColumnTypeString
}
