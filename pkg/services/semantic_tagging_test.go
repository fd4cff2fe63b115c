package services

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightlabs/insight-engine/pkg/models"
)

func tagNames(tags []models.ColumnTag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// ============================================================================
// Column Tag Rule Tests
// ============================================================================

func TestDateColumnAlwaysTaggedTimestamp(t *testing.T) {
	// Type wins over the name: even a misleading name gets timestamp.
	col := profiledColumn(t, "amount", []string{"2024-01-01", "2024-01-02", "2024-01-03"})
	cols := []ProfiledColumn{col}
	TagColumns(cols)

	assert.True(t, cols[0].Profile.HasTag(models.TagTimestamp))
	assert.False(t, cols[0].Profile.HasTag(models.TagAmount))
}

func TestIdentifierByCardinality(t *testing.T) {
	cols := []ProfiledColumn{sequenceColumn(t, "token", 100)}
	TagColumns(cols)

	require.True(t, cols[0].Profile.HasTag(models.TagIdentifier))
}

func TestIdentifierByName(t *testing.T) {
	// Moderate cardinality plus an id-like name is enough.
	values := make([]string, 100)
	for i := range values {
		values[i] = fmt.Sprintf("u%02d", i%40)
	}
	cols := []ProfiledColumn{profiledColumn(t, "user_id", values)}
	TagColumns(cols)

	assert.True(t, cols[0].Profile.HasTag(models.TagIdentifier))
}

func TestAmountAndMeasureTags(t *testing.T) {
	values := make([]string, 50)
	for i := range values {
		values[i] = fmt.Sprintf("%d.99", i*3)
	}

	tests := []struct {
		colName  string
		wantTags []string
	}{
		{"total_amount", []string{models.TagAmount, models.TagMeasure}},
		{"unit_price", []string{models.TagAmount, models.TagMeasure}},
		{"quantity", []string{models.TagMeasure}},
	}

	for _, tt := range tests {
		t.Run(tt.colName, func(t *testing.T) {
			cols := []ProfiledColumn{profiledColumn(t, tt.colName, values)}
			TagColumns(cols)
			for _, want := range tt.wantTags {
				assert.True(t, cols[0].Profile.HasTag(want), "missing tag %s", want)
			}
		})
	}
}

func TestRateTagSuppressesMeasure(t *testing.T) {
	values := make([]string, 50)
	for i := range values {
		values[i] = fmt.Sprintf("0.%02d", i+10)
	}
	cols := []ProfiledColumn{profiledColumn(t, "conversion_rate", values)}
	TagColumns(cols)

	assert.True(t, cols[0].Profile.HasTag(models.TagRate))
	assert.False(t, cols[0].Profile.HasTag(models.TagMeasure))
}

func TestRateByStatisticBoundedValues(t *testing.T) {
	// Values all in [0,1] with no rate-like name still read as a rate.
	values := make([]string, 50)
	for i := range values {
		values[i] = fmt.Sprintf("0.%02d", i+1)
	}
	cols := []ProfiledColumn{profiledColumn(t, "discount", values)}
	TagColumns(cols)

	assert.True(t, cols[0].Profile.HasTag(models.TagRate))
}

func TestCategoryAndFreeTextTags(t *testing.T) {
	category := profiledColumn(t, "status", repeat([]string{"open", "closed", "pending"}, 20))

	long := make([]string, 30)
	for i := range long {
		long[i] = fmt.Sprintf("a long descriptive comment about record %d with details", i)
	}
	freeText := profiledColumn(t, "comment", long)

	cols := []ProfiledColumn{category, freeText}
	TagColumns(cols)

	assert.True(t, cols[0].Profile.HasTag(models.TagCategory))
	assert.True(t, cols[1].Profile.HasTag(models.TagFreeText))
}

func TestColumnTagsSortedByName(t *testing.T) {
	values := make([]string, 50)
	for i := range values {
		values[i] = fmt.Sprintf("%d.50", i)
	}
	cols := []ProfiledColumn{profiledColumn(t, "total_amount", values)}
	TagColumns(cols)

	names := tagNames(cols[0].Profile.Tags)
	assert.True(t, sort.StringsAreSorted(names), "tags not sorted: %v", names)
}

func TestTaggingIsDeterministic(t *testing.T) {
	build := func() []models.ColumnTag {
		values := make([]string, 50)
		for i := range values {
			values[i] = fmt.Sprintf("%d.50", i)
		}
		cols := []ProfiledColumn{profiledColumn(t, "balance", values)}
		TagColumns(cols)
		return cols[0].Profile.Tags
	}
	assert.Equal(t, build(), build())
}

// ============================================================================
// Dataset Tag Tests
// ============================================================================

func TestDatasetDomainHints(t *testing.T) {
	dates := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}
	amounts := []string{"10.50", "20.00", "30.25", "41.10"}

	cols := []ProfiledColumn{
		profiledColumn(t, "created_at", dates),
		profiledColumn(t, "amount", amounts),
	}
	TagColumns(cols)
	tags := TagDataset(cols)

	var names []string
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	assert.Contains(t, names, "financial-trends")
	assert.True(t, sort.StringsAreSorted(names), "dataset tags not sorted: %v", names)
}

func TestDatasetFrequencyTags(t *testing.T) {
	// Every column is a measure: the measure frequency ratio is 1.0.
	var cols []ProfiledColumn
	for i := 0; i < 3; i++ {
		values := make([]string, 30)
		for j := range values {
			values[j] = fmt.Sprintf("%d", j*7+i)
		}
		cols = append(cols, profiledColumn(t, fmt.Sprintf("metric_%d", i), values))
	}
	TagColumns(cols)
	tags := TagDataset(cols)

	found := false
	for _, tag := range tags {
		if tag.Name == models.TagMeasure {
			found = true
			assert.InDelta(t, 1.0, tag.Score, 1e-9)
			assert.Equal(t, models.TagSourceStatistic, tag.Source)
		}
	}
	assert.True(t, found, "expected a measure frequency tag, got %v", tags)
}

func TestDatasetTagsEmptyDataset(t *testing.T) {
	assert.Empty(t, TagDataset(nil))
}
