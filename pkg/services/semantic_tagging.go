package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/insightlabs/insight-engine/pkg/models"
)

// Column name fragments recognized by name-based tag rules.
var (
	identifierNamePattern = regexp.MustCompile(`(?i)(^id$|_id$|^id_|uuid|guid|_key$|_code$)`)
	amountNamePattern     = regexp.MustCompile(`(?i)(amount|price|cost|total|balance|salary|revenue|fee|value)`)
	rateNamePattern       = regexp.MustCompile(`(?i)(rate|ratio|percent|pct|share|fraction)`)
	timestampNamePattern  = regexp.MustCompile(`(?i)(date|time|_at$|created|updated|timestamp)`)
)

// identifierCardinalityFloor admits a statistic-based identifier tag; it is
// deliberately looser than the key-candidate threshold since a tag is a hint,
// not a uniqueness claim.
const identifierCardinalityFloor = 0.95

// freeTextAvgLength splits descriptive text from short labels.
const freeTextAvgLength = 20.0

// tagRule is one declarative tagging rule. Rules run in table order; the
// predicate sees tags already assigned by earlier rules, so exclusions are
// expressed as lookups instead of a second pass.
type tagRule struct {
	name   string
	source string
	score  float64
	match  func(p *models.ColumnProfile) bool
}

// columnTagRules runs top to bottom. Type-derived rules come first so that
// name and statistic rules can defer to them.
var columnTagRules = []tagRule{
	{
		name:   models.TagTimestamp,
		source: models.TagSourceType,
		score:  0.95,
		match: func(p *models.ColumnProfile) bool {
			return p.Type == models.ColumnTypeDate
		},
	},
	{
		name:   models.TagTimestamp,
		source: models.TagSourceStatistic,
		score:  0.8,
		match: func(p *models.ColumnProfile) bool {
			return p.String != nil &&
				(hasPattern(p, models.PatternUnixSeconds) || hasPattern(p, models.PatternUnixMillis))
		},
	},
	{
		name:   models.TagCategory,
		source: models.TagSourceType,
		score:  0.9,
		match: func(p *models.ColumnProfile) bool {
			return p.Type == models.ColumnTypeCategory || p.Type == models.ColumnTypeBoolean
		},
	},
	{
		name:   models.TagIdentifier,
		source: models.TagSourceStatistic,
		score:  0.9,
		match: func(p *models.ColumnProfile) bool {
			// Near-unique numbers are usually measures, not ids; the
			// cardinality signal only applies to string-like columns.
			if p.Type != models.ColumnTypeString && p.Type != models.ColumnTypeCategory {
				return false
			}
			return !p.HasTag(models.TagTimestamp) &&
				p.Cardinality() >= identifierCardinalityFloor && p.SampleSize > 1
		},
	},
	{
		name:   models.TagIdentifier,
		source: models.TagSourceName,
		score:  0.85,
		match: func(p *models.ColumnProfile) bool {
			return !p.HasTag(models.TagIdentifier) &&
				identifierNamePattern.MatchString(p.Name) &&
				p.Cardinality() >= compositeMemberFloor
		},
	},
	{
		name:   models.TagIdentifier,
		source: models.TagSourceStatistic,
		score:  0.95,
		match: func(p *models.ColumnProfile) bool {
			return !p.HasTag(models.TagIdentifier) && hasPattern(p, models.PatternUUID)
		},
	},
	{
		name:   models.TagAmount,
		source: models.TagSourceName,
		score:  0.85,
		match: func(p *models.ColumnProfile) bool {
			return p.Type == models.ColumnTypeNumber && amountNamePattern.MatchString(p.Name)
		},
	},
	{
		name:   models.TagRate,
		source: models.TagSourceName,
		score:  0.85,
		match: func(p *models.ColumnProfile) bool {
			return p.Type == models.ColumnTypeNumber && rateNamePattern.MatchString(p.Name)
		},
	},
	{
		name:   models.TagRate,
		source: models.TagSourceStatistic,
		score:  0.7,
		match: func(p *models.ColumnProfile) bool {
			return p.Type == models.ColumnTypeNumber && !p.HasTag(models.TagRate) &&
				p.Numeric != nil && p.Numeric.Min >= 0 && p.Numeric.Max <= 1 &&
				p.DistinctCount > 2
		},
	},
	{
		name:   models.TagFreeText,
		source: models.TagSourceStatistic,
		score:  0.8,
		match: func(p *models.ColumnProfile) bool {
			return p.Type == models.ColumnTypeString && p.String != nil &&
				p.String.AvgLength > freeTextAvgLength
		},
	},
	{
		name:   models.TagMeasure,
		source: models.TagSourceType,
		score:  0.6,
		match: func(p *models.ColumnProfile) bool {
			return p.Type == models.ColumnTypeNumber &&
				!p.HasTag(models.TagIdentifier) && !p.HasTag(models.TagRate)
		},
	},
}

func hasPattern(p *models.ColumnProfile, name string) bool {
	if p.String == nil {
		return false
	}
	for _, pat := range p.String.Patterns {
		if pat.Name == name {
			return true
		}
	}
	return false
}

// TagColumns assigns heuristic role tags to every profile in place.
// The same tag name is assigned at most once per column; when several rules
// agree on a name, the highest score wins. Tags are sorted by name so a
// rebuild over identical input emits identical tag lists.
func TagColumns(columns []ProfiledColumn) {
	for i := range columns {
		applyColumnRules(&columns[i].Profile)
	}
}

func applyColumnRules(p *models.ColumnProfile) {
	byName := make(map[string]models.ColumnTag)
	for _, rule := range columnTagRules {
		if !rule.match(p) {
			continue
		}
		tag := models.ColumnTag{Name: rule.name, Source: rule.source, Score: rule.score}
		if existing, ok := byName[tag.Name]; !ok || tag.Score > existing.Score {
			byName[tag.Name] = tag
		}
		// Later rules consult tags assigned so far.
		p.Tags = flattenTags(byName)
	}
	p.Tags = flattenTags(byName)
}

func flattenTags(byName map[string]models.ColumnTag) []models.ColumnTag {
	if len(byName) == 0 {
		return nil
	}
	tags := make([]models.ColumnTag, 0, len(byName))
	for _, t := range byName {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags
}

// datasetTagRule derives a dataset-level label from the mix of column tags.
type datasetTagRule struct {
	name  string
	score float64
	needs []string
}

var datasetTagRules = []datasetTagRule{
	{name: "financial-trends", score: 0.9, needs: []string{models.TagTimestamp, models.TagAmount}},
	{name: "time-series", score: 0.8, needs: []string{models.TagTimestamp, models.TagMeasure}},
	{name: "master-data", score: 0.7, needs: []string{models.TagIdentifier, models.TagCategory}},
}

// datasetTagRatioFloor drops frequency-derived dataset tags for roles that
// only a sliver of columns carry.
const datasetTagRatioFloor = 0.25

// TagDataset derives dataset-level tags from the tagged column set: one tag
// per column role whose frequency ratio clears the floor (scored by ratio),
// plus fixed-score domain hints. Sorted by name for determinism. It must run
// after TagColumns.
func TagDataset(columns []ProfiledColumn) []models.DatasetTag {
	counts := make(map[string]int)
	for i := range columns {
		for _, t := range columns[i].Profile.Tags {
			counts[t.Name]++
		}
	}

	var tags []models.DatasetTag
	if len(columns) > 0 {
		for name, count := range counts {
			ratio := float64(count) / float64(len(columns))
			if ratio >= datasetTagRatioFloor {
				tags = append(tags, models.DatasetTag{
					Name:   name,
					Source: models.TagSourceStatistic,
					Score:  ratio,
				})
			}
		}
	}

	for _, rule := range datasetTagRules {
		matched := true
		for _, need := range rule.needs {
			if counts[need] == 0 {
				matched = false
				break
			}
		}
		if matched {
			tags = append(tags, models.DatasetTag{
				Name:   rule.name,
				Source: models.TagSourceDomain,
				Score:  rule.score,
			})
		}
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags
}

// NormalizeColumnName lowercases and strips separators for name-hint checks
// used by downstream consumers such as chart recommendation.
func NormalizeColumnName(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}
