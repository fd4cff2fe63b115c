package services

import (
	"context"
	"sort"
	"strings"

	"github.com/insightlabs/insight-engine/pkg/models"
)

// ProfiledColumn pairs a column's profile with the sample draw it was built
// from. Cross-column stages consume these after the per-column barrier.
type ProfiledColumn struct {
	Profile models.ColumnProfile
	Values  []string
}

// Key detection thresholds and caps.
const (
	keyUniquenessThreshold = 0.98
	keyNullRateEpsilon     = 0.01
	maxCompositeArity      = 3

	maxSingleColumnCandidates = 5
	maxCompositeCandidates    = 3

	// compositeMemberFloor prunes the composite search: a column pulls its
	// weight in a composite only if it is at least this unique on its own.
	compositeMemberFloor = 0.2
)

// tupleSeparator joins column values into a distinct-tuple key. The unit
// separator is vanishingly unlikely in tabular data.
const tupleSeparator = "\x1f"

// DetectKeyCandidates finds single- and multi-column uniqueness candidates.
// Every returned candidate has uniqueness ratio >= keyUniquenessThreshold.
// Ordering is deterministic: ratio descending, then column count ascending,
// then lexicographic column names. Cancellation is observed between column
// and combination evaluations.
func DetectKeyCandidates(ctx context.Context, columns []ProfiledColumn) ([]models.KeyCandidate, error) {
	singles, err := detectSingleColumnKeys(ctx, columns)
	if err != nil {
		return nil, err
	}
	composites, err := detectCompositeKeys(ctx, columns, singles)
	if err != nil {
		return nil, err
	}

	candidates := append(singles, composites...)
	sortKeyCandidates(candidates)
	return candidates, nil
}

func detectSingleColumnKeys(ctx context.Context, columns []ProfiledColumn) ([]models.KeyCandidate, error) {
	var singles []models.KeyCandidate
	for _, col := range columns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := col.Profile
		if p.SampleSize == 0 {
			continue
		}
		if p.Cardinality() >= keyUniquenessThreshold && p.NullRate <= keyNullRateEpsilon {
			singles = append(singles, models.KeyCandidate{
				Columns:         []string{p.Name},
				UniquenessRatio: p.Cardinality(),
				IsComposite:     false,
			})
		}
	}

	sortKeyCandidates(singles)
	if len(singles) > maxSingleColumnCandidates {
		singles = singles[:maxSingleColumnCandidates]
	}
	return singles, nil
}

// detectCompositeKeys searches pairs, then triples, of lower-cardinality
// columns whose combined distinct-tuple count approaches the sample size.
// Columns that already qualify alone are excluded; fewer columns and higher
// uniqueness are favored.
func detectCompositeKeys(ctx context.Context, columns []ProfiledColumn, singles []models.KeyCandidate) ([]models.KeyCandidate, error) {
	singleNames := make(map[string]bool, len(singles))
	for _, s := range singles {
		singleNames[s.Columns[0]] = true
	}

	// Member pool: unique enough to matter, not already a key on its own.
	var pool []ProfiledColumn
	for _, col := range columns {
		p := col.Profile
		if p.SampleSize == 0 || singleNames[p.Name] {
			continue
		}
		if p.Cardinality() >= compositeMemberFloor && p.NullRate <= keyNullRateEpsilon {
			pool = append(pool, col)
		}
	}
	if len(pool) < 2 {
		return nil, nil
	}

	var composites []models.KeyCandidate
	covered := make(map[string]bool) // columns already in an accepted smaller composite
	var ctxErr error

	for arity := 2; arity <= maxCompositeArity; arity++ {
		forEachCombination(len(pool), arity, func(idxs []int) bool {
			if ctxErr = ctx.Err(); ctxErr != nil {
				return false
			}
			members := make([]ProfiledColumn, len(idxs))
			for i, idx := range idxs {
				members[i] = pool[idx]
			}
			// A larger combination containing an accepted smaller key adds nothing.
			for _, m := range members {
				if covered[m.Profile.Name] {
					return true
				}
			}

			ratio := tupleUniqueness(members)
			if ratio < keyUniquenessThreshold {
				return true
			}

			names := make([]string, len(members))
			for i, m := range members {
				names[i] = m.Profile.Name
				covered[m.Profile.Name] = true
			}
			composites = append(composites, models.KeyCandidate{
				Columns:         names,
				UniquenessRatio: ratio,
				IsComposite:     true,
			})
			return true
		})
		if ctxErr != nil {
			return nil, ctxErr
		}
	}

	sortKeyCandidates(composites)
	if len(composites) > maxCompositeCandidates {
		composites = composites[:maxCompositeCandidates]
	}
	return composites, nil
}

// tupleUniqueness computes distinct-tuple count over rows where every member
// is non-null, as a fraction of the sample size.
func tupleUniqueness(members []ProfiledColumn) float64 {
	sampleSize := len(members[0].Values)
	if sampleSize == 0 {
		return 0
	}

	distinct := make(map[string]struct{}, sampleSize)
	var sb strings.Builder
	for row := 0; row < sampleSize; row++ {
		sb.Reset()
		complete := true
		for i, m := range members {
			if row >= len(m.Values) || isNull(m.Values[row]) {
				complete = false
				break
			}
			if i > 0 {
				sb.WriteString(tupleSeparator)
			}
			sb.WriteString(m.Values[row])
		}
		if complete {
			distinct[sb.String()] = struct{}{}
		}
	}
	return float64(len(distinct)) / float64(sampleSize)
}

// forEachCombination invokes fn for every k-combination of [0, n), stopping
// early when fn returns false.
func forEachCombination(n, k int, fn func([]int) bool) {
	if k > n {
		return
	}
	idxs := make([]int, k)
	for i := range idxs {
		idxs[i] = i
	}
	for {
		if !fn(idxs) {
			return
		}

		// Advance to the next combination.
		i := k - 1
		for i >= 0 && idxs[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idxs[i]++
		for j := i + 1; j < k; j++ {
			idxs[j] = idxs[j-1] + 1
		}
	}
}

func sortKeyCandidates(candidates []models.KeyCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].UniquenessRatio != candidates[j].UniquenessRatio {
			return candidates[i].UniquenessRatio > candidates[j].UniquenessRatio
		}
		if len(candidates[i].Columns) != len(candidates[j].Columns) {
			return len(candidates[i].Columns) < len(candidates[j].Columns)
		}
		return strings.Join(candidates[i].Columns, ",") < strings.Join(candidates[j].Columns, ",")
	})
}
