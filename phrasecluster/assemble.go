package phrasecluster

import (
	"fmt"
	"sort"
	"strings"
)

// AssembleOptions tweaks result construction.
type AssembleOptions struct {
	// Order maps each original phrase to its input position so rows inside
	// a cluster keep input order. Unknown phrases sort last.
	Order map[string]int
	// Labels overrides the derived label for specific cluster ids (used
	// for user-keyword clusters).
	Labels map[int]string
}

// Assemble expands clustering units back into one row per original phrase,
// computes per-cluster summaries and appends discarded phrases under the
// unclustered sentinel id.
//
// Clusters are emitted largest first (ascending id on ties); rows inside a
// cluster keep input order; a cluster's representative is the unit whose
// vector lies nearest the cluster mean, ties to the lowest-indexed unit.
func Assemble(units []Unit, vectors [][]float32, assignments []int, discarded []Discarded, opts AssembleOptions) (*Result, error) {
	if len(units) != len(vectors) || len(units) != len(assignments) {
		return nil, fmt.Errorf("units/vectors/assignments length mismatch: %d/%d/%d",
			len(units), len(vectors), len(assignments))
	}

	k := 0
	for _, c := range assignments {
		if c < 0 {
			return nil, fmt.Errorf("negative cluster id %d", c)
		}
		if c+1 > k {
			k = c + 1
		}
	}

	members := make([][]int, k)
	for i, c := range assignments {
		members[c] = append(members[c], i)
	}
	for c, m := range members {
		if len(m) == 0 {
			return nil, fmt.Errorf("cluster %d is empty", c)
		}
	}

	summaries := make([]ClusterSummary, k)
	for c := 0; c < k; c++ {
		rep := representativeUnit(members[c], vectors)
		size := 0
		for _, u := range members[c] {
			size += len(units[u].Originals)
		}
		label := opts.Labels[c]
		if label == "" {
			label = clusterLabel(members[c], units)
		}
		summaries[c] = ClusterSummary{
			ID:             c,
			Size:           size,
			Label:          label,
			Representative: units[rep].Originals[0],
		}
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Size != summaries[j].Size {
			return summaries[i].Size > summaries[j].Size
		}
		return summaries[i].ID < summaries[j].ID
	})

	position := func(phrase string) int {
		if opts.Order == nil {
			return 0
		}
		if pos, ok := opts.Order[phrase]; ok {
			return pos
		}
		return len(opts.Order)
	}

	var rows []Row
	for _, summary := range summaries {
		clusterRows := make([]Row, 0, summary.Size)
		for _, u := range members[summary.ID] {
			for _, original := range units[u].Originals {
				clusterRows = append(clusterRows, Row{
					Phrase:         original,
					Normalized:     units[u].Normalized,
					ClusterID:      summary.ID,
					Representative: summary.Representative,
				})
			}
		}
		sort.SliceStable(clusterRows, func(i, j int) bool {
			return position(clusterRows[i].Phrase) < position(clusterRows[j].Phrase)
		})
		rows = append(rows, clusterRows...)
	}
	for _, d := range discarded {
		rows = append(rows, Row{Phrase: d.Phrase, ClusterID: UnclusteredID})
	}

	return &Result{Rows: rows, Clusters: summaries, Discarded: discarded}, nil
}

// representativeUnit picks the member whose vector is closest to the cluster
// mean, computed post-assignment. Ties go to the lowest-indexed unit.
func representativeUnit(member []int, vectors [][]float32) int {
	dim := len(vectors[member[0]])
	mean := make([]float64, dim)
	for _, u := range member {
		for j, v := range vectors[u] {
			mean[j] += float64(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(len(member))
	}
	best := member[0]
	bestDist := distToMean(vectors[member[0]], mean)
	for _, u := range member[1:] {
		if d := distToMean(vectors[u], mean); d < bestDist {
			best = u
			bestDist = d
		}
	}
	return best
}

func distToMean(vec []float32, mean []float64) float64 {
	var sum float64
	for j, v := range vec {
		d := float64(v) - mean[j]
		sum += d * d
	}
	return sum
}

// clusterLabel names a cluster after the most frequent tokens across its
// phrases, most common first.
func clusterLabel(member []int, units []Unit) string {
	counts := make(map[string]int)
	for _, u := range member {
		weight := len(units[u].Originals)
		for _, tok := range strings.Fields(units[u].Normalized) {
			counts[tok] += weight
		}
	}
	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	return strings.Join(tokens, " / ")
}
