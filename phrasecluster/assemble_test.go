package phrasecluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assembleFixture() ([]Unit, [][]float32, []int) {
	units := []Unit{
		{Normalized: "run shoe", Originals: []string{"running shoes", "Running Shoes!"}},
		{Normalized: "run shoe men", Originals: []string{"running shoes for men"}},
		{Normalized: "game laptop", Originals: []string{"gaming laptop"}},
	}
	vectors := [][]float32{
		{1, 0},
		{0.9, 0.1},
		{0, 1},
	}
	assignments := []int{0, 0, 1}
	return units, vectors, assignments
}

func TestAssembleRowPerOriginal(t *testing.T) {
	units, vectors, assignments := assembleFixture()
	res, err := Assemble(units, vectors, assignments, nil, AssembleOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)
	require.Len(t, res.Clusters, 2)

	// Largest cluster first.
	assert.Equal(t, 0, res.Clusters[0].ID)
	assert.Equal(t, 3, res.Clusters[0].Size)
	assert.Equal(t, 1, res.Clusters[1].ID)
	assert.Equal(t, 1, res.Clusters[1].Size)
}

func TestAssembleRepresentativeNearestMean(t *testing.T) {
	units, vectors, assignments := assembleFixture()
	res, err := Assemble(units, vectors, assignments, nil, AssembleOptions{})
	require.NoError(t, err)
	// Cluster 0 mean is (0.95, 0.05); both members are equidistant from
	// it, so the tie resolves to the lower-indexed unit.
	assert.Equal(t, "running shoes", res.Clusters[0].Representative)
	for _, row := range res.Rows {
		if row.ClusterID == 0 {
			assert.Equal(t, "running shoes", row.Representative)
		}
	}
}

func TestAssembleClusterLabels(t *testing.T) {
	units, vectors, assignments := assembleFixture()
	res, err := Assemble(units, vectors, assignments, nil, AssembleOptions{})
	require.NoError(t, err)
	// "run" and "shoe" each appear 3 times weighted, "men" once.
	assert.Equal(t, "run / shoe / men", res.Clusters[0].Label)
	assert.Equal(t, "game / laptop", res.Clusters[1].Label)
}

func TestAssembleLabelOverride(t *testing.T) {
	units, vectors, assignments := assembleFixture()
	res, err := Assemble(units, vectors, assignments, nil, AssembleOptions{
		Labels: map[int]string{1: "laptops"},
	})
	require.NoError(t, err)
	assert.Equal(t, "laptops", res.Clusters[1].Label)
}

func TestAssembleRowsKeepInputOrder(t *testing.T) {
	units, vectors, assignments := assembleFixture()
	order := map[string]int{
		"gaming laptop":         0,
		"Running Shoes!":        1,
		"running shoes for men": 2,
		"running shoes":         3,
	}
	res, err := Assemble(units, vectors, assignments, nil, AssembleOptions{Order: order})
	require.NoError(t, err)
	var cluster0 []string
	for _, row := range res.Rows {
		if row.ClusterID == 0 {
			cluster0 = append(cluster0, row.Phrase)
		}
	}
	assert.Equal(t, []string{"Running Shoes!", "running shoes for men", "running shoes"}, cluster0)
}

func TestAssembleDiscardedSentinel(t *testing.T) {
	units, vectors, assignments := assembleFixture()
	discarded := []Discarded{{Phrase: "!!!", Reason: ReasonEmpty}}
	res, err := Assemble(units, vectors, assignments, discarded, AssembleOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	last := res.Rows[len(res.Rows)-1]
	assert.Equal(t, "!!!", last.Phrase)
	assert.Equal(t, UnclusteredID, last.ClusterID)
	assert.Equal(t, discarded, res.Discarded)
	// Summaries cover real clusters only.
	for _, c := range res.Clusters {
		assert.GreaterOrEqual(t, c.ID, 0)
	}
}

func TestAssembleRejectsLengthMismatch(t *testing.T) {
	units, vectors, _ := assembleFixture()
	_, err := Assemble(units, vectors, []int{0}, nil, AssembleOptions{})
	assert.Error(t, err)
}

func TestAssembleRejectsEmptyCluster(t *testing.T) {
	units, vectors, _ := assembleFixture()
	// Id 2 implies three clusters but id 1 has no members.
	_, err := Assemble(units, vectors, []int{0, 0, 2}, nil, AssembleOptions{})
	assert.Error(t, err)
}
