package phrasecluster

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns canned vectors keyed by normalized text so pipeline
// tests control the geometry without a model.
type stubEmbedder struct {
	vectors map[string][]float32
	closed  bool
}

func (s *stubEmbedder) ModelID() string { return "stub" }

func (s *stubEmbedder) Close() error {
	s.closed = true
	return nil
}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("%w: no vector for %q", ErrEmbeddingUnavailable, text)
	}
	return vec, nil
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func shoesLaptopsEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{
		"run shoe":     {1, 0},
		"run shoe men": {0.9, 0.1},
		"game laptop":  {0, 1},
		"cheap laptop": {0.1, 0.9},
	}}
}

func testPipeline(t *testing.T, embedder Embedder, cfg Config, notify ProgressFunc) *Pipeline {
	t.Helper()
	p, err := NewPipeline(embedder, cfg, zerolog.Nop(), notify)
	require.NoError(t, err)
	return p
}

func TestPipelineRunHappyPath(t *testing.T) {
	cfg := Config{Cluster: ClusterConfig{K: 2, Seed: seedPtr(1)}}
	p := testPipeline(t, shoesLaptopsEmbedder(), cfg, nil)

	res, err := p.Run(context.Background(), []string{
		"running shoes",
		"running shoes for men",
		"gaming laptop",
		"cheap laptops",
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)
	require.Len(t, res.Clusters, 2)
	assert.Equal(t, StateDone, p.State())

	byPhrase := make(map[string]int, len(res.Rows))
	for _, row := range res.Rows {
		byPhrase[row.Phrase] = row.ClusterID
	}
	assert.Equal(t, byPhrase["running shoes"], byPhrase["running shoes for men"])
	assert.Equal(t, byPhrase["gaming laptop"], byPhrase["cheap laptops"])
	assert.NotEqual(t, byPhrase["running shoes"], byPhrase["gaming laptop"])
}

func TestPipelineStateSequence(t *testing.T) {
	cfg := Config{Cluster: ClusterConfig{K: 2, Seed: seedPtr(1)}}
	var states []State
	notify := func(p Progress) { states = append(states, p.State) }
	p := testPipeline(t, shoesLaptopsEmbedder(), cfg, notify)

	_, err := p.Run(context.Background(), []string{
		"running shoes", "running shoes for men", "gaming laptop", "cheap laptops",
	})
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateLoading, StateNormalizing, StateEmbedding,
		StateClustering, StateAssembling, StateDone,
	}, states)
}

func TestPipelineEmptyInput(t *testing.T) {
	p := testPipeline(t, shoesLaptopsEmbedder(), Config{}, nil)
	res, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, StateDone, p.State())
}

func TestPipelineSinglePhrase(t *testing.T) {
	p := testPipeline(t, shoesLaptopsEmbedder(), Config{}, nil)
	res, err := p.Run(context.Background(), []string{"running shoes"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, 0, res.Rows[0].ClusterID)
	assert.Equal(t, "running shoes", res.Clusters[0].Representative)
}

func TestPipelineAllDiscarded(t *testing.T) {
	p := testPipeline(t, shoesLaptopsEmbedder(), Config{}, nil)
	_, err := p.Run(context.Background(), []string{"!!!", "???"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputEmpty)

	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, StateNormalizing, stage.Stage)
	assert.Equal(t, StateFailed, p.State())
}

func TestPipelineDiscardedKeptInResult(t *testing.T) {
	cfg := Config{Cluster: ClusterConfig{K: 2, Seed: seedPtr(1)}}
	p := testPipeline(t, shoesLaptopsEmbedder(), cfg, nil)

	res, err := p.Run(context.Background(), []string{
		"running shoes", "running shoes for men",
		"gaming laptop", "cheap laptops",
		"!!!",
	})
	require.NoError(t, err)
	require.Len(t, res.Discarded, 1)
	assert.Equal(t, "!!!", res.Discarded[0].Phrase)
	last := res.Rows[len(res.Rows)-1]
	assert.Equal(t, UnclusteredID, last.ClusterID)
}

func TestPipelineEmbeddingFailure(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{}}
	p := testPipeline(t, embedder, Config{}, nil)
	_, err := p.Run(context.Background(), []string{"running shoes"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, StateEmbedding, stage.Stage)
}

func TestPipelineInsufficientData(t *testing.T) {
	cfg := Config{Cluster: ClusterConfig{K: 10}}
	p := testPipeline(t, shoesLaptopsEmbedder(), cfg, nil)
	_, err := p.Run(context.Background(), []string{"running shoes", "gaming laptop"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPipelineCancellation(t *testing.T) {
	embedder := shoesLaptopsEmbedder()
	p := testPipeline(t, embedder, Config{Cluster: ClusterConfig{K: 2}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, []string{"running shoes", "gaming laptop"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, embedder.closed)
	assert.Equal(t, StateFailed, p.State())
}

func TestPipelineRunsOnce(t *testing.T) {
	cfg := Config{Cluster: ClusterConfig{K: 2, Seed: seedPtr(1)}}
	p := testPipeline(t, shoesLaptopsEmbedder(), cfg, nil)
	_, err := p.Run(context.Background(), []string{
		"running shoes", "running shoes for men", "gaming laptop", "cheap laptops",
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), []string{"running shoes"})
	assert.Error(t, err)
}

func TestPipelineDeterministicWithSeed(t *testing.T) {
	phrases := []string{
		"running shoes", "running shoes for men", "gaming laptop", "cheap laptops",
	}
	cfg := Config{Cluster: ClusterConfig{K: 2, Seed: seedPtr(99)}}

	first, err := testPipeline(t, shoesLaptopsEmbedder(), cfg, nil).Run(context.Background(), phrases)
	require.NoError(t, err)
	second, err := testPipeline(t, shoesLaptopsEmbedder(), cfg, nil).Run(context.Background(), phrases)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPipelineUserKeysPinned(t *testing.T) {
	embedder := shoesLaptopsEmbedder()
	embedder.vectors["brand x shoe"] = []float32{0.5, 0.5}
	cfg := Config{
		Normalizer: NormalizerConfig{UserKeys: []string{"brand x"}},
		Cluster:    ClusterConfig{K: 2, Seed: seedPtr(1)},
	}
	p := testPipeline(t, embedder, cfg, nil)

	res, err := p.Run(context.Background(), []string{
		"running shoes", "running shoes for men",
		"gaming laptop", "cheap laptops",
		"Brand X shoes",
	})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 3)

	var pinned *ClusterSummary
	for i := range res.Clusters {
		if res.Clusters[i].Label == "brand x" {
			pinned = &res.Clusters[i]
		}
	}
	require.NotNil(t, pinned, "pinned keyword cluster missing")
	assert.Equal(t, 1, pinned.Size)
	assert.Equal(t, "Brand X shoes", pinned.Representative)
}
