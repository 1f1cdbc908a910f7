package phrasecluster

import (
	"context"
	"math"
	"sort"
	"strings"
)

// TFIDFEmbedder is a self-contained vectorizer used when no ONNX model is
// configured. The vocabulary is rebuilt from each batch, so vectors are only
// comparable within a single EmbedTexts call. Vectors are L2 normalized.
type TFIDFEmbedder struct{}

// NewTFIDFEmbedder constructs a stateless TF-IDF embedder.
func NewTFIDFEmbedder() *TFIDFEmbedder { return &TFIDFEmbedder{} }

// ModelID identifies the backend for cache keys and logs.
func (t *TFIDFEmbedder) ModelID() string { return "tfidf" }

// Close is a no-op; the embedder holds no resources.
func (t *TFIDFEmbedder) Close() error { return nil }

// EmbedText embeds a single string against a vocabulary of just that string.
func (t *TFIDFEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := t.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts vectorizes the batch with smoothed TF-IDF over a vocabulary
// built from the batch itself. Terms are sorted so the mapping from term to
// dimension is deterministic.
func (t *TFIDFEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	df := make(map[string]int)
	tokenized := make([][]string, len(texts))
	for i, text := range texts {
		tokens := strings.Fields(text)
		tokenized[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(texts))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	out := make([][]float32, len(texts))
	for i, tokens := range tokenized {
		vec := make([]float32, len(terms))
		if len(tokens) > 0 {
			tf := make(map[int]int, len(tokens))
			for _, tok := range tokens {
				tf[vocab[tok]]++
			}
			var sum float64
			for idx, count := range tf {
				v := float64(count) / float64(len(tokens)) * idf[idx]
				vec[idx] = float32(v)
				sum += v * v
			}
			if sum > 0 {
				scale := float32(1 / math.Sqrt(sum))
				for j := range vec {
					vec[j] *= scale
				}
			}
		}
		out[i] = vec
	}
	return out, nil
}
