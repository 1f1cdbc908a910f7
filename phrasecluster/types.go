package phrasecluster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Embedder backends.
const (
	BackendONNX  = "onnx"
	BackendTFIDF = "tfidf"
)

// AutoK requests heuristic cluster-count selection.
const AutoK KSetting = 0

// UnclusteredID is the sentinel cluster id assigned to discarded phrases so
// they stay visible in the output without polluting real clusters.
const UnclusteredID = -1

// KSetting is the requested cluster count: a positive integer, or AutoK.
// It accepts both a JSON number and the string "auto".
type KSetting int

// Auto reports whether the cluster count should be chosen heuristically.
func (k KSetting) Auto() bool { return k <= AutoK }

func (k KSetting) String() string {
	if k.Auto() {
		return "auto"
	}
	return strconv.Itoa(int(k))
}

// MarshalJSON encodes AutoK as the string "auto".
func (k KSetting) MarshalJSON() ([]byte, error) {
	if k.Auto() {
		return json.Marshal("auto")
	}
	return json.Marshal(int(k))
}

// UnmarshalJSON accepts "auto", a numeric string, or a plain number.
func (k *KSetting) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" || s == "auto" {
			*k = AutoK
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid cluster count %q", s)
		}
		*k = KSetting(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("cluster count must be positive, got %d", n)
	}
	*k = KSetting(n)
	return nil
}

// Unit is a single clustering unit: one normalized phrase together with every
// original phrase that collapsed onto it during normalization.
type Unit struct {
	Normalized string   `json:"normalized"`
	Originals  []string `json:"originals"`
}

// Discard reasons reported alongside the clustered rows.
const (
	ReasonEmpty = "empty after normalization"
	ReasonTrash = "trash word"
)

// Discarded records a phrase excluded from clustering and why.
type Discarded struct {
	Phrase string `json:"phrase"`
	Reason string `json:"reason"`
}

// Row is one line of the final output, one per original phrase.
type Row struct {
	Phrase         string `json:"phrase"`
	Normalized     string `json:"normalized"`
	ClusterID      int    `json:"clusterId"`
	Representative string `json:"representative"`
}

// ClusterSummary describes a single cluster in the final result.
type ClusterSummary struct {
	ID             int    `json:"id"`
	Size           int    `json:"size"`
	Label          string `json:"label"`
	Representative string `json:"representative"`
}

// Result is the assembled output of a pipeline run. Rows are grouped by
// cluster (largest first, discarded bucket last) and Clusters follows the
// same order.
type Result struct {
	Rows      []Row            `json:"rows"`
	Clusters  []ClusterSummary `json:"clusters"`
	Discarded []Discarded      `json:"discarded,omitempty"`
}

// NormalizerConfig controls phrase cleanup before clustering.
type NormalizerConfig struct {
	// TrashWords exclude any phrase containing one of them.
	TrashWords []string `json:"trashWords,omitempty"`
	// UserKeys pin matching units to per-keyword clusters ahead of k-means.
	UserKeys []string `json:"userKeys,omitempty"`
}

// EmbedderConfig wraps the configuration for the embedding backend and cache.
type EmbedderConfig struct {
	Backend       string `json:"backend"`
	OrtDLL        string `json:"ortDll,omitempty"`
	ModelPath     string `json:"modelPath,omitempty"`
	TokenizerPath string `json:"tokenizerPath,omitempty"`
	MaxSeqLen     int    `json:"maxSeqLen"`
	CacheDir      string `json:"cacheDir,omitempty"`
	ModelID       string `json:"modelId,omitempty"`
}

// ClusterConfig controls the k-means stage.
type ClusterConfig struct {
	K KSetting `json:"k"`
	// Seed fixes centroid initialization; nil means randomized restarts.
	Seed           *int64 `json:"seed,omitempty"`
	MaxIterations  int    `json:"maxIterations"`
	Restarts       int    `json:"restarts"`
	AutoKMin       int    `json:"autoKMin"`
	AutoKMax       int    `json:"autoKMax"`
	MinClusterSize int    `json:"minClusterSize"`
}

// Config aggregates runtime settings persisted to config.json.
type Config struct {
	Normalizer NormalizerConfig `json:"normalizer"`
	Embedder   EmbedderConfig   `json:"embedder"`
	Cluster    ClusterConfig    `json:"cluster"`
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Embedder.Backend == "" {
		c.Embedder.Backend = BackendONNX
	}
	if c.Embedder.MaxSeqLen == 0 {
		c.Embedder.MaxSeqLen = 256
	}
	if c.Cluster.MaxIterations <= 0 {
		c.Cluster.MaxIterations = 300
	}
	if c.Cluster.Restarts <= 0 {
		c.Cluster.Restarts = 4
	}
	if c.Cluster.AutoKMin <= 0 {
		c.Cluster.AutoKMin = 2
	}
	if c.Cluster.AutoKMax <= 0 {
		c.Cluster.AutoKMax = 20
	}
	if c.Cluster.MinClusterSize <= 0 {
		c.Cluster.MinClusterSize = 1
	}
}
