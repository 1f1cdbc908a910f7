// Package emb runs a sentence-encoder ONNX model through onnxruntime and
// reduces the token states to a single mean-pooled, L2-normalized vector.
package emb

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// Config locates the model artifacts on disk.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
}

// Encoder owns the ORT session and tokenizer for one model. It is safe for
// concurrent use; inference runs are serialized.
type Encoder struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	tk      *tokenizer.Tokenizer
	maxSeq  int
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime loads the onnxruntime shared library exactly once per process.
func initRuntime(dll string) error {
	ortInitOnce.Do(func() {
		if dll != "" {
			ort.SetSharedLibraryPath(dll)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Init loads the tokenizer and opens an inference session for the model.
func (e *Encoder) Init(cfg Config) error {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return errors.New("model and tokenizer paths are required")
	}
	if err := initRuntime(cfg.OrtDLL); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"}, nil)
	if err != nil {
		return fmt.Errorf("open model session: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tk = tk
	e.session = session
	e.maxSeq = cfg.MaxSeqLen
	if e.maxSeq <= 0 {
		e.maxSeq = 256
	}
	return nil
}

// Close releases the inference session.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
	e.tk = nil
}

// Encode produces a sentence vector for the given text.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.tk == nil {
		return nil, errors.New("encoder is not initialized")
	}
	en, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := en.Ids
	mask := en.AttentionMask
	types := en.TypeIds
	if len(ids) > e.maxSeq {
		ids = ids[:e.maxSeq]
		mask = mask[:e.maxSeq]
		types = types[:e.maxSeq]
	}
	if len(ids) == 0 {
		return nil, errors.New("empty token sequence")
	}

	shape := ort.NewShape(1, int64(len(ids)))
	inputIDs, err := ort.NewTensor(shape, toInt64(ids))
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attention, err := ort.NewTensor(shape, toInt64(mask))
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attention.Destroy()
	typeIDs, err := ort.NewTensor(shape, toInt64(types))
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attention, typeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}
	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("unexpected model output type")
	}
	defer hidden.Destroy()

	dims := hidden.GetShape()
	if len(dims) != 3 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	vec := meanPool(hidden.GetData(), mask, int(dims[1]), int(dims[2]))
	normalizeL2(vec)
	return vec, nil
}

// meanPool averages token states over positions the attention mask keeps.
func meanPool(data []float32, mask []int, seqLen, dim int) []float32 {
	vec := make([]float32, dim)
	var kept float32
	for pos := 0; pos < seqLen; pos++ {
		if pos < len(mask) && mask[pos] == 0 {
			continue
		}
		kept++
		row := data[pos*dim : (pos+1)*dim]
		for j, v := range row {
			vec[j] += v
		}
	}
	if kept > 0 {
		for j := range vec {
			vec[j] /= kept
		}
	}
	return vec
}

func normalizeL2(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}

func toInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}
