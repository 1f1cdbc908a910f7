package phrasecluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// State identifies a pipeline stage.
type State string

// Pipeline states. Idle is the entry state; Done and Failed are terminal.
const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateNormalizing State = "normalizing"
	StateEmbedding   State = "embedding"
	StateClustering  State = "clustering"
	StateAssembling  State = "assembling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Progress is the notification emitted on every state transition. It is the
// only interface the presentation layer needs from the core.
type Progress struct {
	State  State
	Detail string
	Count  int
	Err    error
}

// ProgressFunc consumes progress notifications. It is called synchronously
// from the pipeline goroutine.
type ProgressFunc func(Progress)

// Pipeline sequences normalization, embedding, clustering and assembly over
// one phrase set. An instance runs exactly once; a new run requires a fresh
// Pipeline.
type Pipeline struct {
	embedder Embedder
	cfg      Config
	logger   zerolog.Logger
	notify   ProgressFunc

	mu    sync.Mutex
	state State
}

// NewPipeline constructs a one-shot pipeline. notify may be nil.
func NewPipeline(embedder Embedder, cfg Config, logger zerolog.Logger, notify ProgressFunc) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	cfg.ApplyDefaults()
	return &Pipeline{
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		notify:   notify,
		state:    StateIdle,
	}, nil
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes the full pipeline over the raw phrases. Cancellation via ctx
// is honored between stages; a cancelled run releases the embedder's model
// resources and reports ErrCancelled.
func (p *Pipeline) Run(ctx context.Context, phrases []string) (*Result, error) {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return nil, errors.New("pipeline has already run; create a fresh instance")
	}
	p.mu.Unlock()

	p.transition(StateLoading, "validating input", len(phrases))
	kept := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if trimmed := strings.TrimSpace(phrase); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) == 0 {
		p.transition(StateDone, "no input phrases", 0)
		return &Result{}, nil
	}
	if err := p.checkCancelled(ctx, StateLoading); err != nil {
		return nil, err
	}

	p.transition(StateNormalizing, "normalizing phrases", len(kept))
	units, discarded := NormalizeUnits(kept, p.cfg.Normalizer.TrashWords)
	if len(units) == 0 {
		return nil, p.fail(StateNormalizing, ErrInputEmpty)
	}
	if err := p.checkCancelled(ctx, StateNormalizing); err != nil {
		return nil, err
	}

	p.transition(StateEmbedding, "embedding units", len(units))
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Normalized
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, p.fail(StateEmbedding, err)
	}
	if err := validateVectors(vectors, len(units)); err != nil {
		return nil, p.fail(StateEmbedding, err)
	}
	if err := p.checkCancelled(ctx, StateEmbedding); err != nil {
		return nil, err
	}

	groups, free := pinUserKeys(units, p.cfg.Normalizer.UserKeys)
	p.transition(StateClustering, "clustering units", len(free))
	assignments := make([]int, len(units))
	clustered := &KMeansResult{}
	if len(free) > 0 {
		freeVectors := make([][]float32, len(free))
		for i, u := range free {
			freeVectors[i] = vectors[u]
		}
		clustered, err = Cluster(freeVectors, p.cfg.Cluster)
		if err != nil {
			return nil, p.fail(StateClustering, err)
		}
		for i, u := range free {
			assignments[u] = clustered.Assignments[i]
		}
	}
	labels := make(map[int]string, len(groups))
	for gi, g := range groups {
		id := clustered.K + gi
		labels[id] = g.key
		for _, u := range g.members {
			assignments[u] = id
		}
	}
	if err := p.checkCancelled(ctx, StateClustering); err != nil {
		return nil, err
	}

	p.transition(StateAssembling, "assembling result", len(units))
	order := make(map[string]int, len(kept))
	for i, phrase := range kept {
		if _, ok := order[phrase]; !ok {
			order[phrase] = i
		}
	}
	result, err := Assemble(units, vectors, assignments, discarded, AssembleOptions{
		Order:  order,
		Labels: labels,
	})
	if err != nil {
		return nil, p.fail(StateAssembling, err)
	}

	p.transition(StateDone, "pipeline complete", len(result.Rows))
	return result, nil
}

func (p *Pipeline) transition(state State, detail string, count int) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	p.logger.Info().Str("state", string(state)).Int("count", count).Msg(detail)
	if p.notify != nil {
		p.notify(Progress{State: state, Detail: detail, Count: count})
	}
}

func (p *Pipeline) fail(stage State, err error) error {
	wrapped := &StageError{Stage: stage, Err: err}
	p.mu.Lock()
	p.state = StateFailed
	p.mu.Unlock()
	p.logger.Error().Str("stage", string(stage)).Err(err).Msg("pipeline failed")
	if p.notify != nil {
		p.notify(Progress{State: StateFailed, Detail: wrapped.Error(), Err: wrapped})
	}
	return wrapped
}

// checkCancelled maps a cancelled context to ErrCancelled and releases the
// embedder's model resources, since the run cannot be resumed.
func (p *Pipeline) checkCancelled(ctx context.Context, stage State) error {
	select {
	case <-ctx.Done():
		_ = p.embedder.Close()
		return p.fail(stage, ErrCancelled)
	default:
		return nil
	}
}

func validateVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedder returned %d vectors for %d units", len(vectors), want)
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}

type keyGroup struct {
	key     string
	members []int
}

// pinUserKeys splits unit indices into per-keyword groups and the free
// remainder that goes through k-means. A unit joins the first keyword (in
// configuration order) found in any of its original phrases.
func pinUserKeys(units []Unit, keys []string) ([]keyGroup, []int) {
	cleaned := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		cleaned = append(cleaned, k)
	}
	if len(cleaned) == 0 {
		free := make([]int, len(units))
		for i := range units {
			free[i] = i
		}
		return nil, free
	}
	groups := make([]keyGroup, len(cleaned))
	for i, k := range cleaned {
		groups[i] = keyGroup{key: k}
	}
	var free []int
	for i, u := range units {
		assigned := false
		for gi, k := range cleaned {
			if unitMatchesKey(u, k) {
				groups[gi].members = append(groups[gi].members, i)
				assigned = true
				break
			}
		}
		if !assigned {
			free = append(free, i)
		}
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g.members) > 0 {
			out = append(out, g)
		}
	}
	return out, free
}

func unitMatchesKey(u Unit, key string) bool {
	for _, original := range u.Originals {
		if strings.Contains(strings.ToLower(original), key) {
			return true
		}
	}
	return false
}
