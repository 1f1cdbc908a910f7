package phrasecluster

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the pipeline and its collaborators.
var (
	// ErrInputEmpty means every supplied phrase was discarded during
	// normalization, leaving nothing to cluster.
	ErrInputEmpty = errors.New("no usable phrases after normalization")
	// ErrEmbeddingUnavailable means the embedding backend could not be
	// loaded or failed during inference. Fatal for the run.
	ErrEmbeddingUnavailable = errors.New("embedding model unavailable")
	// ErrInsufficientData means fewer units than the requested cluster
	// count. Recoverable by lowering k or switching to auto.
	ErrInsufficientData = errors.New("not enough units for requested cluster count")
	// ErrUnreadableInput is returned by the loader for missing files or
	// unsupported formats.
	ErrUnreadableInput = errors.New("unreadable input")
	// ErrWriteError is returned by the saver when the result cannot be
	// written.
	ErrWriteError = errors.New("result write failed")
	// ErrCancelled reports a user-initiated cancellation between stages.
	ErrCancelled = errors.New("run cancelled")
)

// StageError tags a failure with the pipeline stage it originated from.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
