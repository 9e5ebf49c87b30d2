package pipeline

import (
	"errors"
	"fmt"
)

// Validation and processing errors surfaced by the pipeline. The API layer
// maps these onto HTTP statuses: the sentinel and typed errors below become
// 400s, anything else a 500.
var (
	// ErrInvalidInputFormat rejects uploads whose filename does not end in
	// the accepted point-cloud extension.
	ErrInvalidInputFormat = errors.New("only PLY files are supported")

	// ErrInvalidOutputFormat rejects unknown return_format values.
	ErrInvalidOutputFormat = errors.New("return_format must be 'ply' or 'obj'")

	// ErrEmptyInput means the upload decoded to zero points.
	ErrEmptyInput = errors.New("point cloud is empty")
)

// InsufficientPointsError means cleaning left too few points to proceed.
// The remaining count is part of the message so callers can judge scan
// quality.
type InsufficientPointsError struct {
	Remaining int
	Minimum   int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("too few points after cleaning (%d, need %d); original scan may be too noisy",
		e.Remaining, e.Minimum)
}

// StageError tags a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// failAt wraps err with the stage it occurred in.
func failAt(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
