package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a pipeline step. It is recorded on failed pages and used as a metrics label.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageRasterize Stage = "rasterize"
	StageNormalize Stage = "normalize"
	StageRecognize Stage = "recognize"
	StageTriage    Stage = "triage"
	StageCorrect   Stage = "correct"
)

// StageError is a failure of one document or image at one stage.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, path string, err error) *StageError {
	return &StageError{Stage: stage, Path: path, Err: err}
}

// StageOf returns the stage of the first StageError in err's chain, or "".
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
