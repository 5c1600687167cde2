//go:build !gosseract || !cgo
// +build !gosseract !cgo

package recognize

import (
	"context"
	"fmt"
)

// LibraryEngine is a stub when the gosseract build tag is not set (see gosseract.go).
type LibraryEngine struct{}

// NewLibraryEngine returns an error when libtesseract is not linked.
func NewLibraryEngine(_ string) (*LibraryEngine, error) {
	return nil, fmt.Errorf("%w: library engine requires libtesseract; build with -tags=gosseract and CGO_ENABLED=1", ErrEngineUnavailable)
}

func (e *LibraryEngine) Name() string { return "tesseract-library" }

func (e *LibraryEngine) Recognize(_ context.Context, _ Request) (Output, error) {
	return Output{}, ErrEngineUnavailable
}

func (e *LibraryEngine) Check(_ context.Context) error { return ErrEngineUnavailable }

// LibraryAvailable reports whether the library engine is compiled in.
func LibraryAvailable() bool { return false }
