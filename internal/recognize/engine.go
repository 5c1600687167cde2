// Package recognize runs OCR engines over page images and reduces their word
// confidences to a page-level score.
package recognize

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/pkg/utils"
	"go.uber.org/zap"
)

// ErrEngineUnavailable is returned when an engine cannot run in this build or environment.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// Request describes one image to recognize.
type Request struct {
	Path string
	PSM  int
	DPI  int
}

// Output is the raw engine result. Text and Tokens come from the same recognition pass.
type Output struct {
	Text   string
	Tokens []models.Token
}

// Engine is an OCR backend.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, req Request) (Output, error)
	// Check verifies the engine can run with its configured language.
	Check(ctx context.Context) error
}

// EngineKind selects an Engine implementation.
type EngineKind string

const (
	// EngineCLI runs the tesseract binary and parses its TSV output.
	EngineCLI EngineKind = "cli"
	// EngineLibrary links libtesseract through gosseract. Requires -tags=gosseract.
	EngineLibrary EngineKind = "library"
)

// NewEngine creates an engine of the given kind. When the library engine is not
// compiled in, it falls back to the CLI engine.
func NewEngine(kind, tesseractPath, language string, logger *zap.Logger) (Engine, error) {
	logger = utils.LoggerOrNop(logger)
	switch EngineKind(kind) {
	case EngineCLI, "":
		return NewCLIEngine(tesseractPath, language), nil
	case EngineLibrary:
		lib, err := NewLibraryEngine(language)
		if err != nil {
			logger.Warn("library OCR engine unavailable, using tesseract CLI", zap.Error(err))
			return NewCLIEngine(tesseractPath, language), nil
		}
		return lib, nil
	default:
		return nil, fmt.Errorf("unknown ocr engine: %s (supported: cli, library)", kind)
	}
}
