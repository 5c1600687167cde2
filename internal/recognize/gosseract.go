//go:build gosseract && cgo
// +build gosseract,cgo

package recognize

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/yomitori/internal/models"
	"github.com/otiai10/gosseract/v2"
)

// maxLibraryCalls bounds in-flight libtesseract calls, timed-out ones included.
const maxLibraryCalls = 2

// LibraryEngine recognizes images in-process through libtesseract.
// A fresh client is used per image; clients are not shared between goroutines.
type LibraryEngine struct {
	language string
	limit    *callLimiter
}

// NewLibraryEngine creates a gosseract-backed engine.
func NewLibraryEngine(language string) (*LibraryEngine, error) {
	return &LibraryEngine{language: language, limit: newCallLimiter(maxLibraryCalls)}, nil
}

func (e *LibraryEngine) Name() string { return "tesseract-library" }

// Recognize runs Text and GetBoundingBoxes on the same client so text and
// confidences come from one recognition pass. The cgo call cannot be
// interrupted: when ctx ends it is abandoned and still holds its slot until it
// returns, and new calls wait for a free slot or for their own ctx to end.
func (e *LibraryEngine) Recognize(ctx context.Context, req Request) (Output, error) {
	return e.limit.do(ctx, func() (Output, error) { return e.recognize(req) })
}

func (e *LibraryEngine) recognize(req Request) (Output, error) {
	c := gosseract.NewClient()
	defer c.Close()

	if err := c.SetImage(req.Path); err != nil {
		return Output{}, fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(strings.Split(e.language, "+")...); err != nil {
		return Output{}, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(req.PSM)); err != nil {
		return Output{}, fmt.Errorf("set psm: %w", err)
	}
	if req.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(req.DPI)); err != nil {
			return Output{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return Output{}, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Output{}, fmt.Errorf("word boxes: %w", err)
	}
	tokens := make([]models.Token, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		tokens = append(tokens, models.Token{Text: word, Confidence: truncConfidence(b.Confidence)})
	}
	return Output{Text: text, Tokens: tokens}, nil
}

// Check verifies libtesseract has data for the configured language.
func (e *LibraryEngine) Check(ctx context.Context) error {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("%w: list languages: %v", ErrEngineUnavailable, err)
	}
	return checkLanguages(e.language, langs)
}

// LibraryAvailable reports whether the library engine is compiled in.
func LibraryAvailable() bool { return true }
