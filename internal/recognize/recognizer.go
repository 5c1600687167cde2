package recognize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
	"go.uber.org/zap"
)

// DefaultPSM is tesseract's fully automatic page segmentation without OSD.
const DefaultPSM = 3

// Recognizer wraps an Engine with a per-image timeout, text cleaning and
// confidence aggregation.
type Recognizer struct {
	engine  Engine
	psm     int
	dpi     int
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures the Recognizer.
type Option func(*Recognizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recognizer) { r.logger = l }
}

// WithTimeout bounds each engine call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Recognizer) { r.timeout = d }
}

// WithPSM sets the page segmentation mode.
func WithPSM(psm int) Option {
	return func(r *Recognizer) { r.psm = psm }
}

// WithDPI passes the raster resolution to the engine.
func WithDPI(dpi int) Option {
	return func(r *Recognizer) { r.dpi = dpi }
}

// New creates a Recognizer around engine.
func New(engine Engine, opts ...Option) *Recognizer {
	r := &Recognizer{
		engine: engine,
		psm:    DefaultPSM,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Engine returns the underlying engine.
func (r *Recognizer) Engine() Engine { return r.engine }

// PSM returns the page segmentation mode in use.
func (r *Recognizer) PSM() int { return r.psm }

// Recognize runs the engine once on page and advances it to recognized.
// On error the page state is unchanged.
func (r *Recognizer) Recognize(ctx context.Context, page *models.PageImage) (*models.RecognitionResult, error) {
	if _, err := page.State.Next(models.StateRecognized); err != nil {
		return nil, err
	}
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := r.engine.Recognize(callCtx, Request{Path: page.Path, PSM: r.psm, DPI: r.dpi})
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("recognition timed out after %s: %w", r.timeout, err)
		}
		return nil, err
	}

	cleaned := Clean(out.Text)
	res := &models.RecognitionResult{
		Page:       page,
		RawText:    out.Text,
		Text:       cleaned,
		Tokens:     out.Tokens,
		Confidence: Aggregate(out.Tokens),
		WordCount:  WordCount(cleaned),
		Engine:     r.engine.Name(),
		Duration:   elapsed,
	}
	if err := page.Advance(models.StateRecognized); err != nil {
		return nil, err
	}
	r.logger.Debug("recognized page",
		zap.String("image", page.Name()),
		zap.Int("words", res.WordCount),
		zap.Float64("confidence", res.Confidence.Mean),
		zap.Int("valid_tokens", res.Confidence.Valid),
		zap.Duration("duration", elapsed),
	)
	return res, nil
}
