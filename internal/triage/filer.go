package triage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/yomitori/internal/models"
	"go.uber.org/zap"
)

// Filing records where a result was written.
type Filing struct {
	Low        bool   `json:"low"`
	ResultPath string `json:"result_path"`
	LowPath    string `json:"low_path,omitempty"`
	ReviewPath string `json:"review_path,omitempty"`
}

// Filer writes result files and moves pages to filed or flagged.
type Filer struct {
	resultsDir string
	reviewDir  string
	threshold  float64
	psm        int
	logger     *zap.Logger
}

// Option configures the Filer.
type Option func(*Filer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Filer) { f.logger = l }
}

// NewFiler creates a Filer. psm is recorded in every result header.
func NewFiler(resultsDir, reviewDir string, threshold float64, psm int, opts ...Option) *Filer {
	f := &Filer{
		resultsDir: resultsDir,
		reviewDir:  reviewDir,
		threshold:  threshold,
		psm:        psm,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Threshold returns the confidence threshold.
func (f *Filer) Threshold() float64 { return f.threshold }

// File writes <stem>.txt to the results directory. Low-confidence results are
// also written as <stem>_low_confidence.txt and copied to the review directory.
// Existing files are overwritten.
func (f *Filer) File(res *models.RecognitionResult) (*Filing, error) {
	page := res.Page
	low := Classify(res.Confidence, f.threshold)
	target := models.StateFiled
	if low {
		target = models.StateFlagged
	}
	if _, err := page.State.Next(target); err != nil {
		return nil, err
	}

	content := []byte(Format(res, f.psm))
	stem := page.Stem()
	filing := &Filing{
		Low:        low,
		ResultPath: filepath.Join(f.resultsDir, stem+".txt"),
	}
	if err := writeFile(filing.ResultPath, content); err != nil {
		return nil, err
	}
	if low {
		name := stem + LowConfidenceSuffix + ".txt"
		filing.LowPath = filepath.Join(f.resultsDir, name)
		filing.ReviewPath = filepath.Join(f.reviewDir, name)
		if err := writeFile(filing.LowPath, content); err != nil {
			return nil, err
		}
		if err := writeFile(filing.ReviewPath, content); err != nil {
			return nil, err
		}
	}
	if err := page.Advance(target); err != nil {
		return nil, err
	}

	f.logger.Debug("filed result",
		zap.String("image", page.Name()),
		zap.Bool("low_confidence", low),
		zap.Float64("confidence", res.Confidence.Mean),
		zap.Float64("threshold", f.threshold),
	)
	return filing, nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
