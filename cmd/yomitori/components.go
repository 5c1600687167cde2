package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/correct"
	"github.com/hyperjump/yomitori/internal/deps"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/pipeline"
	"github.com/hyperjump/yomitori/internal/recognize"
	"github.com/hyperjump/yomitori/internal/storage"
)

// overrides holds the command-line flags that take precedence over the config file.
type overrides struct {
	input     string
	images    string
	threshold float64
	dpi       int
	quality   string
	color     bool
	lang      string
	debug     bool
}

const unsetThreshold = -1

func registerOverrides(fs *flag.FlagSet) *overrides {
	o := &overrides{}
	fs.StringVar(&o.input, "input", "", "directory of PDFs to process (overrides input.pdf_dir)")
	fs.StringVar(&o.images, "images", "", "directory of page images to process (overrides input.image_dir)")
	fs.Float64Var(&o.threshold, "threshold", unsetThreshold, "confidence threshold for manual review, 0-100")
	fs.IntVar(&o.dpi, "dpi", 0, "rasterization DPI (overrides the quality preset)")
	fs.StringVar(&o.quality, "quality", "", "rasterization quality: high, medium or low")
	fs.BoolVar(&o.color, "color", false, "keep page images in color (skip grayscale conversion)")
	fs.StringVar(&o.lang, "lang", "", "OCR language code, e.g. eng or eng+lat")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging")
	return o
}

// apply copies every set flag into cfg and re-validates it.
func (o *overrides) apply(cfg *config.Config) error {
	if o.input != "" {
		abs, err := filepath.Abs(o.input)
		if err != nil {
			return err
		}
		cfg.Input.PDFDir = abs
	}
	if o.images != "" {
		abs, err := filepath.Abs(o.images)
		if err != nil {
			return err
		}
		cfg.Input.ImageDir = abs
	}
	if o.threshold != unsetThreshold {
		th := o.threshold
		cfg.Triage.Threshold = &th
	}
	if o.dpi != 0 {
		cfg.Raster.DPI = o.dpi
	}
	if o.quality != "" {
		cfg.Raster.Quality = o.quality
	}
	if o.color {
		cfg.Raster.ColorMode = "color"
	}
	if o.lang != "" {
		cfg.OCR.Language = o.lang
	}
	if o.debug {
		cfg.Debug = true
	}
	return cfg.Validate()
}

// resolveConfig loads the config file. When no file exists and --input or
// --images is given, defaults rooted at the working directory are used instead.
func resolveConfig(path string, o *overrides) (*config.Config, string, error) {
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || (o.input == "" && o.images == "") {
			return nil, "", err
		}
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return nil, "", cwdErr
		}
		cfg = config.Default("", cwd)
		resolved = ""
	}
	if err := o.apply(cfg); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, resolved, nil
}

// Components holds the services shared by run and serve.
type Components struct {
	Engine   recognize.Engine
	Ledger   storage.Ledger
	Index    keyword.Index
	Pipeline *pipeline.Pipeline
}

// Close releases the ledger and index.
func (c *Components) Close() {
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

// initializeComponents checks dependencies and wires the pipeline. The ledger and
// index are optional: failing to open either is logged and processing continues.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	engine, err := recognize.NewEngine(cfg.OCR.Engine, cfg.OCR.TesseractPath, cfg.OCR.Language, logger)
	if err != nil {
		return nil, err
	}
	report := deps.Check(ctx, cfg, engine)
	if err := report.Err(); err != nil {
		return nil, err
	}

	c := &Components{Engine: engine}
	opts := []pipeline.Option{pipeline.WithLogger(logger)}

	if ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath); err != nil {
		logger.Warn("run ledger unavailable", zap.String("path", cfg.Storage.DatabasePath), zap.Error(err))
	} else {
		c.Ledger = ledger
		opts = append(opts, pipeline.WithLedger(ledger))
	}
	if idx, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath); err != nil {
		logger.Warn("search index unavailable", zap.String("path", cfg.Storage.BleveIndexPath), zap.Error(err))
	} else {
		c.Index = idx
		opts = append(opts, pipeline.WithIndex(idx))
	}
	if cfg.Correction.Enabled {
		opts = append(opts, pipeline.WithCorrector(correct.New(&correct.Config{
			APIKey:    cfg.Correction.APIKey,
			BaseURL:   cfg.Correction.BaseURL,
			Model:     cfg.Correction.Model,
			Timeout:   cfg.Correction.Timeout(),
			OutputDir: cfg.Output.CorrectionsDir,
			Logger:    logger,
		})))
	}

	c.Pipeline = pipeline.New(cfg, engine, opts...)
	logger.Info("components initialized",
		zap.String("engine", engine.Name()),
		zap.String("language", cfg.OCR.Language),
		zap.Int("dpi", cfg.EffectiveDPI()),
		zap.Float64("threshold", cfg.Triage.ThresholdOrDefault()),
		zap.Bool("correction", cfg.Correction.Enabled),
	)
	return c, nil
}
