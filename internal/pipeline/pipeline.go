// Package pipeline drives documents through rasterization, normalization,
// recognition and triage, counting every failure in a batch summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/metrics"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/normalize"
	"github.com/hyperjump/yomitori/internal/raster"
	"github.com/hyperjump/yomitori/internal/recognize"
	"github.com/hyperjump/yomitori/internal/storage"
	"github.com/hyperjump/yomitori/internal/triage"
)

// ImageExtensions are the pre-rasterized image types accepted from input.image_dir.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp"}

// PDFExtensions are the document types accepted from input.pdf_dir.
var PDFExtensions = []string{".pdf"}

// ImageGraySubdir holds grayscale copies of input.image_dir files so they never
// overwrite grayscale pages rendered from a PDF with the same file name.
const ImageGraySubdir = "images"

// ErrUnsupported is returned for files that are neither PDFs nor accepted images.
var ErrUnsupported = errors.New("unsupported file type")

// Corrector sends a flagged result file for correction and returns the written path.
type Corrector interface {
	CorrectFile(ctx context.Context, flaggedPath string) (string, error)
}

// Pipeline processes documents one at a time. It is not safe for concurrent use.
type Pipeline struct {
	cfg        *config.Config
	rasterizer *raster.Rasterizer
	normalizer *normalize.Normalizer
	recognizer *recognize.Recognizer
	filer      *triage.Filer
	corrector  Corrector
	ledger     storage.Ledger
	index      keyword.Index
	logger     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger passed to every stage.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLedger records runs and page outcomes in l.
func WithLedger(l storage.Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithIndex adds every filed result to idx.
func WithIndex(idx keyword.Index) Option {
	return func(p *Pipeline) { p.index = idx }
}

// WithCorrector enables correction of flagged results.
func WithCorrector(c Corrector) Option {
	return func(p *Pipeline) { p.corrector = c }
}

// WithRasterizer replaces the rasterizer built from the configuration.
func WithRasterizer(r *raster.Rasterizer) Option {
	return func(p *Pipeline) { p.rasterizer = r }
}

// New builds a pipeline from cfg that recognizes text with engine.
func New(cfg *config.Config, engine recognize.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.rasterizer == nil {
		p.rasterizer = raster.New(cfg.Raster.PdftoppmPath, cfg.EffectiveDPI(), cfg.ImageFormat(),
			raster.WithWorkers(cfg.Raster.Workers),
			raster.WithLogger(p.logger),
		)
	}
	p.normalizer = normalize.New(models.ColorMode(cfg.Raster.ColorMode), normalize.WithLogger(p.logger))
	p.recognizer = recognize.New(engine,
		recognize.WithPSM(cfg.OCR.PSM),
		recognize.WithDPI(cfg.EffectiveDPI()),
		recognize.WithTimeout(cfg.OCR.Timeout()),
		recognize.WithLogger(p.logger),
	)
	p.filer = triage.NewFiler(cfg.Output.ResultsDir, cfg.Output.ReviewDir,
		cfg.Triage.ThresholdOrDefault(), p.recognizer.PSM(), triage.WithLogger(p.logger))
	return p
}

// Begin starts a new batch summary and records the run in the ledger.
func (p *Pipeline) Begin(ctx context.Context) *models.BatchSummary {
	summary := &models.BatchSummary{RunID: uuid.New().String(), StartedAt: time.Now().UTC()}
	if p.ledger != nil {
		run := &models.RunRecord{ID: summary.RunID, StartedAt: summary.StartedAt}
		if err := p.ledger.CreateRun(ctx, run); err != nil {
			p.logger.Warn("ledger: create run failed", zap.String("run_id", summary.RunID), zap.Error(err))
		}
	}
	return summary
}

// Finish stamps the summary's finish time, stores it in the ledger and logs it.
func (p *Pipeline) Finish(ctx context.Context, summary *models.BatchSummary) models.SummarySnapshot {
	summary.FinishedAt = time.Now().UTC()
	snap := summary.Snapshot()
	if p.ledger != nil {
		if err := p.ledger.FinishRun(ctx, snap); err != nil {
			p.logger.Warn("ledger: finish run failed", zap.String("run_id", snap.RunID), zap.Error(err))
		}
	}
	p.logger.Info("batch complete",
		zap.String("run_id", snap.RunID),
		zap.Int64("documents", snap.DocumentsTotal),
		zap.Int64("documents_failed", snap.DocumentsFailed),
		zap.Int64("pages", snap.PagesRasterized),
		zap.Int64("recognized", snap.RecognizeOK),
		zap.Int64("flagged", snap.Flagged),
		zap.Int64("failures", snap.Failures()),
		zap.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
	)
	return snap
}

// Run processes every document found in the input directories and returns
// the batch summary. Per-document and per-image failures are counted, not
// returned. An error is returned only when the inputs cannot be listed or ctx
// is cancelled; the summary is still valid in the latter case.
func (p *Pipeline) Run(ctx context.Context) (*models.BatchSummary, error) {
	docs, err := p.Discover()
	if err != nil {
		return nil, err
	}
	summary := p.Begin(ctx)
	p.logger.Info("batch starting", zap.String("run_id", summary.RunID), zap.Int("documents", len(docs)))

	var runErr error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		_ = p.process(ctx, doc, summary)
	}
	p.Finish(context.WithoutCancel(ctx), summary)
	return summary, runErr
}

// Discover lists PDFs in input.pdf_dir followed by images in input.image_dir,
// each sorted by name.
func (p *Pipeline) Discover() ([]models.Document, error) {
	var docs []models.Document
	pdfs, err := listDir(p.cfg.Input.PDFDir, PDFExtensions)
	if err != nil {
		return nil, fmt.Errorf("list pdf dir: %w", err)
	}
	for _, path := range pdfs {
		docs = append(docs, models.NewDocument(path, models.KindPDF))
	}
	images, err := listDir(p.cfg.Input.ImageDir, ImageExtensions)
	if err != nil {
		return nil, fmt.Errorf("list image dir: %w", err)
	}
	for _, path := range images {
		docs = append(docs, models.NewDocument(path, models.KindImage))
	}
	return docs, nil
}

func listDir(dir string, extensions []string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !hasExtension(e.Name(), extensions) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// KindOf returns the document kind for path based on its extension.
func KindOf(path string) (models.DocumentKind, error) {
	switch {
	case hasExtension(path, PDFExtensions):
		return models.KindPDF, nil
	case hasExtension(path, ImageExtensions):
		return models.KindImage, nil
	}
	return "", fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
}

// ProcessDocument runs one PDF or image through every stage, adding to summary.
// The returned error is a *StageError when the document itself could not be
// ingested; page-level failures are only counted.
func (p *Pipeline) ProcessDocument(ctx context.Context, path string, summary *models.BatchSummary) error {
	kind, err := KindOf(path)
	if err != nil {
		summary.DocumentsTotal.Add(1)
		return p.failDocument(summary, stageError(StageIngest, path, err))
	}
	return p.process(ctx, models.NewDocument(path, kind), summary)
}

func (p *Pipeline) process(ctx context.Context, doc models.Document, summary *models.BatchSummary) error {
	summary.DocumentsTotal.Add(1)
	p.logger.Debug("processing document", zap.String("document", doc.Name), zap.String("kind", string(doc.Kind)))

	pages, failed, serr := p.ingest(ctx, doc)
	if serr != nil {
		return p.failDocument(summary, serr)
	}
	summary.DocumentsSucceeded.Add(1)
	summary.PagesRasterized.Add(int64(len(pages)))
	metrics.DocumentsTotal.WithLabelValues(metrics.StatusOK).Inc()
	metrics.PagesTotal.WithLabelValues(string(StageRasterize), metrics.StatusOK).Add(float64(len(pages)))

	for _, pe := range failed {
		summary.RasterizeFailed.Add(1)
		p.failPage(ctx, summary.RunID, pe.Page, stageError(StageRasterize, pe.Page.Path, pe.Err))
	}
	grayDir := p.cfg.Output.GrayDir
	if doc.Kind == models.KindImage {
		grayDir = filepath.Join(grayDir, ImageGraySubdir)
	}
	for _, page := range pages {
		p.processPage(ctx, page, grayDir, summary)
	}
	return nil
}

// ingest turns a document into rasterized page images in page order. Pages
// that could not be rendered come back separately; the document itself fails
// only when it cannot be read at all.
func (p *Pipeline) ingest(ctx context.Context, doc models.Document) ([]*models.PageImage, []*raster.PageError, *StageError) {
	if doc.Kind == models.KindImage {
		page, err := raster.ImagePage(doc.Path, doc.Name, 1)
		if err != nil {
			return nil, nil, stageError(StageIngest, doc.Path, err)
		}
		page.State = models.StateRasterized
		return []*models.PageImage{page}, nil, nil
	}
	pages, failed, err := p.rasterizer.Rasterize(ctx, doc, p.cfg.Output.RasterDir)
	if err != nil {
		return nil, nil, stageError(StageRasterize, doc.Path, err)
	}
	return pages, failed, nil
}

func (p *Pipeline) failDocument(summary *models.BatchSummary, err *StageError) error {
	summary.DocumentsFailed.Add(1)
	metrics.DocumentsTotal.WithLabelValues(metrics.StatusFailed).Inc()
	p.logger.Warn("document failed",
		zap.String("stage", string(err.Stage)),
		zap.String("document", filepath.Base(err.Path)),
		zap.Error(err.Err),
	)
	return err
}

func (p *Pipeline) processPage(ctx context.Context, page *models.PageImage, grayDir string, summary *models.BatchSummary) {
	if err := p.normalizer.Normalize(page, grayDir); err != nil {
		summary.NormalizeFailed.Add(1)
		p.failPage(ctx, summary.RunID, page, stageError(StageNormalize, page.Path, err))
		return
	}
	summary.NormalizeOK.Add(1)
	metrics.PagesTotal.WithLabelValues(string(StageNormalize), metrics.StatusOK).Inc()

	res, err := p.recognizer.Recognize(ctx, page)
	if err != nil {
		summary.RecognizeFailed.Add(1)
		p.failPage(ctx, summary.RunID, page, stageError(StageRecognize, page.Path, err))
		return
	}
	summary.RecognizeOK.Add(1)
	summary.TotalWords.Add(int64(res.WordCount))
	metrics.PagesTotal.WithLabelValues(string(StageRecognize), metrics.StatusOK).Inc()
	metrics.RecognitionDuration.Observe(res.Duration.Seconds())
	if res.Confidence.Defined() {
		metrics.PageConfidence.Observe(res.Confidence.Mean)
	}

	filing, err := p.filer.File(res)
	if err != nil {
		summary.TriageFailed.Add(1)
		p.failPage(ctx, summary.RunID, page, stageError(StageTriage, page.Path, err))
		return
	}
	summary.Filed.Add(1)
	if filing.Low {
		summary.Flagged.Add(1)
	}
	metrics.PagesTotal.WithLabelValues(string(StageTriage), metrics.StatusOK).Inc()

	p.recordFiled(ctx, summary.RunID, res, filing)

	if filing.Low && p.corrector != nil && strings.TrimSpace(res.Text) != "" {
		p.correct(ctx, filing.ReviewPath, summary)
	}
}

// failPage marks page failed, counts it in metrics and records it. Callers update the summary.
func (p *Pipeline) failPage(ctx context.Context, runID string, page *models.PageImage, err *StageError) {
	if page.State != models.StateFailed {
		_ = page.Advance(models.StateFailed)
	}
	metrics.PagesTotal.WithLabelValues(string(err.Stage), metrics.StatusFailed).Inc()
	p.logger.Warn("page failed",
		zap.String("stage", string(err.Stage)),
		zap.String("document", page.Document),
		zap.Int("page", page.PageIndex),
		zap.String("image", page.Name()),
		zap.Error(err.Err),
	)
	if p.ledger == nil {
		return
	}
	rec := &models.PageRecord{
		ID:          page.ID,
		RunID:       runID,
		Document:    page.Document,
		PageIndex:   page.PageIndex,
		ImagePath:   page.Path,
		State:       page.State,
		FailedStage: string(err.Stage),
		Error:       err.Err.Error(),
		UpdatedAt:   time.Now().UTC(),
	}
	if lerr := p.ledger.UpsertPage(ctx, rec); lerr != nil {
		p.logger.Warn("ledger: upsert page failed", zap.String("image", page.Name()), zap.Error(lerr))
	}
}

// recordFiled updates the ledger and keyword index. Failures are logged only.
func (p *Pipeline) recordFiled(ctx context.Context, runID string, res *models.RecognitionResult, filing *triage.Filing) {
	page := res.Page
	if p.ledger != nil {
		rec := &models.PageRecord{
			ID:         page.ID,
			RunID:      runID,
			Document:   page.Document,
			PageIndex:  page.PageIndex,
			ImagePath:  page.Path,
			State:      page.State,
			WordCount:  res.WordCount,
			Flagged:    filing.Low,
			ResultPath: filing.ResultPath,
			ReviewPath: filing.ReviewPath,
			UpdatedAt:  time.Now().UTC(),
		}
		if res.Confidence.Defined() {
			mean := res.Confidence.Mean
			rec.Confidence = &mean
		}
		if err := p.ledger.UpsertPage(ctx, rec); err != nil {
			p.logger.Warn("ledger: upsert page failed", zap.String("image", page.Name()), zap.Error(err))
		}
	}
	if p.index != nil {
		if err := p.index.Index(ctx, page.ID, keyword.NewPageDoc(res, filing.Low)); err != nil {
			p.logger.Warn("index: add page failed", zap.String("image", page.Name()), zap.Error(err))
		}
	}
}

func (p *Pipeline) correct(ctx context.Context, flaggedPath string, summary *models.BatchSummary) {
	out, err := p.corrector.CorrectFile(ctx, flaggedPath)
	if err != nil {
		summary.CorrectionsFailed.Add(1)
		metrics.CorrectionsTotal.WithLabelValues(metrics.StatusFailed).Inc()
		p.logger.Warn("correction failed",
			zap.String("stage", string(StageCorrect)),
			zap.String("file", filepath.Base(flaggedPath)),
			zap.Error(err),
		)
		return
	}
	summary.CorrectionsOK.Add(1)
	metrics.CorrectionsTotal.WithLabelValues(metrics.StatusOK).Inc()
	p.logger.Debug("corrected result", zap.String("file", filepath.Base(flaggedPath)), zap.String("output", out))
}
