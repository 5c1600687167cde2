// Package raster converts PDF documents into one raster image per page.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hyperjump/yomitori/internal/fileid"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"
)

// ErrNoPages is returned when a PDF parses but declares zero pages.
var ErrNoPages = errors.New("document has no pages")

// RenderFunc renders page (1-based) of the PDF at pdfPath to outPath.
type RenderFunc func(ctx context.Context, pdfPath string, page int, outPath string) error

// Rasterizer turns PDFs into page images.
type Rasterizer struct {
	pdftoppm string
	dpi      int
	format   string
	workers  int
	logger   *zap.Logger
	render   RenderFunc
}

// Option configures the Rasterizer.
type Option func(*Rasterizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Rasterizer) { r.logger = l }
}

// WithWorkers sets how many pages of one document render concurrently.
func WithWorkers(n int) Option {
	return func(r *Rasterizer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRenderer replaces the pdftoppm renderer.
func WithRenderer(fn RenderFunc) Option {
	return func(r *Rasterizer) { r.render = fn }
}

// New creates a Rasterizer. format is "png" or "jpeg".
func New(pdftoppmPath string, dpi int, format string, opts ...Option) *Rasterizer {
	r := &Rasterizer{
		pdftoppm: pdftoppmPath,
		dpi:      dpi,
		format:   format,
		workers:  2,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.render == nil {
		r.render = r.renderPdftoppm
	}
	return r
}

// Extension returns the file extension (without dot) of rendered pages.
func (r *Rasterizer) Extension() string {
	if r.format == "jpeg" {
		return "jpg"
	}
	return "png"
}

// PageError is a page that could not be rendered or read back. Page carries
// the intended output path and is already in the failed state.
type PageError struct {
	Page *models.PageImage
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page.PageIndex, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Rasterize renders every page of doc into outDir. Pages that render are
// returned in page order; pages that do not are returned as PageErrors, also
// in page order. The error is non-nil only when the document cannot be parsed
// or outDir cannot be created.
func (r *Rasterizer) Rasterize(ctx context.Context, doc models.Document, outDir string) ([]*models.PageImage, []*PageError, error) {
	n, err := PageCount(doc.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create raster dir: %w", err)
	}

	rendered := make([]*models.PageImage, n)
	failed := make([]*PageError, n)
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := 1; i <= n; i++ {
		i := i
		g.Go(func() error {
			out := filepath.Join(outDir, PageFileName(doc.Stem, i, n, r.Extension()))
			page, err := r.renderPage(ctx, doc, i, out)
			if err != nil {
				failed[i-1] = &PageError{
					Page: &models.PageImage{
						ID:        fileid.PageID(out),
						Document:  doc.Name,
						PageIndex: i,
						Path:      out,
						State:     models.StateFailed,
					},
					Err: err,
				}
				return nil
			}
			rendered[i-1] = page
			return nil
		})
	}
	_ = g.Wait()

	var pages []*models.PageImage
	var errs []*PageError
	for i := 0; i < n; i++ {
		if rendered[i] != nil {
			pages = append(pages, rendered[i])
		} else {
			errs = append(errs, failed[i])
		}
	}
	r.logger.Debug("rasterized document",
		zap.String("document", doc.Name),
		zap.Int("pages", n),
		zap.Int("failed", len(errs)),
		zap.Int("dpi", r.dpi),
	)
	return pages, errs, nil
}

func (r *Rasterizer) renderPage(ctx context.Context, doc models.Document, index int, out string) (*models.PageImage, error) {
	if err := r.render(ctx, doc.Path, index, out); err != nil {
		return nil, err
	}
	page, err := ImagePage(out, doc.Name, index)
	if err != nil {
		return nil, err
	}
	page.State = models.StateRasterized
	return page, nil
}

// PageFileName names the image for a page: "<stem>.<ext>" for single-page
// documents, "<stem>_page_NNN.<ext>" otherwise.
func PageFileName(stem string, page, total int, ext string) string {
	if total == 1 {
		return stem + "." + ext
	}
	return fmt.Sprintf("%s_page_%03d.%s", stem, page, ext)
}

// PageCount parses the PDF at path and returns its page count.
func PageCount(path string) (n int, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	n = rd.NumPage()
	if n <= 0 {
		return 0, ErrNoPages
	}
	return n, nil
}

// ImagePage reads an existing image file as a page of the named document.
func ImagePage(path, document string, index int) (*models.PageImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &models.PageImage{
		ID:        fileid.PageID(path),
		Document:  document,
		PageIndex: index,
		Path:      path,
		Width:     cfg.Width,
		Height:    cfg.Height,
		ColorMode: ColorModeOf(cfg),
	}, nil
}

// ColorModeOf reports grayscale for gray color models and color otherwise.
func ColorModeOf(cfg image.Config) models.ColorMode {
	if IsGray(cfg) {
		return models.ColorGrayscale
	}
	return models.ColorColor
}

func (r *Rasterizer) renderPdftoppm(ctx context.Context, pdfPath string, page int, outPath string) error {
	formatFlag := "-png"
	if r.format == "jpeg" {
		formatFlag = "-jpeg"
	}
	p := strconv.Itoa(page)
	prefix := strings.TrimSuffix(outPath, filepath.Ext(outPath))
	cmd := exec.CommandContext(ctx, r.pdftoppm,
		"-f", p, "-l", p,
		"-r", strconv.Itoa(r.dpi),
		formatFlag, "-singlefile",
		pdfPath, prefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("pdftoppm: %w: %s", err, msg)
		}
		return fmt.Errorf("pdftoppm: %w", err)
	}
	return nil
}
