package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/yomitori/internal/fixtures"
	"github.com/hyperjump/yomitori/internal/models"
)

func writePDF(t *testing.T, dir, name string, pages int) models.Document {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := fixtures.WriteFile(path, fixtures.MinimalPDF(pages)); err != nil {
		t.Fatal(err)
	}
	return models.NewDocument(path, models.KindPDF)
}

// fakeRender writes a small PNG per page; later pages finish first to exercise ordering.
func fakeRender(total int) RenderFunc {
	return func(ctx context.Context, pdfPath string, page int, outPath string) error {
		time.Sleep(time.Duration(total-page) * 5 * time.Millisecond)
		return fixtures.WritePNG(outPath, fixtures.ColorImage(10+page, 8))
	}
}

func TestPageFileName(t *testing.T) {
	tests := []struct {
		stem        string
		page, total int
		ext         string
		want        string
	}{
		{"letter", 1, 1, "png", "letter.png"},
		{"ledger", 1, 3, "png", "ledger_page_001.png"},
		{"ledger", 12, 120, "jpg", "ledger_page_012.jpg"},
		{"ledger", 120, 120, "png", "ledger_page_120.png"},
	}
	for _, tt := range tests {
		if got := PageFileName(tt.stem, tt.page, tt.total, tt.ext); got != tt.want {
			t.Errorf("PageFileName(%q, %d, %d, %q) = %q, want %q", tt.stem, tt.page, tt.total, tt.ext, got, tt.want)
		}
	}
}

func TestPageCount(t *testing.T) {
	dir := t.TempDir()
	doc := writePDF(t, dir, "three.pdf", 3)
	n, err := PageCount(doc.Path)
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != 3 {
		t.Errorf("PageCount = %d, want 3", n)
	}
}

func TestPageCount_corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pdf")
	if err := fixtures.WriteFile(path, fixtures.CorruptPDF()); err != nil {
		t.Fatal(err)
	}
	if _, err := PageCount(path); err == nil {
		t.Error("expected error for corrupt PDF")
	}
	if _, err := PageCount(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("expected error for missing PDF")
	}
}

func TestRasterize_ordersPages(t *testing.T) {
	dir := t.TempDir()
	doc := writePDF(t, dir, "ledger.pdf", 4)
	out := filepath.Join(dir, "converted")

	r := New("pdftoppm", 300, "png", WithWorkers(4), WithRenderer(fakeRender(4)))
	pages, failed, err := r.Rasterize(context.Background(), doc, out)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("unexpected page failures: %v", failed)
	}
	if len(pages) != 4 {
		t.Fatalf("got %d pages, want 4", len(pages))
	}
	for i, p := range pages {
		if p.PageIndex != i+1 {
			t.Errorf("pages[%d].PageIndex = %d", i, p.PageIndex)
		}
		want := fmt.Sprintf("ledger_page_%03d.png", i+1)
		if p.Name() != want {
			t.Errorf("pages[%d].Name() = %q, want %q", i, p.Name(), want)
		}
		if p.Width != 10+i+1 || p.Height != 8 {
			t.Errorf("pages[%d] dimensions = %dx%d", i, p.Width, p.Height)
		}
		if p.State != models.StateRasterized {
			t.Errorf("pages[%d].State = %q", i, p.State)
		}
		if p.ColorMode != models.ColorColor {
			t.Errorf("pages[%d].ColorMode = %q", i, p.ColorMode)
		}
		if p.Document != "ledger.pdf" {
			t.Errorf("pages[%d].Document = %q", i, p.Document)
		}
	}
}

func TestRasterize_singlePageNaming(t *testing.T) {
	dir := t.TempDir()
	doc := writePDF(t, dir, "letter.pdf", 1)
	r := New("pdftoppm", 150, "jpeg", WithRenderer(func(ctx context.Context, _ string, _ int, outPath string) error {
		return fixtures.WriteJPEG(outPath, fixtures.ColorImage(20, 20))
	}))
	pages, _, err := r.Rasterize(context.Background(), doc, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].Name() != "letter.jpg" {
		t.Fatalf("unexpected pages: %+v", pages)
	}
}

func TestRasterize_boundedWorkers(t *testing.T) {
	dir := t.TempDir()
	doc := writePDF(t, dir, "big.pdf", 6)
	var inFlight, peak atomic.Int32
	render := func(ctx context.Context, _ string, _ int, outPath string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return fixtures.WritePNG(outPath, fixtures.ColorImage(4, 4))
	}
	r := New("pdftoppm", 300, "png", WithWorkers(2), WithRenderer(render))
	if _, _, err := r.Rasterize(context.Background(), doc, filepath.Join(dir, "out")); err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestRasterize_pageFailureSkipsPage(t *testing.T) {
	dir := t.TempDir()
	doc := writePDF(t, dir, "broken.pdf", 3)
	out := filepath.Join(dir, "out")
	boom := errors.New("render failed")
	r := New("pdftoppm", 300, "png", WithRenderer(func(ctx context.Context, _ string, page int, outPath string) error {
		if page == 2 {
			return boom
		}
		return fixtures.WritePNG(outPath, fixtures.ColorImage(4, 4))
	}))
	pages, failed, err := r.Rasterize(context.Background(), doc, out)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if len(pages) != 2 || pages[0].PageIndex != 1 || pages[1].PageIndex != 3 {
		t.Fatalf("expected pages 1 and 3, got %+v", pages)
	}
	if len(failed) != 1 {
		t.Fatalf("got %d page failures, want 1", len(failed))
	}
	pe := failed[0]
	if !errors.Is(pe, boom) {
		t.Errorf("page error = %v, want render error", pe)
	}
	if pe.Page.PageIndex != 2 || pe.Page.State != models.StateFailed || pe.Page.Document != "broken.pdf" {
		t.Errorf("failed page = %+v", pe.Page)
	}
	if pe.Page.Path != filepath.Join(out, "broken_page_002.png") || pe.Page.ID == "" {
		t.Errorf("failed page path = %q id = %q", pe.Page.Path, pe.Page.ID)
	}
}

func TestRasterize_undecodablePageSkipped(t *testing.T) {
	dir := t.TempDir()
	doc := writePDF(t, dir, "garbled.pdf", 2)
	r := New("pdftoppm", 300, "png", WithRenderer(func(ctx context.Context, _ string, page int, outPath string) error {
		if page == 1 {
			return os.WriteFile(outPath, []byte("not an image"), 0644)
		}
		return fixtures.WritePNG(outPath, fixtures.ColorImage(4, 4))
	}))
	pages, failed, err := r.Rasterize(context.Background(), doc, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if len(pages) != 1 || pages[0].PageIndex != 2 {
		t.Errorf("pages = %+v", pages)
	}
	if len(failed) != 1 || failed[0].Page.PageIndex != 1 {
		t.Errorf("failed = %v", failed)
	}
}

func TestRasterize_unwritableOutput(t *testing.T) {
	dir := t.TempDir()
	doc := writePDF(t, dir, "doc.pdf", 1)
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	r := New("pdftoppm", 300, "png", WithRenderer(fakeRender(1)))
	if _, _, err := r.Rasterize(context.Background(), doc, filepath.Join(blocker, "out")); err == nil {
		t.Error("expected error when output dir cannot be created")
	}
}

func TestImagePage_grayDetection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	if err := fixtures.WritePNG(path, fixtures.TextImage("Hello")); err != nil {
		t.Fatal(err)
	}
	page, err := ImagePage(path, "scan.png", 1)
	if err != nil {
		t.Fatal(err)
	}
	if page.ColorMode != models.ColorColor {
		t.Errorf("RGBA image should be color, got %q", page.ColorMode)
	}
	if page.ID == "" {
		t.Error("expected page ID")
	}

	grayPath := filepath.Join(dir, "gray.png")
	if err := fixtures.WritePNG(grayPath, image.NewGray(image.Rect(0, 0, 5, 5))); err != nil {
		t.Fatal(err)
	}
	gray, err := ImagePage(grayPath, "gray.png", 1)
	if err != nil {
		t.Fatal(err)
	}
	if gray.ColorMode != models.ColorGrayscale {
		t.Errorf("gray image should be grayscale, got %q", gray.ColorMode)
	}
}

func TestRasterize_pdftoppm(t *testing.T) {
	bin, err := exec.LookPath("pdftoppm")
	if err != nil {
		t.Skip("pdftoppm not installed in PATH")
	}
	dir := t.TempDir()
	doc := writePDF(t, dir, "blank.pdf", 2)
	r := New(bin, 72, "png")
	pages, failed, err := r.Rasterize(context.Background(), doc, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if len(pages) != 2 || len(failed) != 0 {
		t.Fatalf("got %d pages", len(pages))
	}
	if pages[0].Width != 200 || pages[0].Height != 200 {
		t.Errorf("page size at 72 DPI = %dx%d, want 200x200", pages[0].Width, pages[0].Height)
	}
}
