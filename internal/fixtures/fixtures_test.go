package fixtures

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"
)

func TestMinimalPDF_pageCount(t *testing.T) {
	for _, n := range []int{1, 3} {
		data := MinimalPDF(n)
		r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("MinimalPDF(%d): parse error: %v", n, err)
		}
		if got := r.NumPage(); got != n {
			t.Errorf("MinimalPDF(%d): NumPage = %d", n, got)
		}
	}
}

func TestCorruptPDF_rejected(t *testing.T) {
	data := CorruptPDF()
	if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Error("expected parse error for corrupt PDF")
	}
}

func TestTextImage_writePNG(t *testing.T) {
	img := TextImage("Hello World", "Second line")
	path := filepath.Join(t.TempDir(), "nested", "text.png")
	if err := WritePNG(path, img); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}
