// Package normalize converts page images to single-channel grayscale.
package normalize

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/yomitori/internal/models"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Grayscale converts img to 8-bit luminance using ITU-R 601-2 weights.
// Gray input is copied unchanged, so the conversion is idempotent.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	switch src := img.(type) {
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copy(out.Pix[out.PixOffset(b.Min.X, y):out.PixOffset(b.Max.X, y)],
				src.Pix[src.PixOffset(b.Min.X, y):src.PixOffset(b.Max.X, y)])
		}
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				i := src.PixOffset(x, y)
				out.Pix[out.PixOffset(x, y)] = luma(uint32(src.Pix[i]), uint32(src.Pix[i+1]), uint32(src.Pix[i+2]))
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				out.Pix[out.PixOffset(x, y)] = luma(r>>8, g>>8, bl>>8)
			}
		}
	}
	return out
}

func luma(r, g, b uint32) uint8 {
	return uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
}

// File decodes src, converts it to grayscale, and writes it to dstDir under the
// same name and format. It returns the written path.
func File(src, dstDir string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", filepath.Base(src), err)
	}
	gray := Grayscale(img)

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return "", fmt.Errorf("create grayscale dir: %w", err)
	}
	dst := filepath.Join(dstDir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if err := encode(out, gray, filepath.Ext(src)); err != nil {
		out.Close()
		return "", fmt.Errorf("encode %s: %w", filepath.Base(dst), err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

func encode(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return png.Encode(w, img)
	}
}

// Normalizer moves pages from rasterized to normalized.
type Normalizer struct {
	mode   models.ColorMode
	logger *zap.Logger
}

// Option configures the Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// New creates a Normalizer for the given target color mode.
func New(mode models.ColorMode, opts ...Option) *Normalizer {
	n := &Normalizer{mode: mode, logger: zap.NewNop()}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize converts page into dstDir and advances it to normalized. In color
// mode the page keeps its raster path. On error the page is left untouched.
func (n *Normalizer) Normalize(page *models.PageImage, dstDir string) error {
	if _, err := page.State.Next(models.StateNormalized); err != nil {
		return err
	}
	if n.mode == models.ColorColor {
		return page.Advance(models.StateNormalized)
	}
	dst, err := File(page.Path, dstDir)
	if err != nil {
		return err
	}
	n.logger.Debug("normalized page", zap.String("src", page.Path), zap.String("dst", dst))
	page.Path = dst
	page.ColorMode = models.ColorGrayscale
	return page.Advance(models.StateNormalized)
}
