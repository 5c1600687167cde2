// Package deps checks that the external programs and language data the
// pipeline needs are installed. It never installs anything.
package deps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/recognize"
)

// ErrMissingDependency is returned when a required program or language pack is absent.
var ErrMissingDependency = errors.New("missing dependency")

var lookPath = exec.LookPath

// Item is the outcome of checking one dependency.
type Item struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Found    bool   `json:"found"`
	Detail   string `json:"detail,omitempty"`
	Err      error  `json:"-"`
}

// Report lists every checked dependency.
type Report struct {
	Items []Item `json:"items"`
}

// Err returns ErrMissingDependency wrapped with every failed required item, or nil.
func (r *Report) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Required && !it.Found {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrMissingDependency, it.Name, it.Err))
		}
	}
	return errors.Join(errs...)
}

// Print writes one line per item.
func (r *Report) Print(w io.Writer) {
	for _, it := range r.Items {
		status := "ok"
		switch {
		case !it.Found && it.Required:
			status = "MISSING"
		case !it.Found:
			status = "not found (optional)"
		}
		line := fmt.Sprintf("%-12s %s", it.Name, status)
		if it.Detail != "" {
			line += "  " + it.Detail
		}
		if !it.Found && it.Err != nil {
			line += "  (" + it.Err.Error() + ")"
		}
		fmt.Fprintln(w, line)
	}
}

type versioner interface {
	Version(ctx context.Context) (string, error)
}

// Check inspects pdftoppm and the OCR engine. pdftoppm is required only when
// a PDF input directory is configured.
func Check(ctx context.Context, cfg *config.Config, engine recognize.Engine) *Report {
	r := &Report{}

	pdftoppm := Item{Name: "pdftoppm", Required: cfg.Input.PDFDir != ""}
	if path, err := lookPath(cfg.Raster.PdftoppmPath); err != nil {
		pdftoppm.Err = err
	} else {
		pdftoppm.Found = true
		pdftoppm.Detail = path
	}
	r.Items = append(r.Items, pdftoppm)

	ocr := Item{Name: "ocr engine", Required: true}
	if engine == nil {
		ocr.Err = recognize.ErrEngineUnavailable
	} else if err := engine.Check(ctx); err != nil {
		ocr.Err = err
		ocr.Detail = engine.Name()
	} else {
		ocr.Found = true
		ocr.Detail = fmt.Sprintf("%s, language %s", engine.Name(), cfg.OCR.Language)
		if v, ok := engine.(versioner); ok {
			if version, err := v.Version(ctx); err == nil && version != "" {
				ocr.Detail += ", " + version
			}
		}
	}
	r.Items = append(r.Items, ocr)
	return r
}
