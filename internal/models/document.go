// Package models defines core data structures for documents, page images, and recognition results.
package models

import (
	"path/filepath"
	"strings"
)

// DocumentKind is the type of source file a document was ingested from.
type DocumentKind string

const (
	KindPDF   DocumentKind = "pdf"
	KindImage DocumentKind = "image"
)

// ColorMode is the color representation of a page image.
type ColorMode string

const (
	ColorGrayscale ColorMode = "grayscale"
	ColorColor     ColorMode = "color"
)

// Document is a source file. It is never modified by the pipeline.
type Document struct {
	Path string       `json:"path"`
	Name string       `json:"name"`
	Stem string       `json:"stem"`
	Kind DocumentKind `json:"kind"`
}

// NewDocument builds a Document from a path.
func NewDocument(path string, kind DocumentKind) Document {
	name := filepath.Base(path)
	return Document{
		Path: path,
		Name: name,
		Stem: Stem(name),
		Kind: kind,
	}
}

// Stem returns the file name without its extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PageImage is one rasterized page of a document. The normalizer produces a new
// artifact for the same page, so Path changes while ID stays fixed.
type PageImage struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	PageIndex int       `json:"page_index"`
	Path      string    `json:"path"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	ColorMode ColorMode `json:"color_mode"`
	State     PageState `json:"state"`
}

// Name returns the image file name.
func (p *PageImage) Name() string {
	return filepath.Base(p.Path)
}

// Stem returns the image file name without extension. Output files are keyed by it.
func (p *PageImage) Stem() string {
	return Stem(p.Path)
}
