// Package keyword provides full-text search over filed OCR results.
package keyword

import (
	"context"

	"github.com/hyperjump/yomitori/internal/models"
)

// PageDoc is the indexed form of one filed page.
type PageDoc struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Document   string  `json:"document"`
	PageIndex  int     `json:"page_index"`
	Flagged    bool    `json:"flagged"`
	Confidence float64 `json:"confidence"`
}

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FuzzyEnabled matches terms within Fuzziness edits, which tolerates OCR misreads.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default 1.
	Fuzziness int
}

// Index defines keyword search operations.
type Index interface {
	Index(ctx context.Context, id string, doc *PageDoc) error
	Search(ctx context.Context, q models.SearchQuery, opts *SearchOptions) ([]*models.SearchHit, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of pages in the index.
	DocCount() (uint64, error)
	Close() error
}

// NewPageDoc builds the indexed form of a recognition result.
func NewPageDoc(res *models.RecognitionResult, flagged bool) *PageDoc {
	return &PageDoc{
		Title:      res.Page.Name(),
		Content:    res.Text,
		Document:   res.Page.Document,
		PageIndex:  res.Page.PageIndex,
		Flagged:    flagged,
		Confidence: res.Confidence.Mean,
	}
}
