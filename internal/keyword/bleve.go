package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/yomitori/internal/models"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, pageMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryIndex creates an in-memory Bleve index.
func NewMemoryIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(pageMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func pageMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase, stop words, no stemming): OCR output is full of
	// partial words and stemming turns misreads into unrelated stems.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)

	documentFieldMapping := bleve.NewTextFieldMapping()
	documentFieldMapping.Analyzer = keywordanalyzer.Name
	docMapping.AddFieldMappingsAt("document", documentFieldMapping)

	docMapping.AddFieldMappingsAt("flagged", bleve.NewBooleanFieldMapping())
	docMapping.AddFieldMappingsAt("page_index", bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt("confidence", bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("page", docMapping)
	im.DefaultType = "page"
	im.DefaultMapping = docMapping
	return im
}

// Index indexes a page by id. Indexing an existing id replaces it.
func (b *BleveIndex) Index(ctx context.Context, id string, doc *PageDoc) error {
	return b.index.Index(id, doc)
}

// Search runs q over title and content and returns up to q.Limit hits with
// highlighted content snippets.
func (b *BleveIndex) Search(ctx context.Context, q models.SearchQuery, opts *SearchOptions) ([]*models.SearchHit, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	fuzzy := false
	fuzziness := 1
	if opts != nil {
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var textQuery blevequery.Query
	if fuzzy {
		textQuery = buildFuzzyQuery(q.Query, fuzziness)
	} else {
		textQuery = bleve.NewMatchQuery(q.Query)
	}
	final := textQuery
	if q.FlaggedOnly {
		flagged := bleve.NewBoolFieldQuery(true)
		flagged.SetField("flagged")
		final = bleve.NewConjunctionQuery(textQuery, flagged)
	}

	req := bleve.NewSearchRequestOptions(final, q.Limit, 0, false)
	req.Fields = []string{"title", "document", "flagged"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("content")
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]*models.SearchHit, len(results.Hits))
	for i, hit := range results.Hits {
		h := &models.SearchHit{ID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["title"].(string); ok {
			h.Title = v
		}
		if v, ok := hit.Fields["document"].(string); ok {
			h.Document = v
		}
		if v, ok := hit.Fields["flagged"].(bool); ok {
			h.Flagged = v
		}
		if frags := hit.Fragments["content"]; len(frags) > 0 {
			h.Snippet = frags[0]
		}
		hits[i] = h
	}
	return hits, nil
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per query term.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(queryStr))
	if len(terms) == 0 {
		return bleve.NewMatchQuery(queryStr)
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a page from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of pages in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
