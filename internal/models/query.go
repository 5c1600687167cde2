package models

import "fmt"

// SearchQuery is a full-text search request over filed results.
type SearchQuery struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit,omitempty"`
	FlaggedOnly bool   `json:"flagged_only,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// SearchHit is a single search result.
type SearchHit struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Document string  `json:"document"`
	Flagged  bool    `json:"flagged"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet,omitempty"`
}
