package models

import "time"

// RunRecord is one batch run as stored in the ledger.
type RunRecord struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Summary    SummarySnapshot `json:"summary"`
}

// PageRecord is the latest known outcome for one page image.
type PageRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Document    string    `json:"document"`
	PageIndex   int       `json:"page_index"`
	ImagePath   string    `json:"image_path"`
	State       PageState `json:"state"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	WordCount   int       `json:"word_count"`
	Flagged     bool      `json:"flagged"`
	ResultPath  string    `json:"result_path,omitempty"`
	ReviewPath  string    `json:"review_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PageCounts aggregates page records by state.
type PageCounts struct {
	Total   int64 `json:"total"`
	Filed   int64 `json:"filed"`
	Flagged int64 `json:"flagged"`
	Failed  int64 `json:"failed"`
}
