package models

import (
	"sync/atomic"
	"time"
)

// BatchSummary holds cumulative counters for one run. Counters are safe for concurrent use.
type BatchSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	DocumentsTotal     atomic.Int64
	DocumentsSucceeded atomic.Int64
	DocumentsFailed    atomic.Int64

	PagesRasterized   atomic.Int64
	RasterizeFailed   atomic.Int64
	NormalizeOK       atomic.Int64
	NormalizeFailed   atomic.Int64
	RecognizeOK       atomic.Int64
	RecognizeFailed   atomic.Int64
	Filed             atomic.Int64
	Flagged           atomic.Int64
	TriageFailed      atomic.Int64
	CorrectionsOK     atomic.Int64
	CorrectionsFailed atomic.Int64
	TotalWords        atomic.Int64
}

// SummarySnapshot is a plain copy of BatchSummary for output and persistence.
type SummarySnapshot struct {
	RunID              string    `json:"run_id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	DocumentsTotal     int64     `json:"documents_total"`
	DocumentsSucceeded int64     `json:"documents_succeeded"`
	DocumentsFailed    int64     `json:"documents_failed"`
	PagesRasterized    int64     `json:"pages_rasterized"`
	RasterizeFailed    int64     `json:"rasterize_failed"`
	NormalizeOK        int64     `json:"normalize_ok"`
	NormalizeFailed    int64     `json:"normalize_failed"`
	RecognizeOK        int64     `json:"recognize_ok"`
	RecognizeFailed    int64     `json:"recognize_failed"`
	Filed              int64     `json:"filed"`
	Flagged            int64     `json:"flagged"`
	TriageFailed       int64     `json:"triage_failed"`
	CorrectionsOK      int64     `json:"corrections_ok"`
	CorrectionsFailed  int64     `json:"corrections_failed"`
	TotalWords         int64     `json:"total_words"`
}

// Snapshot returns the current counter values.
func (s *BatchSummary) Snapshot() SummarySnapshot {
	return SummarySnapshot{
		RunID:              s.RunID,
		StartedAt:          s.StartedAt,
		FinishedAt:         s.FinishedAt,
		DocumentsTotal:     s.DocumentsTotal.Load(),
		DocumentsSucceeded: s.DocumentsSucceeded.Load(),
		DocumentsFailed:    s.DocumentsFailed.Load(),
		PagesRasterized:    s.PagesRasterized.Load(),
		RasterizeFailed:    s.RasterizeFailed.Load(),
		NormalizeOK:        s.NormalizeOK.Load(),
		NormalizeFailed:    s.NormalizeFailed.Load(),
		RecognizeOK:        s.RecognizeOK.Load(),
		RecognizeFailed:    s.RecognizeFailed.Load(),
		Filed:              s.Filed.Load(),
		Flagged:            s.Flagged.Load(),
		TriageFailed:       s.TriageFailed.Load(),
		CorrectionsOK:      s.CorrectionsOK.Load(),
		CorrectionsFailed:  s.CorrectionsFailed.Load(),
		TotalWords:         s.TotalWords.Load(),
	}
}

// AverageWords returns words per successfully recognized image, or 0.
func (s SummarySnapshot) AverageWords() float64 {
	if s.RecognizeOK == 0 {
		return 0
	}
	return float64(s.TotalWords) / float64(s.RecognizeOK)
}

// ImagesAttempted returns the number of page images that reached recognition or failed before it.
func (s SummarySnapshot) ImagesAttempted() int64 {
	return s.NormalizeFailed + s.RecognizeOK + s.RecognizeFailed
}

// Failures returns every counted failure across stages, corrections excluded.
func (s SummarySnapshot) Failures() int64 {
	return s.DocumentsFailed + s.RasterizeFailed + s.NormalizeFailed + s.RecognizeFailed + s.TriageFailed
}
