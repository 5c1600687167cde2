// Package cli formats batch summaries, review listings and search results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("invalid output format %q (use text or json)", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSummary writes the end-of-batch summary.
func WriteSummary(w io.Writer, s models.SummarySnapshot, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintln(w, "OCR processing complete.")
	fmt.Fprintf(w, "Images processed: %d/%d\n", s.RecognizeOK, s.ImagesAttempted())
	fmt.Fprintf(w, "Total words extracted: %d\n", s.TotalWords)
	fmt.Fprintf(w, "Average words per image: %.1f\n", utils.RoundTo(s.AverageWords(), 1))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Documents:   %d ok, %d failed (of %d)\n", s.DocumentsSucceeded, s.DocumentsFailed, s.DocumentsTotal)
	fmt.Fprintf(w, "Pages:       %d rasterized, %d failed\n", s.PagesRasterized, s.RasterizeFailed)
	fmt.Fprintf(w, "Normalize:   %d ok, %d failed\n", s.NormalizeOK, s.NormalizeFailed)
	fmt.Fprintf(w, "Recognize:   %d ok, %d failed\n", s.RecognizeOK, s.RecognizeFailed)
	fmt.Fprintf(w, "Triage:      %d filed, %d flagged for review, %d failed\n", s.Filed, s.Flagged, s.TriageFailed)
	if s.CorrectionsOK+s.CorrectionsFailed > 0 {
		fmt.Fprintf(w, "Corrections: %d ok, %d failed\n", s.CorrectionsOK, s.CorrectionsFailed)
	}
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Elapsed:     %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Run ID:      %s\n", s.RunID)
	return nil
}

// WriteReview writes the pages awaiting manual review.
func WriteReview(w io.Writer, pages []*models.PageRecord, threshold float64, format OutputFormat) error {
	if format == OutputJSON {
		if pages == nil {
			pages = []*models.PageRecord{}
		}
		return writeJSON(w, map[string]interface{}{"threshold": threshold, "pages": pages})
	}
	fmt.Fprintf(w, "%d page(s) below %.0f%% confidence\n\n", len(pages), threshold)
	for _, p := range pages {
		conf := "n/a"
		if p.Confidence != nil {
			conf = fmt.Sprintf("%.1f%%", *p.Confidence)
		}
		fmt.Fprintf(w, "%-32s page %3d  %7s  %4d words  %s\n",
			utils.Truncate(p.Document, 32), p.PageIndex, conf, p.WordCount, p.ReviewPath)
	}
	return nil
}

// WriteSearchResults writes search hits to w in the given format.
func WriteSearchResults(w io.Writer, query string, hits []*models.SearchHit, format OutputFormat) error {
	if format == OutputJSON {
		if hits == nil {
			hits = []*models.SearchHit{}
		}
		return writeJSON(w, map[string]interface{}{"query": query, "total": len(hits), "hits": hits})
	}
	fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(hits), query)
	for i, h := range hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		flag := ""
		if h.Flagged {
			flag = " [review]"
		}
		fmt.Fprintf(w, "%d. %s (%s) | Score: %.4f%s\n", i+1, h.Title, h.Document, h.Score, flag)
		fmt.Fprintf(w, "ID: %s\n", h.ID)
		if h.Snippet != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(h.Snippet, 200))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Status is the data shown by the status command.
type Status struct {
	Pages     models.PageCounts `json:"pages"`
	LastRun   *models.RunRecord `json:"last_run,omitempty"`
	DiskUsage map[string]int64  `json:"disk_usage_bytes"`
	Config    map[string]string `json:"config"`
}

// WriteStatus writes ledger counts, disk usage and configuration.
func WriteStatus(w io.Writer, st *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Pages: %d total, %d filed, %d flagged, %d failed\n",
		st.Pages.Total, st.Pages.Filed, st.Pages.Flagged, st.Pages.Failed)
	if st.LastRun != nil {
		state := "running"
		if st.LastRun.FinishedAt != nil {
			state = "finished " + st.LastRun.FinishedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "Last run: %s (%s)\n", st.LastRun.ID, state)
	}
	if len(st.DiskUsage) > 0 {
		fmt.Fprintln(w, "Disk usage:")
		for _, name := range sortedKeys(st.DiskUsage) {
			fmt.Fprintf(w, "  %-16s %s\n", name, FormatBytes(st.DiskUsage[name]))
		}
	}
	if len(st.Config) > 0 {
		fmt.Fprintln(w, "Config:")
		for _, name := range sortedKeys(st.Config) {
			fmt.Fprintf(w, "  %-16s %s\n", name, st.Config[name])
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
