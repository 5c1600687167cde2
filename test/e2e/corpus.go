// Package e2e runs the whole batch against a scripted archive of scanned documents.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/yomitori/internal/raster"
)

// ScannedPage is the text and per-word confidence the engine reports for one page.
type ScannedPage struct {
	Text       string
	Confidence int
}

// ScannedDocument is one PDF in the archive.
type ScannedDocument struct {
	Name  string
	Pages []ScannedPage
}

// QueryCase is a search expected to hit at least one of ExpectedImages.
type QueryCase struct {
	Query          string
	ExpectedImages []string
	FlaggedOnly    bool
}

// Corpus is the archive plus the queries run against it.
type Corpus struct {
	Documents []ScannedDocument
	Queries   []QueryCase
}

var archive = []ScannedDocument{
	{"harbor_ledger.pdf", []ScannedPage{
		{"Harbor master ledger of arriving schooners and cargo tonnage", 88},
		{"Schooner Margaret unloaded salted cod and barrel staves", 91},
	}},
	{"parish_register.pdf", []ScannedPage{
		{"Parish register of baptisms recorded by the vicar", 42},
		{"Marriage banns read three Sundays before the wedding", 35},
		{"Burial entries faded beyond reading near the binding", 18},
	}},
	{"mill_payroll.pdf", []ScannedPage{
		{"Woolen mill payroll with weekly wages for spinners", 76},
	}},
	{"railway_timetable.pdf", []ScannedPage{
		{"Railway timetable for the coastal branch line", 95},
		{"Excursion fares to the lighthouse on summer Saturdays", 59},
	}},
	{"estate_survey.pdf", []ScannedPage{
		{"Estate survey of hedgerows orchards and tenant cottages", 67},
	}},
}

// BuildCorpus returns the archive with one query per page keyed on a phrase
// only that page contains, plus flagged-only queries for the review queue.
func BuildCorpus() *Corpus {
	c := &Corpus{Documents: archive}
	phrases := map[string]string{
		"harbor_ledger_page_001.png":     "cargo tonnage",
		"harbor_ledger_page_002.png":     "salted cod",
		"parish_register_page_001.png":   "baptisms",
		"parish_register_page_002.png":   "marriage banns",
		"parish_register_page_003.png":   "burial entries",
		"mill_payroll.png":               "spinners",
		"railway_timetable_page_001.png": "coastal branch",
		"railway_timetable_page_002.png": "lighthouse",
		"estate_survey.png":              "hedgerows",
	}
	for _, d := range c.Documents {
		for i := range d.Pages {
			img := d.ImageName(i)
			c.Queries = append(c.Queries, QueryCase{Query: phrases[img], ExpectedImages: []string{img}})
		}
	}
	c.Queries = append(c.Queries,
		QueryCase{Query: "register", ExpectedImages: []string{"parish_register_page_001.png"}, FlaggedOnly: true},
		QueryCase{Query: "lighthouse", ExpectedImages: []string{"railway_timetable_page_002.png"}, FlaggedOnly: true},
	)
	return c
}

// ImageName is the raster file name the pipeline gives page i.
func (d ScannedDocument) ImageName(i int) string {
	stem := strings.TrimSuffix(d.Name, ".pdf")
	return raster.PageFileName(stem, i+1, len(d.Pages), "png")
}

// Pages returns every page image name mapped to its scripted page.
func (c *Corpus) Pages() map[string]ScannedPage {
	out := make(map[string]ScannedPage)
	for _, d := range c.Documents {
		for i, p := range d.Pages {
			out[d.ImageName(i)] = p
		}
	}
	return out
}

// Flagged returns the page image names whose confidence is below threshold.
func (c *Corpus) Flagged(threshold float64) map[string]bool {
	out := make(map[string]bool)
	for name, p := range c.Pages() {
		if float64(p.Confidence) < threshold {
			out[name] = true
		}
	}
	return out
}

// TotalWords is the word count across the whole archive.
func (c *Corpus) TotalWords() int64 {
	var n int64
	for _, p := range c.Pages() {
		n += int64(len(strings.Fields(p.Text)))
	}
	return n
}

func (q QueryCase) String() string {
	if q.FlaggedOnly {
		return fmt.Sprintf("flagged/%s", q.Query)
	}
	return q.Query
}
