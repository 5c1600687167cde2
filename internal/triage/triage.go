// Package triage classifies recognition results by confidence and files them
// to the results and manual-review directories.
package triage

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/yomitori/internal/models"
)

// LowConfidenceSuffix is appended to the image stem for flagged copies.
const LowConfidenceSuffix = "_low_confidence"

const separator = "--------------------------------------------------"

// Classify reports whether a result with the given confidence is low.
// Results with no valid token confidences are always low.
func Classify(agg models.Aggregate, threshold float64) bool {
	return !agg.Defined() || agg.Mean < threshold
}

// Header is the metadata block at the top of a result file.
type Header struct {
	PSM        int
	Image      string
	WordCount  int
	Confidence float64
	// HasConfidence is false when the page had no valid token confidences.
	HasConfidence bool
}

// Format renders a result file: header, separator, blank line, cleaned text.
func Format(res *models.RecognitionResult, psm int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OCR Results - PSM %d\n", psm)
	fmt.Fprintf(&b, "Image: %s\n", res.Page.Name())
	fmt.Fprintf(&b, "Word count: %d\n", res.WordCount)
	if res.Confidence.Defined() {
		fmt.Fprintf(&b, "Confidence: %.1f%%\n", res.Confidence.Mean)
	}
	b.WriteString(separator + "\n\n")
	b.WriteString(res.Text)
	return b.String()
}

// ErrNoHeader is returned by ParseHeader when the content is not a result file.
var ErrNoHeader = errors.New("not an OCR result file")

// ParseHeader reads the header of a result file and returns it with the body text.
func ParseHeader(content string) (Header, string, error) {
	var h Header
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), len(content)+1)

	if !sc.Scan() {
		return h, "", ErrNoHeader
	}
	first, ok := strings.CutPrefix(sc.Text(), "OCR Results - PSM ")
	if !ok {
		return h, "", ErrNoHeader
	}
	psm, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return h, "", fmt.Errorf("%w: bad psm %q", ErrNoHeader, first)
	}
	h.PSM = psm

	consumed := len(sc.Text()) + 1
	for sc.Scan() {
		line := sc.Text()
		consumed += len(line) + 1
		if line == separator {
			body := ""
			if consumed < len(content) {
				body = strings.TrimPrefix(content[consumed:], "\n")
			}
			return h, body, nil
		}
		key, val, found := strings.Cut(line, ": ")
		if !found {
			return h, "", fmt.Errorf("%w: bad header line %q", ErrNoHeader, line)
		}
		switch key {
		case "Image":
			h.Image = val
		case "Word count":
			if h.WordCount, err = strconv.Atoi(val); err != nil {
				return h, "", fmt.Errorf("%w: bad word count %q", ErrNoHeader, val)
			}
		case "Confidence":
			c, err := strconv.ParseFloat(strings.TrimSuffix(val, "%"), 64)
			if err != nil {
				return h, "", fmt.Errorf("%w: bad confidence %q", ErrNoHeader, val)
			}
			h.Confidence = c
			h.HasConfidence = true
		}
	}
	return h, "", fmt.Errorf("%w: missing separator", ErrNoHeader)
}
