// Package metrics defines Prometheus metrics for the OCR pipeline and HTTP API.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	DocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yomitori",
			Name:      "documents_total",
			Help:      "Documents processed, by outcome",
		},
		[]string{"status"}, // "succeeded" / "failed"
	)

	PagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yomitori",
			Name:      "pages_total",
			Help:      "Page images through each stage, by outcome",
		},
		[]string{"stage", "status"},
	)

	RecognitionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "yomitori",
			Name:      "recognition_duration_seconds",
			Help:      "OCR engine call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	PageConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "yomitori",
			Name:      "page_confidence",
			Help:      "Mean word confidence of recognized pages",
			Buckets:   prometheus.LinearBuckets(10, 10, 9),
		},
	)

	CorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yomitori",
			Name:      "corrections_total",
			Help:      "LLM correction requests, by outcome",
		},
		[]string{"status"},
	)
)

// Status label values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

var registerOnce sync.Once

// Register registers all pipeline and HTTP metrics with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DocumentsTotal)
		prometheus.MustRegister(PagesTotal)
		prometheus.MustRegister(RecognitionDuration)
		prometheus.MustRegister(PageConfidence)
		prometheus.MustRegister(CorrectionsTotal)
		prometheus.MustRegister(httpRequestDuration)
		prometheus.MustRegister(httpRequestsTotal)
	})
}
