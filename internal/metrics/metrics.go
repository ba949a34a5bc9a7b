// Package metrics defines the prometheus instruments of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvartali_submissions_total",
			Help: "Rating submissions by category and outcome",
		},
		[]string{"category", "outcome"},
	)

	PushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvartali_pushes_total",
			Help: "Full record-set pushes delivered to subscribers, by backend",
		},
		[]string{"backend"},
	)

	StoredRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kvartali_stored_records",
		Help: "Number of rating records in the latest pushed set",
	})

	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kvartali_aggregation_duration_seconds",
		Help:    "Time spent aggregating and filtering one view",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kvartali_live_sessions",
		Help: "Open websocket sessions",
	})

	CatalogDiagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvartali_catalog_diagnostics_total",
			Help: "Catalog pieces substituted by defaults at startup",
		},
		[]string{"field"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvartali_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// RecordSubmission counts one submission outcome.
func RecordSubmission(category, outcome string) {
	SubmissionsTotal.WithLabelValues(category, outcome).Inc()
}

// RecordPush counts a fan-out and updates the record gauge.
func RecordPush(backend string, records int) {
	PushesTotal.WithLabelValues(backend).Inc()
	StoredRecords.Set(float64(records))
}

// ObserveAggregation records the time since start.
func ObserveAggregation(start time.Time) {
	AggregationDuration.Observe(time.Since(start).Seconds())
}
