// Package metrics defines the Prometheus collectors for fault ingestion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "faultline"
	subsystem = "ingest"
)

// Submitter labels.
const (
	SubmitterJSON  = "json"
	SubmitterTrace = "trace"
	SubmitterError = "error"
	SubmitterLog   = "log"
)

// Outcome labels.
const (
	OutcomeStored      = "stored"
	OutcomeParseError  = "parse_error"
	OutcomeInvalid     = "invalid"
	OutcomeStoreError  = "store_error"
	OutcomeRateLimited = "rate_limited"
	OutcomeDropped     = "dropped"
)

// Ingest holds the ingestion collectors. A nil *Ingest records nothing.
type Ingest struct {
	// SubmissionsTotal counts submissions by submitter and outcome.
	SubmissionsTotal *prometheus.CounterVec

	// NewFaultsTotal counts first sightings of exact faults.
	NewFaultsTotal prometheus.Counter

	// NewFaultStrandsTotal counts first sightings of fault strands.
	NewFaultStrandsTotal prometheus.Counter

	// StoreDurationSeconds measures the store round trip by outcome.
	StoreDurationSeconds *prometheus.HistogramVec

	// PublishFailuresTotal counts feed events the publisher rejected.
	PublishFailuresTotal prometheus.Counter

	// QueueDepth tracks jobs waiting in the asynchronous worker pool.
	QueueDepth prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Ingest {
	factory := promauto.With(reg)

	return &Ingest{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "submissions_total",
				Help:      "Total fault submissions by submitter and outcome",
			},
			[]string{"submitter", "outcome"},
		),

		NewFaultsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "new_faults_total",
				Help:      "Total exact faults stored for the first time",
			},
		),

		NewFaultStrandsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "new_fault_strands_total",
				Help:      "Total fault strands stored for the first time",
			},
		),

		StoreDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "store_duration_seconds",
				Help:      "Time to resolve and record one occurrence in seconds",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"outcome"},
		),

		PublishFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "publish_failures_total",
				Help:      "Total feed events that could not be published",
			},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "queue_depth",
				Help:      "Occurrences waiting in the asynchronous ingest queue",
			},
		),
	}
}

// RecordSubmission counts one submission.
func (m *Ingest) RecordSubmission(submitter, outcome string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(submitter, outcome).Inc()
}

// RecordStore records a completed store call.
func (m *Ingest) RecordStore(d time.Duration, newFault, newStrand bool, err error) {
	if m == nil {
		return
	}

	outcome := OutcomeStored
	if err != nil {
		outcome = OutcomeStoreError
	}
	m.StoreDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())

	if newFault {
		m.NewFaultsTotal.Inc()
	}
	if newStrand {
		m.NewFaultStrandsTotal.Inc()
	}
}

// RecordPublishFailure counts one failed publish.
func (m *Ingest) RecordPublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailuresTotal.Inc()
}

// SetQueueDepth reports the worker pool backlog.
func (m *Ingest) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
