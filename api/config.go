// Package api provides the HTTP surface for submitting faults and reading
// the occurrence feed.
package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/ratelimit"
)

const (
	// DefaultFeedCount is the page size when count is omitted.
	DefaultFeedCount = 50

	// MaxFeedCount bounds a single feed page.
	MaxFeedCount = 1000
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// EnableMetrics serves /metrics from Registry and instruments every
	// route. Ignored when Registry is nil.
	EnableMetrics bool

	// Registry holds the ingest and HTTP collectors.
	Registry *prometheus.Registry

	// Metrics counts rejected submissions. May be nil.
	Metrics *metrics.Ingest

	// Limiter rate limits the submission routes. Nil disables limiting.
	Limiter *ratelimit.Limiter
}
