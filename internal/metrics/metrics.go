// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors recorded by the pipeline.
type Metrics struct {
	Runs        *prometheus.CounterVec
	Degenerate  *prometheus.CounterVec
	Matches     prometheus.Histogram
	RunDuration prometheus.Histogram
}

// New registers the collectors with r.
func New(r prometheus.Registerer) *Metrics {
	return &Metrics{
		Runs: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: "synthcorr",
			Name:      "runs_total",
			Help:      "Pipeline runs by transform kind",
		}, []string{"kind"}),
		Degenerate: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: "synthcorr",
			Name:      "degenerate_images_total",
			Help:      "Images that produced an empty correspondence set, by reason",
		}, []string{"reason"}),
		Matches: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Namespace: "synthcorr",
			Name:      "exact_matches",
			Help:      "Exact matches found per image before final subsampling",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		RunDuration: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Namespace: "synthcorr",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one pipeline run",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
