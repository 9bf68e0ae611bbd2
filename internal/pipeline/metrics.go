package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments pipeline runs
type Metrics struct {
	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	EvidenceUsed  prometheus.Histogram
	Enrichment    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scitrue",
			Name:      "runs_total",
			Help:      "Verification runs by final state.",
		}, []string{"state"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scitrue",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scitrue",
			Name:      "cache_lookups_total",
			Help:      "Activity log lookups by result.",
		}, []string{"result"}),
		EvidenceUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scitrue",
			Name:      "evidence_blocks",
			Help:      "Evidence blocks placed in report prompts.",
			Buckets:   prometheus.LinearBuckets(1, 1, 15),
		}),
		Enrichment: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scitrue",
			Name:      "subclaim_metrics_total",
			Help:      "Subclaims by whether journal metrics were attached.",
		}, []string{"result"}),
	}
}
