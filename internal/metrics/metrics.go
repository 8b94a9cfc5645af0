// Package metrics instruments internal/convert's orchestrator with
// Prometheus counters/histograms, in the same package-level
// promauto-registered-var style as the pack's metrics packages (e.g.
// ManuGH-xg2g's internal/metrics/transcoder.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConversionsStarted counts Conversion.Execute calls that pass the
	// validity and already-executed checks and begin executing.
	ConversionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convert_conversions_started_total",
		Help: "Total conversions that began executing",
	})

	// ConversionsFinished counts terminal outcomes by state.
	ConversionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convert_conversions_finished_total",
		Help: "Total conversions that reached a terminal state",
	}, []string{"state"})

	// ConversionDuration tracks wall-clock Execute duration.
	ConversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "convert_conversion_duration_seconds",
		Help:    "Duration of Conversion.Execute calls",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
	})

	// TracksDiscarded counts discarded tracks by type and reason.
	TracksDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convert_tracks_discarded_total",
		Help: "Total input tracks discarded during planning",
	}, []string{"type", "reason"})

	// TracksUtilized counts tracks that made it into the output.
	TracksUtilized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convert_tracks_utilized_total",
		Help: "Total input tracks carried into the output",
	}, []string{"type", "path"}) // path: "copy" or "transcode"

	// CapabilityProbes counts encoder capability checks, split by
	// whether a trial encode was required (spec.md §4.2).
	CapabilityProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convert_capability_probes_total",
		Help: "Total encoder capability probes",
	}, []string{"kind", "trial_encode"})
)
