package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "middleman_exchanges_total",
			Help: "Proxied exchanges by terminal outcome",
		},
		[]string{"outcome"}, // upstream_failed|augment_succeeded|augment_skipped|upstream_unreachable
	)

	UpstreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "middleman_upstream_duration_seconds",
			Help:    "Latency of the upstream enrichment call",
			Buckets: prometheus.DefBuckets,
		},
	)

	JournalErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "middleman_journal_errors_total",
			Help: "Exchange journal write failures by sink",
		},
		[]string{"sink"},
	)

	ArchivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "middleman_archived_exchanges_total",
			Help: "Exchanges handled by the archive worker by result",
		},
		[]string{"result"}, // stored|failed|skipped
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors once; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			ExchangesTotal,
			UpstreamDuration,
			JournalErrorsTotal,
			ArchivedTotal,
		)
	})
}
