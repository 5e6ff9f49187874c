// Package metrics exposes Prometheus counters and histograms for the sync
// engine (SPEC_FULL.md §4.7). Every metric is registered against an
// injected prometheus.Registerer so tests can use a private registry
// instead of the global default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every counter/histogram the engine and syncer record.
type Metrics struct {
	RequestsTotal             *prometheus.CounterVec
	DiscoveryFailuresTotal    prometheus.Counter
	AMRTotal                  *prometheus.CounterVec
	SpuriousModificationsTotal prometheus.Counter
	SyncDuration              prometheus.Histogram
}

// New registers every metric against reg and returns the grouped handles.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carddav_requests_total",
			Help: "Total number of CardDAV requests issued, by method.",
		}, []string{"method"}),

		DiscoveryFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "carddav_discovery_failures_total",
			Help: "Total number of fatal discovery failures.",
		}),

		AMRTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carddav_amr_total",
			Help: "Total number of additions/modifications/removals, by direction and kind.",
		}, []string{"direction", "kind"}),

		SpuriousModificationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "carddav_spurious_modifications_total",
			Help: "Total number of local modifications suppressed as spurious downsync echoes.",
		}),

		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carddav_sync_duration_seconds",
			Help:    "Duration of a full sync run.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveAMR records a batch of additions/modifications/removals against
// direction ("down" or "up").
func (m *Metrics) ObserveAMR(direction string, additions, modifications, removals int) {
	m.AMRTotal.WithLabelValues(direction, "addition").Add(float64(additions))
	m.AMRTotal.WithLabelValues(direction, "modification").Add(float64(modifications))
	m.AMRTotal.WithLabelValues(direction, "removal").Add(float64(removals))
}

// ObserveSyncDuration records how long a full sync run took.
func (m *Metrics) ObserveSyncDuration(d time.Duration) {
	m.SyncDuration.Observe(d.Seconds())
}

// Handler exposes the Prometheus metrics endpoint for the given registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
