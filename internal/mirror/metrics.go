package mirror

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the sync counters exported on /metrics.
type Metrics struct {
	Pages       prometheus.Counter
	ItemsStored prometheus.Counter
	ReadsPushed prometheus.Counter
	Failures    *prometheus.CounterVec
	LastSync    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "greadersync",
			Name:      "pages_fetched_total",
			Help:      "Unread stream pages fetched from the server.",
		}),
		ItemsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "greadersync",
			Name:      "items_stored_total",
			Help:      "New unread items written to the local store.",
		}),
		ReadsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "greadersync",
			Name:      "reads_pushed_total",
			Help:      "Read marks acknowledged by the server.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greadersync",
			Name:      "sync_failures_total",
			Help:      "Failed sync operations by operation.",
		}, []string{"op"}),
		LastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "greadersync",
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last completed sync.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Pages, m.ItemsStored, m.ReadsPushed, m.Failures, m.LastSync)
	}
	return m
}
