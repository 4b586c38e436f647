package metrics

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// Filter is the Prometheus-based implementation of the [filterrepo.Metrics]
// interface.
type Filter struct {
	// domains is a gauge with the number of domains in the active filter.
	domains prometheus.Gauge

	// status is a gauge with the status of the last refresh.  "0" means
	// error, "1" means success.
	status prometheus.Gauge

	// updated is a gauge with the time of the last rebuild.
	updated prometheus.Gauge

	// rebuilds is a counter of the total number of rebuilds.
	rebuilds prometheus.Counter

	// buildDuration is a histogram with the durations of the rebuilds.
	buildDuration prometheus.Histogram
}

// NewFilter registers the filter metrics in reg and returns a properly
// initialized *Filter.
func NewFilter(namespace string, reg prometheus.Registerer) (m *Filter, err error) {
	const (
		domains       = "domains_total"
		status        = "update_status"
		updated       = "updated_time"
		rebuilds      = "rebuilds_total"
		buildDuration = "build_duration_seconds"
	)

	m = &Filter{
		domains: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      domains,
			Subsystem: subsystemFilter,
			Namespace: namespace,
			Help:      "The number of domains in the active filter.",
		}),
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      status,
			Subsystem: subsystemFilter,
			Namespace: namespace,
			Help:      "Status of the filter update. 1 means success.",
		}),
		updated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      updated,
			Subsystem: subsystemFilter,
			Namespace: namespace,
			Help:      "Time when the filter was last rebuilt.",
		}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      rebuilds,
			Subsystem: subsystemFilter,
			Namespace: namespace,
			Help:      "Total number of filter rebuilds.",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      buildDuration,
			Subsystem: subsystemFilter,
			Namespace: namespace,
			Help:      "Time spent parsing the list and building the filter.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	err = registerAll(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   domains,
		Value: m.domains,
	}, {
		Key:   status,
		Value: m.status,
	}, {
		Key:   updated,
		Value: m.updated,
	}, {
		Key:   rebuilds,
		Value: m.rebuilds,
	}, {
		Key:   buildDuration,
		Value: m.buildDuration,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SetStatus implements the [filterrepo.Metrics] interface for *Filter.
func (m *Filter) SetStatus(_ context.Context, err error) {
	SetStatusGauge(m.status, err)
}

// ObserveRebuild implements the [filterrepo.Metrics] interface for *Filter.
func (m *Filter) ObserveRebuild(_ context.Context, domains uint, dur time.Duration) {
	m.domains.Set(float64(domains))
	m.updated.SetToCurrentTime()
	m.rebuilds.Inc()
	m.buildDuration.Observe(dur.Seconds())
}
