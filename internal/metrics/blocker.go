package metrics

import (
	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// Blocker is the Prometheus-based implementation of the [adblock.Metrics]
// interface.
type Blocker struct {
	// blocked is a counter of the lookups that resulted in blocking.
	blocked prometheus.Counter

	// passed is a counter of the lookups that didn't.
	passed prometheus.Counter
}

// NewBlocker registers the blocker metrics in reg and returns a properly
// initialized *Blocker.
func NewBlocker(namespace string, reg prometheus.Registerer) (m *Blocker, err error) {
	const lookupsTotal = "lookups_total"

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      lookupsTotal,
		Subsystem: subsystemBlocker,
		Namespace: namespace,
		Help: "Total number of blocking lookups. " +
			"Label blocked is the lookup result, either 1 for blocked or 0.",
	}, []string{"blocked"})

	m = &Blocker{
		blocked: lookups.WithLabelValues("1"),
		passed:  lookups.WithLabelValues("0"),
	}

	err = registerAll(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   lookupsTotal,
		Value: lookups,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// IncrementLookups implements the [adblock.Metrics] interface for *Blocker.
func (m *Blocker) IncrementLookups(blocked bool) {
	IncrementCond(blocked, m.blocked, m.passed)
}
