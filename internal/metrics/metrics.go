// Package metrics contains the Prometheus-based implementations of the metrics
// interfaces of HostsGuard.
package metrics

import (
	"fmt"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the default namespace of the HostsGuard metrics.
const Namespace = "hostsguard"

// constants with the subsystem names that we use in our prometheus metrics.
const (
	subsystemApplication = "app"
	subsystemBlocker     = "blocker"
	subsystemFilter      = "filter"
	subsystemIdentity    = "identity"
)

// SetUpGauge registers the gauge signaling that the server has been started in
// reg and sets it.
func SetUpGauge(
	namespace string,
	reg prometheus.Registerer,
	version string,
	committime string,
	branch string,
	revision string,
	goversion string,
) (err error) {
	upGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "up",
		Namespace: namespace,
		Subsystem: subsystemApplication,
		Help: `A metric with a constant '1' value labeled by ` +
			`version and goversion from which the program was built.`,
		ConstLabels: prometheus.Labels{
			"version":    version,
			"committime": committime,
			"branch":     branch,
			"revision":   revision,
			"goversion":  goversion,
		},
	})

	err = reg.Register(upGauge)
	if err != nil {
		return fmt.Errorf("registering metrics %q: %w", "up", err)
	}

	upGauge.Set(1)

	return nil
}

// SetStatusGauge is a helper function that automatically checks if there's an
// error and sets the gauge to either 1 (success) or 0 (error).
func SetStatusGauge(gauge prometheus.Gauge, err error) {
	if err == nil {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}
}

// IncrementCond increments trueCounter if cond is true and falseCounter
// otherwise.
func IncrementCond(cond bool, trueCounter, falseCounter prometheus.Counter) {
	if cond {
		trueCounter.Inc()
	} else {
		falseCounter.Inc()
	}
}

// registerAll registers every collector in reg and returns the joined errors.
func registerAll(
	reg prometheus.Registerer,
	collectors container.KeyValues[string, prometheus.Collector],
) (err error) {
	var errs []error
	for _, c := range collectors {
		err = reg.Register(c.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.Key, err))
		}
	}

	return errors.Join(errs...)
}
