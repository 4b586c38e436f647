package metrics

import (
	"context"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/gomodule/redigo/redis"
	"github.com/prometheus/client_golang/prometheus"
)

// RedisKV is the Prometheus-based implementation of the
// [redisutil.PoolMetrics] interface for the pool of the identity storage.
type RedisKV struct {
	// activeConnections is a gauge with the total number of active connections
	// in Redis pool.  The count includes idle connections and connections in
	// use.
	activeConnections prometheus.Gauge

	// errors is a counter of errors occurred with the Redis identity storage.
	errors prometheus.Counter
}

// NewRedisKV registers the Redis metrics of the identity storage in reg and
// returns a properly initialized [RedisKV].
func NewRedisKV(namespace string, reg prometheus.Registerer) (m *RedisKV, err error) {
	const (
		redisActiveConnections = "redis_active_connections"
		redisErrors            = "redis_errors_total"
	)

	m = &RedisKV{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      redisActiveConnections,
			Subsystem: subsystemIdentity,
			Namespace: namespace,
			Help:      "Total number of active connections in redis pool",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      redisErrors,
			Subsystem: subsystemIdentity,
			Namespace: namespace,
			Help:      "Total number of errors encountered with redis pool",
		}),
	}

	err = registerAll(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   redisActiveConnections,
		Value: m.activeConnections,
	}, {
		Key:   redisErrors,
		Value: m.errors,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// type check
var _ redisutil.PoolMetrics = (*RedisKV)(nil)

// Update implements the [redisutil.PoolMetrics] interface for *RedisKV.
func (m *RedisKV) Update(_ context.Context, s redis.PoolStats, err error) {
	m.activeConnections.Set(float64(s.ActiveCount))

	if err != nil {
		m.errors.Inc()
	}
}
