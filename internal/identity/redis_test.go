package identity_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/testutil/fakeredis"
	"github.com/gomodule/redigo/redis"
	"github.com/hostsguard/hostsguard/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPortEnvVarName is the environment variable name the presence and value of
// which define whether to run depending tests and on which port Redis server is
// running.
const testPortEnvVarName = "TEST_REDIS_PORT"

// testKey is the common Redis key for tests.
const testKey = "hostsguard_test:identity"

// fakeConn is a [redis.Conn] that keeps values in a map.
type fakeConn struct {
	vals map[string]string
}

// type check
var _ redis.Conn = (*fakeConn)(nil)

// Close implements the [redis.Conn] interface for *fakeConn.
func (c *fakeConn) Close() (err error) { return nil }

// Err implements the [redis.Conn] interface for *fakeConn.
func (c *fakeConn) Err() (err error) { return nil }

// Do implements the [redis.Conn] interface for *fakeConn.
func (c *fakeConn) Do(cmd string, args ...any) (reply any, err error) {
	switch cmd {
	case "":
		// Flush, sent by the pool when a connection is returned to it.
		return nil, nil
	case "GET":
		v, ok := c.vals[args[0].(string)]
		if !ok {
			return nil, nil
		}

		return []byte(v), nil
	case "SET":
		c.vals[args[0].(string)] = args[1].(string)

		return "OK", nil
	default:
		return nil, fmt.Errorf("unexpected command %q", cmd)
	}
}

// Send implements the [redis.Conn] interface for *fakeConn.
func (c *fakeConn) Send(_ string, _ ...any) (err error) { panic("not implemented") }

// Flush implements the [redis.Conn] interface for *fakeConn.
func (c *fakeConn) Flush() (err error) { panic("not implemented") }

// Receive implements the [redis.Conn] interface for *fakeConn.
func (c *fakeConn) Receive() (reply any, err error) { panic("not implemented") }

// testMetrics is a [redisutil.PoolMetrics] that records the results.
type testMetrics struct {
	successes int
	failures  int
}

// type check
var _ redisutil.PoolMetrics = (*testMetrics)(nil)

// Update implements the [redisutil.PoolMetrics] interface for *testMetrics.
func (m *testMetrics) Update(_ context.Context, _ redis.PoolStats, err error) {
	if err == nil {
		m.successes++
	} else {
		m.failures++
	}
}

// newTestPool returns a new *redisutil.DefaultPool that dials with onDial and
// reports to m.
func newTestPool(
	tb testing.TB,
	m redisutil.PoolMetrics,
	onDial func(ctx context.Context) (c redis.Conn, err error),
) (p *redisutil.DefaultPool) {
	tb.Helper()

	p, err := redisutil.NewDefaultPool(&redisutil.DefaultPoolConfig{
		Logger:  slogutil.NewDiscardLogger(),
		Dialer:  &fakeredis.Dialer{OnDialContext: onDial},
		Metrics: m,
		MaxIdle: 1,
	})
	require.NoError(tb, err)

	testutil.CleanupAndRequireSuccess(tb, p.Close)

	return p
}

func TestRedisStorage(t *testing.T) {
	conn := &fakeConn{
		vals: map[string]string{},
	}

	m := &testMetrics{}
	pool := newTestPool(t, m, func(_ context.Context) (c redis.Conn, err error) {
		return conn, nil
	})

	s := identity.NewRedisStorage(&identity.RedisStorageConfig{
		Pool: pool,
		Key:  testKey,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	id, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.Empty, id)

	err = s.Store(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, string(testID), conn.vals[testKey])

	id, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testID, id)

	assert.Equal(t, 3, m.successes)
	assert.Zero(t, m.failures)
}

func TestRedisStorage_poolError(t *testing.T) {
	const testError errors.Error = "test error"

	m := &testMetrics{}
	pool := newTestPool(t, m, func(_ context.Context) (c redis.Conn, err error) {
		return nil, testError
	})

	s := identity.NewRedisStorage(&identity.RedisStorageConfig{
		Pool: pool,
		Key:  testKey,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, testError)

	err = s.Store(ctx, testID)
	assert.ErrorIs(t, err, testError)

	assert.Equal(t, 2, m.failures)
}

// newIntegrationPool returns a pool of connections to a real Redis server or
// skips the test if [testPortEnvVarName] is not set.
func newIntegrationPool(tb testing.TB) (p *redisutil.DefaultPool) {
	tb.Helper()

	portStr := os.Getenv(testPortEnvVarName)
	if portStr == "" {
		tb.Skipf("skipping; %s is not set", testPortEnvVarName)
	}

	port64, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(tb, err)

	dialer, err := redisutil.NewDefaultDialer(&redisutil.DefaultDialerConfig{
		Addr: &netutil.HostPort{
			Host: "localhost",
			Port: uint16(port64),
		},
	})
	require.NoError(tb, err)

	p, err = redisutil.NewDefaultPool(&redisutil.DefaultPoolConfig{
		Logger:      slogutil.NewDiscardLogger(),
		Dialer:      dialer,
		MaxIdle:     1,
		IdleTimeout: 30 * time.Second,
	})
	require.NoError(tb, err)

	testutil.CleanupAndRequireSuccess(tb, func() (err error) {
		c, err := p.Get(context.Background())
		if err != nil {
			return err
		}

		_, err = c.Do(redisutil.CmdDEL, testKey)

		return errors.Join(err, c.Close(), p.Close())
	})

	return p
}

// TestRedisStorage_integration requires a Redis server running on localhost
// and must be run with [testPortEnvVarName] set to its port.
func TestRedisStorage_integration(t *testing.T) {
	s := identity.NewRedisStorage(&identity.RedisStorageConfig{
		Pool: newIntegrationPool(t),
		Key:  testKey,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	err := s.Store(ctx, testID)
	require.NoError(t, err)

	id, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testID, id)
}
