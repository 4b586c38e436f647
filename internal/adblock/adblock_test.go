package adblock_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/c2h5oh/datasize"
	"github.com/hostsguard/hostsguard/internal/adblock"
	"github.com/hostsguard/hostsguard/internal/allowlist"
	"github.com/hostsguard/hostsguard/internal/filterrepo"
	"github.com/hostsguard/hostsguard/internal/hghttp"
	"github.com/hostsguard/hostsguard/internal/hgtest"
	"github.com/hostsguard/hostsguard/internal/hostssource"
	"github.com/hostsguard/hostsguard/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testFPRate is a false-positive rate low enough for the tests to never see a
// false positive.
const testFPRate = 1e-9

// testHosts is the common hosts list for tests.
const testHosts = "0.0.0.0 ads.example\n0.0.0.0 tracker.example\n"

// testMetrics is an [adblock.Metrics] for tests.
type testMetrics struct {
	blocked *atomic.Int64
	passed  *atomic.Int64
}

// type check
var _ adblock.Metrics = (*testMetrics)(nil)

// IncrementLookups implements the [adblock.Metrics] interface for
// *testMetrics.
func (m *testMetrics) IncrementLookups(blocked bool) {
	if blocked {
		m.blocked.Add(1)
	} else {
		m.passed.Add(1)
	}
}

// testEnv contains the entities common to a test.
type testEnv struct {
	engine  *adblock.Engine
	repo    *filterrepo.Repository
	allow   *allowlist.List
	metrics *testMetrics
}

// newTestEnv returns a new environment with the local hosts list at path.
func newTestEnv(t *testing.T, path string, enabled bool) (env *testEnv) {
	t.Helper()

	sel := hostssource.NewSelector(&hostssource.SelectorConfig{
		Logger:     slogutil.NewDiscardLogger(),
		Assets:     hostssource.DefaultAssets(),
		HTTPClient: hghttp.NewClient(&hghttp.ClientConfig{Timeout: testTimeout}),
		Initial: &hostssource.Config{
			Kind: hostssource.KindLocal,
			Path: path,
		},
		AssetPath: hostssource.BundledPath,
		MaxSize:   1 * datasize.MB,
	})

	repo := filterrepo.New(&filterrepo.Config{
		Logger:     slogutil.NewDiscardLogger(),
		ErrColl:    hgtest.NewErrorCollector(),
		Metrics:    filterrepo.EmptyMetrics{},
		Selector:   sel,
		Identities: identity.NewMemoryStorage(identity.Empty),
		FPRate:     testFPRate,
		Timeout:    testTimeout,
	})

	allow, err := allowlist.New(testutil.ContextWithTimeout(t, testTimeout), &allowlist.Config{
		Logger: slogutil.NewDiscardLogger(),
	})
	require.NoError(t, err)

	m := &testMetrics{
		blocked: &atomic.Int64{},
		passed:  &atomic.Int64{},
	}

	e := adblock.NewEngine(&adblock.EngineConfig{
		Logger:     slogutil.NewDiscardLogger(),
		Repository: repo,
		Selector:   sel,
		AllowList:  allow,
		Metrics:    m,
		Enabled:    enabled,
	})

	return &testEnv{
		engine:  e,
		repo:    repo,
		allow:   allow,
		metrics: m,
	}
}

// writeHosts writes data into a new file in a temporary directory and returns
// its path.
func writeHosts(t *testing.T, data string) (path string) {
	t.Helper()

	path = filepath.Join(t.TempDir(), "hosts.txt")
	err := os.WriteFile(path, []byte(data), 0o600)
	require.NoError(t, err)

	return path
}

func TestNoOp(t *testing.T) {
	var b adblock.Blocker = adblock.NoOp{}

	assert.False(t, b.IsBlocked("https://ads.example/banner.js"))
	assert.False(t, b.IsBlocked(""))
}

func TestEngine_IsBlocked(t *testing.T) {
	env := newTestEnv(t, writeHosts(t, testHosts), true)

	// No filter has been loaded yet.
	assert.False(t, env.engine.IsBlocked("https://ads.example/banner.js"))

	err := env.engine.Refresh(testutil.ContextWithTimeout(t, testTimeout))
	require.NoError(t, err)

	testCases := []struct {
		name string
		url  string
		want bool
	}{{
		name: "exact",
		url:  "https://ads.example/banner.js",
		want: true,
	}, {
		name: "subdomain",
		url:  "http://cdn.ads.example:8080/x",
		want: true,
	}, {
		name: "bare_host",
		url:  "tracker.example",
		want: true,
	}, {
		name: "upper_case",
		url:  "HTTPS://ADS.EXAMPLE/",
		want: true,
	}, {
		name: "not_listed",
		url:  "https://news.example/",
		want: false,
	}, {
		name: "parent_of_listed",
		url:  "https://example/",
		want: false,
	}, {
		name: "empty",
		url:  "",
		want: false,
	}, {
		name: "ip",
		url:  "http://192.0.2.1/",
		want: false,
	}, {
		name: "invalid",
		url:  "http://bad host/",
		want: false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, env.engine.IsBlocked(tc.url))
		})
	}
}

func TestEngine_allowList(t *testing.T) {
	env := newTestEnv(t, writeHosts(t, testHosts), true)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	require.NoError(t, env.engine.Refresh(ctx))

	const u = "https://www.ads.example/banner.js"
	require.True(t, env.engine.IsBlocked(u))

	err := env.engine.AddAllowListEntry(ctx, "https://ads.example/")
	require.NoError(t, err)

	assert.True(t, env.engine.IsAllowListed(u))
	assert.False(t, env.engine.IsBlocked(u))
	assert.True(t, env.engine.IsBlocked("https://tracker.example/"))

	err = env.engine.RemoveAllowListEntry(ctx, "ads.example")
	require.NoError(t, err)

	assert.False(t, env.engine.IsAllowListed(u))
	assert.True(t, env.engine.IsBlocked(u))
}

func TestEngine_Reconfigure(t *testing.T) {
	env := newTestEnv(t, writeHosts(t, testHosts), false)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	require.NoError(t, env.engine.Refresh(ctx))
	require.NotNil(t, env.repo.Filter())

	assert.False(t, env.engine.Enabled())
	assert.False(t, env.engine.IsBlocked("https://ads.example/"))

	otherPath := writeHosts(t, "0.0.0.0 other.example\n")
	err := env.engine.Reconfigure(ctx, &adblock.Config{
		Source: &hostssource.Config{
			Kind: hostssource.KindLocal,
			Path: otherPath,
		},
		Enabled: true,
	})
	require.NoError(t, err)
	assert.True(t, env.engine.Enabled())

	require.Eventually(t, func() (ok bool) {
		return env.engine.IsBlocked("https://other.example/")
	}, testTimeout, testTimeout/100)

	assert.False(t, env.engine.IsBlocked("https://ads.example/"))

	err = env.engine.Reconfigure(ctx, &adblock.Config{
		Enabled: false,
	})
	require.NoError(t, err)

	assert.False(t, env.engine.Enabled())
	assert.False(t, env.engine.IsBlocked("https://other.example/"))

	err = env.engine.Reconfigure(ctx, &adblock.Config{
		Source: &hostssource.Config{
			Kind: hostssource.KindLocal,
		},
		Enabled: true,
	})
	assert.Error(t, err)
	assert.False(t, env.engine.Enabled())
}

func TestEngine_metrics(t *testing.T) {
	env := newTestEnv(t, writeHosts(t, testHosts), true)

	require.NoError(t, env.engine.Refresh(testutil.ContextWithTimeout(t, testTimeout)))

	env.engine.IsBlocked("https://ads.example/")
	env.engine.IsBlocked("https://news.example/")
	env.engine.IsBlocked("https://tracker.example/")

	assert.Equal(t, int64(2), env.metrics.blocked.Load())
	assert.Equal(t, int64(1), env.metrics.passed.Load())
}
