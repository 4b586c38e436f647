package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/AdguardTeam/golibs/contextutil"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/hostsguard/hostsguard/internal/adblock"
	"github.com/hostsguard/hostsguard/internal/allowlist"
	"github.com/hostsguard/hostsguard/internal/debugsvc"
	"github.com/hostsguard/hostsguard/internal/errcoll"
	"github.com/hostsguard/hostsguard/internal/filterrepo"
	"github.com/hostsguard/hostsguard/internal/hghttp"
	"github.com/hostsguard/hostsguard/internal/hostssource"
	"github.com/hostsguard/hostsguard/internal/identity"
	"github.com/hostsguard/hostsguard/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Constants that define debug identifiers for the debug HTTP service.
const (
	debugIDAdBlock = "adblock"
)

// Names of the files within the cache directory.
const (
	allowListFileName = "allowlist.txt"
	identityFileName  = "identity"
	snapshotFileName  = "filter.snapshot"
)

// dirPerm is the permission of the cache directory.
const dirPerm = 0o700

// builder contains the logic of configuring and combining together HostsGuard
// entities.
//
// NOTE:  Keep method definitions in the rough order in which they are intended
// to be called.
type builder struct {
	// The fields below are initialized immediately on construction.  Keep them
	// sorted.

	baseLogger    *slog.Logger
	conf          *configuration
	debugRefrs    debugsvc.Refreshers
	env           *environment
	errColl       errcoll.Interface
	logger        *slog.Logger
	mtrcNamespace string
	promRegistry  *prometheus.Registry
	sigHdlr       *service.SignalHandler

	// The fields below are initialized later by calling the builder's methods.
	// Keep them sorted.

	allowList   *allowlist.List
	blockerMtrc *metrics.Blocker
	engine      *adblock.Engine
	filterMtrc  *metrics.Filter
	identities  identity.Storage
	repo        *filterrepo.Repository
	selector    *hostssource.Selector
}

// builderConfig contains the initial configuration for the builder.
type builderConfig struct {
	// envs contains the environment variables for the builder.  It must be
	// valid and must not be nil.
	envs *environment

	// conf contains the configuration from the configuration file for the
	// builder.  It must be valid and must not be nil.
	conf *configuration

	// baseLogger is used to create loggers for other entities.  It should not
	// have a prefix and must not be nil.
	baseLogger *slog.Logger

	// errColl is used to collect errors in the entities.  It must not be nil.
	errColl errcoll.Interface
}

// shutdownTimeout is the default shutdown timeout for all services.
const shutdownTimeout = 5 * time.Second

// newBuilder returns a new properly initialized builder.  c must not be nil.
func newBuilder(c *builderConfig) (b *builder) {
	return &builder{
		baseLogger:    c.baseLogger,
		conf:          c.conf,
		debugRefrs:    debugsvc.Refreshers{},
		env:           c.envs,
		errColl:       c.errColl,
		logger:        c.baseLogger.With(slogutil.KeyPrefix, "builder"),
		mtrcNamespace: metrics.Namespace,
		promRegistry:  prometheus.NewRegistry(),
		sigHdlr: service.NewSignalHandler(&service.SignalHandlerConfig{
			Logger:          c.baseLogger.With(slogutil.KeyPrefix, service.SignalHandlerPrefix),
			ShutdownTimeout: shutdownTimeout,
		}),
	}
}

// initCrashReporter initializes the crash reporter.
func (b *builder) initCrashReporter(ctx context.Context) (err error) {
	crashRep, err := newCrashReporter(&crashReporterConfig{
		logger:  b.baseLogger.With(slogutil.KeyPrefix, "crash_reporter"),
		clock:   timeutil.SystemClock{},
		source:  b.conf.AdBlock.Source.toInternal(),
		dirPath: b.env.CrashOutputDir,
		prefix:  b.env.CrashOutputPrefix,
		enabled: bool(b.env.CrashOutputEnabled),
	})
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	err = crashRep.Start(ctx)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	b.sigHdlr.AddService(crashRep)

	b.logger.DebugContext(ctx, "initialized crash reporter")

	return nil
}

// initMetrics registers the runtime collectors and initializes the metrics of
// the components.
func (b *builder) initMetrics(ctx context.Context) (err error) {
	reg := b.promRegistry

	err = errors.Join(
		reg.Register(collectors.NewGoCollector()),
		reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
	)
	if err != nil {
		return fmt.Errorf("registering runtime metrics: %w", err)
	}

	b.filterMtrc, err = metrics.NewFilter(b.mtrcNamespace, reg)
	if err != nil {
		return fmt.Errorf("filter metrics: %w", err)
	}

	b.blockerMtrc, err = metrics.NewBlocker(b.mtrcNamespace, reg)
	if err != nil {
		return fmt.Errorf("blocker metrics: %w", err)
	}

	b.logger.DebugContext(ctx, "initialized metrics")

	return nil
}

// initIdentityStorage initializes the storage of the identity of the loaded
// hosts list.
func (b *builder) initIdentityStorage(ctx context.Context) (err error) {
	var mtrc redisutil.PoolMetrics = redisutil.EmptyPoolMetrics{}
	if b.env.IdentityStorage == identityStorageRedis {
		mtrc, err = metrics.NewRedisKV(b.mtrcNamespace, b.promRegistry)
		if err != nil {
			return fmt.Errorf("redis metrics: %w", err)
		}
	}

	b.identities, err = b.env.buildIdentityStorage(b.baseLogger, mtrc)
	if err != nil {
		return fmt.Errorf("identity storage: %w", err)
	}

	b.logger.DebugContext(ctx, "initialized identity storage", "type", b.env.IdentityStorage)

	return nil
}

// initSelector initializes the hosts source selector.
func (b *builder) initSelector(ctx context.Context) {
	c := b.conf.AdBlock

	b.selector = hostssource.NewSelector(&hostssource.SelectorConfig{
		Logger: b.baseLogger.With(slogutil.KeyPrefix, "hostssource"),
		Assets: hostssource.DefaultAssets(),
		HTTPClient: hghttp.NewClient(&hghttp.ClientConfig{
			Timeout: time.Duration(c.RefreshTimeout),
		}),
		Initial:   c.Source.toInternal(),
		AssetPath: hostssource.BundledPath,
		MaxSize:   c.MaxSize,
	})

	b.logger.DebugContext(ctx, "initialized source selector")
}

// initRepository initializes the filter repository.  It refreshes the filter
// right away if blocking is enabled.  Only a corrupt bundled list is a fatal
// error, since the other refresh errors may go away with the next refresh.
//
// It must be called after [builder.initMetrics], [builder.initIdentityStorage],
// and [builder.initSelector].
func (b *builder) initRepository(ctx context.Context) (err error) {
	c := b.conf.AdBlock

	b.repo = filterrepo.New(&filterrepo.Config{
		Logger:       b.baseLogger.With(slogutil.KeyPrefix, "filterrepo"),
		ErrColl:      b.errColl,
		Metrics:      b.filterMtrc,
		Selector:     b.selector,
		Identities:   b.identities,
		SnapshotPath: filepath.Join(b.env.CacheDir, snapshotFileName),
		FPRate:       c.FalsePositiveRate,
		Timeout:      time.Duration(c.RefreshTimeout),
	})

	if !c.Enabled {
		b.logger.DebugContext(ctx, "initialized filter repository; blocking disabled")

		return nil
	}

	err = b.repo.RefreshInitial(ctx)
	if errors.Is(err, hostssource.ErrBundledCorrupt) {
		return fmt.Errorf("refreshing filter repository: %w", err)
	} else if err != nil {
		b.logger.WarnContext(ctx, "initial refresh failed; not blocking", slogutil.KeyError, err)
	}

	b.logger.DebugContext(ctx, "initialized filter repository")

	return nil
}

// initAllowList initializes the list of exempted sites.
func (b *builder) initAllowList(ctx context.Context) (err error) {
	c := b.conf.AllowList

	var storage allowlist.Storage
	if c.Persist {
		storage = allowlist.NewFileStorage(filepath.Join(b.env.CacheDir, allowListFileName))
	}

	b.allowList, err = allowlist.New(ctx, &allowlist.Config{
		Logger:  b.baseLogger.With(slogutil.KeyPrefix, "allowlist"),
		Storage: storage,
		Initial: c.Initial,
	})
	if err != nil {
		return fmt.Errorf("creating allowlist: %w", err)
	}

	b.logger.DebugContext(ctx, "initialized allowlist", "len", b.allowList.Len())

	return nil
}

// initEngine initializes the ad blocker engine, adds it to the debug
// refreshers with ID [debugIDAdBlock], and reloads its configuration on
// SIGHUP.
//
// It must be called after [builder.initRepository] and
// [builder.initAllowList].
func (b *builder) initEngine(ctx context.Context) {
	b.engine = adblock.NewEngine(&adblock.EngineConfig{
		Logger:     b.baseLogger.With(slogutil.KeyPrefix, "adblock"),
		Repository: b.repo,
		Selector:   b.selector,
		AllowList:  b.allowList,
		Metrics:    b.blockerMtrc,
		Enabled:    b.conf.AdBlock.Enabled,
	})

	b.debugRefrs[debugIDAdBlock] = b.engine

	b.sigHdlr.AddRefresher(newConfigReloader(
		b.baseLogger.With(slogutil.KeyPrefix, "config_reloader"),
		b.engine,
		b.env.ConfPath,
	))

	b.logger.DebugContext(ctx, "initialized engine", "enabled", b.engine.Enabled())
}

// initRefreshWorker starts the periodic refresh of the filter, if it's
// enabled.
//
// It must be called after [builder.initEngine].
func (b *builder) initRefreshWorker(ctx context.Context) (err error) {
	c := b.conf.AdBlock
	refrIvl := time.Duration(c.RefreshIvl)
	if refrIvl == 0 {
		b.logger.DebugContext(ctx, "periodic refresh disabled")

		return nil
	}

	refr := service.NewRefreshWorker(&service.RefreshWorkerConfig{
		ContextConstructor: contextutil.NewTimeoutConstructor(time.Duration(c.RefreshTimeout)),
		ErrorHandler:       newSlogErrorHandler(b.baseLogger, "adblock_refresh"),
		Refresher:          b.engine,
		Schedule:           timeutil.NewConstSchedule(refrIvl),
		RefreshOnShutdown:  false,
	})
	err = refr.Start(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("starting filter refresh: %w", err)
	}

	b.sigHdlr.AddService(refr)

	b.logger.DebugContext(ctx, "initialized refresh worker", "ivl", refrIvl)

	return nil
}

// newSlogErrorHandler is a convenient wrapper around
// [service.NewSlogErrorHandler].
func newSlogErrorHandler(baseLogger *slog.Logger, prefix string) (h *service.SlogErrorHandler) {
	return service.NewSlogErrorHandler(
		baseLogger.With(slogutil.KeyPrefix, prefix),
		slog.LevelError,
		"refreshing",
	)
}

// mustInitDebugSvc initializes and starts the debug HTTP service.
//
// It must be called after [builder.initEngine].
func (b *builder) mustInitDebugSvc(ctx context.Context) {
	debugSvcConf := b.env.debugConf(b.baseLogger)
	debugSvcConf.Engine = b.engine
	debugSvcConf.Gatherer = b.promRegistry
	debugSvcConf.Refreshers = b.debugRefrs
	debugSvc := debugsvc.New(debugSvcConf)

	// The debug HTTP service is considered critical, so its Start method panics
	// instead of returning an error.
	_ = debugSvc.Start(context.WithoutCancel(ctx))

	b.sigHdlr.AddService(debugSvc)

	b.logger.DebugContext(
		ctx,
		"initialized debug",
		"refr_ids", slices.Sorted(maps.Keys(b.debugRefrs)),
	)
}

// initCacheDir creates the cache directory, if necessary.
func (b *builder) initCacheDir(ctx context.Context) (err error) {
	err = os.MkdirAll(b.env.CacheDir, dirPerm)
	if err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	b.logger.DebugContext(ctx, "initialized cache dir", "path", b.env.CacheDir)

	return nil
}

// handleSignals blocks and processes signals from the OS.  status is
// [osutil.ExitCodeSuccess] on success and [osutil.ExitCodeFailure] on error.
//
// handleSignals must not be called concurrently with any other methods.
func (b *builder) handleSignals(ctx context.Context) (code osutil.ExitCode) {
	return b.sigHdlr.Handle(ctx)
}
