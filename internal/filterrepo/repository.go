package filterrepo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/hostsguard/hostsguard/internal/bloomfilter"
	"github.com/hostsguard/hostsguard/internal/errcoll"
	"github.com/hostsguard/hostsguard/internal/hostsfile"
	"github.com/hostsguard/hostsguard/internal/hostssource"
	"github.com/hostsguard/hostsguard/internal/identity"
	"golang.org/x/sync/singleflight"
)

// Repository owns the active membership filter.  It decides whether the
// filter needs a rebuild by comparing the identity of the loaded content with
// the persisted one, and it publishes rebuilt filters atomically.  Concurrent
// refreshes under the same configuration share one load and one build.
type Repository struct {
	logger     *slog.Logger
	errColl    errcoll.Interface
	metrics    Metrics
	selector   *hostssource.Selector
	identities identity.Storage
	flights    *singleflight.Group

	// filter is the active filter.  It is nil until the first successful
	// refresh.
	filter *atomic.Pointer[bloomfilter.Filter]

	// swapMu protects loaded and orders the epoch check with the swap and the
	// persistence, so that a result of an older epoch never replaces a newer
	// one in memory or on disk.
	swapMu *sync.Mutex
	loaded identity.Identity

	snapshotPath string
	fpRate       float64
	timeout      time.Duration
}

// Config is the configuration structure for a *Repository.
type Config struct {
	// Logger is used to log the refreshes.  It must not be nil.
	Logger *slog.Logger

	// ErrColl is used to collect the refresh errors.  It must not be nil.
	ErrColl errcoll.Interface

	// Metrics is used for the collection of the statistics.  It must not be
	// nil.
	Metrics Metrics

	// Selector provides the source for the current configuration.  It must not
	// be nil.
	Selector *hostssource.Selector

	// Identities persists the identity of the loaded list.  It must not be
	// nil.
	Identities identity.Storage

	// SnapshotPath is the path to the file with the serialized active filter.
	// If it is empty, snapshots are disabled.
	SnapshotPath string

	// FPRate is the target false-positive rate of the filters.  It must be in
	// the open interval (0, 1).
	FPRate float64

	// Timeout is the timeout of a single refresh.  It must be positive.
	Timeout time.Duration
}

// New returns a new *Repository with no active filter.  c must not be nil.
func New(c *Config) (r *Repository) {
	return &Repository{
		logger:       c.Logger,
		errColl:      c.ErrColl,
		metrics:      c.Metrics,
		selector:     c.Selector,
		identities:   c.Identities,
		flights:      &singleflight.Group{},
		filter:       &atomic.Pointer[bloomfilter.Filter]{},
		swapMu:       &sync.Mutex{},
		snapshotPath: c.SnapshotPath,
		fpRate:       c.FPRate,
		timeout:      c.Timeout,
	}
}

// Filter returns the active filter.  f is nil if no filter has been loaded
// yet.  It never blocks.
func (r *Repository) Filter() (f *bloomfilter.Filter) {
	return r.filter.Load()
}

// EnsureUpToDate loads the list from the source of the current configuration
// and rebuilds the filter if the content has changed.  f is the filter active
// after the call, which is the same instance as before if the content hasn't
// changed.  If err is not nil, the active filter is kept and f is that filter,
// possibly nil.
//
// Callers under the same configuration share one load and build.  The shared
// work is not canceled with ctx; it is only bounded by the refresh timeout.
func (r *Repository) EnsureUpToDate(ctx context.Context) (f *bloomfilter.Filter, err error) {
	src, epoch, err := r.selector.Current()
	if err != nil {
		err = fmt.Errorf("selecting source: %w", err)
		r.metrics.SetStatus(ctx, err)
		errcoll.Collect(ctx, r.errColl, r.logger, "refreshing filter", err)

		return r.Filter(), err
	}

	resCh := r.flights.DoChan(strconv.FormatUint(epoch, 10), func() (v any, ferr error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		return r.update(flightCtx, src, epoch)
	})

	select {
	case <-ctx.Done():
		return r.Filter(), fmt.Errorf("waiting for refresh: %w", context.Cause(ctx))
	case res := <-resCh:
		if res.Err != nil {
			return r.Filter(), res.Err
		}

		return res.Val.(*bloomfilter.Filter), nil
	}
}

// type check
var _ service.Refresher = (*Repository)(nil)

// Refresh implements the [service.Refresher] interface for *Repository.
func (r *Repository) Refresh(ctx context.Context) (err error) {
	_, err = r.EnsureUpToDate(ctx)

	return err
}

// RefreshInitial publishes the filter from the snapshot, if it matches the
// persisted identity and the configured false-positive rate, and then refreshes
// the filter.  It is intended to be used once at startup, so that an unchanged
// list isn't parsed again.
func (r *Repository) RefreshInitial(ctx context.Context) (err error) {
	persisted, err := r.identities.Load(ctx)
	if err != nil {
		// Without the persisted identity the snapshot can't be trusted, but the
		// list itself can still be loaded.
		errcoll.Collect(ctx, r.errColl, r.logger, "loading identity", err)
	} else if persisted != identity.Empty && r.snapshotPath != "" {
		r.restoreSnapshot(ctx, persisted)
	}

	_, err = r.EnsureUpToDate(ctx)
	if err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}

	return nil
}

// restoreSnapshot publishes the filter from the snapshot file if its identity
// is persisted and it has been built with the configured false-positive rate.
// Errors are logged, since a missing or broken snapshot only means a rebuild.
func (r *Repository) restoreSnapshot(ctx context.Context, persisted identity.Identity) {
	f, id, err := readSnapshot(r.snapshotPath)
	if err != nil {
		r.logger.WarnContext(ctx, "reading snapshot", slogutil.KeyError, err)

		return
	} else if f == nil {
		r.logger.DebugContext(ctx, "no snapshot", "path", r.snapshotPath)

		return
	} else if id != persisted {
		r.logger.InfoContext(ctx, "snapshot is outdated", "snapshot", id, "persisted", persisted)

		return
	} else if p := f.FPRate(); p != r.fpRate {
		r.logger.InfoContext(ctx, "snapshot rate differs", "snapshot", p, "configured", r.fpRate)

		return
	}

	r.swapMu.Lock()
	defer r.swapMu.Unlock()

	r.filter.Store(f)
	r.loaded = id

	r.logger.InfoContext(ctx, "restored filter from snapshot", "domains", f.Len(), "id", id)
}

// RefreshAsync starts a refresh in a new goroutine.  ctx is only used for its
// values; the refresh isn't canceled with it.  Errors are collected by the
// refresh itself.
func (r *Repository) RefreshAsync(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer slogutil.RecoverAndLog(ctx, r.logger)

		_, err := r.EnsureUpToDate(ctx)
		if err != nil {
			r.logger.DebugContext(ctx, "async refresh failed", slogutil.KeyError, err)
		}
	}()
}

// update loads the list from src and rebuilds the filter if necessary.  epoch
// is the configuration epoch of src.
func (r *Repository) update(
	ctx context.Context,
	src hostssource.Source,
	epoch uint64,
) (f *bloomfilter.Filter, err error) {
	defer func() {
		if errors.Is(err, ErrStaleConfig) {
			r.logger.InfoContext(ctx, "discarding refresh result", "epoch", epoch)

			return
		}

		r.metrics.SetStatus(ctx, err)
		if err != nil {
			errcoll.Collect(ctx, r.errColl, r.logger, "refreshing filter", err)
		}
	}()

	c, err := src.Load(ctx)
	if err != nil {
		// Don't wrap the error, since it's informative enough as is.
		return nil, err
	}

	persisted, err := r.identities.Load(ctx)
	if err != nil {
		// The identity is only used to detect changes, so rebuild the filter
		// as if nothing has been persisted.  The store below retries.
		errcoll.Collect(ctx, r.errColl, r.logger, "loading identity", err)
		persisted = identity.Empty
	}

	if cur := r.unchanged(c.Identity, persisted); cur != nil {
		r.logger.DebugContext(ctx, "list unchanged", "id", c.Identity)

		return cur, nil
	}

	f, dur, err := r.build(c)
	if err != nil {
		return nil, err
	}

	f, err = r.swap(ctx, f, c.Identity, persisted, epoch)
	if f == nil {
		return nil, err
	}

	r.metrics.ObserveRebuild(ctx, f.Len(), dur)
	r.logger.InfoContext(
		ctx,
		"filter rebuilt",
		"id", c.Identity,
		"domains", f.Len(),
		"bits", f.Cap(),
		"hashes", f.K(),
		"duration", dur,
	)

	return f, err
}

// unchanged returns the active filter if it has been built from the content
// with identity id and id is the persisted identity.  Otherwise, it returns
// nil.
func (r *Repository) unchanged(id, persisted identity.Identity) (cur *bloomfilter.Filter) {
	if id != persisted {
		return nil
	}

	r.swapMu.Lock()
	defer r.swapMu.Unlock()

	if r.loaded != id {
		return nil
	}

	return r.filter.Load()
}

// build parses the content and builds a new filter from it.
func (r *Repository) build(
	c *hostssource.Content,
) (f *bloomfilter.Filter, dur time.Duration, err error) {
	start := time.Now()

	set, err := hostsfile.Parse(bytes.NewReader(c.Data))
	if err != nil {
		return nil, 0, fmt.Errorf("parsing list: %w", err)
	}

	f, err = bloomfilter.Build(set, r.fpRate)
	if err != nil {
		return nil, 0, fmt.Errorf("building filter: %w", err)
	}

	return f, time.Since(start), nil
}

// swap publishes f unless the configuration epoch has changed since the load
// and persists it.  persisted is the identity persisted before the load.  If
// the epoch has changed, pub is nil and err is [ErrStaleConfig].  Otherwise,
// pub is f, and err is the error of persisting the identity, if any.
//
// The persistence is done with r.swapMu locked, so that the state of an older
// epoch never overwrites the state of a newer one.
func (r *Repository) swap(
	ctx context.Context,
	f *bloomfilter.Filter,
	id identity.Identity,
	persisted identity.Identity,
	epoch uint64,
) (pub *bloomfilter.Filter, err error) {
	r.swapMu.Lock()
	defer r.swapMu.Unlock()

	if cur := r.selector.Epoch(); cur != epoch {
		return nil, fmt.Errorf("epoch %d, current %d: %w", epoch, cur, ErrStaleConfig)
	}

	r.filter.Store(f)
	r.loaded = id

	r.saveSnapshot(ctx, f, id)

	if persisted == id {
		return f, nil
	}

	err = r.identities.Store(ctx, id)
	if err != nil {
		return f, fmt.Errorf("storing identity: %w", err)
	}

	return f, nil
}

// saveSnapshot writes the snapshot of f if snapshots are enabled.  Errors are
// collected, since the filter is already active.
func (r *Repository) saveSnapshot(ctx context.Context, f *bloomfilter.Filter, id identity.Identity) {
	if r.snapshotPath == "" {
		return
	}

	err := writeSnapshot(r.snapshotPath, f, id)
	if err != nil {
		errcoll.Collect(ctx, r.errColl, r.logger, "writing snapshot", err)
	}
}
