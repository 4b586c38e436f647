package adblock

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hostsguard/hostsguard/internal/allowlist"
	"github.com/hostsguard/hostsguard/internal/filterrepo"
	"github.com/hostsguard/hostsguard/internal/hostssource"
)

// Config is the blocking configuration that can be changed at runtime.
type Config struct {
	// Source is the configuration of the hosts source.  It must be valid
	// when Enabled is true.
	Source *hostssource.Config

	// Enabled shows if blocking is enabled.
	Enabled bool
}

// Engine is the query interface of the ad blocker.  It is safe for concurrent
// use.
type Engine struct {
	logger   *slog.Logger
	repo     *filterrepo.Repository
	selector *hostssource.Selector
	allow    *allowlist.List
	metrics  Metrics
	backed   *FilterBacked

	// blocker is the current blocker.  It is replaced on every
	// reconfiguration.
	blocker *atomic.Pointer[Blocker]
}

// EngineConfig is the configuration structure for an *Engine.
type EngineConfig struct {
	// Logger is used to log reconfigurations.  It must not be nil.
	Logger *slog.Logger

	// Repository owns the active filter.  It must not be nil.
	Repository *filterrepo.Repository

	// Selector is the source selector used by Repository.  It must not be
	// nil.
	Selector *hostssource.Selector

	// AllowList is the list of exempted hosts.  It must not be nil.
	AllowList *allowlist.List

	// Metrics is used for the collection of the statistics.  It must not be
	// nil.
	Metrics Metrics

	// Enabled shows if blocking is initially enabled.  The initial source
	// configuration is the one of Selector.
	Enabled bool
}

// NewEngine returns a new *Engine.  It doesn't refresh the filter.  c must not
// be nil.
func NewEngine(c *EngineConfig) (e *Engine) {
	e = &Engine{
		logger:   c.Logger,
		repo:     c.Repository,
		selector: c.Selector,
		allow:    c.AllowList,
		metrics:  c.Metrics,
		backed:   NewFilterBacked(c.Repository, c.AllowList),
		blocker:  &atomic.Pointer[Blocker]{},
	}

	e.setBlocker(c.Enabled)

	return e
}

// setBlocker replaces the current blocker according to enabled.
func (e *Engine) setBlocker(enabled bool) {
	var b Blocker = NoOp{}
	if enabled {
		b = e.backed
	}

	e.blocker.Store(&b)
}

// IsBlocked returns true if the request to rawURL should be blocked.  It never
// blocks on I/O.
func (e *Engine) IsBlocked(rawURL string) (blocked bool) {
	blocked = (*e.blocker.Load()).IsBlocked(rawURL)
	e.metrics.IncrementLookups(blocked)

	return blocked
}

// Enabled returns true if blocking is enabled.
func (e *Engine) Enabled() (ok bool) {
	_, ok = (*e.blocker.Load()).(*FilterBacked)

	return ok
}

// Refresh brings the filter up to date with the current source.
func (e *Engine) Refresh(ctx context.Context) (err error) {
	_, err = e.repo.EnsureUpToDate(ctx)

	return err
}

// AddAllowListEntry exempts the host of rawURL from blocking.
func (e *Engine) AddAllowListEntry(ctx context.Context, rawURL string) (err error) {
	return e.allow.Add(ctx, rawURL)
}

// RemoveAllowListEntry removes the exemption of the host of rawURL.
func (e *Engine) RemoveAllowListEntry(ctx context.Context, rawURL string) (err error) {
	return e.allow.Remove(ctx, rawURL)
}

// IsAllowListed returns true if the host of rawURL is exempted from blocking.
func (e *Engine) IsAllowListed(rawURL string) (ok bool) {
	return e.allow.IsExempt(rawURL)
}

// Reconfigure applies c.  When blocking is enabled, it starts a new
// configuration epoch and an asynchronous refresh, and the current filter is
// used until the refresh succeeds.  c must not be nil.
func (e *Engine) Reconfigure(ctx context.Context, c *Config) (err error) {
	if !c.Enabled {
		e.logger.InfoContext(ctx, "blocking disabled")
		e.setBlocker(false)

		return nil
	}

	err = c.Source.Validate()
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	epoch := e.selector.SetConfig(c.Source)
	e.setBlocker(true)
	e.logger.InfoContext(ctx, "blocking enabled", "source", c.Source, "epoch", epoch)

	e.repo.RefreshAsync(ctx)

	return nil
}
