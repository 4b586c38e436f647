// Package allowlist contains the list of sites exempted from blocking by the
// user.
package allowlist

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/hostsguard/hostsguard/internal/hostsfile"
)

// List is a set of exempted hosts.  Exemption is hierarchical: exempting
// "example.com" also exempts "www.example.com".  Mutations are visible to the
// next query.  A List without a storage is session-scoped: it lives in memory
// and must be cleared with [List.Clear] at the end of the session.
type List struct {
	logger  *slog.Logger
	storage Storage

	// mu protects hosts.  It is never held during I/O, so queries are never
	// blocked by persistence.
	mu    *sync.RWMutex
	hosts *container.MapSet[string]

	// persistMu serializes mutations with the persistence of their results,
	// so that an older state never overwrites a newer one.
	persistMu *sync.Mutex
}

// Config is the configuration structure for a *List.
type Config struct {
	// Logger is used to log mutations.  It must not be nil.
	Logger *slog.Logger

	// Storage persists the list.  If it is nil, the list is session-scoped.
	Storage Storage

	// Initial are the entries added on creation.  They must be valid hosts or
	// URLs.
	Initial []string
}

// New returns a new *List containing the entries from c.Initial and from the
// storage, if any.  c must not be nil.
func New(ctx context.Context, c *Config) (l *List, err error) {
	hosts := container.NewMapSet[string]()
	for i, e := range c.Initial {
		var host string
		host, err = hostsfile.HostFromURL(e)
		if err != nil {
			return nil, fmt.Errorf("initial entry at index %d: %w", i, err)
		}

		hosts.Add(host)
	}

	if c.Storage != nil {
		var stored []string
		stored, err = c.Storage.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading allowlist: %w", err)
		}

		for _, h := range stored {
			hosts.Add(h)
		}
	}

	return &List{
		logger:    c.Logger,
		storage:   c.Storage,
		mu:        &sync.RWMutex{},
		hosts:     hosts,
		persistMu: &sync.Mutex{},
	}, nil
}

// Add exempts the host of rawURL, which may also be a bare host.  Adding an
// exempted host again is not an error.
func (l *List) Add(ctx context.Context, rawURL string) (err error) {
	host, err := hostsfile.HostFromURL(rawURL)
	if err != nil {
		return fmt.Errorf("adding to allowlist: %w", err)
	}

	l.logger.InfoContext(ctx, "adding", "host", host)

	return l.mutate(ctx, func() {
		l.hosts.Add(host)
	})
}

// Remove removes the exemption of the host of rawURL.  Removing a host that
// isn't exempted is not an error.  The hosts exempted by a parent domain stay
// exempted.
func (l *List) Remove(ctx context.Context, rawURL string) (err error) {
	host, err := hostsfile.HostFromURL(rawURL)
	if err != nil {
		return fmt.Errorf("removing from allowlist: %w", err)
	}

	l.logger.InfoContext(ctx, "removing", "host", host)

	return l.mutate(ctx, func() {
		l.hosts.Delete(host)
	})
}

// Clear removes all exemptions.  It ends a session for a session-scoped list.
func (l *List) Clear(ctx context.Context) (err error) {
	l.logger.InfoContext(ctx, "clearing")

	return l.mutate(ctx, func() {
		l.hosts = container.NewMapSet[string]()
	})
}

// mutate calls f with l.mu locked and persists the result, if there is a
// storage.  If persisting fails, the change stays in effect in memory.
func (l *List) mutate(ctx context.Context, f func()) (err error) {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	f()
	snapshot := l.sortedLocked()
	l.mu.Unlock()

	if l.storage == nil {
		return nil
	}

	err = l.storage.Store(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("persisting allowlist: %w", err)
	}

	return nil
}

// IsExempt returns true if the host of rawURL or any of its parent domains is
// exempted.  Invalid URLs are never exempted.
func (l *List) IsExempt(rawURL string) (ok bool) {
	host, err := hostsfile.HostFromURL(rawURL)
	if err != nil {
		return false
	}

	return l.IsExemptHost(host)
}

// IsExemptHost is like [List.IsExempt] but for a normalized host.
func (l *List) IsExemptHost(host string) (ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.hosts.Len() == 0 {
		return false
	}

	for _, sub := range netutil.Subdomains(host) {
		if l.hosts.Has(sub) {
			return true
		}
	}

	return false
}

// Hosts returns the sorted exempted hosts.
func (l *List) Hosts() (hosts []string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.sortedLocked()
}

// Len returns the number of exempted hosts.
func (l *List) Len() (n int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.hosts.Len()
}

// sortedLocked returns the sorted hosts.  l.mu must be locked.
func (l *List) sortedLocked() (hosts []string) {
	hosts = l.hosts.Values()
	slices.Sort(hosts)

	return hosts
}
