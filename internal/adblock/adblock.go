// Package adblock contains the blockers deciding whether a request should be
// blocked and the engine exposing them to the rest of the application.
package adblock

import (
	"github.com/hostsguard/hostsguard/internal/allowlist"
	"github.com/hostsguard/hostsguard/internal/bloomfilter"
	"github.com/hostsguard/hostsguard/internal/hostsfile"
)

// Blocker decides whether a request should be blocked.  The set of
// implementations is closed: [NoOp] and [*FilterBacked].
type Blocker interface {
	// IsBlocked returns true if the request to rawURL should be blocked.  It
	// never blocks on I/O.
	IsBlocked(rawURL string) (blocked bool)

	// isBlocker seals the interface.
	isBlocker()
}

// NoOp is the [Blocker] used when blocking is disabled.
type NoOp struct{}

// type check
var _ Blocker = NoOp{}

// IsBlocked implements the [Blocker] interface for NoOp.  It always returns
// false.
func (NoOp) IsBlocked(_ string) (blocked bool) { return false }

// isBlocker implements the [Blocker] interface for NoOp.
func (NoOp) isBlocker() {}

// FilterSource provides the active membership filter.
type FilterSource interface {
	// Filter returns the active filter or nil if there is none yet.
	Filter() (f *bloomfilter.Filter)
}

// FilterBacked is the [Blocker] that blocks the hosts matched by the active
// membership filter unless they are exempted by the allow-list.
type FilterBacked struct {
	filters FilterSource
	allow   *allowlist.List
}

// NewFilterBacked returns a new *FilterBacked.  All arguments must not be nil.
func NewFilterBacked(filters FilterSource, allow *allowlist.List) (b *FilterBacked) {
	return &FilterBacked{
		filters: filters,
		allow:   allow,
	}
}

// type check
var _ Blocker = (*FilterBacked)(nil)

// IsBlocked implements the [Blocker] interface for *FilterBacked.  Requests
// with invalid hosts are never blocked.  Until the first filter is loaded, b
// behaves like [NoOp].
func (b *FilterBacked) IsBlocked(rawURL string) (blocked bool) {
	host, err := hostsfile.HostFromURL(rawURL)
	if err != nil {
		return false
	}

	if b.allow.IsExemptHost(host) {
		return false
	}

	f := b.filters.Filter()
	if f == nil {
		return false
	}

	_, blocked = f.Matches(host)

	return blocked
}

// isBlocker implements the [Blocker] interface for *FilterBacked.
func (*FilterBacked) isBlocker() {}
