// Package filterrepo contains the repository that owns the active membership
// filter and rebuilds it when the configured hosts list changes.
package filterrepo

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrStaleConfig is returned when the source configuration has changed while
// the filter was being rebuilt.  The rebuilt filter is discarded.
const ErrStaleConfig errors.Error = "source configuration changed during refresh"

// Metrics is an interface that is used for the collection of the filter
// repository statistics.
type Metrics interface {
	// SetStatus sets the status of the latest refresh.  err is nil if the
	// refresh succeeded.
	SetStatus(ctx context.Context, err error)

	// ObserveRebuild records a rebuild of a filter of domains domains that
	// took dur.
	ObserveRebuild(ctx context.Context, domains uint, dur time.Duration)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// SetStatus implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetStatus(_ context.Context, _ error) {}

// ObserveRebuild implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveRebuild(_ context.Context, _ uint, _ time.Duration) {}
