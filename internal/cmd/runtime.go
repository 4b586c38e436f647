package cmd

import (
	"context"
	"log/slog"
	"math"
	"runtime/debug"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/c2h5oh/datasize"
)

// runtimeLimits are the limits of the Go runtime set from the environment.
// The zero value of a field means that the setting of the runtime is kept.
type runtimeLimits struct {
	// memLimit is the soft memory limit.  Rebuilding the filter of a large list
	// briefly holds both the parsed set and the old filter, so it's the main
	// reason to set it.
	memLimit datasize.ByteSize

	// maxThreads is the maximum number of OS threads.
	maxThreads int
}

// apply sets the non-zero limits and returns the previous values of the limits
// it has changed, so that they can be restored by applying prev.  l must not be
// nil, lim.maxThreads must not be negative.
func (lim *runtimeLimits) apply(ctx context.Context, l *slog.Logger) (prev *runtimeLimits) {
	prev = &runtimeLimits{}

	if lim.maxThreads == 0 {
		l.Log(ctx, slogutil.LevelTrace, "go max threads not set")
	} else {
		prev.maxThreads = debug.SetMaxThreads(lim.maxThreads)
		l.InfoContext(ctx, "set go max threads", "n", lim.maxThreads, "prev", prev.maxThreads)
	}

	if lim.memLimit == 0 {
		l.Log(ctx, slogutil.LevelTrace, "go memory limit not set")
	} else {
		limit := int64(min(lim.memLimit.Bytes(), math.MaxInt64))
		prev.memLimit = datasize.ByteSize(debug.SetMemoryLimit(limit))
		l.InfoContext(ctx, "set go memory limit", "limit", lim.memLimit, "prev", prev.memLimit)
	}

	return prev
}
