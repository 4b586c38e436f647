package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/hostsguard/hostsguard/internal/errcoll"
)

// reportPanics reports all panics in Main using the error collector, logs
// them, and repanics.  It should be called in a defer.
func reportPanics(ctx context.Context, errColl errcoll.Interface, l *slog.Logger) {
	v := recover()
	if v == nil {
		return
	}

	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("non-error panic: %v", v)
	}

	errColl.Collect(ctx, fmt.Errorf("panic in main: %w", err))
	if f, isFlusher := errColl.(errcoll.ErrorFlushCollector); isFlusher {
		f.Flush()
	}

	l.ErrorContext(ctx, "recovered from panic", slogutil.KeyError, err)
	slogutil.PrintStack(ctx, l, slog.LevelError)

	panic(v)
}
