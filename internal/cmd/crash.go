package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/hostsguard/hostsguard/internal/hostssource"
	"github.com/hostsguard/hostsguard/internal/version"
)

// crashReporter sets a file for Go runtime crashes and unhandled panics.  The
// file starts with a header describing the build and the hosts source, so that
// a crash during the rebuild of a filter can be traced to the list.
type crashReporter struct {
	logger *slog.Logger
	file   *os.File

	dirPath string
	pattern string
	header  string
}

// crashReporterConfig is the configuration structure for a [crashReporter].
type crashReporterConfig struct {
	// logger is used to log the operation of the crash reporter.  If enabled is
	// true, logger must not be nil.
	logger *slog.Logger

	// clock is used to name the file and to date the header.  If enabled is
	// true, clock must not be nil.
	clock timeutil.Clock

	// source is the configuration of the hosts source at startup.  It may be
	// nil.
	source *hostssource.Config

	// dirPath is the directory where the crash report is created.  If enabled
	// is true, dirPath must point to a directory.
	dirPath string

	// prefix is the prefix of the name of the file.  If enabled is true, prefix
	// must not be empty.
	prefix string

	// enabled shows if a crash report file should be created.
	enabled bool
}

// newCrashReporter returns a new properly initialized crash reporter.  r is
// nil if c.enabled is false.  c must not be nil and must be valid.
func newCrashReporter(c *crashReporterConfig) (r *crashReporter, err error) {
	defer func() { err = errors.Annotate(err, "crash reporter: %w") }()

	if !c.enabled {
		return nil, nil
	}

	err = validateDir(c.dirPath)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is, and
		// there is already errors.Annotate here.
		return nil, err
	}

	now := c.clock.Now()

	return &crashReporter{
		logger:  c.logger,
		dirPath: c.dirPath,
		pattern: fmt.Sprintf(
			"%s_%s_%s_%07d_*.txt",
			c.prefix,
			version.Version(),
			now.UTC().Format("20060102150405"),
			os.Getpid(),
		),
		header: crashHeader(now, c.source),
	}, nil
}

// crashHeader returns the first lines of the crash output.
func crashHeader(now time.Time, src *hostssource.Config) (hdr string) {
	kind, loc := "unknown", ""
	if src != nil {
		kind, loc = string(src.Kind), src.Path
		if src.URL != nil {
			loc = src.URL.Redacted()
		}
	}

	return fmt.Sprintf(
		"hostsguard %s (revision %s, %s)\nstarted: %s\nsource: %s %s\n\n",
		version.Version(),
		version.Revision(),
		runtime.Version(),
		now.UTC().Format(time.RFC3339),
		kind,
		loc,
	)
}

// type check
var _ service.Interface = (*crashReporter)(nil)

// Start implements the [service.Interface] for *crashReporter.  If r is nil,
// err is nil.
func (r *crashReporter) Start(ctx context.Context) (err error) {
	if r == nil {
		return nil
	}

	defer func() { err = errors.Annotate(err, "starting crash reporter: %w") }()

	r.file, err = os.CreateTemp(r.dirPath, r.pattern)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is, and
		// there is already errors.Annotate here.
		return err
	}

	r.logger = r.logger.With("path", r.file.Name())

	_, err = r.file.WriteString(r.header)
	if err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	err = debug.SetCrashOutput(r.file, debug.CrashOptions{})
	if err != nil {
		return fmt.Errorf("setting crash output: %w", err)
	}

	r.logger.InfoContext(ctx, "set crash output")

	return nil
}

// Shutdown implements the [service.Interface] for *crashReporter.  The file is
// removed if nothing has been written after the header.  If r is nil, err is
// nil.
func (r *crashReporter) Shutdown(ctx context.Context) (err error) {
	if r == nil {
		return nil
	}

	err = debug.SetCrashOutput(nil, debug.CrashOptions{})
	if err != nil {
		return fmt.Errorf("unsetting crash output: %w", err)
	}

	s, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("getting stat of crash file: %w", err)
	}

	name := r.file.Name()
	err = r.file.Close()
	if err != nil {
		return fmt.Errorf("closing crash file: %w", err)
	}

	if s.Size() > int64(len(r.header)) {
		r.logger.WarnContext(ctx, "crash output is not empty; not removing")

		return nil
	}

	r.logger.DebugContext(ctx, "crash output is empty; removing")

	err = os.Remove(name)
	if err != nil {
		return fmt.Errorf("removing crash file: %w", err)
	}

	return nil
}
