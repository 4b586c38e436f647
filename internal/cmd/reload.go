package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/service"
	"github.com/hostsguard/hostsguard/internal/adblock"
)

// reconfigurer is the part of [adblock.Engine] used by [configReloader].
type reconfigurer interface {
	Reconfigure(ctx context.Context, c *adblock.Config) (err error)
}

// type check
var _ reconfigurer = (*adblock.Engine)(nil)

// configReloader re-reads the configuration file and applies the source and
// the enabled state of the ad blocker.  The other properties, such as the
// false-positive rate, are only applied on restart.
type configReloader struct {
	logger   *slog.Logger
	engine   reconfigurer
	confPath string
}

// newConfigReloader returns a new properly initialized *configReloader.  All
// arguments must not be empty.
func newConfigReloader(l *slog.Logger, engine reconfigurer, confPath string) (r *configReloader) {
	return &configReloader{
		logger:   l,
		engine:   engine,
		confPath: confPath,
	}
}

// type check
var _ service.Refresher = (*configReloader)(nil)

// Refresh implements the [service.Refresher] interface for *configReloader.
// An invalid configuration file leaves the current configuration unchanged.
func (r *configReloader) Refresh(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "reloading config: %w") }()

	c, err := parseConfig(r.confPath)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	err = c.Validate()
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	r.logger.InfoContext(ctx, "reloading", "path", r.confPath)

	return r.engine.Reconfigure(ctx, c.AdBlock.toInternal())
}
