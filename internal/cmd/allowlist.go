package cmd

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/hostsguard/hostsguard/internal/hostsfile"
)

// allowListConfig is the configuration of the list of sites exempted from
// blocking.
type allowListConfig struct {
	// Initial are the hosts or URLs exempted on every start.
	Initial []string `yaml:"initial"`

	// Persist shows if the changes of the list are kept in the cache directory
	// between restarts.  If it is false, the list is session-scoped.
	Persist bool `yaml:"persist"`
}

// type check
var _ validate.Interface = (*allowListConfig)(nil)

// Validate implements the [validate.Interface] interface for *allowListConfig.
func (c *allowListConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	var errs []error
	for i, e := range c.Initial {
		_, err = hostsfile.HostFromURL(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("initial: at index %d: %w", i, err))
		}
	}

	return errors.Join(errs...)
}
