package cmd

import (
	"fmt"
	"net/url"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"github.com/hostsguard/hostsguard/internal/adblock"
	"github.com/hostsguard/hostsguard/internal/hostssource"
)

// adBlockConfig is the configuration of the ad blocker.
type adBlockConfig struct {
	// Source is the configuration of the hosts list source.
	Source *sourceConfig `yaml:"source"`

	// FalsePositiveRate is the target false-positive probability of the
	// membership filter.  It must be in the open interval (0, 1).
	FalsePositiveRate float64 `yaml:"false_positive_rate"`

	// RefreshIvl defines how often HostsGuard checks the source for changes.
	// If it is zero, the source is only checked on start and on the debug
	// refresh.
	RefreshIvl timeutil.Duration `yaml:"refresh_interval"`

	// RefreshTimeout is the timeout for the entire filter update operation,
	// including the download of a remote list.
	RefreshTimeout timeutil.Duration `yaml:"refresh_timeout"`

	// MaxSize is the maximum size of a local or remote hosts list.
	MaxSize datasize.ByteSize `yaml:"max_size"`

	// Enabled shows if blocking is enabled.
	Enabled bool `yaml:"enabled"`
}

// type check
var _ validate.Interface = (*adBlockConfig)(nil)

// Validate implements the [validate.Interface] interface for *adBlockConfig.
func (c *adBlockConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNegative("refresh_interval", c.RefreshIvl),
		validate.Positive("refresh_timeout", c.RefreshTimeout),
		validate.Positive("max_size", c.MaxSize),
	}

	if p := c.FalsePositiveRate; !(p > 0 && p < 1) {
		errs = append(errs, fmt.Errorf(
			"false_positive_rate: %w: must be in (0, 1), got %v",
			errors.ErrOutOfRange,
			p,
		))
	}

	errs = validate.Append(errs, "source", c.Source)

	return errors.Join(errs...)
}

// toInternal converts c to the ad blocker configuration.  c must be valid.
func (c *adBlockConfig) toInternal() (conf *adblock.Config) {
	return &adblock.Config{
		Source:  c.Source.toInternal(),
		Enabled: c.Enabled,
	}
}

// sourceConfig is the configuration of the hosts list source.
type sourceConfig struct {
	// Type is the kind of the source.  See [hostssource.Kind].
	Type hostssource.Kind `yaml:"type"`

	// Path is the path to the local hosts file.  It is only used when Type is
	// [hostssource.KindLocal].
	Path string `yaml:"path"`

	// URL is the address of the remote hosts list.  It is only used when Type
	// is [hostssource.KindRemote].
	URL string `yaml:"url"`
}

// type check
var _ validate.Interface = (*sourceConfig)(nil)

// Validate implements the [validate.Interface] interface for *sourceConfig.
func (c *sourceConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	conf, err := c.parse()
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	return conf.Validate()
}

// parse returns the source configuration described by c.
func (c *sourceConfig) parse() (conf *hostssource.Config, err error) {
	conf = &hostssource.Config{
		Kind: c.Type,
		Path: c.Path,
	}

	if c.Type == hostssource.KindRemote && c.URL != "" {
		conf.URL, err = url.Parse(c.URL)
		if err != nil {
			return nil, fmt.Errorf("url: %w", err)
		}
	}

	return conf, nil
}

// toInternal converts c to the source configuration.  c must be valid.
func (c *sourceConfig) toInternal() (conf *hostssource.Config) {
	conf, err := c.parse()
	if err != nil {
		panic(fmt.Errorf("source: %w", err))
	}

	return conf
}
