package hostssource

import (
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/c2h5oh/datasize"
	"github.com/hostsguard/hostsguard/internal/hghttp"
)

// Selector maps the current [Config] to a fresh [Source].  Every change of the
// configuration starts a new epoch, so that the results of loads started under
// an older configuration can be discarded.
type Selector struct {
	logger     *slog.Logger
	httpClient *hghttp.Client
	readAsset  assetReader

	// mu protects conf and epoch.
	mu    *sync.Mutex
	conf  *Config
	epoch uint64

	maxSize datasize.ByteSize
}

// SelectorConfig is the configuration structure for a *Selector.
type SelectorConfig struct {
	// Logger is the base logger for the sources.  It must not be nil.
	Logger *slog.Logger

	// Assets is the file system containing the bundled list at AssetPath.  It
	// must not be nil.  See [DefaultAssets].
	Assets fs.FS

	// HTTPClient is used by remote sources.  It must not be nil.
	HTTPClient *hghttp.Client

	// Initial is the initial source configuration.  It must be valid.
	Initial *Config

	// AssetPath is the path of the bundled list within Assets.  See
	// [BundledPath].
	AssetPath string

	// MaxSize is the maximum size of local and remote lists.  It must be
	// positive.
	MaxSize datasize.ByteSize
}

// NewSelector returns a new *Selector at epoch 1.  c must not be nil.
func NewSelector(c *SelectorConfig) (s *Selector) {
	return &Selector{
		logger:     c.Logger,
		httpClient: c.HTTPClient,
		readAsset:  newAssetReader(c.Assets, c.AssetPath),
		mu:         &sync.Mutex{},
		conf:       c.Initial,
		epoch:      1,
		maxSize:    c.MaxSize,
	}
}

// SetConfig replaces the source configuration and returns the new epoch.  c
// must be valid.
func (s *Selector) SetConfig(c *Config) (epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conf = c
	s.epoch++

	return s.epoch
}

// Epoch returns the current configuration epoch.
func (s *Selector) Epoch() (epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.epoch
}

// Current returns a new source for the current configuration along with the
// epoch of that configuration.  Sources are never reused between calls.
func (s *Selector) Current() (src Source, epoch uint64, err error) {
	s.mu.Lock()
	c, epoch := s.conf, s.epoch
	s.mu.Unlock()

	src, err = s.New(c)
	if err != nil {
		return nil, epoch, err
	}

	return src, epoch, nil
}

// New returns a new source for c.
func (s *Selector) New(c *Config) (src Source, err error) {
	if c == nil {
		return nil, fmt.Errorf("source config: %w", errors.ErrNoValue)
	}

	switch c.Kind {
	case KindDefault:
		return &Bundled{
			read: s.readAsset,
		}, nil
	case KindLocal:
		return NewLocal(&LocalConfig{
			Logger:  s.logger.With(slogutil.KeyPrefix, "hosts_local"),
			Path:    c.Path,
			MaxSize: s.maxSize,
		}), nil
	case KindRemote:
		return NewRemote(&RemoteConfig{
			Logger:     s.logger.With(slogutil.KeyPrefix, "hosts_remote"),
			HTTPClient: s.httpClient,
			URL:        c.URL,
			MaxSize:    s.maxSize,
		}), nil
	default:
		return nil, fmt.Errorf("source kind: %w: %q", errors.ErrBadEnumValue, c.Kind)
	}
}
