package hostssource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/c2h5oh/datasize"
	"github.com/hostsguard/hostsguard/internal/identity"
)

// Local is the [Source] of a hosts list from a user-designated file.  It never
// substitutes the bundled list when the file is unavailable.
type Local struct {
	logger  *slog.Logger
	last    *lastIdentity
	path    string
	maxSize datasize.ByteSize
}

// LocalConfig is the configuration structure for a *Local.
type LocalConfig struct {
	// Logger is used to log the loads.  It must not be nil.
	Logger *slog.Logger

	// Path is the path to the hosts file.  It must not be empty.
	Path string

	// MaxSize is the maximum size of the file.  It must be positive.
	MaxSize datasize.ByteSize
}

// NewLocal returns a new *Local.  c must not be nil.
func NewLocal(c *LocalConfig) (l *Local) {
	return &Local{
		logger:  c.Logger,
		last:    &lastIdentity{},
		path:    c.Path,
		maxSize: c.MaxSize,
	}
}

// type check
var _ Source = (*Local)(nil)

// Load implements the [Source] interface for *Local.  Any error returned wraps
// [ErrSourceUnavailable].
func (l *Local) Load(ctx context.Context) (c *Content, err error) {
	defer func() { err = errors.Annotate(err, "loading local hosts %q: %w", l.path) }()

	l.logger.InfoContext(ctx, "using data from file", "path", l.path)

	// #nosec G304 -- Trust the path to the file that is given in the
	// configuration.
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	data, err := io.ReadAll(ioutil.LimitReader(f, l.maxSize.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: reading: %w", ErrSourceUnavailable, err)
	}

	id := identity.Fingerprint(data)
	l.last.set(id)

	l.logger.DebugContext(ctx, "loaded file", "size", len(data), "identity", id)

	return &Content{
		Data:     data,
		Identity: id,
	}, nil
}

// Identifier implements the [Source] interface for *Local.
func (l *Local) Identifier() (id identity.Identity) {
	return l.last.get()
}

// isSource implements the [Source] interface for *Local.
func (*Local) isSource() {}
