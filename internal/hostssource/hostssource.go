// Package hostssource contains the providers of raw hosts lists: the list
// bundled with the binary, a local file, and a remote URL, as well as the
// selector that maps the configuration to one of them.
package hostssource

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/hostsguard/hostsguard/internal/identity"
)

// Source errors.
const (
	// ErrSourceUnavailable is returned when a local file is missing or cannot
	// be read.  The underlying [fs.ErrNotExist] or [fs.ErrPermission] is kept
	// in the chain.
	ErrSourceUnavailable errors.Error = "source unavailable"

	// ErrNetworkFailure is returned when a remote list cannot be fetched
	// because of a timeout, a transport error, a non-2xx status, or an empty
	// body.
	ErrNetworkFailure errors.Error = "network failure"

	// ErrBundledCorrupt is returned when the list bundled with the binary
	// cannot be read.  It means that the build is broken.
	ErrBundledCorrupt errors.Error = "bundled hosts list is corrupt"
)

// Content is the raw data of a hosts list along with its identity.
type Content struct {
	// Data is the raw list.  It is never empty for remote sources.
	Data []byte

	// Identity is the fingerprint of Data.
	Identity identity.Identity
}

// Source is a provider of raw hosts lists.  The set of implementations is
// closed: [*Bundled], [*Local], and [*Remote].
type Source interface {
	// Load retrieves the list.  err is not nil if the list cannot be
	// retrieved, in which case c is nil.
	Load(ctx context.Context) (c *Content, err error)

	// Identifier returns the identity of the content retrieved by the last
	// successful call to Load.  It is [identity.Empty] if there has been no
	// such call, except for [*Bundled], which knows its identity in advance.
	Identifier() (id identity.Identity)

	// isSource seals the interface.
	isSource()
}

// Kind is the kind of a hosts source in the configuration.
type Kind string

// Valid Kind values.
const (
	KindDefault Kind = "default"
	KindLocal   Kind = "local"
	KindRemote  Kind = "remote"
)

// Config is the configuration of the hosts source.  It is read-only to the
// engine.
type Config struct {
	// URL is the address of the remote list.  It must be a valid HTTP(S) URL
	// when Kind is [KindRemote] and is ignored otherwise.
	URL *url.URL

	// Kind is the kind of the source.
	Kind Kind

	// Path is the path to the local file.  It must not be empty when Kind is
	// [KindLocal] and is ignored otherwise.
	Path string
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	switch c.Kind {
	case KindDefault:
		return nil
	case KindLocal:
		return validate.NotEmpty("path", c.Path)
	case KindRemote:
		if c.URL == nil {
			return fmt.Errorf("url: %w", errors.ErrNoValue)
		}

		return urlutil.ValidateHTTPURL(c.URL)
	default:
		return fmt.Errorf("kind: %w: %q", errors.ErrBadEnumValue, c.Kind)
	}
}

// String implements the [fmt.Stringer] interface for *Config.
func (c *Config) String() (s string) {
	switch c.Kind {
	case KindLocal:
		return string(c.Kind) + ":" + c.Path
	case KindRemote:
		return string(c.Kind) + ":" + urlutil.RedactUserinfo(c.URL).String()
	default:
		return string(c.Kind)
	}
}

// lastIdentity keeps the identity of the last successfully loaded content.
type lastIdentity struct {
	id atomic.Pointer[identity.Identity]
}

// get returns the stored identity or [identity.Empty].
func (l *lastIdentity) get() (id identity.Identity) {
	if p := l.id.Load(); p != nil {
		return *p
	}

	return identity.Empty
}

// set stores id.
func (l *lastIdentity) set(id identity.Identity) {
	l.id.Store(&id)
}
