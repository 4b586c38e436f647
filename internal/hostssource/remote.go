package hostssource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/c2h5oh/datasize"
	"github.com/hostsguard/hostsguard/internal/hghttp"
	"github.com/hostsguard/hostsguard/internal/identity"
)

// errEmptyBody is returned when a remote server responds with no data.  An
// empty remote list is never applied.
const errEmptyBody errors.Error = "empty body"

// Remote is the [Source] of a hosts list fetched with a single HTTP GET
// request.  It doesn't retry.
type Remote struct {
	logger  *slog.Logger
	http    *hghttp.Client
	last    *lastIdentity
	url     *url.URL
	maxSize datasize.ByteSize
}

// RemoteConfig is the configuration structure for a *Remote.
type RemoteConfig struct {
	// Logger is used to log the loads.  It must not be nil.
	Logger *slog.Logger

	// HTTPClient is used to fetch the list.  It must not be nil.  Its timeout
	// bounds every load.
	HTTPClient *hghttp.Client

	// URL is the address of the list.  It must be a valid HTTP(S) URL.
	URL *url.URL

	// MaxSize is the maximum size of the response body.  It must be positive.
	MaxSize datasize.ByteSize
}

// NewRemote returns a new *Remote.  c must not be nil.
func NewRemote(c *RemoteConfig) (r *Remote) {
	return &Remote{
		logger:  c.Logger,
		http:    c.HTTPClient,
		last:    &lastIdentity{},
		url:     c.URL,
		maxSize: c.MaxSize,
	}
}

// type check
var _ Source = (*Remote)(nil)

// Load implements the [Source] interface for *Remote.  Any error returned
// wraps [ErrNetworkFailure].
func (r *Remote) Load(ctx context.Context) (c *Content, err error) {
	ru := urlutil.RedactUserinfo(r.url)
	defer func() { err = errors.Annotate(err, "loading remote hosts %q: %w", ru) }()

	r.logger.InfoContext(ctx, "refreshing from url", "url", ru)

	resp, err := r.http.Get(ctx, r.url)
	if err != nil {
		return nil, fmt.Errorf("%w: requesting: %w", ErrNetworkFailure, err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	r.logger.InfoContext(
		ctx,
		"got data from url",
		"code", resp.StatusCode,
		"content-length", resp.ContentLength,
		"server", resp.Header.Get(httphdr.Server),
		"url", ru,
	)

	err = hghttp.CheckSuccess(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}

	idw := identity.NewWriter()
	body := io.TeeReader(ioutil.LimitReader(resp.Body, r.maxSize.Bytes()), idw)
	data, err := io.ReadAll(body)
	if err != nil {
		err = hghttp.WrapServerError(fmt.Errorf("reading body: %w", err), resp)

		return nil, fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNetworkFailure, hghttp.WrapServerError(errEmptyBody, resp))
	}

	id := idw.Identity()
	r.last.set(id)

	return &Content{
		Data:     data,
		Identity: id,
	}, nil
}

// Identifier implements the [Source] interface for *Remote.
func (r *Remote) Identifier() (id identity.Identity) {
	return r.last.get()
}

// isSource implements the [Source] interface for *Remote.
func (*Remote) isSource() {}
