// Package hgtest contains simple mocks for common interfaces and other test
// utilities.
package hgtest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/stretchr/testify/require"
)

// ContentServer is an HTTP server serving a replaceable body for tests.
type ContentServer struct {
	// URL is the URL of the served content.
	URL *url.URL

	body     *atomic.Pointer[[]byte]
	requests *atomic.Int64
	onServe  func()
}

// NewContentServer starts a *ContentServer serving body and registers its
// shutdown in tb's cleanup.  onServe, if not nil, is called before every
// response.
func NewContentServer(tb testing.TB, body []byte, onServe func()) (s *ContentServer) {
	tb.Helper()

	s = &ContentServer{
		body:     &atomic.Pointer[[]byte]{},
		requests: &atomic.Int64{},
		onServe:  onServe,
	}
	s.SetBody(body)

	srv := httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	tb.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL + "/hosts.txt")
	require.NoError(tb, err)

	s.URL = u

	return s
}

// serveHTTP serves the current body.
func (s *ContentServer) serveHTTP(w http.ResponseWriter, _ *http.Request) {
	s.requests.Add(1)

	if s.onServe != nil {
		s.onServe()
	}

	w.Header().Set(httphdr.ContentType, "text/plain")
	_, _ = w.Write(*s.body.Load())
}

// SetBody replaces the served body.
func (s *ContentServer) SetBody(body []byte) {
	s.body.Store(&body)
}

// Requests returns the number of requests served so far.
func (s *ContentServer) Requests() (n int64) {
	return s.requests.Load()
}
