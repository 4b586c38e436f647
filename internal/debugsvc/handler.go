package debugsvc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/hostsguard/hostsguard/internal/hghttp"
	"github.com/hostsguard/hostsguard/internal/hostsfile"
)

// serveHealthCheck handles the GET /health-check endpoint.
func serveHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(httphdr.ContentType, hghttp.HdrValTextPlain)
	w.WriteHeader(http.StatusOK)

	_, err := io.WriteString(w, "OK\n")
	if err != nil {
		ctx := r.Context()
		l := slogutil.MustLoggerFromContext(ctx)
		l.DebugContext(ctx, "writing health-check response", slogutil.KeyError, err)
	}
}

// blockedResponse describes the response to the GET /api/v1/blocked HTTP API.
type blockedResponse struct {
	URL     string `json:"url"`
	Blocked bool   `json:"blocked"`
}

// allowListResponse describes the responses of the /api/v1/allowlist HTTP
// API.
type allowListResponse struct {
	URL         string `json:"url"`
	AllowListed bool   `json:"allowlisted"`
}

// serveBlocked handles the GET /api/v1/blocked endpoint.
func (svc *Service) serveBlocked(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := urlFromQuery(w, r)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, &blockedResponse{
		URL:     rawURL,
		Blocked: svc.engine.IsBlocked(rawURL),
	})
}

// serveAllowListGet handles the GET /api/v1/allowlist endpoint.
func (svc *Service) serveAllowListGet(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := urlFromQuery(w, r)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, &allowListResponse{
		URL:         rawURL,
		AllowListed: svc.engine.IsAllowListed(rawURL),
	})
}

// serveAllowListPut handles the PUT /api/v1/allowlist endpoint.
func (svc *Service) serveAllowListPut(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := validURLFromQuery(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	err := svc.engine.AddAllowListEntry(ctx, rawURL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)

		return
	}

	writeJSON(w, r, http.StatusOK, &allowListResponse{
		URL:         rawURL,
		AllowListed: true,
	})
}

// serveAllowListDelete handles the DELETE /api/v1/allowlist endpoint.
func (svc *Service) serveAllowListDelete(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := validURLFromQuery(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	err := svc.engine.RemoveAllowListEntry(ctx, rawURL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)

		return
	}

	writeJSON(w, r, http.StatusOK, &allowListResponse{
		URL:         rawURL,
		AllowListed: svc.engine.IsAllowListed(rawURL),
	})
}

// urlFromQuery returns the value of the "url" query parameter.  If it is
// missing, urlFromQuery writes the error response and ok is false.
func urlFromQuery(w http.ResponseWriter, r *http.Request) (rawURL string, ok bool) {
	rawURL = r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("query parameter %q is required", "url"))

		return "", false
	}

	return rawURL, true
}

// validURLFromQuery is like [urlFromQuery] but also requires the host of the
// URL to be valid.
func validURLFromQuery(w http.ResponseWriter, r *http.Request) (rawURL string, ok bool) {
	rawURL, ok = urlFromQuery(w, r)
	if !ok {
		return "", false
	}

	_, err := hostsfile.HostFromURL(rawURL)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("bad url: %w", err))

		return "", false
	}

	return rawURL, true
}

// writeError logs err and writes it as a plain-text response with code.
func writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	ctx := r.Context()
	l := slogutil.MustLoggerFromContext(ctx)
	l.ErrorContext(ctx, "handling request", "code", code, slogutil.KeyError, err)

	http.Error(w, err.Error(), code)
}

// writeJSON writes v as a JSON response with code.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set(httphdr.ContentType, hghttp.HdrValApplicationJSON)
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		ctx := r.Context()
		l := slogutil.MustLoggerFromContext(ctx)
		l.DebugContext(ctx, "writing response", slogutil.KeyError, err)
	}
}
