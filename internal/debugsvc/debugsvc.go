// Package debugsvc contains the HTTP API of HostsGuard: the blocking queries,
// the allow-list management, the health check, the metrics, and the debug
// refreshes.
package debugsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the query interface of the ad blocker served by the API.
type Engine interface {
	// IsBlocked returns true if the request to rawURL should be blocked.
	IsBlocked(rawURL string) (blocked bool)

	// IsAllowListed returns true if the host of rawURL is exempted.
	IsAllowListed(rawURL string) (ok bool)

	// AddAllowListEntry exempts the host of rawURL.
	AddAllowListEntry(ctx context.Context, rawURL string) (err error)

	// RemoveAllowListEntry removes the exemption of the host of rawURL.
	RemoveAllowListEntry(ctx context.Context, rawURL string) (err error)
}

// Service is the HTTP service of HostsGuard.
type Service struct {
	log      *slog.Logger
	engine   Engine
	gatherer prometheus.Gatherer
	refrHdlr *refreshHandler
	servers  map[string]*server
}

// Config is the HostsGuard HTTP service configuration structure.
type Config struct {
	// Logger is used to log the requests.  It must not be nil.
	Logger *slog.Logger

	// Engine is the engine queried by the API.  It must not be nil if APIAddr
	// is not empty.
	Engine Engine

	// Gatherer is the source of the metrics.  It must not be nil if
	// PrometheusAddr is not empty.
	Gatherer prometheus.Gatherer

	// Refreshers are the entities that can be refreshed with the debug API.
	Refreshers Refreshers

	// APIAddr is the address of the query API, the health check, and the
	// debug API.  If it is empty, the API isn't served.
	APIAddr string

	// PrometheusAddr is the address of the metrics.  It may be the same as
	// APIAddr.  If it is empty, the metrics aren't served.
	PrometheusAddr string
}

// New returns a new properly initialized *Service.  c must not be nil.
func New(c *Config) (svc *Service) {
	svc = &Service{
		log:      c.Logger,
		engine:   c.Engine,
		gatherer: c.Gatherer,
		refrHdlr: &refreshHandler{
			refrs: c.Refreshers,
		},
		servers: make(map[string]*server),
	}

	svc.addServer(c.PrometheusAddr, "prometheus")
	svc.addServer(c.APIAddr, "api")

	return svc
}

// server is a single server within the HostsGuard HTTP service.
type server struct {
	http *http.Server
	name string
}

// startServer starts one server and panics if there is an unexpected error.
func startServer(ctx context.Context, l *slog.Logger, s *server) {
	defer recoverAndExit(ctx, l)

	l.InfoContext(ctx, "listening", "name", s.name, "addr", s.http.Addr)

	srv := s.http
	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		panic(fmt.Errorf("%s: failed listen on %s: %w", s.name, srv.Addr, err))
	}
}

// recoverAndExit recovers a panic, logs it using l, and then exits with
// [osutil.ExitCodeFailure].
func recoverAndExit(ctx context.Context, l *slog.Logger) {
	v := recover()
	if v == nil {
		return
	}

	var args []any
	if err, ok := v.(error); ok {
		args = []any{slogutil.KeyError, err}
	} else {
		args = []any{"value", v}
	}

	l.ErrorContext(ctx, "recovered from panic", args...)
	slogutil.PrintStack(ctx, l, slog.LevelError)

	os.Exit(osutil.ExitCodeFailure)
}

// type check
var _ service.Interface = (*Service)(nil)

// Start implements the [service.Interface] interface for *Service.  It starts
// serving all endpoints but does not wait for them to actually go online.  err
// is always nil, if any endpoint fails to start, it panics.
func (svc *Service) Start(ctx context.Context) (err error) {
	for _, srv := range svc.servers {
		go startServer(ctx, svc.log, srv)
	}

	return nil
}

// Shutdown implements the [service.Interface] interface for *Service.  It stops
// serving all endpoints.
func (svc *Service) Shutdown(ctx context.Context) (err error) {
	var errs []error
	for _, srv := range svc.servers {
		err = srv.http.Shutdown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("server %s shutdown: %w", srv.name, err))

			continue
		}

		svc.log.InfoContext(ctx, "server is shutdown", "name", srv.name)
	}

	if err = errors.Join(errs...); err != nil {
		return err
	}

	svc.log.InfoContext(ctx, "all servers shutdown", "num", len(svc.servers))

	return nil
}

// addServer adds the named handler to the service, creating a new server
// listening on a different address if necessary.  If addr is empty, the service
// isn't created.
func (svc *Service) addServer(addr, name string) {
	if addr == "" {
		return
	}

	srv, ok := svc.servers[addr]
	if !ok {
		mux := http.NewServeMux()
		svc.addHandler(name, mux)

		svc.servers[addr] = &server{
			// #nosec G112 -- Do not set the timeouts, since the debug refreshes
			// may be busy for a long time.
			http: &http.Server{
				Addr:     addr,
				Handler:  mux,
				ErrorLog: slog.NewLogLogger(svc.log.Handler(), slog.LevelDebug),
			},
			name: name,
		}

		return
	}

	svc.addHandler(name, srv.http.Handler.(*http.ServeMux))
	srv.name += ";" + name
}

// addHandler adds the handlers of the named service to mux.
func (svc *Service) addHandler(serviceName string, mux *http.ServeMux) {
	switch serviceName {
	case "api":
		svc.apiMux(mux)
	case "prometheus":
		svc.promMux(mux)
	default:
		panic(fmt.Errorf("debugsvc: could not find mux for service %q", serviceName))
	}
}

// Path pattern constants.
const (
	PathPatternAllowList       = "/api/v1/allowlist"
	PathPatternBlocked         = "/api/v1/blocked"
	PathPatternDebugAPIRefresh = "/debug/api/refresh"
	PathPatternHealthCheck     = "/health-check"
	PathPatternMetrics         = "/metrics"
)

// apiMux adds the health-check, the query, and the debug API handlers to mux.
func (svc *Service) apiMux(mux *http.ServeMux) {
	mux.Handle(
		http.MethodGet+" "+PathPatternHealthCheck,
		svc.middleware(http.HandlerFunc(serveHealthCheck), slog.LevelDebug),
	)
	mux.Handle(
		http.MethodGet+" "+PathPatternBlocked,
		svc.middleware(http.HandlerFunc(svc.serveBlocked), slog.LevelDebug),
	)
	mux.Handle(
		http.MethodGet+" "+PathPatternAllowList,
		svc.middleware(http.HandlerFunc(svc.serveAllowListGet), slog.LevelDebug),
	)
	mux.Handle(
		http.MethodPut+" "+PathPatternAllowList,
		svc.middleware(http.HandlerFunc(svc.serveAllowListPut), slog.LevelInfo),
	)
	mux.Handle(
		http.MethodDelete+" "+PathPatternAllowList,
		svc.middleware(http.HandlerFunc(svc.serveAllowListDelete), slog.LevelInfo),
	)
	mux.Handle(
		http.MethodPost+" "+PathPatternDebugAPIRefresh,
		svc.middleware(svc.refrHdlr, slog.LevelInfo),
	)
}

// promMux adds the prometheus service handler to mux.
func (svc *Service) promMux(mux *http.ServeMux) {
	mux.Handle(
		http.MethodGet+" "+PathPatternMetrics,
		svc.middleware(promhttp.HandlerFor(svc.gatherer, promhttp.HandlerOpts{}), slog.LevelDebug),
	)
}
