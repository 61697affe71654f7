/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package httpserver implements the engine's HTTP side-channel (spec
// §6): a health check, a version page, robots.txt, optional pprof and
// Prometheus endpoints, session bootstrap/rejoin REST lookups, and the
// WebSocket upgrade endpoint that hands each connection off to
// internal/transport.
//
// Grounded on Seednode-partybox's web.go/html.go/profile.go: the same
// httprouter mux, security-header set, logDate-stamped logf, and
// profile-flag-gated pprof wiring, generalized from a single
// hardcoded game route to a REST+WebSocket session API.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/partyquiz/engine/internal/config"
	"github.com/partyquiz/engine/internal/eventbus"
	"github.com/partyquiz/engine/internal/metrics"
	"github.com/partyquiz/engine/internal/registry"
	"github.com/partyquiz/engine/internal/store"
	"github.com/partyquiz/engine/internal/supervisor"
	"github.com/partyquiz/engine/internal/transport"
)

const (
	logDate          = `2006-01-02T15:04:05.000-07:00`
	readWriteTimeout = 10 * time.Second
)

// Server wires the engine's HTTP and WebSocket surface to a
// supervisor.Manager.
type Server struct {
	Config   *config.Config
	Manager  *supervisor.Manager
	Registry *registry.Registry
	Store    *store.Store
	Bus      *eventbus.Bus
	Metrics  *metrics.Metrics // nil when --metrics is off

	httpServer *http.Server
}

func (s *Server) logf(format string, args ...any) {
	if !s.Config.Verbose {
		return
	}
	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func securityHeaders(cfg *config.Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.Scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

// New builds (but does not start) the HTTP server for mgr.
func New(cfg *config.Config, mgr *supervisor.Manager, reg *registry.Registry, st *store.Store, bus *eventbus.Bus, met *metrics.Metrics) *Server {
	s := &Server{Config: cfg, Manager: mgr, Registry: reg, Store: st, Bus: bus, Metrics: met}

	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "Server error\n")
	}

	prefix := strings.TrimSuffix(cfg.Prefix, "/")

	mux.GET(prefix+"/healthz", s.serveHealthCheck)
	mux.GET(prefix+"/version", s.serveVersion)
	mux.GET(prefix+"/robots.txt", s.serveRobots)
	mux.GET(prefix+"/api/sessions/code/:code", s.serveSessionBootstrap)
	mux.GET(prefix+"/api/sessions/rejoin-token/:token", s.serveRejoinLookup)
	mux.GET(prefix+"/ws/:code", s.serveWebSocket)

	if cfg.Metrics && met != nil {
		mux.Handler("GET", prefix+"/metrics", promhttp.HandlerFor(met.Registry, promhttp.HandlerOpts{}))
	}

	if cfg.Profile {
		registerProfileHandlers(cfg, mux)
	}

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.Port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       readWriteTimeout,
		ReadHeaderTimeout: readWriteTimeout,
		WriteTimeout:      readWriteTimeout,
	}

	return s
}

func registerProfileHandlers(cfg *config.Config, mux *httprouter.Router) {
	prefix := strings.TrimSuffix(cfg.Prefix, "/")
	mux.Handler("GET", prefix+"/pprof/allocs", pprof.Handler("allocs"))
	mux.Handler("GET", prefix+"/pprof/block", pprof.Handler("block"))
	mux.Handler("GET", prefix+"/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handler("GET", prefix+"/pprof/heap", pprof.Handler("heap"))
	mux.Handler("GET", prefix+"/pprof/mutex", pprof.Handler("mutex"))
	mux.Handler("GET", prefix+"/pprof/threadcreate", pprof.Handler("threadcreate"))
	mux.HandlerFunc("GET", prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc("GET", prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc("GET", prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc("GET", prefix+"/pprof/trace", pprof.Trace)
}

// Run starts listening and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		var err error
		s.logf("SERVE: Listening on %s://%s%s/", s.Config.Scheme(), s.httpServer.Addr, s.Config.Prefix)
		if s.Config.TLSCert != "" && s.Config.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.Config.TLSCert, s.Config.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) serveVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	securityHeaders(s.Config, w)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "partyquiz-engine v"+Version+"\n")
}

func (s *Server) serveHealthCheck(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	securityHeaders(s.Config, w)
	io.WriteString(w, "Ok\n")
}

const robotsBody = `User-agent: *
Disallow: /api/
Disallow: /ws/`

func (s *Server) serveRobots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	securityHeaders(s.Config, w)
	io.WriteString(w, robotsBody)
}

// serveSessionBootstrap returns the current snapshot for a session
// code, for a client's initial page load before it opens a WebSocket.
func (s *Server) serveSessionBootstrap(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	securityHeaders(s.Config, w)
	code := strings.ToUpper(p.ByName("code"))
	snap, err := s.Store.Snapshot(code)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(snap)
}

// serveRejoinLookup redeems a single-use rejoin token (spec §4.3) and
// returns the session/player it was bound to, plus the player's name
// and avatar when the session still holds that player. Unknown,
// expired and already-used tokens all get 404.
func (s *Server) serveRejoinLookup(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	securityHeaders(s.Config, w)
	token := p.ByName("token")
	sessionCode, playerID, ok := s.Registry.RedeemRejoinToken(token)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	resp := map[string]string{
		"sessionCode": sessionCode,
		"playerId":    playerID,
	}
	if snap, err := s.Store.Snapshot(sessionCode); err == nil {
		for _, pl := range snap.Players {
			if pl.ID == playerID {
				resp["playerName"] = pl.DisplayName
				resp["avatar"] = pl.Avatar
				break
			}
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

// Version is the engine build version reported by /version.
var Version = "dev"
