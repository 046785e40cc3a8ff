// Package app wires the excuses server runtime: config, logging, HTTP routes, and the live feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	authapi "excuses/cmd/internal/auth/api"
	"excuses/cmd/internal/auth/session"
	"excuses/cmd/internal/excuse"
	excuseapi "excuses/cmd/internal/excuse/api"
	"excuses/cmd/internal/realtime"
	"excuses/cmd/internal/web"
	"excuses/cmd/security/token"
)

// FeedPath is where the live change feed is mounted.
const FeedPath = "/api/excuses/feed"

// App is the server runtime: it owns the store, the HTTP wiring, and the feed hub.
type App struct {
	cfg Config
	log Logger

	store *excuse.Store
	pages *web.Pages

	hub  *realtime.Hub
	feed *realtime.WSGateway

	auth    *authapi.Handler
	excuses *excuseapi.Handler
	metrics *Metrics

	handler http.Handler
}

// New constructs a fully wired App from cfg and the auth/session environment.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log, _ = NewLogger(cfg)
	}

	authCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	return newApp(cfg, log, authCfg, sessCfg, realtime.LoadGatewayConfigFromEnv())
}

func newApp(cfg Config, log Logger, authCfg authapi.Config, sessCfg session.Config, feedCfg realtime.GatewayConfig) (*App, error) {
	if err := ValidateSecurityConfig(authCfg, sessCfg); err != nil {
		return nil, err
	}

	tokens, err := session.NewTokenManager(sessCfg)
	if err != nil {
		return nil, err
	}

	pages, err := web.NewPages(cfg.PublicDir, log)
	if err != nil {
		return nil, fmt.Errorf("public dir: %w", err)
	}

	store, err := excuse.Open(excuse.NewFileStore(cfg.DataFile), log)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub(log)
	feed := realtime.NewWSGateway(log, hub, feedCfg)

	a := &App{
		cfg:   cfg,
		log:   log,
		store: store,
		pages: pages,
		hub:   hub,
		feed:  feed,
	}
	if cfg.MetricsEnabled {
		a.metrics = NewMetrics(hub.Len)
	}

	authOpts := []authapi.HandlerOption{}
	excuseOpts := []excuseapi.HandlerOption{
		excuseapi.WithPublisher(hub),
		excuseapi.WithFeed(feed),
		excuseapi.WithMaxBodyBytes(authCfg.MaxBodyBytes),
	}
	if a.metrics != nil {
		authOpts = append(authOpts, authapi.WithLoginObserver(a.metrics))
		excuseOpts = append(excuseOpts, excuseapi.WithMutationObserver(a.metrics))
	}

	a.auth, err = authapi.NewHandler(log, authCfg, tokens, pages, authOpts...)
	if err != nil {
		return nil, err
	}
	a.excuses, err = excuseapi.NewHandler(log, store, pages, excuseOpts...)
	if err != nil {
		return nil, err
	}

	a.handler = WithRequestID(
		WithRequestLogging(
			WithSecurityHeaders(
				WithCORS(a.routes(), cfg, log),
			),
			log,
		),
	)

	log.Info("app.ready",
		"data_file", cfg.DataFile,
		"records", store.Len(),
		"seeded", store.Seeded(),
		"session_format", tokens.Format(),
		"session_ttl", sessCfg.TTL.String(),
		"session_key", token.Fingerprint(sessCfg.Secret),
		"guard_policy", authCfg.GuardPolicy,
		"metrics", cfg.MetricsEnabled,
	)
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Store returns the excuse store the handlers operate on.
func (a *App) Store() *excuse.Store { return a.store }

// Run listens on the configured address and serves until ctx is cancelled
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.log.Error("server.listen.fail", "addr", a.cfg.HTTPAddr, "err", err)
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. Feed clients are closed before
// the HTTP server drains, since hijacked connections are not tracked by Shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"base_url", base,
		"feed_url", wsBaseURL(base)+FeedPath,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.hub.Close()
		return err
	}

	a.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
