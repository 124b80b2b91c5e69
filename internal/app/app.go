// Package app wires the recitation subsystems into a running HTTP server.
//
// The App owns the full lifecycle: New builds the session manager, the
// health probes and the HTTP routes, Run serves until its context is
// cancelled, and Shutdown drains readiness, closes every open session and
// runs the registered closers.
//
// Routes:
//
//	GET /healthz                liveness
//	GET /readyz                 readiness of the passage source
//	GET /metrics                Prometheus exposition (when configured)
//	GET /v1/passages/{id}       passage with its normalised tokens
//	GET /v1/sessions            open sessions
//	GET /v1/recite?passage=ID   WebSocket recitation session
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liamchens/quran-voice-buddy/internal/config"
	"github.com/liamchens/quran-voice-buddy/internal/health"
	"github.com/liamchens/quran-voice-buddy/internal/observe"
	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

// shutdownTimeout bounds the graceful shutdown Run performs on cancellation.
const shutdownTimeout = 10 * time.Second

// Providers holds the external dependencies built by main.go through the
// config registry.
type Providers struct {
	// STT transcribes server-side audio. Nil means sessions accept
	// client-side transcripts only.
	STT stt.Provider

	// Passages serves reference texts. Required.
	Passages passage.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	sessions       *SessionManager
	health         *health.Handler
	checkers       []health.Checker
	metricsHandler http.Handler
	handler        http.Handler
	srv            *http.Server

	// baseCtx parents every request context so Shutdown can end hijacked
	// WebSocket connections, which http.Server.Shutdown does not track.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records metrics on m instead of observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithHealthChecks adds readiness checks next to the built-in passage check.
func WithHealthChecks(cs ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, cs...) }
}

// WithCloser registers fn to run during Shutdown. Closers run in reverse
// registration order.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App from cfg and the providers built by main.go.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Passages == nil {
		return nil, errors.New("app: a passage provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	sessCfg := cfg.SessionConfig()
	if err := sessCfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.sessions = NewSessionManager(SessionManagerConfig{
		Provider:    providers.STT,
		Metrics:     a.metrics,
		Session:     sessCfg,
		MaxSessions: cfg.Session.MaxSessions,
	})

	checks := []health.Checker{{Name: "passages", Check: a.passageReady}}
	a.health = health.New(append(checks, a.checkers...)...)

	a.handler = observe.Middleware(a.metrics)(a.routes())
	a.baseCtx, a.cancelBase = context.WithCancel(context.Background())
	a.srv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return a.baseCtx },
	}
	return a, nil
}

func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	mux.HandleFunc("GET /v1/passages/{id}", a.handlePassage)
	mux.HandleFunc("GET /v1/sessions", a.handleSessions)
	mux.HandleFunc("GET /v1/recite", a.handleRecite)
	return mux
}

// Handler returns the instrumented HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Reload applies a changed configuration. Alignment and session settings
// take effect for sessions opened afterwards; other sections are only
// reported.
func (a *App) Reload(next *config.Config) error {
	d := config.Diff(a.cfg, next)
	if d.AlignmentChanged || d.SessionChanged {
		if err := a.sessions.SetConfig(next.SessionConfig()); err != nil {
			return err
		}
		slog.Info("session configuration reloaded", "alignment", d.AlignmentChanged, "session", d.SessionChanged)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
	a.cfg = next
	return nil
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.Shutdown(sctx)
	})

	return g.Wait()
}

// Shutdown drains readiness, closes every open session, stops the HTTP
// server and runs the closers in reverse order. It respects the context
// deadline: once ctx expires the remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Count(), "closers", len(a.closers))

		a.health.Drain()
		a.cancelBase()
		a.sessions.CloseAll()

		if err := a.srv.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
			shutdownErr = err
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// passageReady reports whether the passage source answers. A source that
// supports Ping is pinged; otherwise readiness is assumed.
func (a *App) passageReady(ctx context.Context) error {
	if p, ok := a.providers.Passages.(health.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
