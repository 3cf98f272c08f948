package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the worker application.
type Options struct {
	// Addr is the listen address, e.g. "0.0.0.0:8080".
	Addr string

	// WorkerID is the logical slot id, shown in responses.
	WorkerID int

	// ReusePort binds with SO_REUSEPORT so several workers can share Addr.
	ReusePort bool

	// Logger for request and lifecycle logs. If nil, uses slog.Default().
	Logger *slog.Logger
}

// App is the HTTP application run by each worker. It starts unhealthy and
// flips healthy exactly once, when the cluster signals that every worker is up.
type App struct {
	opts     Options
	router   chi.Router
	server   *http.Server
	listener net.Listener
	healthy  atomic.Bool
	version  atomic.Int64
	logger   *slog.Logger
	errCh    chan error
}

// New builds the application without listening.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		opts:   opts,
		logger: logger,
		errCh:  make(chan error, 1),
	}
	a.version.Store(1)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(crossOriginGuard)
	r.Use(a.versionHeader)

	r.Get("/", a.rootHandler)
	r.Get("/health", a.healthHandler)

	a.router = r
	a.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// Start builds the application, binds the listen socket and begins serving.
// It returns once the socket accepts connections; serve errors arrive on Err.
func Start(ctx context.Context, opts Options) (*App, error) {
	a := New(opts)

	ln, err := listen(ctx, opts.Addr, opts.ReusePort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", opts.Addr, err)
	}
	a.listener = ln

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.errCh <- err
		}
		close(a.errCh)
	}()

	a.logger.Info("Running", "url", "http://"+ln.Addr().String(), "wid", opts.WorkerID)
	return a, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.router
}

// Addr returns the bound address, or nil before Start.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Err delivers a serve error, if any, and is closed when serving stops.
func (a *App) Err() <-chan error {
	return a.errCh
}

// BecomeHealthy flips the health flag. Calling it again has no effect.
func (a *App) BecomeHealthy() {
	if a.healthy.CompareAndSwap(false, true) {
		a.logger.Info("Worker healthy", "wid", a.opts.WorkerID)
	}
}

// Healthy reports the health flag.
func (a *App) Healthy() bool {
	return a.healthy.Load()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *App) rootHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Hello from worker %d (pid %d)\n", a.opts.WorkerID, os.Getpid())
}

// healthHandler answers 404 until the cluster is healthy, then 200.
func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	if !a.healthy.Load() {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// versionHeader reports the application version and stops clients that run
// an older one.
func (a *App) versionHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := a.version.Load()
		w.Header().Set(HeaderAppVersion, strconv.FormatInt(current, 10))

		if v := r.Header.Get(HeaderAppVersion); v != "" {
			if client, err := strconv.ParseInt(v, 10, 64); err == nil && client < current {
				http.Error(w, msgNewRelease, http.StatusConflict)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
