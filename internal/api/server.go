package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/webcluster/internal/cluster"
	"github.com/smazurov/webcluster/internal/events"
	"github.com/smazurov/webcluster/internal/logging"
	"github.com/smazurov/webcluster/internal/process"
)

// StatusProvider reports the supervisor state. *cluster.Supervisor satisfies it.
type StatusProvider interface {
	Status() cluster.Status
}

// Options configures the admin API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	// Cluster is required.
	Cluster  StatusProvider
	EventBus *events.Bus

	// IPCClients reports connections on the message server. Optional.
	IPCClients func() int
	// IPCWorkers reports worker processes connected to the message server. Optional.
	IPCWorkers func() int
	// IPCConnected reports whether the primary's bridge is connected. Optional.
	IPCConnected func() bool

	// Processes lists the forked worker processes still alive. Optional.
	Processes func() []process.Info

	// RunID identifies this primary run in /api/health. Optional.
	RunID string

	// PrometheusHandler is mounted on GET /metrics when set.
	PrometheusHandler http.Handler
}

// Server is the admin API served by the primary.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates the admin API server with huma over the standard mux.
func NewServer(opts *Options) *Server {
	if opts == nil || opts.Cluster == nil {
		panic("api.Options with Cluster is required")
	}

	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("webcluster admin API", "1.0.0")
	config.Info.Description = "Worker pool status, events and logs for the webcluster primary"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	bus := opts.EventBus
	if bus == nil {
		bus = events.New()
	}

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: bus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start listens on addr and serves in the background. Serve errors other
// than a normal close are logged.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting admin API server", "addr", ln.Addr().String())
	s.logger.Info("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Admin API server failed", "error", err)
		}
	}()
	return nil
}

// Stop closes the server. Open SSE streams are cut immediately.
func (s *Server) Stop() error {
	s.logger.Info("Stopping admin API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.registerClusterRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare a
// security requirement. SSE clients may pass the credentials as ?auth=.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ""
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				s.unauthorized(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		} else {
			encoded = ctx.Query("auth")
		}

		if encoded == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.unauthorized(ctx, "Invalid credentials format", err)
			return
		}

		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			s.unauthorized(ctx, "Invalid credentials format")
			return
		}
		if user != username || pass != password {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string, errs ...error) {
	ctx.SetHeader("WWW-Authenticate", `Basic realm="webcluster"`)
	huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}

// subscribeAll folds several unsubscribe funcs into one.
func subscribeAll(unsubscribers ...func()) func() {
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}

// forward drains ch into send until ctx ends or the client goes away.
func forward(ctx context.Context, ch <-chan any, send func(any) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if err := send(event); err != nil {
				return
			}
		}
	}
}
