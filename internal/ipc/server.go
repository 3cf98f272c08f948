package ipc

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// DefaultPort is the embedded server port when none is configured.
const DefaultPort = 4222

const (
	defaultHost  = "127.0.0.1"
	defaultName  = "webcluster"
	readyTimeout = 5 * time.Second

	// signals are a few dozen bytes of JSON
	maxPayload = 64 * 1024
)

// ServerOptions configures the primary's embedded message server.
type ServerOptions struct {
	// Port to listen on. Zero uses DefaultPort.
	Port int
	// Ephemeral binds a free port at Start instead of Port. The client URL is
	// unknown until then, so workers cannot be handed it ahead of time.
	Ephemeral bool
	Host      string
	Name      string
	Logger    *slog.Logger
}

// Server is the message server workers and the primary's Bridge connect to.
// Forked workers receive ClientURL in their environment, so with a fixed port
// the URL is valid before Start.
type Server struct {
	ns     *server.Server
	opts   ServerOptions
	logger *slog.Logger
}

// NewServer validates opts and returns an unstarted server.
func NewServer(opts ServerOptions) (*Server, error) {
	switch {
	case opts.Ephemeral:
		opts.Port = server.RANDOM_PORT
	case opts.Port == 0:
		opts.Port = DefaultPort
	case opts.Port < 0 || opts.Port > 65535:
		return nil, fmt.Errorf("messaging port %d out of range", opts.Port)
	}
	if opts.Host == "" {
		opts.Host = defaultHost
	}
	if opts.Name == "" {
		opts.Name = defaultName
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		opts:   opts,
		logger: logger.With("component", "message-server"),
	}, nil
}

// Start runs the server and blocks until it accepts connections.
func (s *Server) Start() error {
	ns, err := server.NewServer(&server.Options{
		Host:       s.opts.Host,
		Port:       s.opts.Port,
		ServerName: s.opts.Name,
		NoLog:      true,
		NoSigs:     true, // the primary handles signals
		MaxPayload: maxPayload,
	})
	if err != nil {
		return fmt.Errorf("failed to create message server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return fmt.Errorf("message server not ready after %s on %s:%d", readyTimeout, s.opts.Host, s.opts.Port)
	}

	s.ns = ns
	s.logger.Info("Message server started", "url", s.ClientURL())
	return nil
}

// Stop shuts the server down and waits for it to finish.
func (s *Server) Stop() {
	if s.ns == nil {
		return
	}
	s.logger.Info("Stopping message server")
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	s.ns = nil
}

// ClientURL returns the URL clients connect to. An ephemeral server reports
// an empty URL until it has started.
func (s *Server) ClientURL() string {
	if s.ns != nil {
		return s.ns.ClientURL()
	}
	if s.opts.Ephemeral {
		return ""
	}
	return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
}

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool {
	return s.ns != nil && s.ns.Running()
}

// NumClients returns the number of open connections, the Bridge included.
func (s *Server) NumClients() int {
	if s.ns == nil {
		return 0
	}
	return s.ns.NumClients()
}

// ConnectedWorkers returns how many worker processes hold a connection.
func (s *Server) ConnectedWorkers() int {
	if s.ns == nil {
		return 0
	}
	connz, err := s.ns.Connz(&server.ConnzOptions{})
	if err != nil {
		s.logger.Warn("Failed to list connections", "error", err)
		return 0
	}
	n := 0
	for _, conn := range connz.Conns {
		if strings.HasPrefix(conn.Name, workerConnPrefix) {
			n++
		}
	}
	return n
}
