package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/webcluster/internal/cluster"
)

// workerConnPrefix names worker connections on the message server.
const workerConnPrefix = "webcluster-worker-"

// WorkerClient is the NATS client used inside a worker process.
// It reports app_started and receives cluster_healthy on its control subject.
type WorkerClient struct {
	url       string
	wid       int
	pid       int
	conn      *nats.Conn
	sub       *nats.Subscription
	onHealthy func()
	logger    *slog.Logger
	mu        sync.RWMutex
}

// NewWorkerClient creates a client for the worker with logical id wid and OS pid pid.
func NewWorkerClient(url string, wid, pid int, logger *slog.Logger) *WorkerClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &WorkerClient{
		url:    url,
		wid:    wid,
		pid:    pid,
		logger: logger.With("component", "nats-client", "wid", wid),
	}
}

// OnClusterHealthy sets the callback run for every cluster_healthy received.
// Must be set before Connect.
func (c *WorkerClient) OnClusterHealthy(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHealthy = fn
}

// Connect establishes the connection and subscribes to the control subject.
// The subscription is confirmed by the server before Connect returns.
func (c *WorkerClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := nats.Connect(c.url,
		nats.Name(workerConnPrefix+strconv.Itoa(c.wid)),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	sub, err := conn.Subscribe(SubjectControl(c.pid), c.handleControl)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to control subject: %w", err)
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to confirm subscription: %w", err)
	}

	c.conn = conn
	c.sub = sub
	c.logger.Debug("Connected to NATS", "url", c.url, "subject", SubjectControl(c.pid))
	return nil
}

// handleControl dispatches a signal from the primary.
func (c *WorkerClient) handleControl(msg *nats.Msg) {
	m, err := UnmarshalSignal(msg.Data)
	if err != nil {
		c.logger.Warn("Failed to unmarshal control message", "error", err)
		return
	}

	switch m.Signal {
	case cluster.SignalClusterHealthy:
		c.mu.RLock()
		fn := c.onHealthy
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	default:
		c.logger.Debug("Ignoring control signal", "signal", m.Signal.String())
	}
}

// PublishStarted reports that the worker's application is listening.
func (c *WorkerClient) PublishStarted() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.New("not connected")
	}

	data, err := SignalMessage{
		Signal:    cluster.SignalAppStarted,
		PID:       c.pid,
		WID:       c.wid,
		Timestamp: time.Now().Format(time.RFC3339),
	}.Marshal()
	if err != nil {
		return err
	}

	if err := conn.Publish(SubjectWorkerSignal, data); err != nil {
		return fmt.Errorf("failed to publish app_started: %w", err)
	}
	return conn.Flush()
}

// IsConnected returns true if connected to NATS.
func (c *WorkerClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close closes the NATS connection.
func (c *WorkerClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.logger.Debug("NATS client closed")
}
