package ipc

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/webcluster/internal/cluster"
)

// SignalHandler receives a signal sent by the worker with the given pid.
type SignalHandler func(pid int, sig cluster.Signal)

// Bridge is the primary's NATS connection. It forwards worker signals to a
// SignalHandler and implements cluster.Broadcaster.
type Bridge struct {
	url      string
	conn     *nats.Conn
	sub      *nats.Subscription
	onSignal SignalHandler
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewBridge creates a new bridge for the server at url.
func NewBridge(url string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		url:    url,
		logger: logger.With("component", "nats-bridge"),
	}
}

// OnSignal sets the handler for incoming worker signals.
func (b *Bridge) OnSignal(fn SignalHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSignal = fn
}

// Start connects to NATS and subscribes to worker signals.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name("webcluster-primary"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(SubjectWorkerSignal, b.handleSignal)
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return err
	}

	b.conn = conn
	b.sub = sub
	b.logger.Debug("NATS bridge subscribed", "subject", SubjectWorkerSignal)
	return nil
}

// handleSignal decodes a worker signal and passes it on.
func (b *Bridge) handleSignal(msg *nats.Msg) {
	m, err := UnmarshalSignal(msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal signal", "error", err, "subject", msg.Subject)
		return
	}

	b.mu.Lock()
	handler := b.onSignal
	b.mu.Unlock()

	b.logger.Debug("Received worker signal", "signal", m.Signal.String(), "pid", m.PID, "wid", m.WID)
	if handler != nil {
		handler(m.PID, m.Signal)
	}
}

// Broadcast sends sig to every pid. Errors are logged, never returned.
func (b *Bridge) Broadcast(pids []int, sig cluster.Signal) {
	for _, pid := range pids {
		b.Send(pid, sig)
	}
}

// Send sends sig to the control subject of one worker.
func (b *Bridge) Send(pid int, sig cluster.Signal) {
	if err := b.publish(pid, sig); err != nil {
		b.logger.Warn("Failed to send signal", "signal", sig.String(), "pid", pid, "error", err)
	}
}

func (b *Bridge) publish(pid int, sig cluster.Signal) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return errors.New("bridge not connected")
	}

	data, err := SignalMessage{
		Signal:    sig,
		PID:       pid,
		Timestamp: time.Now().Format(time.RFC3339),
	}.Marshal()
	if err != nil {
		return err
	}
	return conn.Publish(SubjectControl(pid), data)
}

// Stop closes the bridge connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		_ = b.sub.Unsubscribe()
		b.sub = nil
	}
	if b.conn != nil {
		// Drain delivers signals already queued before closing.
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		}
		b.conn = nil
	}
	b.logger.Debug("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
