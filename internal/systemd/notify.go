// Package systemd reports the primary's lifecycle to the service manager
// over the sd_notify protocol. Every call is a no-op when NOTIFY_SOCKET is
// not set, so the primary runs the same way outside systemd.
package systemd

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/webcluster/internal/events"
)

// Notifier sends READY, STATUS, WATCHDOG and STOPPING notifications.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)

	mu     sync.Mutex
	unsubs []func()
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		stop: make(chan struct{}),
	}
}

// Ready tells systemd the service finished starting up.
func (n *Notifier) Ready(status string) {
	n.send(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Status updates the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

// Stopping tells systemd the service is shutting down and stops the
// watchdog loop.
func (n *Notifier) Stopping() {
	n.mu.Lock()
	for _, unsub := range n.unsubs {
		unsub()
	}
	n.unsubs = nil
	select {
	case <-n.stop:
	default:
		close(n.stop)
	}
	n.mu.Unlock()

	n.wg.Wait()
	n.send(daemon.SdNotifyStopping)
}

// Subscribe maps cluster events to notifications: READY=1 when the
// barrier fires, STATUS= on restarts and abandoned slots.
func (n *Notifier) Subscribe(bus *events.Bus, size int) {
	n.Status(fmt.Sprintf("Starting %d workers", size))

	n.mu.Lock()
	defer n.mu.Unlock()
	n.unsubs = append(n.unsubs,
		bus.Subscribe(func(e events.ClusterHealthyEvent) {
			n.Ready(fmt.Sprintf("%d workers healthy", e.Size))
		}),
		bus.Subscribe(func(e events.WorkerRestartScheduledEvent) {
			n.Status(fmt.Sprintf("Restarting worker %d (%d/%d)", e.SlotID, e.Attempt, e.MaxAttempts))
		}),
		bus.Subscribe(func(e events.WorkerAbandonedEvent) {
			n.Status(fmt.Sprintf("Worker %d abandoned after %d failures", e.SlotID, e.Failures))
		}),
	)
}

// StartWatchdog pings the watchdog at half the interval systemd asked for.
// It does nothing when WatchdogSec is not configured for the unit.
func (n *Notifier) StartWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Failed to read watchdog settings", "error", err)
		return
	}
	if interval == 0 {
		return
	}
	n.startWatchdog(interval / 2)
}

func (n *Notifier) startWatchdog(every time.Duration) {
	n.logger.Info("Systemd watchdog enabled", "interval", every)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-n.stop:
				return
			case <-ticker.C:
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	}()
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("Failed to notify systemd", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("Notified systemd", "state", state)
	}
}
