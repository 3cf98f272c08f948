package cluster

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/smazurov/webcluster/internal/events"
)

// Restart policy defaults.
const (
	DefaultMaxAttempts  = 5
	DefaultRestartDelay = time.Second
)

// Spawner starts the OS process backing a slot and returns its pid.
// The slot id must be made available to the child (the Forker passes it as WID).
type Spawner interface {
	Spawn(slotID int) (pid int, err error)
}

// Broadcaster delivers signals to worker processes. Delivery is fire-and-forget.
type Broadcaster interface {
	// Broadcast sends sig to every pid in pids.
	Broadcast(pids []int, sig Signal)

	// Send sends sig to a single worker.
	Send(pid int, sig Signal)
}

// RestartPolicy bounds how crashed slots are respawned. Backoff is fixed.
type RestartPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRestartPolicy returns 5 attempts with a fixed 1s delay.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultRestartDelay}
}

// Options configures a new Supervisor.
type Options struct {
	// Size is the number of worker slots. Values below 1 are treated as 1.
	Size int

	// Spawner creates worker processes (required).
	Spawner Spawner

	// Broadcaster delivers signals to workers. If nil, signals are dropped.
	Broadcaster Broadcaster

	// Policy controls respawns. Zero fields take the defaults.
	Policy RestartPolicy

	// Clock schedules respawns. If nil, uses the wall clock.
	Clock clock.Clock

	// EventBus receives lifecycle events (optional).
	EventBus *events.Bus

	// Logger for supervisor operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

type discardBroadcaster struct{}

func (discardBroadcaster) Broadcast([]int, Signal) {}
func (discardBroadcaster) Send(int, Signal)        {}
