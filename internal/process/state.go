package process

import "time"

// State represents the current state of a forked worker process.
type State string

// Process states.
const (
	StateRunning  State = "running"  // Started, not yet exited
	StateStopping State = "stopping" // SIGINT sent during StopAll
)

// Info contains information about a forked worker process.
type Info struct {
	SlotID    int
	PID       int
	State     State
	StartedAt time.Time
}
