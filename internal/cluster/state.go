package cluster

import "time"

// SlotState represents the lifecycle state of a worker slot.
type SlotState string

// Slot states.
const (
	SlotStarting  SlotState = "starting"  // Process spawned, not yet ready
	SlotHealthy   SlotState = "healthy"   // Application reported ready
	SlotCrashed   SlotState = "crashed"   // Exited non-zero, respawn pending
	SlotExited    SlotState = "exited"    // Exited cleanly, retired
	SlotAbandoned SlotState = "abandoned" // Restart attempts exhausted
)

// SlotInfo is a point-in-time copy of a slot.
type SlotInfo struct {
	ID                  int
	PID                 int
	State               SlotState
	ConsecutiveFailures int
	StartedAt           time.Time
}

// Status is a point-in-time copy of the supervisor state.
type Status struct {
	Size    int
	Ready   int
	Healthy bool
	Slots   []SlotInfo
}
