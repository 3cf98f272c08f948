package events

// Event type constants for kelindar/event.
const (
	TypeWorkerSpawned uint32 = iota + 1
	TypeWorkerReady
	TypeClusterHealthy
	TypeWorkerExited
	TypeWorkerRestartScheduled
	TypeWorkerAbandoned
	TypeLogEntry
	TypeClusterMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// WorkerSpawnedEvent is published after an OS process was started for a slot.
type WorkerSpawnedEvent struct {
	SlotID    int    `json:"slot_id" example:"0" doc:"Logical worker slot"`
	PID       int    `json:"pid" example:"4242" doc:"OS process id backing the slot"`
	Respawn   bool   `json:"respawn" doc:"True when the slot was respawned after a crash"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WorkerSpawnedEvent.
func (e WorkerSpawnedEvent) Type() uint32 { return TypeWorkerSpawned }

// WorkerReadyEvent is published when a worker reports that its application is listening.
type WorkerReadyEvent struct {
	SlotID    int    `json:"slot_id" example:"0" doc:"Logical worker slot"`
	PID       int    `json:"pid" example:"4242" doc:"OS process id backing the slot"`
	Ready     int    `json:"ready" example:"1" doc:"Distinct slots counted toward the barrier"`
	Size      int    `json:"size" example:"2" doc:"Configured pool size"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WorkerReadyEvent.
func (e WorkerReadyEvent) Type() uint32 { return TypeWorkerReady }

// ClusterHealthyEvent is published once, when every slot has reported ready.
type ClusterHealthyEvent struct {
	Size      int    `json:"size" example:"2" doc:"Configured pool size"`
	Workers   []int  `json:"workers" doc:"PIDs that received the broadcast"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClusterHealthyEvent.
func (e ClusterHealthyEvent) Type() uint32 { return TypeClusterHealthy }

// WorkerExitedEvent is published for every worker process exit.
type WorkerExitedEvent struct {
	SlotID    int    `json:"slot_id" example:"0" doc:"Logical worker slot"`
	PID       int    `json:"pid" example:"4242" doc:"OS process id that exited"`
	ExitCode  int    `json:"exit_code" example:"1" doc:"Process exit code"`
	Clean     bool   `json:"clean" doc:"True for exit code 0"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WorkerExitedEvent.
func (e WorkerExitedEvent) Type() uint32 { return TypeWorkerExited }

// WorkerRestartScheduledEvent is published when a crashed slot is queued for respawn.
type WorkerRestartScheduledEvent struct {
	SlotID      int    `json:"slot_id" example:"0" doc:"Logical worker slot"`
	Attempt     int    `json:"attempt" example:"1" doc:"Consecutive restart attempt"`
	MaxAttempts int    `json:"max_attempts" example:"5" doc:"Attempts allowed before abandoning"`
	Delay       string `json:"delay" example:"1s" doc:"Delay before respawn"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WorkerRestartScheduledEvent.
func (e WorkerRestartScheduledEvent) Type() uint32 { return TypeWorkerRestartScheduled }

// WorkerAbandonedEvent is published when a slot exhausted its restart attempts.
type WorkerAbandonedEvent struct {
	SlotID    int    `json:"slot_id" example:"0" doc:"Logical worker slot"`
	Failures  int    `json:"failures" example:"6" doc:"Consecutive failures counted"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WorkerAbandonedEvent.
func (e WorkerAbandonedEvent) Type() uint32 { return TypeWorkerAbandoned }

// LogEntryEvent represents a log line for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Position in the primary's log history"`
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"cluster" doc:"Source module"`
	Message    string         `json:"message" example:"Worker spawned" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// ClusterMetricsEvent is a periodic snapshot of the cluster counters.
type ClusterMetricsEvent struct {
	PoolSize     int    `json:"pool_size" example:"4" doc:"Configured pool size"`
	Ready        int    `json:"ready" example:"4" doc:"Slots counted toward the barrier"`
	Healthy      bool   `json:"healthy" doc:"True once cluster_healthy was broadcast"`
	Spawns       int    `json:"spawns" example:"5" doc:"Worker processes started"`
	Restarts     int    `json:"restarts" example:"1" doc:"Respawns scheduled after crashes"`
	Abandoned    int    `json:"abandoned" example:"0" doc:"Slots given up on"`
	CleanExits   int    `json:"clean_exits" example:"0" doc:"Exits with code 0"`
	CrashedExits int    `json:"crashed_exits" example:"1" doc:"Exits with a non-zero code"`
	Timestamp    string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClusterMetricsEvent.
func (e ClusterMetricsEvent) Type() uint32 { return TypeClusterMetrics }
