package process

import (
	"log/slog"
	"time"
)

// ExitCallback is called after a forked process exited and its output was drained.
// Used to feed exits to the cluster supervisor.
type ExitCallback func(pid, exitCode int)

// Configurer configures a Process before it starts.
// Used for domain-specific setup (e.g., log parser, output handler).
type Configurer func(slotID int, proc *Process)

// ForkerOptions configures a new Forker.
type ForkerOptions struct {
	// Command is the worker argv (required).
	Command []string

	// Env is appended to the parent's environment for every worker.
	// WID is added per process.
	Env []string

	// OnExit is called when a worker exits (optional, can be set later with OnExit).
	OnExit ExitCallback

	// ConfigureProcess allows customization of the Process before start (optional).
	ConfigureProcess Configurer

	// GracefulTimeout bounds how long StopAll waits after SIGINT. Zero uses 5s.
	GracefulTimeout time.Duration

	// Logger for forker operations. If nil, uses slog.Default().
	Logger *slog.Logger
}
