package process

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"
)

// EnvWorkerID carries the logical slot id into the worker's environment.
const EnvWorkerID = "WID"

// forkedProcess tracks a running worker within the forker.
type forkedProcess struct {
	proc      *Process
	slotID    int
	state     State
	startedAt time.Time
}

// Forker starts worker processes for cluster slots and reports their exits.
// It implements cluster.Spawner.
type Forker struct {
	opts      ForkerOptions
	processes map[int]*forkedProcess // keyed by pid
	onExit    ExitCallback
	stopping  bool
	mu        sync.RWMutex
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewForker creates a new forker.
func NewForker(opts *ForkerOptions) *Forker {
	if opts == nil || len(opts.Command) == 0 {
		panic("ForkerOptions with Command is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Forker{
		opts:      *opts,
		processes: make(map[int]*forkedProcess),
		onExit:    opts.OnExit,
		logger:    logger,
	}
}

// OnExit sets the exit callback. It must be set before the first Spawn.
func (f *Forker) OnExit(cb ExitCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onExit = cb
}

// Spawn starts a worker process for slotID with WID=slotID in its environment
// and returns the child's pid.
func (f *Forker) Spawn(slotID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopping {
		return 0, fmt.Errorf("forker is stopping")
	}

	proc := NewProcess(fmt.Sprintf("worker-%d", slotID), f.opts.Command, f.logger)
	env := slices.Clone(f.opts.Env)
	proc.SetEnv(append(env, EnvWorkerID+"="+strconv.Itoa(slotID)))
	proc.SetGracefulTimeout(f.opts.GracefulTimeout)

	if f.opts.ConfigureProcess != nil {
		f.opts.ConfigureProcess(slotID, proc)
	}

	pid, err := proc.Start()
	if err != nil {
		return 0, fmt.Errorf("failed to fork worker %d: %w", slotID, err)
	}

	f.processes[pid] = &forkedProcess{
		proc:      proc,
		slotID:    slotID,
		state:     StateRunning,
		startedAt: time.Now(),
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.waitProcess(pid, proc)
	}()

	return pid, nil
}

// waitProcess blocks until proc exits, forgets it and reports the exit.
func (f *Forker) waitProcess(pid int, proc *Process) {
	exitCode := proc.Wait()

	f.mu.Lock()
	delete(f.processes, pid)
	cb := f.onExit
	f.mu.Unlock()

	f.logger.Debug("Process exited", "id", proc.ID(), "pid", pid, "exit_code", exitCode)

	if cb != nil {
		cb(pid, exitCode)
	}
}

// List returns the running workers ordered by slot id.
func (f *Forker) List() []Info {
	f.mu.RLock()
	defer f.mu.RUnlock()

	infos := make([]Info, 0, len(f.processes))
	for pid, fp := range f.processes {
		infos = append(infos, Info{
			SlotID:    fp.slotID,
			PID:       pid,
			State:     fp.state,
			StartedAt: fp.startedAt,
		})
	}
	slices.SortFunc(infos, func(a, b Info) int { return a.SlotID - b.SlotID })
	return infos
}

// StopAll refuses further spawns, gracefully stops every running worker and waits
// until all exits have been reported.
func (f *Forker) StopAll() {
	f.mu.Lock()
	f.stopping = true
	procs := make([]*Process, 0, len(f.processes))
	for _, fp := range f.processes {
		fp.state = StateStopping
		procs = append(procs, fp.proc)
	}
	f.mu.Unlock()

	f.logger.Info("Stopping all workers", "count", len(procs))

	var stopWG sync.WaitGroup
	for _, proc := range procs {
		stopWG.Add(1)
		go func() {
			defer stopWG.Done()
			proc.Shutdown()
		}()
	}
	stopWG.Wait()

	f.wg.Wait()
	f.logger.Info("All workers stopped")
}
