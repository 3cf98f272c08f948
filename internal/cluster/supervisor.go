package cluster

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/smazurov/webcluster/internal/events"
)

// Supervisor owns the worker pool, the pid to slot index and the readiness barrier.
// Exit events, worker signals and respawn timers may arrive on any goroutine;
// all state changes are serialized on mu.
type Supervisor struct {
	size        int
	spawner     Spawner
	broadcaster Broadcaster
	policy      RestartPolicy
	clock       clock.Clock
	bus         *events.Bus
	logger      *slog.Logger

	mu       sync.Mutex
	slots    map[int]*Slot    // slot id -> slot, includes abandoned slots
	pids     map[int]int      // live OS pid -> slot id
	ready    map[int]struct{} // slot ids counted toward the barrier
	healthy  bool             // barrier fired
	stopping bool
}

// New creates a supervisor. It does not spawn anything until Start.
func New(opts Options) *Supervisor {
	if opts.Spawner == nil {
		panic("cluster.Options with Spawner is required")
	}

	size := opts.Size
	if size < 1 {
		size = 1
	}

	policy := opts.Policy
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.Delay <= 0 {
		policy.Delay = DefaultRestartDelay
	}

	var broadcaster Broadcaster = discardBroadcaster{}
	if opts.Broadcaster != nil {
		broadcaster = opts.Broadcaster
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		size:        size,
		spawner:     opts.Spawner,
		broadcaster: broadcaster,
		policy:      policy,
		clock:       clk,
		bus:         opts.EventBus,
		logger:      logger,
		slots:       make(map[int]*Slot),
		pids:        make(map[int]int),
		ready:       make(map[int]struct{}),
	}
}

// Size returns the configured pool size.
func (s *Supervisor) Size() int { return s.size }

// Start spawns one worker per slot. A spawn failure here is returned to the caller;
// workers already started keep running.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug("Cluster initializing", "forks", s.size)

	for id := 0; id < s.size; id++ {
		if _, err := s.spawnLocked(id, false); err != nil {
			return fmt.Errorf("failed to spawn worker %d: %w", id, err)
		}
	}
	return nil
}

// Spawn starts a process for slotID, creating the slot if it does not exist.
// Returns an error if the slot already has a live process. A pending respawn
// is cancelled and replaced by this spawn. Spawning an abandoned slot
// re-provisions it with a fresh restart budget.
func (s *Supervisor) Spawn(slotID int) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, exists := s.slots[slotID]; exists {
		switch slot.state {
		case SlotStarting, SlotHealthy:
			return nil, fmt.Errorf("worker %d already running", slotID)
		case SlotAbandoned:
			s.logger.Info("Re-provisioning abandoned worker", "wid", slotID, "failures", slot.consecutiveFailures)
			slot.consecutiveFailures = 0
		}
	}
	return s.spawnLocked(slotID, false)
}

// spawnLocked starts the process and records it in the identity index (must hold lock).
func (s *Supervisor) spawnLocked(slotID int, respawn bool) (*Slot, error) {
	pid, err := s.spawner.Spawn(slotID)
	if err != nil {
		return nil, err
	}

	slot, exists := s.slots[slotID]
	if !exists {
		slot = newSlot(slotID, s.logger)
		s.slots[slotID] = slot
	}
	// one live pid per slot
	slot.cancelRestart()
	if old, indexed := s.pids[slot.pid]; indexed && old == slotID {
		delete(s.pids, slot.pid)
	}
	slot.pid = pid
	slot.state = SlotStarting
	slot.startedAt = s.clock.Now()
	s.pids[pid] = slotID

	s.logger.Info("Worker spawned", "wid", slotID, "pid", pid, "respawn", respawn)
	s.bus.Publish(events.WorkerSpawnedEvent{
		SlotID:    slotID,
		PID:       pid,
		Respawn:   respawn,
		Timestamp: s.timestamp(),
	})
	return slot, nil
}

// respawn is the restart timer callback.
func (s *Supervisor) respawn(slotID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return
	}
	// a timer that lost the race with Spawn finds the slot already started
	if slot, exists := s.slots[slotID]; exists && slot.state != SlotCrashed {
		s.logger.Debug("Skipping stale respawn", "wid", slotID, "state", slot.state)
		return
	}

	if _, err := s.spawnLocked(slotID, true); err != nil {
		s.logger.Error("Failed to respawn worker", "wid", slotID, "error", err)
		slot, exists := s.slots[slotID]
		if !exists {
			slot = newSlot(slotID, s.logger)
			s.slots[slotID] = slot
		}
		s.crashLocked(slot)
	}
}

// HandleMessage dispatches a signal received from the worker with the given pid.
func (s *Supervisor) HandleMessage(pid int, sig Signal) {
	switch sig {
	case SignalAppStarted:
		s.HandleReady(pid)
	default:
		s.logger.Debug("Ignoring worker signal", "pid", pid, "signal", sig.String())
	}
}

// HandleReady records that the worker with the given pid is serving. The first
// time every slot has reported, cluster_healthy is broadcast to all live workers.
// Workers that report after that receive cluster_healthy individually.
func (s *Supervisor) HandleReady(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slotID, ok := s.pids[pid]
	if !ok {
		s.logger.Debug("Ready signal from unknown process", "pid", pid)
		return
	}
	slot := s.slots[slotID]
	slot.MarkHealthy()

	if _, counted := s.ready[slotID]; counted {
		s.logger.Debug("Slot already counted toward barrier", "wid", slotID, "pid", pid)
	}
	s.ready[slotID] = struct{}{}

	s.bus.Publish(events.WorkerReadyEvent{
		SlotID:    slotID,
		PID:       pid,
		Ready:     len(s.ready),
		Size:      s.size,
		Timestamp: s.timestamp(),
	})

	switch {
	case !s.healthy && len(s.ready) >= s.size:
		s.healthy = true
		s.logger.Info("Cluster healthy", "workers", s.size)
		s.broadcastLocked(SignalClusterHealthy)
	case s.healthy:
		s.logger.Debug("Sending cluster_healthy to late worker", "wid", slotID, "pid", pid)
		s.broadcaster.Send(pid, SignalClusterHealthy)
	}
}

// HandleExit reacts to a worker process exit. Exit code 0 retires the slot;
// anything else schedules a bounded respawn. Unknown pids are ignored.
func (s *Supervisor) HandleExit(pid, exitCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slotID, ok := s.pids[pid]
	if !ok {
		s.logger.Debug("Exit from unknown process", "pid", pid, "exit_code", exitCode)
		return
	}
	delete(s.pids, pid)
	slot := s.slots[slotID]

	s.bus.Publish(events.WorkerExitedEvent{
		SlotID:    slotID,
		PID:       pid,
		ExitCode:  exitCode,
		Clean:     exitCode == 0,
		Timestamp: s.timestamp(),
	})

	if exitCode == 0 {
		slot.MarkExitedCleanly()
		delete(s.slots, slotID)
		s.logger.Info("Worker exited cleanly", "wid", slotID, "pid", pid)
		return
	}

	s.logger.Warn("Worker crashed", "wid", slotID, "pid", pid, "exit_code", exitCode)

	if s.stopping {
		slot.state = SlotCrashed
		return
	}
	s.crashLocked(slot)
}

// crashLocked applies the restart policy to a crashed slot (must hold lock).
func (s *Supervisor) crashLocked(slot *Slot) {
	if slot.ScheduleRestart(s.policy, s.clock, s.respawn) {
		s.bus.Publish(events.WorkerRestartScheduledEvent{
			SlotID:      slot.id,
			Attempt:     slot.consecutiveFailures,
			MaxAttempts: s.policy.MaxAttempts,
			Delay:       s.policy.Delay.String(),
			Timestamp:   s.timestamp(),
		})
		return
	}
	s.bus.Publish(events.WorkerAbandonedEvent{
		SlotID:    slot.id,
		Failures:  slot.consecutiveFailures,
		Timestamp: s.timestamp(),
	})
}

// Broadcast sends sig to every live worker process.
func (s *Supervisor) Broadcast(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(sig)
}

// broadcastLocked sends sig to every pid in the identity index (must hold lock).
func (s *Supervisor) broadcastLocked(sig Signal) {
	pids := s.livePIDsLocked()
	s.logger.Debug("Broadcasting to all workers", "signal", sig.String(), "workers", len(pids))
	s.broadcaster.Broadcast(pids, sig)

	if sig == SignalClusterHealthy {
		s.bus.Publish(events.ClusterHealthyEvent{
			Size:      s.size,
			Workers:   pids,
			Timestamp: s.timestamp(),
		})
	}
}

func (s *Supervisor) livePIDsLocked() []int {
	pids := make([]int, 0, len(s.pids))
	for pid := range s.pids {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	return pids
}

// Lookup resolves a live OS pid to its slot.
func (s *Supervisor) Lookup(pid int) (SlotInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slotID, ok := s.pids[pid]
	if !ok {
		return SlotInfo{}, false
	}
	return s.slots[slotID].info(), true
}

// Healthy reports whether the readiness barrier has fired.
func (s *Supervisor) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// Status returns a snapshot of the pool ordered by slot id.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Size:    s.size,
		Ready:   len(s.ready),
		Healthy: s.healthy,
		Slots:   make([]SlotInfo, 0, len(s.slots)),
	}
	for _, slot := range s.slots {
		st.Slots = append(st.Slots, slot.info())
	}
	slices.SortFunc(st.Slots, func(a, b SlotInfo) int { return a.ID - b.ID })
	return st
}

// Stop disables respawning and cancels pending restart timers. Worker processes
// are not signalled; that is the Spawner's job.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return
	}
	s.stopping = true
	for _, slot := range s.slots {
		slot.cancelRestart()
	}
	s.logger.Info("Supervisor stopped", "live_workers", len(s.pids))
}

func (s *Supervisor) timestamp() string {
	return s.clock.Now().Format(time.RFC3339)
}
