package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/smazurov/webcluster/internal/logging"
)

// Slot is one logical worker position. Its id survives respawns; its pid does not.
// Slots are owned by a Supervisor and must only be touched under its lock.
type Slot struct {
	id                  int
	pid                 int
	consecutiveFailures int
	state               SlotState
	startedAt           time.Time
	timer               *clock.Timer // pending respawn, nil when none
	logger              *slog.Logger
}

func newSlot(id int, logger *slog.Logger) *Slot {
	return &Slot{
		id:     id,
		state:  SlotStarting,
		logger: logger,
	}
}

// ID returns the stable logical id.
func (s *Slot) ID() int { return s.id }

// PID returns the OS process id of the latest spawn, 0 before the first fork.
func (s *Slot) PID() int { return s.pid }

// State returns the lifecycle state.
func (s *Slot) State() SlotState { return s.state }

// ConsecutiveFailures returns the number of crash respawns since the last ready report.
func (s *Slot) ConsecutiveFailures() int { return s.consecutiveFailures }

// Name identifies the slot and its current process in log lines.
func (s *Slot) Name() string {
	return fmt.Sprintf("Worker (wid: %d / pid: %d)", s.id, s.pid)
}

// MarkHealthy resets the crash counter after the slot's process reported ready.
func (s *Slot) MarkHealthy() {
	s.logger.Debug(s.Name()+" became healthy!", "wid", s.id, "pid", s.pid)
	s.consecutiveFailures = 0
	s.state = SlotHealthy
}

// MarkExitedCleanly retires the slot. It will not be respawned.
func (s *Slot) MarkExitedCleanly() {
	s.cancelRestart()
	s.state = SlotExited
}

// ScheduleRestart counts a crash and, while attempts remain, arranges for respawn
// to be called with the slot id after policy.Delay. Once the count exceeds
// policy.MaxAttempts the slot is abandoned. Reports whether a respawn was scheduled.
func (s *Slot) ScheduleRestart(policy RestartPolicy, clk clock.Clock, respawn func(slotID int)) bool {
	s.consecutiveFailures++
	attempt := s.consecutiveFailures

	if attempt > policy.MaxAttempts {
		s.state = SlotAbandoned
		s.logger.Log(context.Background(), logging.LevelFatal,
			"No more restart attempts for "+s.Name(),
			"wid", s.id, "failures", attempt)
		return false
	}

	s.state = SlotCrashed
	s.logger.Info(fmt.Sprintf("%s restart attempt (%d/%d)", s.Name(), attempt, policy.MaxAttempts),
		"wid", s.id, "delay", policy.Delay)

	id := s.id
	s.timer = clk.AfterFunc(policy.Delay, func() {
		respawn(id)
	})
	return true
}

// cancelRestart stops a pending respawn, if any.
func (s *Slot) cancelRestart() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Slot) info() SlotInfo {
	return SlotInfo{
		ID:                  s.id,
		PID:                 s.pid,
		State:               s.state,
		ConsecutiveFailures: s.consecutiveFailures,
		StartedAt:           s.startedAt,
	}
}
