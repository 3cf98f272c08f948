package cluster

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestSlot_Name(t *testing.T) {
	s := newSlot(3, testLogger())
	s.pid = 4711

	if got := s.Name(); got != "Worker (wid: 3 / pid: 4711)" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestSlot_ScheduleRestart(t *testing.T) {
	clk := clock.NewMock()
	s := newSlot(1, testLogger())
	policy := RestartPolicy{MaxAttempts: 2, Delay: 5 * time.Second}
	fired := make(chan int, 1)

	if !s.ScheduleRestart(policy, clk, func(id int) { fired <- id }) {
		t.Fatal("first crash should schedule a restart")
	}
	if s.State() != SlotCrashed || s.ConsecutiveFailures() != 1 {
		t.Errorf("unexpected slot after crash: state=%s failures=%d", s.State(), s.ConsecutiveFailures())
	}

	clk.Add(5 * time.Second)
	select {
	case id := <-fired:
		if id != 1 {
			t.Errorf("expected slot 1, got %d", id)
		}
	case <-time.After(time.Second):
		t.Fatal("restart timer did not fire")
	}

	if !s.ScheduleRestart(policy, clk, func(int) {}) {
		t.Fatal("second crash should still schedule")
	}
	if s.ScheduleRestart(policy, clk, func(int) {}) {
		t.Fatal("third crash should exceed the policy")
	}
	if s.State() != SlotAbandoned {
		t.Errorf("expected abandoned, got %s", s.State())
	}
}

func TestSlot_MarkHealthyResetsCounter(t *testing.T) {
	s := newSlot(0, testLogger())
	s.consecutiveFailures = 4

	s.MarkHealthy()

	if s.ConsecutiveFailures() != 0 || s.State() != SlotHealthy {
		t.Errorf("unexpected slot: state=%s failures=%d", s.State(), s.ConsecutiveFailures())
	}
}

func TestSlot_MarkExitedCleanlyCancelsTimer(t *testing.T) {
	clk := clock.NewMock()
	s := newSlot(0, testLogger())
	fired := make(chan int, 1)

	s.ScheduleRestart(DefaultRestartPolicy(), clk, func(id int) { fired <- id })
	s.MarkExitedCleanly()
	clk.Add(time.Minute)

	select {
	case <-fired:
		t.Fatal("cancelled restart fired")
	case <-time.After(20 * time.Millisecond):
	}
	if s.State() != SlotExited {
		t.Errorf("expected exited, got %s", s.State())
	}
}
