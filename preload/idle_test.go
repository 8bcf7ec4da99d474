package preload

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestIdleSchedulerRunsWhenIdle(t *testing.T) {
	s := NewIdleScheduler(time.Hour)
	defer s.Close()

	var ran atomic.Int32
	s.Submit(func() { ran.Add(1) })
	waitFor(t, "immediate run", func() bool { return ran.Load() == 1 })
}

func TestIdleSchedulerWaitsForBusy(t *testing.T) {
	s := NewIdleScheduler(time.Hour)
	defer s.Close()

	done := s.Busy()
	var ran atomic.Int32
	s.Submit(func() { ran.Add(1) })
	time.Sleep(10 * time.Millisecond)
	if ran.Load() != 0 || s.Pending() != 1 {
		t.Fatal("ran while busy")
	}
	done()
	done() // idempotent
	waitFor(t, "run after busy", func() bool { return ran.Load() == 1 })
}

func TestIdleSchedulerDeadline(t *testing.T) {
	s := NewIdleScheduler(10 * time.Millisecond)
	defer s.Close()

	_ = s.Busy()
	var ran atomic.Int32
	s.Submit(func() { ran.Add(1) })
	waitFor(t, "run after deadline", func() bool { return ran.Load() == 1 })
}

func TestIdleSchedulerCloseDropsQueue(t *testing.T) {
	s := NewIdleScheduler(time.Hour)
	_ = s.Busy()
	var ran atomic.Int32
	s.Submit(func() { ran.Add(1) })
	s.Close()
	s.Submit(func() { ran.Add(1) })
	time.Sleep(5 * time.Millisecond)
	if ran.Load() != 0 {
		t.Error("queued work ran after Close")
	}
}
