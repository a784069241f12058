package sched_test

import (
	"testing"

	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/sched"
)

func TestSchedulerFIFOOrder(t *testing.T) {
	a := &ir.BasicBlock{Name: "a"}
	b := &ir.BasicBlock{Name: "b"}
	c := &ir.BasicBlock{Name: "c"}

	s := sched.New(config.SchedFIFO, nil)
	s.Schedule(a)
	s.Schedule(b)
	s.Schedule(c)

	for _, want := range []*ir.BasicBlock{a, b, c} {
		got, ok := s.GetNext()
		if !ok || got != want {
			t.Fatalf("want %s, got %v (ok=%v)", want.Name, got, ok)
		}
	}
	if _, ok := s.GetNext(); ok {
		t.Fatal("scheduler must report empty once every block has been dequeued")
	}
}

func TestSchedulerLIFOOrder(t *testing.T) {
	a := &ir.BasicBlock{Name: "a"}
	b := &ir.BasicBlock{Name: "b"}
	c := &ir.BasicBlock{Name: "c"}

	s := sched.New(config.SchedLIFO, nil)
	s.Schedule(a)
	s.Schedule(b)
	s.Schedule(c)

	for _, want := range []*ir.BasicBlock{c, b, a} {
		got, ok := s.GetNext()
		if !ok || got != want {
			t.Fatalf("want %s, got %v (ok=%v)", want.Name, got, ok)
		}
	}
}

func TestSchedulerPrioritizedLIFOBumpsRescheduled(t *testing.T) {
	a := &ir.BasicBlock{Name: "a"}
	b := &ir.BasicBlock{Name: "b"}
	c := &ir.BasicBlock{Name: "c"}

	s := sched.New(config.SchedPrioritizedLIFO, nil)
	s.Schedule(a)
	s.Schedule(b)
	s.Schedule(c)
	// Re-scheduling a already-queued block bumps it back to the top,
	// ahead of c, instead of leaving a second entry.
	if fresh := s.Schedule(a); fresh {
		t.Fatal("scheduling an already-queued block must not report a fresh insertion")
	}
	if n := s.CntWaiting(); n != 3 {
		t.Fatalf("want 3 distinct blocks still waiting, got %d", n)
	}

	got, _ := s.GetNext()
	if got != a {
		t.Fatalf("want bumped block a to be visited next, got %s", got.Name)
	}
}

func TestSchedulerScheduleReportsFreshness(t *testing.T) {
	a := &ir.BasicBlock{Name: "a"}
	s := sched.New(config.SchedFIFO, nil)

	if !s.Schedule(a) {
		t.Fatal("scheduling a block for the first time must report true")
	}
	if s.Schedule(a) {
		t.Fatal("scheduling an already-queued block again must report false")
	}
}

type fakePending map[*ir.BasicBlock]int

func (f fakePending) CntPending(bb *ir.BasicBlock) int { return f[bb] }

func TestSchedulerLoadDrivenPicksLeastLoaded(t *testing.T) {
	a := &ir.BasicBlock{Name: "a"}
	b := &ir.BasicBlock{Name: "b"}
	c := &ir.BasicBlock{Name: "c"}

	pending := fakePending{a: 5, b: 1, c: 3}
	s := sched.New(config.SchedLoadDriven, pending)
	s.Schedule(a)
	s.Schedule(b)
	s.Schedule(c)

	got, ok := s.GetNext()
	if !ok || got != b {
		t.Fatalf("want b (lightest load), got %v (ok=%v)", got, ok)
	}
}

func TestSchedulerDoneTracksVisitCounts(t *testing.T) {
	a := &ir.BasicBlock{Name: "a"}
	s := sched.New(config.SchedFIFO, nil)

	s.Schedule(a)
	s.GetNext()
	s.Schedule(a)
	s.GetNext()

	var visits int
	s.PrintStats(func(bb *ir.BasicBlock, cnt int, stillQueued bool) {
		if bb == a {
			visits = cnt
		}
	})
	if visits != 2 {
		t.Fatalf("want 2 recorded visits of a, got %d", visits)
	}
	if n := len(s.Done()); n != 1 {
		t.Fatalf("want exactly one distinct block in Done(), got %d", n)
	}
}
