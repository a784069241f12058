package state_test

import (
	"testing"

	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/state"
	"github.com/staticafi/predator/internal/symheap"
	"github.com/staticafi/predator/internal/trace"
)

func buildHeap(t *testing.T, scalar int64) *symheap.Heap {
	t.Helper()
	h := symheap.New(trace.NewRoot("test"))
	o, _ := h.RegionByVar(ir.CVar{UID: 1, Inst: 1}, true)
	h.SetField(o, 0, nil, h.ValWrapCustom(symheap.CustomValue{Kind: "int", Int: scalar}))
	return h
}

func TestStateInsertIdempotent(t *testing.T) {
	s := state.New(config.Config{JoinOnLoopEdgesOnly: config.JoinNever})
	h := buildHeap(t, 1)

	if ok := s.Insert(h, false); !ok {
		t.Fatal("first insert of a fresh heap must report a change")
	}
	if size := s.Size(); size != 1 {
		t.Fatalf("want size 1 after first insert, got %d", size)
	}

	if ok := s.Insert(h.Clone(), false); ok {
		t.Fatal("inserting an isomorphic heap again must report no change")
	}
	if size := s.Size(); size != 1 {
		t.Fatalf("want size still 1 after a duplicate insert, got %d", size)
	}
}

func TestStateInsertGrowsOnNewHeap(t *testing.T) {
	s := state.New(config.Config{JoinOnLoopEdgesOnly: config.JoinNever})
	s.Insert(buildHeap(t, 1), false)
	s.Insert(buildHeap(t, 2), false)

	if size := s.Size(); size != 2 {
		t.Fatalf("want size 2 after inserting two distinct heaps, got %d", size)
	}
}

func TestStateInsertJoinsWithoutThreeWay(t *testing.T) {
	s := state.New(config.Default())
	s.Insert(buildHeap(t, 1), false)
	// A second, scalar-distinct heap cannot be covered or joined without
	// three-way widening, so it must be appended rather than folded.
	s.Insert(buildHeap(t, 2), false)

	if size := s.Size(); size != 2 {
		t.Fatalf("want size 2 when join cannot cover the mismatch, got %d", size)
	}
}

func TestMapInsertTracksStatsPerBlock(t *testing.T) {
	m := state.NewMap(config.Config{JoinOnLoopEdgesOnly: config.JoinNever})
	bb := &ir.BasicBlock{Name: "bb0"}

	m.Insert(bb, buildHeap(t, 1), false)
	m.Insert(bb, buildHeap(t, 1), false)

	stats := m.Stats()
	if len(stats) != 1 {
		t.Fatalf("want exactly one block tracked, got %d", len(stats))
	}
	st := stats[0]
	if st.Lookups != 2 {
		t.Fatalf("want 2 lookups recorded, got %d", st.Lookups)
	}
	if st.Heaps != 1 {
		t.Fatalf("want 1 distinct heap retained, got %d", st.Heaps)
	}
	if !st.AnyReuse {
		t.Fatal("want AnyReuse true once a duplicate insert is absorbed")
	}
}

func TestMapAtCreatesEmptyStateOnFirstAccess(t *testing.T) {
	m := state.NewMap(config.Default())
	bb := &ir.BasicBlock{Name: "bb0"}

	if size := m.At(bb).Size(); size != 0 {
		t.Fatalf("want a fresh block state to start empty, got size %d", size)
	}
	if n := m.CntPending(bb); n != 0 {
		t.Fatalf("want 0 pending heaps for an untouched block, got %d", n)
	}
}
