package symheap_test

import (
	"testing"

	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/symheap"
	"github.com/staticafi/predator/internal/trace"
)

func TestJoinIsomorphicHeapsEqual(t *testing.T) {
	build := func() *symheap.Heap {
		h := symheap.New(trace.NewRoot("test"))
		cv := ir.CVar{UID: 1, Inst: 1}
		o, _ := h.RegionByVar(cv, true)
		_, addr := h.HeapAlloc(ir.Point(8))
		h.SetField(o, 0, nil, addr)
		return h
	}
	h1, h2 := build(), build()

	status, out, ok := symheap.JoinSymHeaps(h1, h2, false)
	if !ok {
		t.Fatal("join of two isomorphic heaps must succeed")
	}
	if status != symheap.JoinEqual {
		t.Fatalf("want JoinEqual, got %s", status)
	}
	if !symheap.AreEqual(out, h1) {
		t.Fatal("joined heap must be isomorphic to either input when they were already equal")
	}
}

func TestJoinScalarMismatchFailsWithoutThreeWay(t *testing.T) {
	cv := ir.CVar{UID: 1, Inst: 1}

	h1 := symheap.New(trace.NewRoot("test"))
	o1, _ := h1.RegionByVar(cv, true)
	h1.SetField(o1, 0, nil, h1.ValWrapCustom(symheap.CustomValue{Kind: "int", Int: 1}))

	h2 := symheap.New(trace.NewRoot("test"))
	o2, _ := h2.RegionByVar(cv, true)
	h2.SetField(o2, 0, nil, h2.ValWrapCustom(symheap.CustomValue{Kind: "int", Int: 2}))

	if _, _, ok := symheap.JoinSymHeaps(h1, h2, false); ok {
		t.Fatal("a scalar mismatch must not be coverable without allowThreeWay")
	}
}

func TestJoinScalarMismatchSucceedsThreeWay(t *testing.T) {
	cv := ir.CVar{UID: 1, Inst: 1}

	h1 := symheap.New(trace.NewRoot("test"))
	o1, _ := h1.RegionByVar(cv, true)
	h1.SetField(o1, 0, nil, h1.ValWrapCustom(symheap.CustomValue{Kind: "int", Int: 1}))

	h2 := symheap.New(trace.NewRoot("test"))
	o2, _ := h2.RegionByVar(cv, true)
	h2.SetField(o2, 0, nil, h2.ValWrapCustom(symheap.CustomValue{Kind: "int", Int: 2}))

	status, out, ok := symheap.JoinSymHeaps(h1, h2, true)
	if !ok {
		t.Fatal("a scalar mismatch must be coverable by folding to unknown when allowThreeWay")
	}
	if status != symheap.JoinThreeWay {
		t.Fatalf("want JoinThreeWay, got %s", status)
	}
	if out == nil {
		t.Fatal("a successful join must return a heap")
	}
}

func TestJoinDifferentLiveVarsFails(t *testing.T) {
	h1 := symheap.New(trace.NewRoot("test"))
	h1.RegionByVar(ir.CVar{UID: 1, Inst: 1}, true)

	h2 := symheap.New(trace.NewRoot("test"))
	h2.RegionByVar(ir.CVar{UID: 2, Inst: 1}, true)

	if _, _, ok := symheap.JoinSymHeaps(h1, h2, true); ok {
		t.Fatal("heaps with different live variable sets must never join")
	}
}

func TestJoinUnknownGeneralizesConcrete(t *testing.T) {
	cv := ir.CVar{UID: 1, Inst: 1}

	h1 := symheap.New(trace.NewRoot("test"))
	o1, _ := h1.RegionByVar(cv, true)
	h1.SetField(o1, 0, nil, h1.ValUnknown(symheap.OriginUninitialized))

	h2 := symheap.New(trace.NewRoot("test"))
	o2, _ := h2.RegionByVar(cv, true)
	h2.SetField(o2, 0, nil, h2.ValWrapCustom(symheap.CustomValue{Kind: "int", Int: 42}))

	status, _, ok := symheap.JoinSymHeaps(h1, h2, false)
	if !ok {
		t.Fatal("an unknown field already covers a concrete one; no three-way fold needed")
	}
	if status != symheap.JoinLeftCovers {
		t.Fatalf("want JoinLeftCovers (h1's unknown generalizes h2's concrete value), got %s", status)
	}
}
