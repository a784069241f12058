package symheap_test

import (
	"testing"

	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/symheap"
	"github.com/staticafi/predator/internal/trace"
)

func newHeap(t *testing.T) *symheap.Heap {
	t.Helper()
	return symheap.New(trace.NewRoot("test"))
}

func TestAreEqualReflexive(t *testing.T) {
	h := newHeap(t)
	cv := ir.CVar{UID: 1, Inst: 1}
	o, _ := h.RegionByVar(cv, true)
	_, addr := h.HeapAlloc(ir.Point(8))
	h.SetField(o, 0, nil, addr)

	if !symheap.AreEqual(h, h) {
		t.Fatal("a heap must be equal to itself")
	}
}

func TestAreEqualClone(t *testing.T) {
	h := newHeap(t)
	cv := ir.CVar{UID: 1, Inst: 1}
	o, _ := h.RegionByVar(cv, true)
	_, addr := h.HeapAlloc(ir.Point(8))
	h.SetField(o, 0, nil, addr)

	clone := h.Clone()
	if !symheap.AreEqual(h, clone) {
		t.Fatal("a clone must be isomorphic to its source")
	}
}

func TestAreEqualDetectsDifferentLiveVars(t *testing.T) {
	h1 := newHeap(t)
	h1.RegionByVar(ir.CVar{UID: 1, Inst: 1}, true)

	h2 := newHeap(t)
	h2.RegionByVar(ir.CVar{UID: 2, Inst: 1}, true)

	if symheap.AreEqual(h1, h2) {
		t.Fatal("heaps with different live variable sets must not be equal")
	}
}

func TestAreEqualDetectsNullVsAddressMismatch(t *testing.T) {
	h1 := newHeap(t)
	cv := ir.CVar{UID: 1, Inst: 1}
	o1, _ := h1.RegionByVar(cv, true)
	h1.SetField(o1, 0, nil, symheap.ValNull)

	h2 := newHeap(t)
	o2, _ := h2.RegionByVar(cv, true)
	_, addr := h2.HeapAlloc(ir.Point(8))
	h2.SetField(o2, 0, nil, addr)

	if symheap.AreEqual(h1, h2) {
		t.Fatal("a null field and an address field must not be equal")
	}
}
