package symheap_test

import (
	"testing"

	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/symheap"
)

// buildLinkedPair builds a two-variable heap: "head" points at a
// one-field heap-allocated node, and an unrelated scalar variable "x"
// holds a plain constant, so a cut naming only "head" has a genuine
// frame to split off.
func buildLinkedPair(t *testing.T) (*symheap.Heap, ir.CVar, ir.CVar) {
	t.Helper()
	h := newHeap(t)

	head := ir.CVar{UID: 1, Inst: 1}
	x := ir.CVar{UID: 2, Inst: 1}

	ohead, _ := h.RegionByVar(head, true)
	onode, addr := h.HeapAlloc(ir.Point(8))
	h.SetField(ohead, 0, nil, addr)
	h.SetField(onode, 0, nil, symheap.ValNull)

	ox, _ := h.RegionByVar(x, true)
	h.SetField(ox, 0, nil, symheap.ValNull)

	return h, head, x
}

func TestSplitJoinRoundTrip(t *testing.T) {
	h, head, _ := buildLinkedPair(t)

	reachable, frame := symheap.SplitHeapByCVars(config.Default(), h, symheap.Cut{head}, true)
	if reachable == nil || frame == nil {
		t.Fatal("split must produce both a reachable sub-heap and a frame when wantFrame is set")
	}

	rejoined := symheap.JoinHeapsByCVars(config.Default(), reachable, frame)
	if !symheap.AreEqual(h, rejoined) {
		t.Fatal("splitting a heap by cut and rejoining it must reconstruct an isomorphic heap")
	}
}

func TestSplitHeapByCVarsNoFrameRequested(t *testing.T) {
	h, head, _ := buildLinkedPair(t)

	reachable, frame := symheap.SplitHeapByCVars(config.Default(), h, symheap.Cut{head}, false)
	if reachable == nil {
		t.Fatal("split must still produce the reachable sub-heap")
	}
	if frame != nil {
		t.Fatal("frame must be nil when wantFrame is false")
	}
}

func TestSplitHeapByCVarsDisabledIsIdentity(t *testing.T) {
	h, head, _ := buildLinkedPair(t)
	cfg := config.Default()
	cfg.DisableSymCut = true

	reachable, frame := symheap.SplitHeapByCVars(cfg, h, symheap.Cut{head}, true)
	if reachable != h {
		t.Fatal("--disable-symcut must make the split a no-op, returning the original heap")
	}
	if frame != nil {
		t.Fatal("--disable-symcut must report no frame")
	}
}

func TestJoinHeapsByCVarsDisabledIsIdentity(t *testing.T) {
	h, _, _ := buildLinkedPair(t)
	cfg := config.Default()
	cfg.DisableSymCut = true

	rejoined := symheap.JoinHeapsByCVars(cfg, h, nil)
	if rejoined != h {
		t.Fatal("--disable-symcut must make the join a no-op, returning reachable unchanged")
	}
}
