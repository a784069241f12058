package engine

import (
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/symheap"
)

// LeakedObjects returns every valid, heap-allocated object in h that is
// not reachable from any global variable or the return slot, once the
// exiting function's own local frame is excluded from the root set
// (spec.md §7 "Memory leak"). Used at OpRet to flag scenario 2 of
// spec.md §8: a local pointer going out of scope is not itself a root,
// so whatever it was the sole reference to is reported as leaked.
func LeakedObjects(h *symheap.Heap) []symheap.ObjectID {
	reached := make(map[symheap.ObjectID]bool)
	var queue []symheap.ObjectID

	push := func(o symheap.ObjectID) {
		if o != symheap.ObjInvalid && !reached[o] {
			reached[o] = true
			queue = append(queue, o)
		}
	}

	for _, cv := range h.LiveVars() {
		o, _ := h.RegionByVar(cv, false)
		if o == symheap.ObjInvalid || h.ObjStorageClass(o) == ir.StorageLocal {
			continue
		}
		push(o)
	}
	if h.HasReturnSlot() {
		push(symheap.ObjReturn)
	}

	for len(queue) > 0 {
		o := queue[0]
		queue = queue[1:]
		for _, f := range h.GatherLivePointers(o) {
			push(h.ObjByAddr(f.Val))
		}
		h.TraverseUniformBlocks(o, func(u symheap.UniformBlock) bool {
			t := h.ValTarget(u.Value)
			if t == symheap.TargetAddr || t == symheap.TargetRange {
				push(h.ObjByAddr(u.Value))
			}
			return true
		})
	}

	var leaked []symheap.ObjectID
	for _, o := range h.Objects() {
		if o == symheap.ObjReturn || o == symheap.ObjInvalid {
			continue
		}
		if _, hasCV := h.CVarByObject(o); hasCV {
			continue
		}
		if h.ObjStorageClass(o) != ir.StorageHeap {
			continue
		}
		if h.IsValid(o) && !reached[o] {
			leaked = append(leaked, o)
		}
	}
	return leaked
}
