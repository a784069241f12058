package symheap

// FieldRef names one (object, offset) location, used to report back-edges.
type FieldRef struct {
	Owner ObjectID
	Off   int64
}

// allFieldRefs enumerates every explicit field and uniform block in the
// heap as a (location, value) pair. It is rebuilt on every PointedBy/
// UsedBy call, so each back-edge query is O(heap size); SYMCUT's backward
// tracking calls UsedBy once per worklist item (see cut.go).
func (h *Heap) allFieldRefs() []struct {
	ref FieldRef
	val ValueID
} {
	var out []struct {
		ref FieldRef
		val ValueID
	}
	for _, oid := range h.sortedObjectIDs() {
		for _, f := range h.GatherLiveFields(oid) {
			out = append(out, struct {
				ref FieldRef
				val ValueID
			}{FieldRef{oid, f.Off}, f.Val})
		}
		h.TraverseUniformBlocks(oid, func(u UniformBlock) bool {
			out = append(out, struct {
				ref FieldRef
				val ValueID
			}{FieldRef{oid, u.Off}, u.Value})
			return true
		})
	}
	return out
}

// PointedBy returns every field location, in any object, whose value is
// an address into o (spec.md §4.1 pointedBy; required by SYMCUT's
// backward closure).
func (h *Heap) PointedBy(o ObjectID) []FieldRef {
	var out []FieldRef
	for _, e := range h.allFieldRefs() {
		t := h.ValTarget(e.val)
		if (t == TargetAddr || t == TargetRange) && h.ObjByAddr(e.val) == o {
			out = append(out, e.ref)
		}
	}
	return out
}

// UsedBy returns every field location whose value is exactly v. If
// liveOnly is set, locations inside invalidated objects are excluded.
func (h *Heap) UsedBy(v ValueID, liveOnly bool) []FieldRef {
	var out []FieldRef
	for _, e := range h.allFieldRefs() {
		if e.val != v {
			continue
		}
		if liveOnly && !h.IsValid(e.ref.Owner) {
			continue
		}
		out = append(out, e.ref)
	}
	return out
}
