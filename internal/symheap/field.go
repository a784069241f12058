package symheap

import (
	"sort"

	"github.com/staticafi/predator/internal/ir"
)

// LiveField is the externally-visible form of a Field: an object's
// member at a given offset, with its static type (if known) and the
// value currently stored there (spec.md §3 "Field").
type LiveField struct {
	Off int64
	Typ *ir.Type
	Val ValueID
}

// FieldValue reads the value stored at (o, off): an explicit write takes
// priority over a covering uniform block. ok is false if neither exists,
// meaning the byte range has never been written (an uninitialized read,
// spec.md §7).
func (h *Heap) FieldValue(o ObjectID, off int64) (v ValueID, ok bool) {
	ob := h.mustObj(o)
	if f, found := ob.fields[off]; found {
		return f.val, true
	}
	for _, u := range ob.uniform {
		if u.covers(off) {
			return u.Value, true
		}
	}
	return 0, false
}

// SetField writes a single field's value, creating the field if it
// didn't already exist (spec.md §4.1 "for individual field writes, set
// the field's value").
func (h *Heap) SetField(o ObjectID, off int64, typ *ir.Type, v ValueID) {
	ob := h.mustObj(o)
	if ob.fields == nil {
		ob.fields = make(map[int64]*fieldEntry)
	}
	if f, ok := ob.fields[off]; ok {
		f.val = v
		if typ != nil {
			f.typ = typ
		}
		return
	}
	ob.fields[off] = &fieldEntry{off: off, typ: typ, val: v}
}

// WriteUniformBlock tiles a default value across a byte range of an
// object, overriding any explicit field writes that fall inside the
// range (spec.md §3 "Uniform block", §4.1 writeUniformBlock).
func (h *Heap) WriteUniformBlock(o ObjectID, ub UniformBlock) {
	ob := h.mustObj(o)
	for off := range ob.fields {
		if off >= ub.Off && off < ub.Off+ub.Len {
			delete(ob.fields, off)
		}
	}
	// Merge with/replace any existing block with the identical range so
	// repeated zero-inits of the same span don't accumulate garbage.
	for i, existing := range ob.uniform {
		if existing.Off == ub.Off && existing.Len == ub.Len {
			ob.uniform[i] = ub
			return
		}
	}
	ob.uniform = append(ob.uniform, ub)
}

// TraverseUniformBlocks calls visit for every uniform block of o, in
// offset order, until visit returns false.
func (h *Heap) TraverseUniformBlocks(o ObjectID, visit func(UniformBlock) bool) {
	ob := h.mustObj(o)
	blocks := append([]UniformBlock(nil), ob.uniform...)
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Off < blocks[j].Off })
	for _, b := range blocks {
		if !visit(b) {
			return
		}
	}
}

// GatherLiveFields returns every explicitly-written field of o, sorted by
// offset (spec.md §4.1 gatherLiveFields).
func (h *Heap) GatherLiveFields(o ObjectID) []LiveField {
	ob := h.mustObj(o)
	out := make([]LiveField, 0, len(ob.fields))
	for _, f := range ob.fields {
		out = append(out, LiveField{Off: f.off, Typ: f.typ, Val: f.val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Off < out[j].Off })
	return out
}

// GatherLivePointers returns every explicitly-written field of o whose
// value is address-classified (spec.md §4.1 gatherLivePointers).
func (h *Heap) GatherLivePointers(o ObjectID) []LiveField {
	all := h.GatherLiveFields(o)
	out := all[:0:0]
	for _, f := range all {
		t := h.ValTarget(f.Val)
		if t == TargetAddr || t == TargetRange {
			out = append(out, f)
		}
	}
	return out
}
