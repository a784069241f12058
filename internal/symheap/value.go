package symheap

import "github.com/staticafi/predator/internal/ir"

// ValTarget returns a value's classification (spec.md §4.1 valTarget).
func (h *Heap) ValTarget(v ValueID) TargetKind { return h.mustVal(v).target }

// ValOrigin returns the origin tag of an TargetUnknown value. Panics if v
// is not classified TargetUnknown.
func (h *Heap) ValOrigin(v ValueID) Origin {
	val := h.mustVal(v)
	if val.target != TargetUnknown {
		panic("symheap: ValOrigin of non-unknown value " + v.String())
	}
	return val.origin
}

// ValOffset returns the byte offset (possibly a range) of an address
// value from the root of its object (spec.md §4.1 valOffset).
func (h *Heap) ValOffset(v ValueID) ir.Range {
	val := h.mustVal(v)
	if val.target != TargetAddr && val.target != TargetRange {
		panic("symheap: ValOffset of non-address value " + v.String())
	}
	return val.offset
}

// ValRoot canonicalizes an address value to the base address of its
// object (spec.md §4.1 valRoot).
func (h *Heap) ValRoot(v ValueID) ValueID {
	val := h.mustVal(v)
	if val.target != TargetAddr && val.target != TargetRange {
		return v
	}
	return h.objAddr(val.obj)
}

// ValByOffset derives the address `off` bytes past v, canonicalizing
// off==0 back to v itself (spec.md §4.1).
func (h *Heap) ValByOffset(v ValueID, off int64) ValueID {
	if off == 0 {
		return v
	}
	val := h.mustVal(v)
	if val.target != TargetAddr {
		panic("symheap: ValByOffset of non-address value " + v.String())
	}
	newOff := val.offset.Add(off)
	if newOff.Min == 0 && newOff.Max == 0 {
		return h.objAddr(val.obj)
	}
	return h.internValue(&value{target: TargetAddr, obj: val.obj, offset: newOff})
}

// ValByRange derives a ranged address from v by composing v's existing
// offset with the given relative range.
func (h *Heap) ValByRange(v ValueID, rel ir.Range) ValueID {
	val := h.mustVal(v)
	if val.target != TargetAddr && val.target != TargetRange {
		panic("symheap: ValByRange of non-address value " + v.String())
	}
	composed := ir.Range{Min: val.offset.Min + rel.Min, Max: val.offset.Max + rel.Max}
	if composed.IsPoint() {
		return h.ValByOffset(h.objAddr(val.obj), composed.Min)
	}
	return h.internValue(&value{target: TargetRange, obj: val.obj, offset: composed})
}

// ValWrapCustom interns a custom constant into a value id, deterministic
// per heap: the same payload always yields the same id within one heap
// (spec.md §4.1 valWrapCustom).
func (h *Heap) ValWrapCustom(cv CustomValue) ValueID {
	if id, ok := h.customIndex[cv]; ok {
		return id
	}
	id := h.internValue(&value{target: TargetCustom, custom: cv})
	h.customIndex[cv] = id
	return id
}

// ValUnwrapCustom returns the payload of a TargetCustom value.
func (h *Heap) ValUnwrapCustom(v ValueID) CustomValue {
	val := h.mustVal(v)
	if val.target != TargetCustom {
		panic("symheap: ValUnwrapCustom of non-custom value " + v.String())
	}
	return val.custom
}

// ValUnknown interns a fresh unknown value with the given origin. Unlike
// custom values, unknown values are not deduplicated: each call to
// ValUnknown represents a logically distinct unknown datum (spec.md §3
// "if unknown: an origin tag").
func (h *Heap) ValUnknown(origin Origin) ValueID {
	return h.internValue(&value{target: TargetUnknown, origin: origin})
}

// IsPtrFromHeap reports whether v can be dereferenced as a valid,
// live address: not null, not unknown, and pointing into a valid
// object. Used by transfer functions (external) to decide whether a
// dereference is an invalid/use-after-free witness, per spec.md §7.
func (h *Heap) IsPtrFromHeap(v ValueID) bool {
	val := h.mustVal(v)
	if val.target != TargetAddr && val.target != TargetRange {
		return false
	}
	return h.IsValid(val.obj)
}
