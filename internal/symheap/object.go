package symheap

import "github.com/staticafi/predator/internal/ir"

// objAddr returns the canonical root address value (offset 0) for o,
// interning one if this is the first time it's been asked for. This is
// the Object <-> Value bijection described in spec.md §4.1
// (objByAddr/addrOfRegion).
func (h *Heap) objAddr(o ObjectID) ValueID {
	if id, ok := h.addrIdx[o]; ok {
		return id
	}
	id := h.internValue(&value{target: TargetAddr, obj: o, offset: ir.Point(0)})
	h.addrIdx[o] = id
	return id
}

func (h *Heap) internValue(v *value) ValueID {
	id := h.nextVal
	h.nextVal++
	v.id = id
	h.values[id] = v
	return id
}

// ObjByAddr returns the object an address value points into. Panics if v
// is not an address-classified value; callers must check ValTarget
// first.
func (h *Heap) ObjByAddr(v ValueID) ObjectID {
	val := h.mustVal(v)
	if val.target != TargetAddr && val.target != TargetRange {
		panic("symheap: ObjByAddr of non-address value " + v.String())
	}
	return val.obj
}

// AddrOfRegion returns the root address of an object (spec.md §4.1).
func (h *Heap) AddrOfRegion(o ObjectID) ValueID {
	return h.objAddr(o)
}

// ObjSize returns the object's byte-size range.
func (h *Heap) ObjSize(o ObjectID) ir.Range { return h.mustObj(o).size }

// ObjKindOf returns the object's kind (region, SLS, DLS, ...).
func (h *Heap) ObjKindOf(o ObjectID) ObjKind { return h.mustObj(o).kind }

// ObjProtoLevel returns the object's prototype-nesting level (spec.md
// GLOSSARY "Prototype level").
func (h *Heap) ObjProtoLevel(o ObjectID) int { return h.mustObj(o).protoLevel }

// SegBindingOf returns the binding offsets of a segment object. Valid
// only when ObjKindOf(o).IsSegment().
func (h *Heap) SegBindingOf(o ObjectID) SegBinding { return h.mustObj(o).binding }

// SegMinLength returns a segment's minimum length (spec.md GLOSSARY
// "Minimum length").
func (h *Heap) SegMinLength(o ObjectID) int64 { return h.mustObj(o).minLength }

// IsValid reports whether the object has not been invalidated (freed or
// deleted).
func (h *Heap) IsValid(o ObjectID) bool {
	if o == ObjInvalid {
		return false
	}
	return h.mustObj(o).valid
}

// ObjStorageClass returns the object's storage class.
func (h *Heap) ObjStorageClass(o ObjectID) ir.StorageClass { return h.mustObj(o).class }

// ObjEstimatedType returns the object's estimated C-type, or nil if
// unknown.
func (h *Heap) ObjEstimatedType(o ObjectID) *ir.Type { return h.mustObj(o).estType }

// ObjSetEstimatedType records a best-effort type for an object.
func (h *Heap) ObjSetEstimatedType(o ObjectID, t *ir.Type) { h.mustObj(o).estType = t }

// ObjSetProtoLevel sets the object's prototype-nesting level.
func (h *Heap) ObjSetProtoLevel(o ObjectID, level int) { h.mustObj(o).protoLevel = level }

// ObjSetAbstract turns a region into an abstract object of the given kind
// with the given segment binding (spec.md §4.1).
func (h *Heap) ObjSetAbstract(o ObjectID, kind ObjKind, binding SegBinding) {
	ob := h.mustObj(o)
	ob.kind = kind
	ob.binding = binding
}

// SegSetMinLength sets a segment's minimum length.
func (h *Heap) SegSetMinLength(o ObjectID, n int64) {
	ob := h.mustObj(o)
	if !ob.kind.IsSegment() && ob.kind != KindMayExist {
		panic("symheap: SegSetMinLength of non-segment object")
	}
	ob.minLength = n
}

// ObjInvalidate marks an object invalid (deleted/freed); addresses into
// it become use-after-free witnesses per spec.md §3 invariants.
func (h *Heap) ObjInvalidate(o ObjectID) {
	if o == ObjInvalid {
		return
	}
	h.mustObj(o).valid = false
}

// HeapAlloc creates a fresh heap-allocated region of the given size range
// and returns it together with its base address (spec.md §4.1).
func (h *Heap) HeapAlloc(size ir.Range) (ObjectID, ValueID) {
	id := h.nextObj
	h.nextObj++
	h.objects[id] = &object{id: id, kind: KindRegion, size: size, valid: true, class: ir.StorageHeap}
	return id, h.objAddr(id)
}

// RegionByVar looks up the object representing a program variable,
// creating it (valid, size 0, no fields written) if requested and
// absent (spec.md §4.1 regionByVar). The second result reports whether
// the object already existed: it is false when the variable is absent,
// whether or not this call created it.
func (h *Heap) RegionByVar(cv ir.CVar, createIfNeeded bool) (ObjectID, bool) {
	if id, ok := h.varIndex[cv]; ok {
		return id, true
	}
	if !createIfNeeded {
		return ObjInvalid, false
	}
	id := h.nextObj
	h.nextObj++
	class := ir.StorageLocal
	if cv.Inst == 0 {
		class = ir.StorageGlobal
	}
	h.objects[id] = &object{id: id, kind: KindRegion, size: ir.Point(0), valid: true, class: class, cvar: cv, hasCVar: true}
	h.varIndex[cv] = id
	return id, false
}

// CVarByObject returns the program variable an object represents, if
// any.
func (h *Heap) CVarByObject(o ObjectID) (ir.CVar, bool) {
	ob := h.mustObj(o)
	return ob.cvar, ob.hasCVar
}

// LiveVars returns every program variable currently materialized in the
// heap, in a stable order; used by SYMCUT to enumerate the full cut when
// a frame is requested.
func (h *Heap) LiveVars() []ir.CVar {
	out := make([]ir.CVar, 0, len(h.varIndex))
	for cv := range h.varIndex {
		out = append(out, cv)
	}
	sortCVars(out)
	return out
}

func sortCVars(vs []ir.CVar) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0; j-- {
			a, b := vs[j-1], vs[j]
			if a.UID < b.UID || (a.UID == b.UID && a.Inst <= b.Inst) {
				break
			}
			vs[j-1], vs[j] = vs[j], vs[j-1]
		}
	}
}

// EnsureReturnSlot materializes OBJ_RETURN with the given type, if the
// function being entered has a non-void return type (spec.md §4.2 step
// 2: "If the return slot is typed, seed VAL_ADDR_OF_RET").
func (h *Heap) EnsureReturnSlot(t *ir.Type) {
	if _, ok := h.objects[ObjReturn]; ok {
		return
	}
	size := ir.Range{}
	if t != nil {
		size = ir.Point(t.Size)
	}
	h.objects[ObjReturn] = &object{id: ObjReturn, kind: KindRegion, size: size, valid: true, class: ir.StorageReturn, estType: t}
}

// HasReturnSlot reports whether OBJ_RETURN has been materialized.
func (h *Heap) HasReturnSlot() bool {
	_, ok := h.objects[ObjReturn]
	return ok
}
