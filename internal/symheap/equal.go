package symheap

import "github.com/staticafi/predator/internal/ir"

type valPair struct {
	a, b ValueID
}
type objPair struct {
	a, b ObjectID
}

type eqWalker struct {
	h1, h2 *Heap
	vals   map[valPair]bool
	objs   map[objPair]bool
}

// AreEqual reports whether h1 and h2 are isomorphic symbolic heaps: same
// live variables, and a value/object correspondence that matches
// classification, content, and segment shape exactly, with no
// abstraction on either side (spec.md §4.3 areEqual).
func AreEqual(h1, h2 *Heap) bool {
	vars1, vars2 := h1.LiveVars(), h2.LiveVars()
	if !sameCVarSet(vars1, vars2) {
		return false
	}
	w := &eqWalker{h1: h1, h2: h2, vals: make(map[valPair]bool), objs: make(map[objPair]bool)}

	for _, cv := range vars1 {
		o1, _ := h1.RegionByVar(cv, false)
		o2, ok2 := h2.RegionByVar(cv, false)
		if !ok2 {
			return false
		}
		if !w.valuesEqual(h1.AddrOfRegion(o1), h2.AddrOfRegion(o2)) {
			return false
		}
	}

	if h1.HasReturnSlot() != h2.HasReturnSlot() {
		return false
	}
	if h1.HasReturnSlot() && !w.objectsEqual(ObjReturn, ObjReturn) {
		return false
	}

	return len(h1.Predicates()) == len(h2.Predicates())
}

func sameCVarSet(a, b []ir.CVar) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[ir.CVar]bool, len(a))
	for _, cv := range a {
		set[cv] = true
	}
	for _, cv := range b {
		if !set[cv] {
			return false
		}
	}
	return true
}

func (w *eqWalker) valuesEqual(v1, v2 ValueID) bool {
	key := valPair{v1, v2}
	if done, ok := w.vals[key]; ok {
		return done
	}
	w.vals[key] = true // co-inductive assumption, corrected below if refuted

	t1, t2 := w.h1.ValTarget(v1), w.h2.ValTarget(v2)
	if t1 != t2 {
		w.vals[key] = false
		return false
	}

	var ok bool
	switch t1 {
	case TargetNull:
		ok = true
	case TargetCustom:
		ok = w.h1.ValUnwrapCustom(v1) == w.h2.ValUnwrapCustom(v2)
	case TargetUnknown:
		ok = w.h1.ValOrigin(v1) == w.h2.ValOrigin(v2)
	case TargetAddr, TargetRange:
		if w.h1.ValOffset(v1) != w.h2.ValOffset(v2) {
			ok = false
		} else {
			ok = w.objectsEqual(w.h1.ObjByAddr(v1), w.h2.ObjByAddr(v2))
		}
	default:
		ok = false
	}
	w.vals[key] = ok
	return ok
}

func (w *eqWalker) objectsEqual(o1, o2 ObjectID) bool {
	key := objPair{o1, o2}
	if done, ok := w.objs[key]; ok {
		return done
	}
	w.objs[key] = true

	ok := w.objectsEqualUncached(o1, o2)
	w.objs[key] = ok
	return ok
}

func (w *eqWalker) objectsEqualUncached(o1, o2 ObjectID) bool {
	if o1 == ObjInvalid || o2 == ObjInvalid {
		return o1 == o2
	}
	h1, h2 := w.h1, w.h2
	if h1.IsValid(o1) != h2.IsValid(o2) {
		return false
	}
	if h1.ObjSize(o1) != h2.ObjSize(o2) {
		return false
	}
	k1, k2 := h1.ObjKindOf(o1), h2.ObjKindOf(o2)
	if k1 != k2 {
		return false
	}
	if k1.IsSegment() || k1 == KindMayExist {
		if h1.SegBindingOf(o1) != h2.SegBindingOf(o2) {
			return false
		}
		if h1.SegMinLength(o1) != h2.SegMinLength(o2) {
			return false
		}
	}

	f1, f2 := h1.GatherLiveFields(o1), h2.GatherLiveFields(o2)
	if len(f1) != len(f2) {
		return false
	}
	for i := range f1 {
		if f1[i].Off != f2[i].Off {
			return false
		}
		if !w.valuesEqual(f1[i].Val, f2[i].Val) {
			return false
		}
	}

	var u1, u2 []UniformBlock
	h1.TraverseUniformBlocks(o1, func(u UniformBlock) bool { u1 = append(u1, u); return true })
	h2.TraverseUniformBlocks(o2, func(u UniformBlock) bool { u2 = append(u2, u); return true })
	if len(u1) != len(u2) {
		return false
	}
	for i := range u1 {
		if u1[i].Off != u2[i].Off || u1[i].Len != u2[i].Len {
			return false
		}
		if !w.valuesEqual(u1[i].Value, u2[i].Value) {
			return false
		}
	}
	return true
}
