package symheap

import (
	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/trace"
)

// A Cut is a finite set of program variables used as roots to carve a
// sub-heap (spec.md GLOSSARY "Cut").
type Cut = []ir.CVar

type workItem struct {
	srcObj, dstObj ObjectID
	srcOff, dstOff int64
	typ            *ir.Type
}

type pruneCtx struct {
	src, dst    *Heap
	valMap      map[ValueID]ValueID
	forwardOnly bool
	wl          []workItem
	cut         map[ir.CVar]bool
}

// Prune deep-copies everything in src reachable from cut (and, if typed,
// the return slot) into a fresh heap, and returns the value-id map from
// src to the new heap (spec.md §4.2). When forwardOnly is false, back-
// pointers are tracked too (trackUses), which can grow the effective cut
// beyond what was passed in -- this is what SYMCUT uses for a faithful
// split; forwardOnly=true gives plain forward reachability, the mode
// JOIN uses internally when it only needs a root-reachable sub-heap.
func Prune(src *Heap, cut Cut, forwardOnly bool) (*Heap, map[ValueID]ValueID) {
	dst := New(nil)
	valMap := pruneInto(dst, src, cut, forwardOnly)
	mapper := trace.NewIDMapper()
	for s, d := range valMap {
		mapper.Set(int(s), int(d))
	}
	dst.SetTraceNode(trace.NewPrune(src.tr, "prune", mapper))
	return dst, valMap
}

// pruneInto performs the same deep copy as Prune but writes into an
// existing dst heap, reusing any object dst already has for a program
// variable the cut also names. This is the substrate joinHeapsByCVars
// uses to re-absorb a previously split-off sub-heap and its frame back
// into one heap, unifying on shared variable identity.
func pruneInto(dst, src *Heap, cut Cut, forwardOnly bool) map[ValueID]ValueID {
	dc := &pruneCtx{src: src, dst: dst, valMap: make(map[ValueID]ValueID), forwardOnly: forwardOnly, cut: make(map[ir.CVar]bool)}
	for _, cv := range cut {
		dc.cut[cv] = true
	}

	for _, cv := range cut {
		objSrc, ok := src.RegionByVar(cv, false)
		if !ok {
			continue
		}
		rootSrcAddr := src.AddrOfRegion(objSrc)
		if _, already := dc.valMap[rootSrcAddr]; already {
			continue
		}
		valid := src.IsValid(objSrc)
		objDst, existed := dst.RegionByVar(cv, true)
		if !valid {
			dst.ObjInvalidate(objDst)
		}
		rootDstAddr := dst.AddrOfRegion(objDst)
		dc.valMap[rootSrcAddr] = rootDstAddr
		if !existed {
			digFields(dc, objSrc, objDst)
		} else {
			// Object already present in dst from a prior absorption:
			// still enqueue src's fields so any new information (e.g.
			// this side holds a field the other side didn't write)
			// gets merged in.
			enqueueFields(dc, objSrc, objDst)
		}
	}

	if src.HasReturnSlot() {
		dst.EnsureReturnSlot(src.ObjEstimatedType(ObjReturn))
		dc.valMap[ValAddrOfRet] = ValAddrOfRet
		enqueueFields(dc, ObjReturn, ObjReturn)
	}

	drainWorklist(dc)

	src.CopyRelevantPreds(dst, dc.valMap)
	return dc.valMap
}

func enqueueFields(dc *pruneCtx, objSrc, objDst ObjectID) {
	dc.src.TraverseUniformBlocks(objSrc, func(ub UniformBlock) bool {
		v := translateValue(dc, ub.Value)
		dc.dst.WriteUniformBlock(objDst, UniformBlock{Off: ub.Off, Len: ub.Len, Value: v})
		return true
	})
	for _, f := range dc.src.GatherLiveFields(objSrc) {
		dc.wl = append(dc.wl, workItem{srcObj: objSrc, dstObj: objDst, srcOff: f.Off, dstOff: f.Off, typ: f.Typ})
	}
}

func digFields(dc *pruneCtx, objSrc, objDst ObjectID) {
	enqueueFields(dc, objSrc, objDst)
}

func drainWorklist(dc *pruneCtx) {
	for len(dc.wl) > 0 {
		item := dc.wl[0]
		dc.wl = dc.wl[1:]

		if !dc.forwardOnly {
			fieldAddr := dc.src.ValByOffset(dc.src.AddrOfRegion(item.srcObj), item.srcOff)
			for _, ref := range dc.src.UsedBy(fieldAddr, true) {
				addObjectIfNeeded(dc, dc.src.AddrOfRegion(ref.Owner))
			}
		}

		if item.typ != nil && (item.typ.Code == ir.KindStruct || item.typ.Code == ir.KindUnion || item.typ.Code == ir.KindArray) {
			// Composite destination: structure is materialized by the
			// further fields already enqueued for its members.
			continue
		}

		v, ok := dc.src.FieldValue(item.srcObj, item.srcOff)
		if !ok {
			continue
		}
		dst := translateValue(dc, v)
		dc.dst.SetField(item.dstObj, item.dstOff, item.typ, dst)
	}
}

// addObjectIfNeeded materializes, in dst, the object rootSrcAddr refers
// to (if not already mapped) and returns the corresponding dst address,
// recursively digging its fields (spec.md §4.2 addObjectIfNeeded).
func addObjectIfNeeded(dc *pruneCtx, rootSrcAddr ValueID) ValueID {
	if rootSrcAddr == ValNull {
		return ValNull
	}
	if mapped, ok := dc.valMap[rootSrcAddr]; ok {
		return mapped
	}

	objSrc := dc.src.ObjByAddr(rootSrcAddr)
	valid := dc.src.IsValid(objSrc)

	if cv, ok := dc.src.CVarByObject(objSrc); ok {
		if valid {
			dc.cut[cv] = true
		}
		objDst, existed := dc.dst.RegionByVar(cv, true)
		if !valid {
			dc.dst.ObjInvalidate(objDst)
		}
		rootDstAddr := dc.dst.AddrOfRegion(objDst)
		dc.valMap[rootSrcAddr] = rootDstAddr
		if !existed {
			digFields(dc, objSrc, objDst)
		}
		return rootDstAddr
	}

	if objSrc == ObjReturn {
		dc.dst.EnsureReturnSlot(dc.src.ObjEstimatedType(objSrc))
		rootDstAddr := dc.dst.AddrOfRegion(ObjReturn)
		dc.valMap[rootSrcAddr] = rootDstAddr
		digFields(dc, objSrc, ObjReturn)
		return rootDstAddr
	}

	size := dc.src.ObjSize(objSrc)
	objDst, _ := dc.dst.HeapAlloc(size)
	if !valid {
		dc.dst.ObjInvalidate(objDst)
	}
	if t := dc.src.ObjEstimatedType(objSrc); t != nil {
		dc.dst.ObjSetEstimatedType(objDst, t)
	}
	dc.dst.ObjSetProtoLevel(objDst, dc.src.ObjProtoLevel(objSrc))
	if kind := dc.src.ObjKindOf(objSrc); kind.IsAbstract() {
		dc.dst.ObjSetAbstract(objDst, kind, dc.src.SegBindingOf(objSrc))
		dc.dst.SegSetMinLength(objDst, dc.src.SegMinLength(objSrc))
	}

	rootDstAddr := dc.dst.AddrOfRegion(objDst)
	dc.valMap[rootSrcAddr] = rootDstAddr
	digFields(dc, objSrc, objDst)
	return rootDstAddr
}

func translateValue(dc *pruneCtx, v ValueID) ValueID {
	if mapped, ok := dc.valMap[v]; ok {
		return mapped
	}
	switch dc.src.ValTarget(v) {
	case TargetNull:
		return ValNull
	case TargetCustom:
		dst := dc.dst.ValWrapCustom(dc.src.ValUnwrapCustom(v))
		dc.valMap[v] = dst
		return dst
	case TargetUnknown:
		dst := dc.dst.ValUnknown(dc.src.ValOrigin(v))
		dc.valMap[v] = dst
		return dst
	case TargetAddr, TargetRange:
		root := dc.src.ValRoot(v)
		rootDst := addObjectIfNeeded(dc, root)
		off := dc.src.ValOffset(v)
		var dst ValueID
		if dc.src.ValTarget(v) == TargetRange {
			dst = dc.dst.ValByRange(rootDst, off)
		} else {
			dst = dc.dst.ValByOffset(rootDst, off.Min)
		}
		dc.valMap[v] = dst
		return dst
	default:
		panic("symheap: translateValue of invalid value")
	}
}

// SplitHeapByCVars partitions heap into the sub-heap reachable from cut
// (returned as `reachable`) and, if wantFrame is set, its complement
// (`frame`); spec.md §3 "Cut". With cfg.DisableSymCut set, the split is
// skipped entirely and heap is returned unchanged as reachable, with a
// nil frame, per spec.md §6's "--disable-symcut" escape hatch.
func SplitHeapByCVars(cfg config.Config, heap *Heap, cut Cut, wantFrame bool) (reachable, frame *Heap) {
	if cfg.DisableSymCut {
		return heap, nil
	}

	reachable, _ = Prune(heap, cut, false)

	if !wantFrame {
		return reachable, nil
	}

	inCut := make(map[ir.CVar]bool, len(cut))
	for _, cv := range cut {
		inCut[cv] = true
	}
	var complement Cut
	for _, cv := range heap.LiveVars() {
		if !inCut[cv] {
			complement = append(complement, cv)
		}
	}
	frame, _ = Prune(heap, complement, false)
	return reachable, frame
}

// JoinHeapsByCVars reconstructs a single heap from a sub-heap and the
// frame SplitHeapByCVars produced for it, unifying on shared program
// variables (spec.md §3 "Cut"). The reconstructed heap is isomorphic to
// the original heap the split started from (spec.md §8 "Round-trip").
// With cfg.DisableSymCut set, reachable already is the whole heap (see
// SplitHeapByCVars above) and frame is nil, so the join is skipped and
// reachable is returned as-is.
func JoinHeapsByCVars(cfg config.Config, reachable, frame *Heap) *Heap {
	if cfg.DisableSymCut {
		return reachable
	}

	out := New(trace.NewJoin(reachable.tr, frame.tr, "symcut-join", trace.Identity(), trace.Identity()))
	pruneInto(out, reachable, reachable.LiveVars(), true)
	pruneInto(out, frame, frame.LiveVars(), true)
	return out
}
