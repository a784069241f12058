package symheap

import (
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/trace"
)

// JoinStatus classifies the outcome of joinSymHeaps (spec.md §4.3).
type JoinStatus uint8

const (
	// JoinEqual: the two heaps were already isomorphic.
	JoinEqual JoinStatus = iota
	// JoinLeftCovers: the first heap already generalizes the second; the
	// joined result is isomorphic to the first heap.
	JoinLeftCovers
	// JoinRightCovers: the second heap already generalizes the first.
	JoinRightCovers
	// JoinThreeWay: neither heap covers the other; a genuinely new,
	// more abstract heap was built to cover both.
	JoinThreeWay
)

func (s JoinStatus) String() string {
	switch s {
	case JoinEqual:
		return "equal"
	case JoinLeftCovers:
		return "left-covers"
	case JoinRightCovers:
		return "right-covers"
	case JoinThreeWay:
		return "three-way"
	default:
		return "?"
	}
}

type objPairWork struct {
	o1, o2, out ObjectID
}

type joinCtx struct {
	h1, h2, out   *Heap
	allowThreeWay bool

	vmemo map[valPair]ValueID
	omemo map[objPair]ObjectID
	vmap1 map[ValueID]ValueID // h1 id -> out id, every value pulled in from h1
	vmap2 map[ValueID]ValueID // h2 id -> out id
	oobj1 map[ObjectID]ObjectID
	oobj2 map[ObjectID]ObjectID

	wl []objPairWork

	leftGen, rightGen bool
	failed            bool
}

func newJoinCtx(h1, h2 *Heap, allowThreeWay bool) *joinCtx {
	return &joinCtx{
		h1: h1, h2: h2, out: New(nil), allowThreeWay: allowThreeWay,
		vmemo: make(map[valPair]ValueID),
		omemo: make(map[objPair]ObjectID),
		vmap1: make(map[ValueID]ValueID),
		vmap2: make(map[ValueID]ValueID),
	}
}

// JoinSymHeaps attempts to merge h1 and h2 into a single heap that
// abstracts both (spec.md §4.3). When allowThreeWay is false, only an
// equal or covers relationship is accepted: any mismatch that would
// require inventing an abstraction fails the join outright. STATE makes
// one call per stored heap with the flag its caller passed (after
// config.ClampThreeWay) and does not retry a failed join with
// allowThreeWay set.
func JoinSymHeaps(h1, h2 *Heap, allowThreeWay bool) (JoinStatus, *Heap, bool) {
	vars1, vars2 := h1.LiveVars(), h2.LiveVars()
	if !sameCVarSet(vars1, vars2) {
		return 0, nil, false
	}
	if h1.HasReturnSlot() != h2.HasReturnSlot() {
		return 0, nil, false
	}

	ctx := newJoinCtx(h1, h2, allowThreeWay)
	for _, cv := range vars1 {
		o1, _ := h1.RegionByVar(cv, false)
		o2, _ := h2.RegionByVar(cv, false)
		ctx.joinObject(o1, o2)
		if ctx.failed {
			return 0, nil, false
		}
	}
	if h1.HasReturnSlot() {
		ctx.joinObject(ObjReturn, ObjReturn)
		if ctx.failed {
			return 0, nil, false
		}
	}

	ctx.drain()
	if ctx.failed {
		return 0, nil, false
	}

	h1.CopyRelevantPreds(ctx.out, ctx.vmap1)
	h2.CopyRelevantPreds(ctx.out, ctx.vmap2)
	if !ctx.out.Feasible() {
		return 0, nil, false
	}

	status := JoinEqual
	switch {
	case ctx.leftGen && ctx.rightGen:
		status = JoinThreeWay
	case ctx.rightGen:
		status = JoinLeftCovers
	case ctx.leftGen:
		status = JoinRightCovers
	}
	if status == JoinThreeWay && !allowThreeWay {
		return 0, nil, false
	}

	m1, m2 := trace.NewIDMapper(), trace.NewIDMapper()
	for s, d := range ctx.vmap1 {
		m1.Set(int(s), int(d))
	}
	for s, d := range ctx.vmap2 {
		m2.Set(int(s), int(d))
	}
	ctx.out.SetTraceNode(trace.NewJoin(h1.tr, h2.tr, "join", m1, m2))

	return status, ctx.out, true
}

func (ctx *joinCtx) joinValue(v1, v2 ValueID) ValueID {
	key := valPair{v1, v2}
	if vout, ok := ctx.vmemo[key]; ok {
		return vout
	}

	t1, t2 := ctx.h1.ValTarget(v1), ctx.h2.ValTarget(v2)

	if t1 == TargetNull && t2 == TargetNull {
		return ctx.commit(v1, v2, ValNull)
	}

	if t1 == TargetCustom && t2 == TargetCustom {
		c1, c2 := ctx.h1.ValUnwrapCustom(v1), ctx.h2.ValUnwrapCustom(v2)
		if c1 == c2 {
			return ctx.commit(v1, v2, ctx.out.ValWrapCustom(c1))
		}
	}

	if isAddrLike(t1) && isAddrLike(t2) && ctx.h1.ValOffset(v1) == ctx.h2.ValOffset(v2) {
		o1, o2 := ctx.h1.ObjByAddr(v1), ctx.h2.ObjByAddr(v2)
		oout := ctx.joinObject(o1, o2)
		if ctx.failed {
			return ValNull
		}
		off := ctx.h1.ValOffset(v1)
		root := ctx.out.AddrOfRegion(oout)
		var vout ValueID
		if t1 == TargetRange || t2 == TargetRange {
			vout = ctx.out.ValByRange(root, off)
		} else {
			vout = ctx.out.ValByOffset(root, off.Min)
		}
		return ctx.commit(v1, v2, vout)
	}

	// A pointer that is VAL_NULL on one side against a concrete,
	// null-terminated chain on the other is exactly the "chain allows
	// empty unfolding" case of spec.md §4.3's segment-abstraction rules:
	// widen the chain into a fresh SLS/DLS of min_length 0 rather than
	// forgetting it down to an unknown value.
	if t1 == TargetNull && isAddrLike(t2) {
		if vout, ok := ctx.foldChainAgainstEmpty(2, v2); ok {
			return ctx.commit(v1, v2, vout)
		}
	}
	if t2 == TargetNull && isAddrLike(t1) {
		if vout, ok := ctx.foldChainAgainstEmpty(1, v1); ok {
			return ctx.commit(v1, v2, vout)
		}
	}

	if t1 == TargetUnknown && t2 != TargetUnknown {
		ctx.rightGen = true
		return ctx.commit(v1, v2, ctx.out.ValUnknown(ctx.h1.ValOrigin(v1)))
	}
	if t2 == TargetUnknown && t1 != TargetUnknown {
		ctx.leftGen = true
		return ctx.commit(v1, v2, ctx.out.ValUnknown(ctx.h2.ValOrigin(v2)))
	}
	if t1 == TargetUnknown && t2 == TargetUnknown {
		o1, o2 := ctx.h1.ValOrigin(v1), ctx.h2.ValOrigin(v2)
		if o1 == o2 {
			return ctx.commit(v1, v2, ctx.out.ValUnknown(o1))
		}
		ctx.leftGen, ctx.rightGen = true, true
		return ctx.commit(v1, v2, ctx.out.ValUnknown(OriginUnknownResult))
	}

	// Any other mismatch (null vs. address, distinct constants, addresses
	// at different offsets, ...) can only be unified by forgetting both
	// sides down to an unknown value -- a genuine three-way fold.
	if !ctx.allowThreeWay {
		ctx.failed = true
		return ValNull
	}
	ctx.leftGen, ctx.rightGen = true, true
	return ctx.commit(v1, v2, ctx.out.ValUnknown(OriginUnknownResult))
}

func (ctx *joinCtx) commit(v1, v2, vout ValueID) ValueID {
	ctx.vmemo[valPair{v1, v2}] = vout
	ctx.vmap1[v1] = vout
	ctx.vmap2[v2] = vout
	return vout
}

func isAddrLike(t TargetKind) bool { return t == TargetAddr || t == TargetRange }

func (ctx *joinCtx) joinObject(o1, o2 ObjectID) ObjectID {
	key := objPair{o1, o2}
	if oout, ok := ctx.omemo[key]; ok {
		return oout
	}

	h1, h2, out := ctx.h1, ctx.h2, ctx.out
	if h1.IsValid(o1) != h2.IsValid(o2) {
		ctx.failed = true
		return ObjInvalid
	}
	if h1.ObjSize(o1) != h2.ObjSize(o2) {
		ctx.failed = true
		return ObjInvalid
	}

	var oout ObjectID
	cv1, hasCV1 := h1.CVarByObject(o1)
	cv2, hasCV2 := h2.CVarByObject(o2)
	switch {
	case hasCV1 || hasCV2:
		if !hasCV1 || !hasCV2 || cv1 != cv2 {
			ctx.failed = true
			return ObjInvalid
		}
		oout, _ = out.RegionByVar(cv1, true)
	case o1 == ObjReturn && o2 == ObjReturn:
		out.EnsureReturnSlot(h1.ObjEstimatedType(o1))
		oout = ObjReturn
	default:
		oout, _ = out.HeapAlloc(h1.ObjSize(o1))
	}
	if !h1.IsValid(o1) {
		out.ObjInvalidate(oout)
	}
	ctx.omemo[key] = oout

	if t := h1.ObjEstimatedType(o1); t != nil {
		out.ObjSetEstimatedType(oout, t)
	}
	out.ObjSetProtoLevel(oout, h1.ObjProtoLevel(o1))

	k1, k2 := h1.ObjKindOf(o1), h2.ObjKindOf(o2)
	switch {
	case k1 == KindRegion && k2 == KindRegion:
		// Two concrete regions of identical shape fold into a single
		// output object simply by being paired here; their field
		// contents are reconciled field-by-field below.
		ctx.wl = append(ctx.wl, objPairWork{o1: o1, o2: o2, out: oout})

	case k1.IsSegment() && k1 == k2 && h1.SegBindingOf(o1) == h2.SegBindingOf(o2):
		m1, m2 := h1.SegMinLength(o1), h2.SegMinLength(o2)
		m := m1
		if m2 < m {
			m = m2
		}
		out.ObjSetAbstract(oout, k1, h1.SegBindingOf(o1))
		out.SegSetMinLength(oout, m)
		if m1 != m {
			ctx.leftGen = true
		}
		if m2 != m {
			ctx.rightGen = true
		}
		ctx.wl = append(ctx.wl, objPairWork{o1: o1, o2: o2, out: oout})

	case k1 == KindRegion && k2.IsSegment():
		if !ctx.foldChainIntoSegment(o1, 1, o2, 2, oout) {
			ctx.failed = true
		}

	case k2 == KindRegion && k1.IsSegment():
		if !ctx.foldChainIntoSegment(o2, 2, o1, 1, oout) {
			ctx.failed = true
		}

	default:
		// Shape mismatch (segments with incompatible bindings, or a
		// region that doesn't resolve into a chain the other side's
		// segment can absorb): join simply fails here, and the caller
		// keeps both heaps (spec.md §4.7 "Join-infeasible").
		ctx.failed = true
	}

	return oout
}

// walkChainToNull follows the pointer field at nextOff from start,
// requiring each hop to land at offset 0 of a fresh object, until it
// reaches VAL_NULL. It returns the ordered list of concrete nodes
// visited (the terminating null itself is not included), or ok=false if
// the field is ever missing, not a clean offset-0 pointer, or the chain
// revisits an object (a cycle, which a finite concrete chain cannot be).
func walkChainToNull(h *Heap, start ObjectID, nextOff int64) ([]ObjectID, bool) {
	visited := make(map[ObjectID]bool)
	var nodes []ObjectID
	cur := start
	for {
		if visited[cur] {
			return nil, false
		}
		visited[cur] = true
		nodes = append(nodes, cur)

		v, ok := h.FieldValue(cur, nextOff)
		if !ok {
			return nil, false
		}
		switch h.ValTarget(v) {
		case TargetNull:
			return nodes, true
		case TargetAddr:
			off := h.ValOffset(v)
			if !off.IsPoint() || off.Min != 0 {
				return nil, false
			}
			cur = h.ObjByAddr(v)
		default:
			return nil, false
		}
	}
}

// detectBackLink looks for a second pointer field, distinct from
// nextOff, that satisfies the DLS back-link invariant of spec.md §3
// ("for every pair of adjacent nodes a,b on the segment, b.prev == &a +
// headOff") across every adjacent pair in nodes. It reports the offset
// of that field, so a chain discovered to be doubly-linked can be
// abstracted as a DLS instead of an SLS.
func detectBackLink(h *Heap, nodes []ObjectID, nextOff int64) (int64, bool) {
	if len(nodes) < 2 {
		return 0, false
	}
	for _, f := range h.GatherLivePointers(nodes[1]) {
		if f.Off == nextOff {
			continue
		}
		ok := true
		for i := 1; i < len(nodes) && ok; i++ {
			v, has := h.FieldValue(nodes[i], f.Off)
			if !has || h.ValTarget(v) != TargetAddr {
				ok = false
				break
			}
			off := h.ValOffset(v)
			if !off.IsPoint() || off.Min != 0 || h.ObjByAddr(v) != nodes[i-1] {
				ok = false
			}
		}
		if ok {
			return f.Off, true
		}
	}
	return 0, false
}

// foldChainAgainstEmpty widens a concrete, null-terminated chain rooted
// at the object v addresses (on side) into a fresh SLS or DLS of
// min_length 0, materialized in ctx.out, when the opposite side of the
// join was VAL_NULL outright (spec.md §4.3: "when a chain terminates in
// VAL_NULL on one side and in an unknown value on the other, the result
// is a may-exist segment" -- here the other side's pointer is null
// itself rather than merely unknown, which is the strongest form of
// "allows empty unfolding", hence min_length 0 unconditionally). Fields
// other than the link offsets are carried over from the chain's head
// node as a representative value: this module has no earlier join pass
// to prove every node in the chain shares identical non-link content,
// so that uniformity is assumed rather than verified.
func (ctx *joinCtx) foldChainAgainstEmpty(side int, v ValueID) (ValueID, bool) {
	if !ctx.allowThreeWay {
		return ValNull, false
	}
	h, _ := ctx.sideMaps(side)
	off := h.ValOffset(v)
	if !off.IsPoint() || off.Min != 0 {
		return ValNull, false
	}
	obj := h.ObjByAddr(v)
	if h.ObjKindOf(obj) != KindRegion {
		return ValNull, false
	}

	var chosenOff int64
	var nodes []ObjectID
	found := false
	for _, f := range h.GatherLivePointers(obj) {
		if ns, ok := walkChainToNull(h, obj, f.Off); ok {
			chosenOff, nodes, found = f.Off, ns, true
			break
		}
	}
	if !found {
		return ValNull, false
	}

	kind := KindSLS
	binding := SegBinding{NextOff: chosenOff}
	if prevOff, ok := detectBackLink(h, nodes, chosenOff); ok {
		kind = KindDLS
		binding.PrevOff = prevOff
	}

	oout, _ := ctx.out.HeapAlloc(h.ObjSize(obj))
	ctx.out.ObjSetAbstract(oout, kind, binding)
	ctx.out.SegSetMinLength(oout, 0)
	for _, f := range h.GatherLiveFields(obj) {
		if f.Off == binding.NextOff || f.Off == binding.PrevOff {
			continue
		}
		fv := ctx.pullSingle(side, f.Val)
		ctx.out.SetField(oout, f.Off, f.Typ, fv)
	}
	ctx.out.SetField(oout, binding.NextOff, nil, ctx.out.ValUnknown(OriginUnknownResult))

	ctx.leftGen, ctx.rightGen = true, true
	return ctx.out.AddrOfRegion(oout), true
}

// foldChainIntoSegment widens a concrete chain rooted at regionObj (on
// regionSide) against an already-abstracted segment segObj (on
// segSide) into a single output segment at oout, per spec.md §4.3's "a
// concrete chain of length k followed by a segment" rule: the combined
// min_length is k+segment's min_length when the segment is known
// non-empty, or min(k, segment's min_length) when it already allows
// empty unfolding (the common case of a loop converging towards
// min_length 0).
func (ctx *joinCtx) foldChainIntoSegment(regionObj ObjectID, regionSide int, segObj ObjectID, segSide int, oout ObjectID) bool {
	if !ctx.allowThreeWay {
		return false
	}
	regionHeap, _ := ctx.sideMaps(regionSide)
	segHeap, _ := ctx.sideMaps(segSide)
	binding := segHeap.SegBindingOf(segObj)
	segMin := segHeap.SegMinLength(segObj)
	segKind := segHeap.ObjKindOf(segObj)

	nodes, ok := walkChainToNull(regionHeap, regionObj, binding.NextOff)
	if !ok {
		return false
	}
	k := int64(len(nodes))

	newMin := k + segMin
	if segMin == 0 {
		newMin = 0
	}

	ctx.out.ObjSetAbstract(oout, segKind, binding)
	ctx.out.SegSetMinLength(oout, newMin)
	for _, f := range regionHeap.GatherLiveFields(regionObj) {
		if f.Off == binding.NextOff || f.Off == binding.PrevOff {
			continue
		}
		fv := ctx.pullSingle(regionSide, f.Val)
		ctx.out.SetField(oout, f.Off, f.Typ, fv)
	}
	ctx.out.SetField(oout, binding.NextOff, nil, ctx.out.ValUnknown(OriginUnknownResult))

	if newMin != segMin {
		if segSide == 1 {
			ctx.leftGen = true
		} else {
			ctx.rightGen = true
		}
	}
	if regionSide == 1 {
		ctx.leftGen = true
	} else {
		ctx.rightGen = true
	}
	return true
}

func (ctx *joinCtx) drain() {
	for len(ctx.wl) > 0 {
		item := ctx.wl[0]
		ctx.wl = ctx.wl[1:]
		if ctx.failed {
			continue
		}
		ctx.joinFields(item)
		if ctx.failed {
			continue
		}
		ctx.joinUniform(item)
	}
}

func (ctx *joinCtx) joinFields(item objPairWork) {
	f1 := ctx.h1.GatherLiveFields(item.o1)
	f2 := ctx.h2.GatherLiveFields(item.o2)
	offsets := make(map[int64]*ir.Type)
	for _, f := range f1 {
		offsets[f.Off] = f.Typ
	}
	for _, f := range f2 {
		if _, ok := offsets[f.Off]; !ok || offsets[f.Off] == nil {
			offsets[f.Off] = f.Typ
		}
	}
	sortedOffs := sortedInt64Keys(offsets)
	for _, off := range sortedOffs {
		v1, ok1 := ctx.h1.FieldValue(item.o1, off)
		v2, ok2 := ctx.h2.FieldValue(item.o2, off)
		var v ValueID
		switch {
		case ok1 && ok2:
			v = ctx.joinValue(v1, v2)
		case ok1 && !ok2:
			ctx.rightGen = true
			v = ctx.pullSingle(1, v1)
		case !ok1 && ok2:
			ctx.leftGen = true
			v = ctx.pullSingle(2, v2)
		default:
			continue
		}
		if ctx.failed {
			return
		}
		ctx.out.SetField(item.out, off, offsets[off], v)
	}
}

func (ctx *joinCtx) joinUniform(item objPairWork) {
	var u1, u2 []UniformBlock
	ctx.h1.TraverseUniformBlocks(item.o1, func(u UniformBlock) bool { u1 = append(u1, u); return true })
	ctx.h2.TraverseUniformBlocks(item.o2, func(u UniformBlock) bool { u2 = append(u2, u); return true })
	if len(u1) != len(u2) {
		ctx.failed = true
		return
	}
	for i := range u1 {
		if u1[i].Off != u2[i].Off || u1[i].Len != u2[i].Len {
			ctx.failed = true
			return
		}
		v := ctx.joinValue(u1[i].Value, u2[i].Value)
		if ctx.failed {
			return
		}
		ctx.out.WriteUniformBlock(item.out, UniformBlock{Off: u1[i].Off, Len: u1[i].Len, Value: v})
	}
}

// pullSingle materializes a value that exists on only one side of the
// join (one heap wrote a field the other never reached) into out,
// without requiring a counterpart on the other side.
func (ctx *joinCtx) pullSingle(side int, v ValueID) ValueID {
	h, vmap := ctx.sideMaps(side)
	if out, ok := vmap[v]; ok {
		return out
	}
	switch h.ValTarget(v) {
	case TargetNull:
		vmap[v] = ValNull
		return ValNull
	case TargetCustom:
		out := ctx.out.ValWrapCustom(h.ValUnwrapCustom(v))
		vmap[v] = out
		return out
	case TargetUnknown:
		out := ctx.out.ValUnknown(h.ValOrigin(v))
		vmap[v] = out
		return out
	case TargetAddr, TargetRange:
		root := h.ValRoot(v)
		rootObj := h.ObjByAddr(root)
		outObj := ctx.pullSingleObj(side, rootObj)
		off := h.ValOffset(v)
		var out ValueID
		if h.ValTarget(v) == TargetRange {
			out = ctx.out.ValByRange(ctx.out.AddrOfRegion(outObj), off)
		} else {
			out = ctx.out.ValByOffset(ctx.out.AddrOfRegion(outObj), off.Min)
		}
		vmap[v] = out
		return out
	default:
		return ValNull
	}
}

func (ctx *joinCtx) pullSingleObj(side int, o ObjectID) ObjectID {
	h, _ := ctx.sideMaps(side)
	omap := ctx.sideObjMap(side)
	if out, ok := omap[o]; ok {
		return out
	}
	var oout ObjectID
	if cv, ok := h.CVarByObject(o); ok {
		oout, _ = ctx.out.RegionByVar(cv, true)
	} else if o == ObjReturn {
		ctx.out.EnsureReturnSlot(h.ObjEstimatedType(o))
		oout = ObjReturn
	} else {
		oout, _ = ctx.out.HeapAlloc(h.ObjSize(o))
	}
	if !h.IsValid(o) {
		ctx.out.ObjInvalidate(oout)
	}
	omap[o] = oout
	if t := h.ObjEstimatedType(o); t != nil {
		ctx.out.ObjSetEstimatedType(oout, t)
	}
	ctx.out.ObjSetProtoLevel(oout, h.ObjProtoLevel(o))
	if k := h.ObjKindOf(o); k.IsAbstract() {
		ctx.out.ObjSetAbstract(oout, k, h.SegBindingOf(o))
		ctx.out.SegSetMinLength(oout, h.SegMinLength(o))
	}

	for _, f := range h.GatherLiveFields(o) {
		fv := ctx.pullSingle(side, f.Val)
		ctx.out.SetField(oout, f.Off, f.Typ, fv)
	}
	h.TraverseUniformBlocks(o, func(u UniformBlock) bool {
		fv := ctx.pullSingle(side, u.Value)
		ctx.out.WriteUniformBlock(oout, UniformBlock{Off: u.Off, Len: u.Len, Value: fv})
		return true
	})
	return oout
}

func (ctx *joinCtx) sideMaps(side int) (*Heap, map[ValueID]ValueID) {
	if side == 1 {
		return ctx.h1, ctx.vmap1
	}
	return ctx.h2, ctx.vmap2
}

// sideObjMap returns the map pullSingleObj uses for one-sided object
// translation (oobj1 or oobj2, created on first use), kept apart from
// the pair-keyed omemo.
func (ctx *joinCtx) sideObjMap(side int) map[ObjectID]ObjectID {
	if side == 1 {
		if ctx.oobj1 == nil {
			ctx.oobj1 = make(map[ObjectID]ObjectID)
		}
		return ctx.oobj1
	}
	if ctx.oobj2 == nil {
		ctx.oobj2 = make(map[ObjectID]ObjectID)
	}
	return ctx.oobj2
}

func sortedInt64Keys(m map[int64]*ir.Type) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
