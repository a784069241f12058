package symheap

import (
	"sort"

	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/trace"
)

// object is the internal representation of an Object (spec.md §3).
type object struct {
	id    ObjectID
	kind  ObjKind
	size  ir.Range
	valid bool
	class ir.StorageClass

	estType    *ir.Type
	protoLevel int

	cvar    ir.CVar
	hasCVar bool

	binding   SegBinding
	minLength int64

	fields  map[int64]*fieldEntry
	uniform []UniformBlock
}

// fieldEntry is one concretely-written Field (spec.md §3 "Field"): the
// value stored at (object, offset, type).
type fieldEntry struct {
	off int64
	typ *ir.Type
	val ValueID
}

// UniformBlock is a compact representation of a contiguous byte range of
// an object that holds one default value (spec.md §3 "Uniform block").
type UniformBlock struct {
	Off   int64
	Len   int64
	Value ValueID
}

func (u UniformBlock) covers(off int64) bool {
	return off >= u.Off && off < u.Off+u.Len
}

// value is the internal representation of a Value (spec.md §3 "Value").
type value struct {
	id     ValueID
	target TargetKind

	// valid for TargetAddr/TargetRange
	obj    ObjectID
	offset ir.Range

	// valid for TargetCustom
	custom CustomValue

	// valid for TargetUnknown
	origin Origin
}

// Predicate is a constraint between two values that isn't representable
// as a graph edge (spec.md §3 "Predicate").
type Predicate struct {
	Kind PredKind
	A, B ValueID
	K    int64
}

// Heap is a symbolic heap: the abstract state of memory at one program
// point (spec.md §3). The zero value is not usable; construct with New.
type Heap struct {
	dbgID uint64

	generation int

	objects map[ObjectID]*object
	values  map[ValueID]*value
	preds   []Predicate

	varIndex map[ir.CVar]ObjectID
	addrIdx  map[ObjectID]ValueID

	nextObj ObjectID
	nextVal ValueID

	customIndex map[CustomValue]ValueID

	tr *trace.Node
}

var nextHeapDbgID uint64 = 1

// New returns a fresh, empty heap: no objects but for the two reserved
// ones (OBJ_INVALID, OBJ_RETURN are materialized lazily), and the two
// reserved values (VAL_NULL, VAL_ADDR_OF_RET).
func New(tr *trace.Node) *Heap {
	h := &Heap{
		dbgID:       nextHeapDbgID,
		objects:     make(map[ObjectID]*object),
		values:      make(map[ValueID]*value),
		varIndex:    make(map[ir.CVar]ObjectID),
		addrIdx:     make(map[ObjectID]ValueID),
		nextObj:     objFirstDynamic,
		nextVal:     valFirstDynamic,
		customIndex: make(map[CustomValue]ValueID),
		tr:          tr,
	}
	nextHeapDbgID++
	h.values[ValNull] = &value{id: ValNull, target: TargetNull}
	h.values[ValAddrOfRet] = &value{id: ValAddrOfRet, target: TargetAddr, obj: ObjReturn}
	h.addrIdx[ObjReturn] = ValAddrOfRet
	return h
}

// DebugID is a process-unique id assigned at creation time, used only to
// name plot output files (spec.md §6 "Heap plot ... writes a textual
// graph description to a stream named after the heap id"); it plays no
// role in equality or join.
func (h *Heap) DebugID() uint64 { return h.dbgID }

// Generation is the number of blocks the engine has run on the way from
// its function's entry heap to this heap, consulted by config.LimitDepth
// (spec.md §6.5, §4.7 "Out-of-budget"). Clone copies it; a heap built by
// JoinSymHeaps starts again at 0.
func (h *Heap) Generation() int { return h.generation }

// SetGeneration is called by the engine when it derives a successor
// heap, one generation past its parent.
func (h *Heap) SetGeneration(g int) { h.generation = g }

// TraceNode returns the provenance node describing how this heap came to
// be.
func (h *Heap) TraceNode() *trace.Node { return h.tr }

// SetTraceNode overwrites the heap's provenance node, used by
// state.State's insert, packState and updateTraceOf (spec.md §4.4).
func (h *Heap) SetTraceNode(tr *trace.Node) { h.tr = tr }

// Clone returns a deep, independent copy of the heap: mutating the clone
// never affects h and vice versa. The clone's trace node is a fresh
// KindClone node over h's; callers that don't want that extra node in the
// provenance graph should call node.Waive() on the result of
// h.Clone().TraceNode() before discarding h (spec.md §3 "Trace").
func (h *Heap) Clone() *Heap {
	n := &Heap{
		dbgID:       nextHeapDbgID,
		generation:  h.generation,
		objects:     make(map[ObjectID]*object, len(h.objects)),
		values:      make(map[ValueID]*value, len(h.values)),
		preds:       append([]Predicate(nil), h.preds...),
		varIndex:    make(map[ir.CVar]ObjectID, len(h.varIndex)),
		addrIdx:     make(map[ObjectID]ValueID, len(h.addrIdx)),
		nextObj:     h.nextObj,
		nextVal:     h.nextVal,
		customIndex: make(map[CustomValue]ValueID, len(h.customIndex)),
	}
	nextHeapDbgID++
	for id, o := range h.objects {
		n.objects[id] = o.clone()
	}
	for id, v := range h.values {
		cp := *v
		n.values[id] = &cp
	}
	for k, v := range h.varIndex {
		n.varIndex[k] = v
	}
	for k, v := range h.addrIdx {
		n.addrIdx[k] = v
	}
	for k, v := range h.customIndex {
		n.customIndex[k] = v
	}
	n.tr = trace.NewClone(h.tr, "clone")
	return n
}

func (o *object) clone() *object {
	n := &object{
		id: o.id, kind: o.kind, size: o.size, valid: o.valid, class: o.class,
		estType: o.estType, protoLevel: o.protoLevel,
		cvar: o.cvar, hasCVar: o.hasCVar,
		binding: o.binding, minLength: o.minLength,
	}
	if o.fields != nil {
		n.fields = make(map[int64]*fieldEntry, len(o.fields))
		for off, f := range o.fields {
			cp := *f
			n.fields[off] = &cp
		}
	}
	n.uniform = append([]UniformBlock(nil), o.uniform...)
	return n
}

// sortedObjectIDs returns every object id in a deterministic order, used
// wherever iteration order must be stable (equality/join walks, printing).
func (h *Heap) sortedObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(h.objects))
	for id := range h.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Heap) sortedValueIDs() []ValueID {
	ids := make([]ValueID, 0, len(h.values))
	for id := range h.values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ObjectCount returns the number of objects (including reserved ones
// that have been materialized) in the heap.
func (h *Heap) ObjectCount() int { return len(h.objects) }

// ValueCount returns the number of distinct values interned in the heap.
func (h *Heap) ValueCount() int { return len(h.values) }

// Objects returns every object id, in a stable order.
func (h *Heap) Objects() []ObjectID { return h.sortedObjectIDs() }

func (h *Heap) mustObj(o ObjectID) *object {
	ob, ok := h.objects[o]
	if !ok {
		panic("symheap: unknown object " + o.String())
	}
	return ob
}

func (h *Heap) mustVal(v ValueID) *value {
	val, ok := h.values[v]
	if !ok {
		panic("symheap: unknown value " + v.String())
	}
	return val
}
