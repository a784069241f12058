package symheap

// ObjKind classifies an Object (spec.md §3 "Object").
type ObjKind uint8

const (
	// KindRegion is a concrete, unabstracted allocation.
	KindRegion ObjKind = iota
	// KindSLS is a singly-linked list segment.
	KindSLS
	// KindDLS is a doubly-linked list segment.
	KindDLS
	// KindMayExist is a possibly-empty abstract object introduced to
	// unify two heaps that can only be joined by admitting one side
	// might not exist (spec.md §4.3, OK_MAY_EXIST).
	KindMayExist
	// KindPartOf marks an object that is a sub-part of an outer,
	// nested structure (prototype nesting, spec.md GLOSSARY).
	KindPartOf
	// KindHeadOf marks the head node distinguished from the rest of a
	// segment during abstraction.
	KindHeadOf
)

func (k ObjKind) String() string {
	switch k {
	case KindRegion:
		return "region"
	case KindSLS:
		return "SLS"
	case KindDLS:
		return "DLS"
	case KindMayExist:
		return "may-exist"
	case KindPartOf:
		return "part-of"
	case KindHeadOf:
		return "head-of"
	default:
		return "?"
	}
}

// IsAbstract reports whether the kind represents a family of concrete
// shapes rather than a single one.
func (k ObjKind) IsAbstract() bool {
	return k != KindRegion
}

// IsSegment reports whether the kind carries segment binding/min-length
// metadata (SLS or DLS).
func (k ObjKind) IsSegment() bool {
	return k == KindSLS || k == KindDLS
}

// TargetKind is the classification of what a Value points at or
// represents (spec.md §3 "Value").
type TargetKind uint8

const (
	// TargetInvalid marks a value that should never be observed; the
	// zero value, to make an unset Value visible as a bug.
	TargetInvalid TargetKind = iota
	// TargetNull is VAL_NULL itself.
	TargetNull
	// TargetAddr is the address of a byte range within a concrete or
	// abstract object, at a single (non-ranged) offset.
	TargetAddr
	// TargetRange is an address with a range of possible offsets
	// (e.g. the result of pointer arithmetic with an unknown index).
	TargetRange
	// TargetCustom is an opaque constant: function pointer, string
	// literal, integer constant, etc.
	TargetCustom
	// TargetUnknown is a value about which nothing but an origin is
	// known.
	TargetUnknown
)

func (t TargetKind) String() string {
	switch t {
	case TargetNull:
		return "null"
	case TargetAddr:
		return "addr"
	case TargetRange:
		return "range-addr"
	case TargetCustom:
		return "custom"
	case TargetUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Origin tags the provenance of an TargetUnknown value (spec.md §3
// "Value").
type Origin uint8

const (
	OriginNone Origin = iota
	// OriginUninitialized is stack/heap memory that was never written.
	OriginUninitialized
	// OriginHeap is freshly allocated, unspecified heap content.
	OriginHeap
	// OriginDeleted marks a use-after-free witness: the value used to
	// be a real address but its object was invalidated.
	OriginDeleted
	// OriginUnknownResult is the result of an operation the engine
	// can't model precisely (an external call, a cast it doesn't
	// track).
	OriginUnknownResult
)

func (o Origin) String() string {
	switch o {
	case OriginUninitialized:
		return "uninitialized"
	case OriginHeap:
		return "heap"
	case OriginDeleted:
		return "deleted"
	case OriginUnknownResult:
		return "unknown-result"
	default:
		return "none"
	}
}

// PredKind is the relation a Predicate asserts between two values
// (spec.md §3 "Predicate").
type PredKind uint8

const (
	PredEqual PredKind = iota
	PredNotEqual
	PredLessThanByOffset
	PredNeqOffsetByK
)

func (k PredKind) String() string {
	switch k {
	case PredEqual:
		return "=="
	case PredNotEqual:
		return "!="
	case PredLessThanByOffset:
		return "<(off)"
	case PredNeqOffsetByK:
		return "!=(off+k)"
	default:
		return "?"
	}
}
