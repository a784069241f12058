package symheap

import "fmt"

// SegBinding names the byte offsets at which a list segment's link
// fields live (spec.md §3 "binding offsets"; GLOSSARY "Binding offset").
type SegBinding struct {
	// NextOff is the offset of the `next` pointer within a node.
	NextOff int64
	// PrevOff is the offset of the `prev` pointer; meaningful for DLS
	// only.
	PrevOff int64
	// HeadOff is the offset, within the successor node, that `next`
	// (and `prev`, for DLS) actually points at -- GLOSSARY: "the
	// pointed-to offset within the successor node".
	HeadOff int64
}

func (b SegBinding) String() string {
	return fmt.Sprintf("next@%d/head@%d", b.NextOff, b.HeadOff)
}

// CustomValue is an interned opaque constant: a function pointer, string
// literal, or integer constant that the heap treats as an atomic token.
// Two CustomValues that compare equal intern to the same ValueID within
// one heap (spec.md §4.1 valWrapCustom: "deterministic per heap").
type CustomValue struct {
	Kind string // "fnc", "string", "int", ...
	Int  int64
	Str  string
}
