// Package report implements the error-reporting surface of spec.md §7: a
// small set of error kinds the engine can detect, and a Reporter that
// callers (the CLI, or an embedding test) supply to receive them.
package report

import (
	"fmt"

	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/trace"
)

// Kind is one of the engine-external error kinds a transfer function can
// raise against a heap (spec.md §7 "Error kinds").
type Kind uint8

const (
	// InvalidDereference: field read/write through VAL_NULL, a
	// deleted-origin unknown value, or an invalidated object.
	InvalidDereference Kind = iota
	// InvalidFree: free() on a non-heap address, or a non-zero offset
	// within its object.
	InvalidFree
	// MemoryLeak: at function exit, an unreachable heap-allocated object
	// remains valid.
	MemoryLeak
	// UseAfterFree: read/write through an address into an invalidated
	// object.
	UseAfterFree
	// DoubleFree: free() on an object already invalidated.
	DoubleFree
	// UninitializedRead: read of a value whose origin is uninitialized.
	UninitializedRead
)

func (k Kind) String() string {
	switch k {
	case InvalidDereference:
		return "invalid dereference"
	case InvalidFree:
		return "invalid free"
	case MemoryLeak:
		return "memory leak"
	case UseAfterFree:
		return "use after free"
	case DoubleFree:
		return "double free"
	case UninitializedRead:
		return "uninitialized read"
	default:
		return "unknown error"
	}
}

// Entry is one recorded violation: what kind, where in the source, and
// the trace node of the heap it was found in (so a caller can walk back
// through the provenance DAG to explain how that heap came to be).
type Entry struct {
	Kind  Kind
	Loc   ir.Location
	Trace *trace.Node
}

func (e Entry) String() string {
	return fmt.Sprintf("%s: %s", e.Loc, e.Kind)
}

// Reporter receives error entries as the engine finds them. Analysis
// continues after every call: spec.md §7 "analysis continues on
// remaining heaps to maximize diagnostic coverage".
type Reporter interface {
	Report(e Entry)
}

// Collector is the Reporter every caller needs unless it wants to stream
// entries elsewhere: it simply accumulates them in order.
type Collector struct {
	entries []Entry
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector { return &Collector{} }

// Report appends e.
func (c *Collector) Report(e Entry) { c.entries = append(c.entries, e) }

// Entries returns every collected entry, in report order.
func (c *Collector) Entries() []Entry { return append([]Entry(nil), c.entries...) }

// CountByKind returns how many collected entries have the given kind,
// used by tests checking the end-to-end scenarios of spec.md §8.
func (c *Collector) CountByKind(k Kind) int {
	n := 0
	for _, e := range c.entries {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Fault is an internally detected invariant violation that aborts the
// current analysis run (spec.md §4.7 "engine fault"): the current run
// stops, but the report accumulated so far remains usable.
type Fault struct {
	Loc ir.Location
	Msg string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: engine fault: %s", f.Loc, f.Msg)
}
