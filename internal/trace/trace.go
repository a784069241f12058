// Package trace implements the provenance DAG described in spec.md §3
// "Trace": every heap-producing operation (clone, join, prune, transfer)
// creates a Node referencing its parents, so that a reported error can be
// attributed back to the source locations of the operations that built
// the heap it was found in.
package trace

import "fmt"

// IDMapper relates value ids in one input heap to value ids in an output
// heap, produced by a join or a prune (spec.md §4.3 "Trace produced by a
// successful join carries two id-mappers").
type IDMapper struct {
	// ltr maps a source-heap value id to the value id it became in the
	// heap the Node describes.
	ltr map[int]int
}

// NewIDMapper returns an empty mapper.
func NewIDMapper() *IDMapper {
	return &IDMapper{ltr: make(map[int]int)}
}

// Identity returns a mapper that maps every id to itself lazily: Lookup
// falls back to returning its argument unchanged when no explicit entry
// exists. Used where a join leaves one side completely untouched.
func Identity() *IDMapper {
	return NewIDMapper()
}

// Set records that src became dst.
func (m *IDMapper) Set(src, dst int) {
	m.ltr[src] = dst
}

// Lookup returns the mapped id, or the input unchanged if no mapping was
// recorded (the identity-by-default behavior Predator's TIdMapper gives
// via NFA_RETURN_IDENTITY).
func (m *IDMapper) Lookup(src int) int {
	if dst, ok := m.ltr[src]; ok {
		return dst
	}
	return src
}

// Flip returns a new mapper with source and destination swapped. Used by
// Rebase to reinterpret a join's id-mapper once the side of the join to
// keep is decided (mirrors Trace::TIdMapper::flip() in symstate.cc).
func (m *IDMapper) Flip() *IDMapper {
	out := NewIDMapper()
	for k, v := range m.ltr {
		out.ltr[v] = k
	}
	return out
}

// Compose returns a mapper equivalent to first applying m, then other:
// Compose(other).Lookup(x) == other.Lookup(m.Lookup(x)).
func (m *IDMapper) Compose(other *IDMapper) *IDMapper {
	out := NewIDMapper()
	for k := range m.ltr {
		out.ltr[k] = other.Lookup(m.Lookup(k))
	}
	for k, v := range other.ltr {
		if _, ok := out.ltr[k]; !ok {
			out.ltr[k] = v
		}
	}
	return out
}

// Kind names the operation a Node records.
type Kind uint8

const (
	KindRoot Kind = iota
	KindClone
	KindPrune
	KindJoin
	KindTransfer
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindClone:
		return "clone"
	case KindPrune:
		return "prune"
	case KindJoin:
		return "join"
	case KindTransfer:
		return "transfer"
	case KindTransient:
		return "transient"
	default:
		return "?"
	}
}

// Node is one provenance record: "this heap came from these parents via
// this operation". Parents are strong references (the DAG owns them);
// Node never points back at the SymHeap it describes, only forward at
// its causes, per spec.md §9 "heap -> trace is a strong reference and
// trace -> heap a weak back-reference only used for debug plotting".
type Node struct {
	id       uint64
	kind     Kind
	label    string
	parents  []*Node
	idMaps   []*IDMapper // one per parent, same order as parents
	waived   bool        // see Waive
	replaced *Node       // set by Replace when allowCyclicTraceGraph is on
}

var nextID uint64 = 1

// NewRoot creates a parentless node for one analyzed function entry.
func NewRoot(label string) *Node {
	n := &Node{id: nextID, kind: KindRoot, label: label}
	nextID++
	return n
}

// NewClone creates a node for a heap clone, with a single parent and an
// identity id-mapper (clones don't renumber values).
func NewClone(parent *Node, label string) *Node {
	n := &Node{id: nextID, kind: KindClone, label: label, parents: []*Node{parent}, idMaps: []*IDMapper{Identity()}}
	nextID++
	return n
}

// NewPrune creates a node for a prune/cut operation.
func NewPrune(parent *Node, label string, m *IDMapper) *Node {
	n := &Node{id: nextID, kind: KindPrune, label: label, parents: []*Node{parent}, idMaps: []*IDMapper{m}}
	nextID++
	return n
}

// NewJoin creates a node for a successful join of two heaps, carrying the
// two id-mappers from each input to the output (spec.md §4.3).
func NewJoin(left, right *Node, label string, lm, rm *IDMapper) *Node {
	n := &Node{id: nextID, kind: KindJoin, label: label, parents: []*Node{left, right}, idMaps: []*IDMapper{lm, rm}}
	nextID++
	return n
}

// NewTransfer creates a node for a single instruction's transfer
// function.
func NewTransfer(parent *Node, label string) *Node {
	n := &Node{id: nextID, kind: KindTransfer, label: label, parents: []*Node{parent}, idMaps: []*IDMapper{Identity()}}
	nextID++
	return n
}

// NewTransient creates a short-lived node for scratch computations
// (e.g. SymState::packState's probe joins in the original) that are
// expected to be discarded or spliced via Waive before they're ever
// observed by a caller.
func NewTransient(label string) *Node {
	n := &Node{id: nextID, kind: KindTransient, label: label}
	nextID++
	return n
}

// ID returns the node's stable identity, used only for plotting/debug
// output.
func (n *Node) ID() uint64 { return n.id }

// Kind returns the operation this node records.
func (n *Node) Kind() Kind { return n.kind }

// Label returns the human-readable description attached at creation.
func (n *Node) Label() string { return n.label }

// Parents returns the node's parent nodes, in input order.
func (n *Node) Parents() []*Node {
	if n.replaced != nil {
		return n.replaced.Parents()
	}
	return n.parents
}

// IDMapperFor returns the id-mapper describing how parent i's value ids
// map into this node's heap.
func (n *Node) IDMapperFor(i int) *IDMapper {
	if n.replaced != nil {
		return n.replaced.IDMapperFor(i)
	}
	if i >= len(n.idMaps) {
		return Identity()
	}
	return n.idMaps[i]
}

// Waive marks a clone node so that, when its clone later replaces its
// source heap in a STATE, the clone node is spliced out in favor of its
// single parent: the clone operation itself carries no information worth
// keeping in the provenance graph (spec.md §3 "A trace 'waive' operation
// marks a clone so that its identity node is spliced out").
func (n *Node) Waive() *Node {
	if n.kind != KindClone || len(n.parents) != 1 {
		return n
	}
	n.waived = true
	return n.parents[0]
}

// Replace performs an in-place substitution of this node's content by
// other's, used when config.AllowCyclicTraceGraph permits the trace DAG
// to become a true graph with cycles through heap -> trace -> heap links
// (spec.md §4.4 updateTraceOf). Every existing pointer to n continues to
// observe other's parents/id-mappers afterward.
func (n *Node) Replace(other *Node) {
	n.replaced = other
}

// Resolve follows any Replace redirection to the node that should
// actually be treated as this one's identity.
func (n *Node) Resolve() *Node {
	if n.replaced != nil {
		return n.replaced.Resolve()
	}
	return n
}

func (n *Node) String() string {
	return fmt.Sprintf("trace#%d[%s %s]", n.id, n.kind, n.label)
}

// Rebase returns a node describing the same operation as n (same kind,
// parents, label) but treating parent `keep`'s value ids as identical to
// the described heap's own ids: idMaps[keep] becomes identity, and the
// other parent's mapper is recomposed to translate directly into
// parent-`keep`'s id space. state.State.updateTraceOf uses this once a
// join's status has established that the surviving heap's content is
// literally one of its two inputs unchanged (spec.md §4.4 "updateTraceOf
// ... composing id-mappers according to status").
func Rebase(n *Node, keep int) *Node {
	if len(n.idMaps) != 2 || keep < 0 || keep > 1 {
		return n
	}
	other := 1 - keep
	flipped := n.idMaps[keep].Flip()
	maps := make([]*IDMapper, 2)
	maps[keep] = Identity()
	maps[other] = n.idMaps[other].Compose(flipped)

	out := &Node{
		id:      nextID,
		kind:    n.kind,
		label:   n.label,
		parents: append([]*Node(nil), n.parents...),
		idMaps:  maps,
	}
	nextID++
	return out
}

// Walk visits every node reachable from roots via Parents, each node at
// most once, following Replace redirections, and visits a node's parents
// before the node itself. Nothing in this module calls it; spec.md §5's
// teardown of the trace graph needs no code in Go, where there is no
// manual free.
func Walk(roots []*Node, visit func(*Node)) {
	seen := make(map[*Node]bool)
	var rec func(*Node)
	rec = func(n *Node) {
		n = n.Resolve()
		if seen[n] {
			return
		}
		seen[n] = true
		for _, p := range n.Parents() {
			rec(p)
		}
		visit(n)
	}
	for _, r := range roots {
		rec(r)
	}
}
