// Package plot implements the "Heap plot" diagnostic of spec.md §6:
// writing a textual graph description of a symbolic heap to a stream
// named after the heap's id. It is side-effecting and purely
// diagnostic -- no format compatibility is claimed, matching the
// original C++ symplot.cc's role alongside symstate.cc's plotHeap
// calls in original_source/sl.
package plot

import (
	"fmt"
	"io"

	"github.com/emicklei/dot"

	"github.com/staticafi/predator/internal/symheap"
)

// Write renders h as a directed graph and writes it in Graphviz dot
// format to w. The graph is named after DebugID so that successive
// plots of the same heap lineage are easy to tell apart in a batch of
// output files (spec.md §6 "a stream named after the heap id").
func Write(w io.Writer, h *symheap.Heap) error {
	g := dot.NewGraph(dot.Directed)
	g.Attr("label", fmt.Sprintf("heap #%d", h.DebugID()))
	g.Attr("labelloc", "t")

	nodes := make(map[symheap.ObjectID]dot.Node, h.ObjectCount())
	for _, o := range h.Objects() {
		nodes[o] = objectNode(g, h, o)
	}
	for cv, o := range liveVarObjects(h) {
		varNode := g.Node(fmt.Sprintf("var-%d-%d", cv.UID, cv.Inst)).
			Attr("shape", "plaintext").
			Attr("label", fmt.Sprintf("#%d.%d", cv.UID, cv.Inst))
		if n, ok := nodes[o]; ok {
			g.Edge(varNode, n)
		}
	}

	for _, o := range h.Objects() {
		if !h.IsValid(o) {
			continue
		}
		plotPointers(g, h, o, nodes)
	}
	for _, p := range h.Predicates() {
		plotPredicate(g, p)
	}

	_, err := io.WriteString(w, g.String())
	return err
}

func objectNode(g *dot.Graph, h *symheap.Heap, o symheap.ObjectID) dot.Node {
	label := fmt.Sprintf("obj %d\n%s", o, h.ObjKindOf(o))
	if h.ObjKindOf(o).IsSegment() {
		label += fmt.Sprintf(" min=%d", h.SegMinLength(o))
	}
	n := g.Node(fmt.Sprintf("obj%d", o)).
		Attr("shape", "box").
		Attr("label", label)
	if !h.IsValid(o) {
		n.Attr("style", "dashed")
	}
	return n
}

func liveVarObjects(h *symheap.Heap) map[symheapCVar]symheap.ObjectID {
	out := make(map[symheapCVar]symheap.ObjectID)
	for _, cv := range h.LiveVars() {
		o, ok := h.RegionByVar(cv, false)
		if ok {
			out[symheapCVar{cv.UID, cv.Inst}] = o
		}
	}
	return out
}

// symheapCVar avoids importing the ir package solely for a map key type.
type symheapCVar struct{ UID, Inst int }

func plotPointers(g *dot.Graph, h *symheap.Heap, o symheap.ObjectID, nodes map[symheap.ObjectID]dot.Node) {
	from, ok := nodes[o]
	if !ok {
		return
	}
	for _, f := range h.GatherLivePointers(o) {
		target := h.ObjByAddr(f.Val)
		to, ok := nodes[target]
		if !ok {
			continue
		}
		g.Edge(from, to).Attr("label", fmt.Sprintf("+%d", f.Off))
	}
}

func plotPredicate(g *dot.Graph, p symheap.Predicate) {
	a := g.Node(fmt.Sprintf("val%d", p.A)).Attr("shape", "point")
	b := g.Node(fmt.Sprintf("val%d", p.B)).Attr("shape", "point")
	g.Edge(a, b).Attr("style", "dotted").Attr("label", p.Kind.String())
}
