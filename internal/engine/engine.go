// Package engine implements the fixed-point driver of spec.md §2
// "Dataflow": it wires the (externally supplied) transfer function
// together with state.Map, sched.Scheduler, and symheap.JoinSymHeaps
// into the whole-program analysis loop.
package engine

import (
	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/report"
	"github.com/staticafi/predator/internal/sched"
	"github.com/staticafi/predator/internal/state"
	"github.com/staticafi/predator/internal/symheap"
	"github.com/staticafi/predator/internal/trace"
)

// Transfer is the per-instruction callback the engine is built around
// (spec.md §6 "Transfer-function callback"): given an instruction and an
// incoming heap, it returns the heaps reachable after executing it (zero
// for an infeasible path, more than one for e.g. a branch condition the
// heap doesn't resolve precisely), reporting any memory-safety violation
// it detects directly to rep.
type Transfer func(insn ir.Instruction, heapIn *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error)

// Engine drives one function's analysis to a fixed point.
type Engine struct {
	cfg      config.Config
	transfer Transfer
	reporter report.Reporter
}

// New returns an engine governed by cfg, calling transfer for every
// instruction and reporter for every detected violation.
func New(cfg config.Config, transfer Transfer, reporter report.Reporter) *Engine {
	return &Engine{cfg: cfg, transfer: transfer, reporter: reporter}
}

// InitialHeap builds the heap an entry point starts from: every global
// variable materialized, plus one stack frame for fn's arguments (spec.md
// §6 "An initial heap with global variables materialized and a single
// entry stack frame").
func InitialHeap(stor *ir.Storage, fn *ir.Function) *symheap.Heap {
	h := symheap.New(trace.NewRoot("entry:" + fn.Name))
	for _, g := range stor.Globals {
		o, _ := h.RegionByVar(g.ID, true)
		if g.Type != nil {
			h.ObjSetEstimatedType(o, g.Type)
			h.WriteUniformBlock(o, symheap.UniformBlock{Off: 0, Len: g.Type.Size, Value: symheap.ValNull})
		}
	}
	for _, cv := range fn.ArgVars {
		h.RegionByVar(cv, true)
	}
	if fn.RetType != nil {
		h.EnsureReturnSlot(fn.RetType)
	}
	return h
}

// Run analyzes fn to a fixed point, starting from entryHeap, and returns
// the MAP of heaps reached at every block. An engine fault (spec.md
// §4.7) aborts the run and is returned as an error; the report
// accumulated via rep up to that point, and the partial map, remain
// usable.
func (e *Engine) Run(fn *ir.Function, entryHeap *symheap.Heap) (*state.Map, error) {
	m, s := e.Seed(fn, entryHeap)
	for {
		_, ok, err := e.Step(fn, m, s)
		if err != nil {
			return m, err
		}
		if !ok {
			return m, nil
		}
	}
}

// Seed builds the MAP/SCHED pair a run starts from and schedules fn's
// entry block with entryHeap, for callers (the repl subcommand) that
// want to drive Step themselves one block at a time.
func (e *Engine) Seed(fn *ir.Function, entryHeap *symheap.Heap) (*state.Map, *sched.Scheduler) {
	m := state.NewMap(e.cfg)
	s := sched.New(e.cfg.BlockSchedulerKind, blockPendingAdapter{m})
	entry := fn.Blocks[fn.Entry]
	m.Insert(entry, entryHeap, false)
	s.Schedule(entry)
	return m, s
}

// Step processes the single next scheduled block, if any. ok is false
// once the scheduler's queue is empty (the fixed point has been
// reached).
func (e *Engine) Step(fn *ir.Function, m *state.Map, s *sched.Scheduler) (bb *ir.BasicBlock, ok bool, err error) {
	bb, ok = s.GetNext()
	if !ok {
		return nil, false, nil
	}
	return bb, true, e.runBlock(fn, bb, m, s)
}

type blockPendingAdapter struct{ m *state.Map }

func (a blockPendingAdapter) CntPending(bb *ir.BasicBlock) int { return a.m.CntPending(bb) }

func (e *Engine) runBlock(fn *ir.Function, bb *ir.BasicBlock, m *state.Map, s *sched.Scheduler) error {
	st := m.At(bb)
	for {
		idx := st.NextPending()
		if idx < 0 {
			return nil
		}
		h := st.At(idx)
		st.MarkDone(idx)

		if e.cfg.LimitDepth > 0 && h.Generation() > e.cfg.LimitDepth {
			continue // spec.md §4.7 out-of-budget: degrade to incomplete analysis
		}

		outs, err := e.runInsns(bb, h)
		if err != nil {
			return err
		}
		for _, out := range outs {
			out.SetGeneration(h.Generation() + 1)
			e.checkLeaksOnReturn(bb, out)
		}
		e.dispatch(fn, bb, outs, m, s)
	}
}

// runInsns executes bb's instructions against h in order, threading the
// fan-out of possible heaps from one instruction to the next.
func (e *Engine) runInsns(bb *ir.BasicBlock, h *symheap.Heap) ([]*symheap.Heap, error) {
	cur := []*symheap.Heap{h}
	for _, insn := range bb.Insns {
		var next []*symheap.Heap
		for _, c := range cur {
			outs, err := e.transfer(insn, c, e.reporter)
			if err != nil {
				return nil, &report.Fault{Loc: insn.Loc, Msg: err.Error()}
			}
			next = append(next, outs...)
		}
		cur = next
		if len(cur) == 0 {
			break // infeasible path, nothing more to do
		}
	}
	return cur, nil
}

func (e *Engine) checkLeaksOnReturn(bb *ir.BasicBlock, h *symheap.Heap) {
	if len(bb.Insns) == 0 {
		return
	}
	last := bb.Insns[len(bb.Insns)-1]
	if last.Op != ir.OpRet {
		return
	}
	for range LeakedObjects(h) {
		e.reporter.Report(report.Entry{Kind: report.MemoryLeak, Loc: last.Loc, Trace: h.TraceNode()})
	}
}

// dispatch offers every heap in outs to the MAP entry of each of bb's
// successors, scheduling any block whose state changed.
func (e *Engine) dispatch(fn *ir.Function, bb *ir.BasicBlock, outs []*symheap.Heap, m *state.Map, s *sched.Scheduler) {
	if len(bb.Insns) == 0 {
		return
	}
	last := bb.Insns[len(bb.Insns)-1]
	for _, target := range last.Targets {
		if target < 0 || target >= len(fn.Blocks) {
			continue
		}
		succ := fn.Blocks[target]
		allowThreeWay := e.isBackEdge(fn, bb, succ)
		for _, out := range outs {
			if m.Insert(succ, out, allowThreeWay) {
				s.Schedule(succ)
			}
		}
	}
}

// isBackEdge approximates loop back-edge detection by block position:
// the IR's block list is expected in a reverse-postorder-ish layout from
// the front end, so an edge whose target doesn't come strictly after its
// source is treated as a back-edge (spec.md §6.5 "widening only on loop
// back-edges"). This is a simplification documented in DESIGN.md: a full
// implementation would use the CFG's dominator tree.
func (e *Engine) isBackEdge(fn *ir.Function, from, to *ir.BasicBlock) bool {
	fromIdx, toIdx := -1, -1
	for i, b := range fn.Blocks {
		if b == from {
			fromIdx = i
		}
		if b == to {
			toIdx = i
		}
	}
	return toIdx <= fromIdx
}
