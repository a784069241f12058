package state

import (
	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/symheap"
)

// Map is the block-keyed STATE container of spec.md §4.6: one State per
// basic block, plus an anyHit flag recording whether a join ever caused
// reuse at that block (used to classify loops as converging), grounded
// on symstate.cc's SymStateMap.
type Map struct {
	cfg   config.Config
	cont  map[*ir.BasicBlock]*blockState
	order []*ir.BasicBlock // first-touched order, for deterministic Stats/Blocks
}

type blockState struct {
	state   *State
	anyHit  bool
	lookups int // heaps offered to this block's state, ever
}

// NewMap returns an empty map governed by cfg.
func NewMap(cfg config.Config) *Map {
	return &Map{cfg: cfg, cont: make(map[*ir.BasicBlock]*blockState)}
}

// At returns the State for bb, creating an empty one on first access
// (spec.md §4.6 "operator[]").
func (m *Map) At(bb *ir.BasicBlock) *State {
	return m.entry(bb).state
}

// Blocks returns every block touched so far, in first-touched order.
func (m *Map) Blocks() []*ir.BasicBlock {
	return append([]*ir.BasicBlock(nil), m.order...)
}

func (m *Map) entry(bb *ir.BasicBlock) *blockState {
	bs, ok := m.cont[bb]
	if !ok {
		bs = &blockState{state: New(m.cfg)}
		m.cont[bb] = bs
		m.order = append(m.order, bb)
	}
	return bs
}

// isJoinlessFastPath reports whether bb qualifies for the configured fast
// path that bypasses even the isomorphism check: a single predecessor,
// and either a first instruction that is a return or abort, or exactly
// two instructions of which the last is a conditional (a straight-line
// relay block that can never accumulate more than one reaching heap per
// visit) -- spec.md §6.5 joinOnLoopEdgesOnly ">=3 additionally bypass
// isomorphism on straight-line blocks".
func (m *Map) isJoinlessFastPath(bb *ir.BasicBlock) bool {
	if m.cfg.JoinOnLoopEdgesOnly <= config.JoinWideningOnLoopEdges {
		return false
	}
	if len(bb.Inbound) != 1 || len(bb.Insns) == 0 {
		return false
	}
	first := bb.Insns[0]
	if first.Op == ir.OpRet || first.Op == ir.OpAbort {
		return true
	}
	return len(bb.Insns) == 2 && bb.Insns[len(bb.Insns)-1].Op == ir.OpCond
}

// Insert records sh as reaching dst (spec.md §4.6 insert): remembers the
// old size of the target state, inserts (via the fast path or the full
// join-aware Insert), flags anyHit if the size didn't grow, and returns
// whether the state changed.
func (m *Map) Insert(dst *ir.BasicBlock, sh *symheap.Heap, allowThreeWay bool) bool {
	bs := m.entry(dst)
	sizeBefore := bs.state.Size()
	bs.lookups++

	var changed bool
	if m.isJoinlessFastPath(dst) {
		bs.state.InsertNew(sh)
		changed = true
	} else {
		changed = bs.state.Insert(sh, allowThreeWay)
	}

	if bs.state.Size() <= sizeBefore {
		bs.anyHit = true
	}
	return changed
}

// AnyReuseHappened reports whether any join has ever caused reuse at bb.
func (m *Map) AnyReuseHappened(bb *ir.BasicBlock) bool {
	return m.entry(bb).anyHit
}

// CntPending returns the number of not-yet-processed heaps at bb, used by
// the load-driven block scheduler (spec.md §4.5).
func (m *Map) CntPending(bb *ir.BasicBlock) int {
	return m.entry(bb).state.CntPending()
}

// BlockStat is one block's share of the diagnostic counters supplemented
// from symstate.cc's debugSymState/cntLookups instrumentation: how many
// heaps were ever offered to the block, how many distinct heaps it holds
// at the end of the run, and whether any of those offers was absorbed by
// an existing heap instead of growing the state.
type BlockStat struct {
	Block    *ir.BasicBlock
	Lookups  int
	Heaps    int
	AnyReuse bool
}

// Stats reports BlockStat for every block touched so far, in
// first-touched order. Diagnostic only; never consulted by the fixed
// point itself (spec.md §6 "Heap plot (side-effect, diagnostic)").
func (m *Map) Stats() []BlockStat {
	out := make([]BlockStat, 0, len(m.order))
	for _, bb := range m.order {
		bs := m.cont[bb]
		out = append(out, BlockStat{Block: bb, Lookups: bs.lookups, Heaps: bs.state.Size(), AnyReuse: bs.anyHit})
	}
	return out
}
