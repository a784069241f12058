// Package sched implements the block scheduler of spec.md §4.5: the
// worklist that drives which basic block the fixed-point engine visits
// next, grounded on original_source/sl/symstate.cc's BlockScheduler.
package sched

import (
	"sort"

	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/ir"
)

// PendingCountProvider reports how many not-yet-processed heaps are
// waiting at a block, consulted by the load-driven policy. state.Map
// satisfies this via its CntPending method.
type PendingCountProvider interface {
	CntPending(bb *ir.BasicBlock) int
}

// Scheduler is the block worklist: which blocks are waiting to be
// (re-)visited, in what order, and how many times each has been visited
// so far.
type Scheduler struct {
	kind config.SchedKind
	pcp  PendingCountProvider

	todoSet map[*ir.BasicBlock]bool
	order   []*ir.BasicBlock // queue (FIFO) or stack (LIFO/prioritized-LIFO); unused for load-driven

	doneCount map[*ir.BasicBlock]int
	doneOrder []*ir.BasicBlock // insertion order, for stable printStats output
}

// New returns a scheduler of the given policy. pcp may be nil unless kind
// is config.SchedLoadDriven.
func New(kind config.SchedKind, pcp PendingCountProvider) *Scheduler {
	return &Scheduler{
		kind:      kind,
		pcp:       pcp,
		todoSet:   make(map[*ir.BasicBlock]bool),
		doneCount: make(map[*ir.BasicBlock]int),
	}
}

// CntWaiting returns the number of blocks currently queued.
func (s *Scheduler) CntWaiting() int { return len(s.todoSet) }

// Todo returns every block currently queued, order unspecified.
func (s *Scheduler) Todo() []*ir.BasicBlock {
	out := make([]*ir.BasicBlock, 0, len(s.todoSet))
	for bb := range s.todoSet {
		out = append(out, bb)
	}
	return out
}

// Done returns every block that has been visited at least once.
func (s *Scheduler) Done() []*ir.BasicBlock {
	return append([]*ir.BasicBlock(nil), s.doneOrder...)
}

// Schedule adds bb to the queue if not already present, reporting whether
// this was a fresh insertion. Under the prioritized-LIFO policy, a block
// already queued is instead bumped back to the top (spec.md §4.5
// schedule).
func (s *Scheduler) Schedule(bb *ir.BasicBlock) bool {
	if !s.todoSet[bb] {
		s.todoSet[bb] = true
		if s.kind != config.SchedLoadDriven {
			s.order = append(s.order, bb)
		}
		return true
	}

	if s.kind == config.SchedPrioritizedLIFO {
		for i, b := range s.order {
			if b == bb {
				s.order = append(s.order[:i], s.order[i+1:]...)
				s.order = append(s.order, bb)
				break
			}
		}
	}
	return false
}

// GetNext selects and removes the next block to process per the
// configured policy, incrementing its visit count. It returns false once
// the queue is empty (spec.md §4.5 getNext).
func (s *Scheduler) GetNext() (*ir.BasicBlock, bool) {
	if len(s.todoSet) == 0 {
		return nil, false
	}

	var bb *ir.BasicBlock
	switch s.kind {
	case config.SchedFIFO:
		bb = s.order[0]
		s.order = s.order[1:]

	case config.SchedLIFO, config.SchedPrioritizedLIFO:
		bb = s.order[len(s.order)-1]
		s.order = s.order[:len(s.order)-1]

	case config.SchedLoadDriven:
		bb = s.leastLoaded()

	default:
		bb = s.order[len(s.order)-1]
		s.order = s.order[:len(s.order)-1]
	}

	delete(s.todoSet, bb)
	if s.doneCount[bb] == 0 {
		s.doneOrder = append(s.doneOrder, bb)
	}
	s.doneCount[bb]++
	return bb, true
}

// leastLoaded returns the waiting block with the fewest pending heaps.
// Ties are broken by block name, in lexical order, to keep selection
// deterministic; the order in which the tied blocks were scheduled is
// not consulted.
func (s *Scheduler) leastLoaded() *ir.BasicBlock {
	waiting := s.Todo()
	sort.Slice(waiting, func(i, j int) bool {
		li, lj := s.pcp.CntPending(waiting[i]), s.pcp.CntPending(waiting[j])
		if li != lj {
			return li < lj
		}
		return waiting[i].Name < waiting[j].Name
	})
	return waiting[0]
}

// PrintStats reports, for diagnostics, how many times each visited block
// was examined (spec.md §4.5 printStats).
func (s *Scheduler) PrintStats(report func(bb *ir.BasicBlock, cnt int, stillQueued bool)) {
	for _, bb := range s.doneOrder {
		report(bb, s.doneCount[bb], s.todoSet[bb])
	}
}
