// Package state implements the STATE container of spec.md §4.4: a list
// of symbolic heaps at a single program point, joined and deduplicated
// as new heaps are discovered, plus the marked variant (§4.4 "Marked
// state") and the block-keyed map over it (§4.6), grounded on
// original_source/sl/symstate.cc's SymState/SymHeapUnion/
// SymStateWithJoin/SymStateMarked/SymStateMap.
package state

import (
	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/symheap"
	"github.com/staticafi/predator/internal/trace"
)

// State is a SymHeapUnion/SymStateWithJoin equivalent: an ordered list of
// heaps, each standing for one abstract program state reaching this
// point. It also carries the "done" bitmap spec.md §4.4 describes as a
// separate "Marked state" (STATE-M) wrapper: in the original, STATE-M is
// a subclass that overrides rotateExisting/packState's bookkeeping
// virtually; Go has no such override hook through embedding, so the
// bitmap is folded directly into State itself and simply left unused by
// callers that don't care about it (plain STATE use). See DESIGN.md.
type State struct {
	cfg   config.Config
	heaps []*symheap.Heap
	done  []bool
}

// New returns an empty state governed by cfg.
func New(cfg config.Config) *State {
	return &State{cfg: cfg}
}

// Size returns the number of heaps currently stored.
func (s *State) Size() int { return len(s.heaps) }

// At returns the heap at index i.
func (s *State) At(i int) *symheap.Heap { return s.heaps[i] }

// Heaps returns every stored heap, in order. The slice is owned by the
// caller; mutating it does not affect s.
func (s *State) Heaps() []*symheap.Heap {
	return append([]*symheap.Heap(nil), s.heaps...)
}

// InsertNew appends a clone of h unconditionally, waiving the clone's
// trace node so the provenance graph doesn't carry a spurious clone hop
// (spec.md §4.4 insertNew; symstate.cc SymState::insertNew).
func (s *State) InsertNew(h *symheap.Heap) {
	dup := h.Clone()
	dup.SetTraceNode(dup.TraceNode().Waive())
	s.heaps = append(s.heaps, dup)
	s.done = append(s.done, false)
}

// CntPending returns the number of heaps not yet marked done, consulted
// by the load-driven block scheduler (spec.md §4.5, §4.6).
func (s *State) CntPending() int {
	n := 0
	for _, d := range s.done {
		if !d {
			n++
		}
	}
	return n
}

// NextPending returns the index of the next heap not yet marked done, or
// -1 once every heap has been processed (spec.md §4.4 "transfer
// functions iterate only over not-yet-done entries").
func (s *State) NextPending() int {
	for i, d := range s.done {
		if !d {
			return i
		}
	}
	return -1
}

// MarkDone marks the heap at idx processed.
func (s *State) MarkDone(idx int) {
	s.done[idx] = true
}

// Lookup returns the index of a heap isomorphic to h, or -1. When
// StateLiveOrdering is configured to rotate on equivalence too, a match
// is moved to the front to accelerate the next lookup.
func (s *State) Lookup(h *symheap.Heap) int {
	for i, sh := range s.heaps {
		if symheap.AreEqual(h, sh) {
			if s.cfg.StateLiveOrdering == config.LiveOrderingOnEquivAlso {
				s.RotateExisting(0, i)
			}
			return i
		}
	}
	return -1
}

// RotateExisting moves the heap currently at index j to index i, cyclically
// rotating the heaps in between (spec.md §4.4 rotateExisting). The done
// bitmap is rotated in lock-step.
func (s *State) RotateExisting(i, j int) {
	rotateLeft(s.heaps[i:], j-i)
	rotateLeft(s.done[i:], j-i)
}

func rotateLeft[T any](s []T, k int) {
	if k <= 0 || k >= len(s) {
		return
	}
	reverseSlice(s[:k])
	reverseSlice(s[k:])
	reverseSlice(s)
}

func reverseSlice[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Insert is the principal STATE operation (spec.md §4.4 insert): with
// join disabled by configuration, it reduces to an isomorphism scan;
// otherwise it tries joinSymHeaps against every existing heap and reacts
// to the first success per status. It reports whether the state changed.
func (s *State) Insert(h *symheap.Heap, allowThreeWay bool) bool {
	if !s.cfg.JoinRequested(allowThreeWay) {
		if s.Lookup(h) != -1 {
			return false
		}
		s.InsertNew(h)
		return true
	}

	if len(s.heaps) == 0 {
		s.InsertNew(h)
		return true
	}

	allowThreeWay = s.cfg.ClampThreeWay(allowThreeWay)

	idx := -1
	var status symheap.JoinStatus
	var result *symheap.Heap
	for i, old := range s.heaps {
		st, res, ok := symheap.JoinSymHeaps(old, h, allowThreeWay)
		if !ok {
			continue
		}
		if s.cfg.ForbidHeapReplace && st == symheap.JoinRightCovers {
			continue
		}
		idx, status, result = i, st, res
		break
	}

	if idx == -1 {
		s.InsertNew(h)
		return true
	}

	switch status {
	case symheap.JoinEqual, symheap.JoinLeftCovers:
		s.updateTraceOf(idx, result.TraceNode(), status)
		if s.cfg.StateLiveOrdering >= config.LiveOrderingOnJoin {
			s.RotateExisting(0, idx)
		}
		return false

	case symheap.JoinRightCovers:
		dup := h.Clone()
		dup.SetTraceNode(dup.TraceNode().Waive())
		dup.SetTraceNode(result.TraceNode())
		s.heaps[idx] = dup
		s.updateTraceOf(idx, result.TraceNode(), status)
		s.packState(idx, allowThreeWay)
		return true

	case symheap.JoinThreeWay:
		s.heaps[idx] = result
		s.packState(idx, allowThreeWay)
		return true
	}
	return false
}

// updateTraceOf splices the trace node produced by a join in place of the
// heap at idx's existing trace node, rebasing id-mappers so that the side
// whose content survived unchanged gets an identity mapper (spec.md §4.4
// updateTraceOf).
func (s *State) updateTraceOf(idx int, tr *trace.Node, status symheap.JoinStatus) {
	old := s.heaps[idx].TraceNode()
	if old == tr {
		return
	}

	keep := 0
	if status == symheap.JoinRightCovers {
		keep = 1
	}
	rebased := trace.Rebase(tr, keep)

	if s.cfg.AllowCyclicTraceGraph {
		old.Replace(rebased)
		return
	}
	s.heaps[idx].SetTraceNode(rebased)
}

// packState repeats pairwise joins between the heap at idxNew and every
// other heap in the state, collapsing any that can be joined into it
// (spec.md §4.4 packState; symstate.cc SymStateWithJoin::packState).
func (s *State) packState(idxNew int, allowThreeWay bool) {
	idxOld := 0
	for idxOld < len(s.heaps) {
		if idxOld == idxNew {
			idxOld++
			continue
		}

		status, result, ok := symheap.JoinSymHeaps(s.heaps[idxOld], s.heaps[idxNew], allowThreeWay)
		if !ok {
			idxOld++
			continue
		}
		if s.cfg.ForbidHeapReplace && status == symheap.JoinRightCovers {
			idxOld++
			continue
		}

		switch status {
		case symheap.JoinEqual, symheap.JoinRightCovers:
			// keep the heap currently at idxNew as-is
		case symheap.JoinLeftCovers:
			s.heaps[idxNew] = s.heaps[idxOld]
		case symheap.JoinThreeWay:
			s.heaps[idxNew] = result
		}

		if status != symheap.JoinThreeWay {
			keep := 0
			if status == symheap.JoinRightCovers {
				keep = 1
			}
			s.heaps[idxNew].SetTraceNode(trace.Rebase(result.TraceNode(), keep))
		}

		if idxOld < idxNew {
			idxNew--
		}
		s.eraseExisting(idxOld)
	}

	if s.cfg.StateLiveOrdering != config.LiveOrderingOff {
		s.RotateExisting(0, idxNew)
	}
}

func (s *State) eraseExisting(i int) {
	s.heaps = append(s.heaps[:i], s.heaps[i+1:]...)
	s.done = append(s.done[:i], s.done[i+1:]...)
}
