package symheap

// AddPredicate records a constraint the heap has inferred but can't
// express as a graph edge (spec.md §3 "Predicate"). p is stored as
// given: this method does not close the set under reflexivity or
// symmetry.
func (h *Heap) AddPredicate(p Predicate) {
	h.preds = append(h.preds, p)
}

// Predicates returns every predicate currently recorded.
func (h *Heap) Predicates() []Predicate {
	return append([]Predicate(nil), h.preds...)
}

// CopyRelevantPreds copies every predicate of h whose operands are all in
// the domain of valMap into dst, translating operand ids through valMap
// (spec.md §4.1 copyRelevantPreds). valMap maps a value id of h to a
// value id of dst.
func (h *Heap) CopyRelevantPreds(dst *Heap, valMap map[ValueID]ValueID) {
	for _, p := range h.preds {
		a, okA := valMap[p.A]
		b, okB := valMap[p.B]
		if !okA || !okB {
			continue
		}
		dst.AddPredicate(Predicate{Kind: p.Kind, A: a, B: b, K: p.K})
	}
}

// Feasible reports whether the heap's predicates are internally
// consistent. A contradictory set of predicates renders the heap
// infeasible; spec.md §3 says callers of the core must discard such
// heaps, so this is exposed for the engine/transfer functions to check,
// not enforced automatically on every mutation.
func (h *Heap) Feasible() bool {
	eq := make(map[ValueID]ValueID) // union-find-lite: value -> representative
	find := func(v ValueID) ValueID {
		for {
			r, ok := eq[v]
			if !ok {
				return v
			}
			v = r
		}
	}
	for _, p := range h.preds {
		if p.Kind == PredEqual {
			ra, rb := find(p.A), find(p.B)
			if ra != rb {
				eq[ra] = rb
			}
		}
	}
	for _, p := range h.preds {
		switch p.Kind {
		case PredNotEqual:
			if find(p.A) == find(p.B) {
				return false
			}
		case PredNeqOffsetByK:
			if p.K == 0 && find(p.A) == find(p.B) {
				return false
			}
		}
	}
	return true
}
