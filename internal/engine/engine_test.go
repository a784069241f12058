package engine_test

import (
	"testing"

	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/engine"
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/report"
	"github.com/staticafi/predator/internal/transfer"
)

func run(t *testing.T, fn *ir.Function) *report.Collector {
	t.Helper()
	storage := &ir.Storage{Functions: []*ir.Function{fn}}
	rep := report.NewCollector()
	eng := engine.New(config.Default(), transfer.New(), rep)
	entry := engine.InitialHeap(storage, fn)
	if _, err := eng.Run(fn, entry); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

// scenario 1 of spec.md §8: malloc, free, then a read through the freed
// pointer is reported as use-after-free.
func TestUseAfterFree(t *testing.T) {
	p := ir.CVar{UID: 1, Inst: 1}
	x := ir.CVar{UID: 2, Inst: 1}

	fn := &ir.Function{
		Name:  "useAfterFree",
		Entry: 0,
		Blocks: []*ir.BasicBlock{{
			Name: "entry",
			Insns: []ir.Instruction{
				{Op: ir.OpCall, SubOp: "malloc", Dst: ir.Operand{Var: p}, Operands: []ir.Operand{{IsConst: true, Const: 8}}},
				{Op: ir.OpCall, SubOp: "free", Operands: []ir.Operand{{Var: p}}},
				{Op: ir.OpUnop, SubOp: "load", Dst: ir.Operand{Var: x}, Operands: []ir.Operand{{Var: p}}},
				{Op: ir.OpRet},
			},
		}},
	}

	rep := run(t, fn)
	if n := rep.CountByKind(report.UseAfterFree); n != 1 {
		t.Fatalf("want 1 use-after-free report, got %d (%v)", n, rep.Entries())
	}
}

// scenario 2 of spec.md §8: malloc with no matching free leaks once the
// local frame holding the only pointer goes out of scope at return.
func TestMemoryLeak(t *testing.T) {
	p := ir.CVar{UID: 1, Inst: 1}

	fn := &ir.Function{
		Name:  "leaky",
		Entry: 0,
		Blocks: []*ir.BasicBlock{{
			Name: "entry",
			Insns: []ir.Instruction{
				{Op: ir.OpCall, SubOp: "malloc", Dst: ir.Operand{Var: p}, Operands: []ir.Operand{{IsConst: true, Const: 8}}},
				{Op: ir.OpRet},
			},
		}},
	}

	rep := run(t, fn)
	if n := rep.CountByKind(report.MemoryLeak); n != 1 {
		t.Fatalf("want 1 memory-leak report, got %d (%v)", n, rep.Entries())
	}
}

// scenario 4 of spec.md §8: freeing the same pointer twice is a
// double-free, not a second invalid-free.
func TestDoubleFree(t *testing.T) {
	p := ir.CVar{UID: 1, Inst: 1}

	fn := &ir.Function{
		Name:  "doubleFree",
		Entry: 0,
		Blocks: []*ir.BasicBlock{{
			Name: "entry",
			Insns: []ir.Instruction{
				{Op: ir.OpCall, SubOp: "malloc", Dst: ir.Operand{Var: p}, Operands: []ir.Operand{{IsConst: true, Const: 8}}},
				{Op: ir.OpCall, SubOp: "free", Operands: []ir.Operand{{Var: p}}},
				{Op: ir.OpCall, SubOp: "free", Operands: []ir.Operand{{Var: p}}},
				{Op: ir.OpRet},
			},
		}},
	}

	rep := run(t, fn)
	if n := rep.CountByKind(report.DoubleFree); n != 1 {
		t.Fatalf("want 1 double-free report, got %d (%v)", n, rep.Entries())
	}
	if n := rep.CountByKind(report.InvalidFree); n != 0 {
		t.Fatalf("want 0 invalid-free reports, got %d", n)
	}
}

// A heap freed and then never read again does not leak and raises no
// report: the negative counterpart to TestUseAfterFree/TestMemoryLeak.
func TestCleanFreeNoReport(t *testing.T) {
	p := ir.CVar{UID: 1, Inst: 1}

	fn := &ir.Function{
		Name:  "clean",
		Entry: 0,
		Blocks: []*ir.BasicBlock{{
			Name: "entry",
			Insns: []ir.Instruction{
				{Op: ir.OpCall, SubOp: "malloc", Dst: ir.Operand{Var: p}, Operands: []ir.Operand{{IsConst: true, Const: 8}}},
				{Op: ir.OpCall, SubOp: "free", Operands: []ir.Operand{{Var: p}}},
				{Op: ir.OpRet},
			},
		}},
	}

	rep := run(t, fn)
	if len(rep.Entries()) != 0 {
		t.Fatalf("want no reports, got %v", rep.Entries())
	}
}
