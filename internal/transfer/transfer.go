// Package transfer provides a reference implementation of the
// engine.Transfer callback: an interpreter for a small instruction set
// (assignment, pointer arithmetic, malloc/free, load/store, comparisons)
// that drives internal/symheap against real heaps.
// The transfer function proper is an external collaborator of this
// module (internal/ir's package doc), but the engine needs one to be
// driven end to end; this one is grounded on
// original_source/fa_analysis/symexec.cc's execAssignment/execFree/
// execCall handling of CL_INSN_UNOP/BINOP/CALL/COND/RET.
package transfer

import (
	"fmt"

	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/report"
	"github.com/staticafi/predator/internal/symheap"
)

// New returns the reference Transfer function.
func New() func(insn ir.Instruction, h *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error) {
	i := &interp{}
	return i.step
}

type interp struct{}

func (i *interp) step(insn ir.Instruction, h *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error) {
	switch insn.Op {
	case ir.OpUnop:
		if insn.SubOp == "load" {
			return i.execLoadUnop(insn, h, rep)
		}
		return i.execAssign(insn, h, rep)
	case ir.OpBinop:
		return i.execBinop(insn, h, rep)
	case ir.OpCall:
		return i.execCall(insn, h, rep)
	case ir.OpCond, ir.OpJmp, ir.OpRet, ir.OpLabel, ir.OpAbort:
		// Control flow itself is handled by engine.dispatch via
		// insn.Targets; there is no heap side effect here beyond the
		// condition's operand already having been evaluated and
		// recorded by an earlier assignment in the same block.
		return []*symheap.Heap{h}, nil
	default:
		return nil, fmt.Errorf("transfer: unhandled opcode %v", insn.Op)
	}
}

// varCell returns the object backing a variable's storage, creating it
// if it doesn't already exist (spec.md §6.1's storage contract: a
// program variable is materialized lazily, on first reference).
func varCell(h *symheap.Heap, cv ir.CVar) symheap.ObjectID {
	o, _ := h.RegionByVar(cv, true)
	return o
}

// readOperand evaluates op (a variable or a literal constant) against h.
func (i *interp) readOperand(h *symheap.Heap, op ir.Operand) symheap.ValueID {
	if op.IsConst {
		return h.ValWrapCustom(symheap.CustomValue{Kind: "int", Int: op.Const})
	}
	o := varCell(h, op.Var)
	v, ok := h.FieldValue(o, 0)
	if !ok {
		return h.ValUnknown(symheap.OriginUninitialized)
	}
	return v
}

func writeVar(h *symheap.Heap, cv ir.CVar, typ *ir.Type, v symheap.ValueID) {
	o := varCell(h, cv)
	h.SetField(o, 0, typ, v)
}

// execAssign handles `dst := src` (CL_INSN_UNOP with SubOp "assign"/"="),
// mirroring execAssignment's plain (non-malloc) path.
func (i *interp) execAssign(insn ir.Instruction, h *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error) {
	if len(insn.Operands) != 1 {
		return nil, fmt.Errorf("transfer: assign needs one operand, got %d", len(insn.Operands))
	}
	v := i.readOperand(h, insn.Operands[0])
	writeVar(h, insn.Dst.Var, nil, v)
	return []*symheap.Heap{h}, nil
}

// execBinop handles pointer/integer arithmetic and comparisons.
func (i *interp) execBinop(insn ir.Instruction, h *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error) {
	if len(insn.Operands) != 2 {
		return nil, fmt.Errorf("transfer: binop needs two operands, got %d", len(insn.Operands))
	}
	lhs := i.readOperand(h, insn.Operands[0])

	switch insn.SubOp {
	case "+":
		if !insn.Operands[1].IsConst {
			return nil, fmt.Errorf("transfer: pointer arithmetic needs a constant offset")
		}
		if h.ValTarget(lhs) == symheap.TargetAddr || h.ValTarget(lhs) == symheap.TargetRange {
			writeVar(h, insn.Dst.Var, nil, h.ValByOffset(lhs, insn.Operands[1].Const))
		} else {
			writeVar(h, insn.Dst.Var, nil, h.ValUnknown(symheap.OriginUnknownResult))
		}
		return []*symheap.Heap{h}, nil

	case "==", "!=":
		rhs := i.readOperand(h, insn.Operands[1])
		eq := lhs == rhs
		if insn.SubOp == "!=" {
			eq = !eq
		}
		writeVar(h, insn.Dst.Var, nil, h.ValWrapCustom(symheap.CustomValue{Kind: "int", Int: boolToInt(eq)}))
		return []*symheap.Heap{h}, nil

	default:
		return nil, fmt.Errorf("transfer: unhandled binop %q", insn.SubOp)
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// execLoadUnop handles `dst := *ptr` (CL_INSN_UNOP with SubOp "load"):
// dereferences ptr and stores the pointee's scalar into dst, reporting
// invalid-dereference/use-after-free per spec.md §7.
func (i *interp) execLoadUnop(insn ir.Instruction, h *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error) {
	if len(insn.Operands) != 1 {
		return nil, fmt.Errorf("transfer: load needs one pointer operand, got %d", len(insn.Operands))
	}
	ptr := i.readOperand(h, insn.Operands[0])
	target, err := i.deref(h, ptr, insn.Loc, rep)
	if err != nil {
		return nil, nil // fault already reported; this path yields no successor heap
	}
	v, ok := h.FieldValue(target, 0)
	if !ok {
		rep.Report(report.Entry{Kind: report.UninitializedRead, Loc: insn.Loc, Trace: h.TraceNode()})
		v = h.ValUnknown(symheap.OriginUninitialized)
	}
	writeVar(h, insn.Dst.Var, nil, v)
	return []*symheap.Heap{h}, nil
}

// deref resolves ptr to the object it addresses, reporting and failing
// if it is null, unknown, or points at an invalidated object.
func (i *interp) deref(h *symheap.Heap, ptr symheap.ValueID, loc ir.Location, rep report.Reporter) (symheap.ObjectID, error) {
	t := h.ValTarget(ptr)
	if t == symheap.TargetNull {
		rep.Report(report.Entry{Kind: report.InvalidDereference, Loc: loc, Trace: h.TraceNode()})
		return symheap.ObjInvalid, errFault
	}
	if t != symheap.TargetAddr && t != symheap.TargetRange {
		rep.Report(report.Entry{Kind: report.InvalidDereference, Loc: loc, Trace: h.TraceNode()})
		return symheap.ObjInvalid, errFault
	}
	root := h.ValRoot(ptr)
	obj := h.ObjByAddr(root)
	if !h.IsValid(obj) {
		rep.Report(report.Entry{Kind: report.UseAfterFree, Loc: loc, Trace: h.TraceNode()})
		return symheap.ObjInvalid, errFault
	}
	return obj, nil
}

var errFault = fmt.Errorf("transfer: dereference of an unsafe value")

// execCall dispatches the three builtins this interpreter knows:
// malloc(size), free(ptr) and store(ptr, value); any other call falls
// through as a no-op returning an unknown result (an uninterpreted
// external call).
func (i *interp) execCall(insn ir.Instruction, h *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error) {
	switch insn.SubOp {
	case "malloc":
		return i.execMalloc(insn, h)
	case "free":
		return i.execFree(insn, h, rep)
	case "store":
		return i.execStore(insn, h, rep)
	default:
		if insn.Dst != (ir.Operand{}) {
			writeVar(h, insn.Dst.Var, nil, h.ValUnknown(symheap.OriginUnknownResult))
		}
		return []*symheap.Heap{h}, nil
	}
}

// execMalloc allocates a fresh heap region sized by its one operand: a
// literal constant, or a variable holding an integer constant (any
// other value gives size 0). The destination's type is not consulted.
func (i *interp) execMalloc(insn ir.Instruction, h *symheap.Heap) ([]*symheap.Heap, error) {
	if len(insn.Operands) != 1 {
		return nil, fmt.Errorf("transfer: malloc needs one size operand")
	}
	var size int64
	if insn.Operands[0].IsConst {
		size = insn.Operands[0].Const
	} else {
		v := i.readOperand(h, insn.Operands[0])
		if h.ValTarget(v) == symheap.TargetCustom {
			size = h.ValUnwrapCustom(v).Int
		}
	}
	_, addr := h.HeapAlloc(ir.Point(size))
	writeVar(h, insn.Dst.Var, nil, addr)
	return []*symheap.Heap{h}, nil
}

// execFree mirrors execFree's "must be a ref with displ 0" checks,
// reporting invalid-free/double-free per spec.md §7.
func (i *interp) execFree(insn ir.Instruction, h *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error) {
	if len(insn.Operands) != 1 {
		return nil, fmt.Errorf("transfer: free needs one pointer operand")
	}
	ptr := i.readOperand(h, insn.Operands[0])
	t := h.ValTarget(ptr)
	if t == symheap.TargetNull {
		return []*symheap.Heap{h}, nil // freeing NULL is a no-op, not a fault
	}
	if t != symheap.TargetAddr {
		rep.Report(report.Entry{Kind: report.InvalidFree, Loc: insn.Loc, Trace: h.TraceNode()})
		return []*symheap.Heap{h}, nil
	}
	off := h.ValOffset(ptr)
	obj := h.ObjByAddr(ptr)
	if obj == symheap.ObjInvalid || h.ObjStorageClass(obj) != ir.StorageHeap || !off.IsPoint() || off.Min != 0 {
		rep.Report(report.Entry{Kind: report.InvalidFree, Loc: insn.Loc, Trace: h.TraceNode()})
		return []*symheap.Heap{h}, nil
	}
	if !h.IsValid(obj) {
		rep.Report(report.Entry{Kind: report.DoubleFree, Loc: insn.Loc, Trace: h.TraceNode()})
		return []*symheap.Heap{h}, nil
	}
	h.ObjInvalidate(obj)
	return []*symheap.Heap{h}, nil
}

// execStore handles `*dst := src`, the write-through-pointer counterpart
// of execLoadUnop.
func (i *interp) execStore(insn ir.Instruction, h *symheap.Heap, rep report.Reporter) ([]*symheap.Heap, error) {
	if len(insn.Operands) != 2 {
		return nil, fmt.Errorf("transfer: store needs (ptr, value) operands")
	}
	ptr := i.readOperand(h, insn.Operands[0])
	val := i.readOperand(h, insn.Operands[1])
	target, err := i.deref(h, ptr, insn.Loc, rep)
	if err != nil {
		return nil, nil
	}
	h.SetField(target, 0, nil, val)
	return []*symheap.Heap{h}, nil
}
