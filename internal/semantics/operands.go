package semantics

import (
	"fmt"

	"symtrace/internal/disasm"
	"symtrace/internal/expr"
	"symtrace/internal/symstate"
)

// AddressExpr builds base + index*scale + disp for mem. A RIP base stands
// for the address of the next instruction; other registers are read from
// st.
func AddressExpr(b *expr.Builder, inst disasm.Instruction, mem disasm.MemoryOperand, st *symstate.State) (expr.Expr, error) {
	addr := b.Const(0, disasm.RegWidth)

	if !mem.Base.IsZero() {
		var base expr.Expr
		if mem.IsRIPRelative() {
			base = b.Const(inst.Next(), disasm.RegWidth)
		} else {
			v, err := ReadRegister(b, st, mem.Base)
			if err != nil {
				return nil, err
			}
			if base, err = b.ZeroExtend(v, disasm.RegWidth); err != nil {
				return nil, err
			}
		}
		addr = base
	}

	if !mem.Index.IsZero() {
		v, err := ReadRegister(b, st, mem.Index)
		if err != nil {
			return nil, err
		}
		index, err := b.ZeroExtend(v, disasm.RegWidth)
		if err != nil {
			return nil, err
		}
		scaled, err := b.Mul(index, b.Const(uint64(mem.Scale), disasm.RegWidth))
		if err != nil {
			return nil, err
		}
		if addr, err = b.Add(addr, scaled); err != nil {
			return nil, err
		}
	}

	return b.Add(addr, b.Const(uint64(mem.Disp), disasm.RegWidth))
}

// Load returns the value of size bytes at addr. Constant addresses are
// looked up in st; anything else is a fresh memory reference.
func Load(b *expr.Builder, st *symstate.State, addr expr.Expr, size uint) (expr.Expr, error) {
	if start, ok := expr.IsConstant(addr); ok {
		return st.ReadMemory(symstate.Range{Start: start, Size: size})
	}
	return b.Mem(addr, size)
}

// ReadRegister returns the value of a register view.
func ReadRegister(b *expr.Builder, st *symstate.State, op disasm.RegisterOperand) (expr.Expr, error) {
	full := st.Read(op.Reg)
	if op.IsFull() {
		return full, nil
	}
	return b.Extract(op.Shift+op.Width-1, op.Shift, full)
}

// WriteRegister returns the assignment that stores value into a register
// view. 32-bit views zero the upper half of the register; 8 and 16-bit
// views keep the bits they do not cover.
func WriteRegister(b *expr.Builder, st *symstate.State, op disasm.RegisterOperand, value expr.Expr) (Assignment, error) {
	if w := expr.Width(value); w != op.Width {
		return Assignment{}, fmt.Errorf("write %d bits to %s: %w", w, op, ErrMalformed)
	}

	var full expr.Expr
	var err error
	switch {
	case op.IsFull():
		full = value
	case op.Width == 32 && op.Shift == 0:
		full, err = b.ZeroExtend(value, disasm.RegWidth)
	default:
		old := st.Read(op.Reg)
		var parts []expr.Expr
		if top := op.Shift + op.Width; top < disasm.RegWidth {
			high, err := b.Extract(disasm.RegWidth-1, top, old)
			if err != nil {
				return Assignment{}, err
			}
			parts = append(parts, high)
		}
		parts = append(parts, value)
		if op.Shift > 0 {
			low, err := b.Extract(op.Shift-1, 0, old)
			if err != nil {
				return Assignment{}, err
			}
			parts = append(parts, low)
		}
		full, err = b.Concat(parts...)
	}
	if err != nil {
		return Assignment{}, err
	}
	return Assignment{Dest: RegisterDest{Reg: op.Reg}, Expr: full}, nil
}
