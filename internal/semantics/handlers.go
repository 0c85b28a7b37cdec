package semantics

import (
	"fmt"

	"symtrace/internal/disasm"
	"symtrace/internal/expr"
	"symtrace/internal/symstate"
)

// defaultHandlers has one slot per declared class; a test checks that
// none of them is left empty.
var defaultHandlers = [disasm.NumClasses]Handler{
	disasm.MovRegFromMem:        movRegFromMem,
	disasm.LeaRegFromScaledAddr: leaRegFromScaledAddr,
	disasm.JccConditional:       jccConditional,
	disasm.MovRegFromReg:        movRegFromReg,
	disasm.MovRegFromImm:        movRegFromImm,
	disasm.MovMemFromReg:        movMemFromReg,
}

func regMemOperands(inst disasm.Instruction) (disasm.RegisterOperand, disasm.MemoryOperand, error) {
	if len(inst.Operands) != 2 {
		return disasm.RegisterOperand{}, disasm.MemoryOperand{}, fmt.Errorf("%d operands: %w", len(inst.Operands), ErrMalformed)
	}
	dst, ok := inst.Operands[0].(disasm.RegisterOperand)
	if !ok {
		return disasm.RegisterOperand{}, disasm.MemoryOperand{}, fmt.Errorf("destination %T: %w", inst.Operands[0], ErrMalformed)
	}
	src, ok := inst.Operands[1].(disasm.MemoryOperand)
	if !ok {
		return disasm.RegisterOperand{}, disasm.MemoryOperand{}, fmt.Errorf("source %T: %w", inst.Operands[1], ErrMalformed)
	}
	return dst, src, nil
}

// mov reg, [mem]
func movRegFromMem(b *expr.Builder, inst disasm.Instruction, st *symstate.State) (*Effect, error) {
	dst, src, err := regMemOperands(inst)
	if err != nil {
		return nil, err
	}
	addr, err := AddressExpr(b, inst, src, st)
	if err != nil {
		return nil, err
	}
	value, err := Load(b, st, addr, src.Size)
	if err != nil {
		return nil, err
	}
	a, err := WriteRegister(b, st, dst, value)
	if err != nil {
		return nil, err
	}
	eff := &Effect{Assignments: []Assignment{a}}
	if start, ok := expr.IsConstant(addr); ok {
		eff.Loads = []symstate.Range{{Start: start, Size: src.Size}}
	}
	return eff, nil
}

// lea reg, [mem]
func leaRegFromScaledAddr(b *expr.Builder, inst disasm.Instruction, st *symstate.State) (*Effect, error) {
	dst, src, err := regMemOperands(inst)
	if err != nil {
		return nil, err
	}
	addr, err := AddressExpr(b, inst, src, st)
	if err != nil {
		return nil, err
	}
	if dst.Width < disasm.RegWidth {
		// the address is truncated to the operand size
		if addr, err = b.Extract(dst.Width-1, 0, addr); err != nil {
			return nil, err
		}
	}
	a, err := WriteRegister(b, st, dst, addr)
	if err != nil {
		return nil, err
	}
	return &Effect{Assignments: []Assignment{a}}, nil
}

// jcc rel
func jccConditional(b *expr.Builder, inst disasm.Instruction, st *symstate.State) (*Effect, error) {
	if len(inst.Operands) != 1 {
		return nil, fmt.Errorf("%d operands: %w", len(inst.Operands), ErrMalformed)
	}
	rel, ok := inst.Operands[0].(disasm.ImmediateOperand)
	if !ok {
		return nil, fmt.Errorf("branch operand %T: %w", inst.Operands[0], ErrMalformed)
	}
	return &Effect{Branch: &BranchHint{
		Address:     inst.Address,
		Target:      inst.Next() + uint64(rel.Value),
		Fallthrough: inst.Next(),
		Condition:   inst.Mnemonic,
	}}, nil
}

// mov reg, reg
func movRegFromReg(b *expr.Builder, inst disasm.Instruction, st *symstate.State) (*Effect, error) {
	if len(inst.Operands) != 2 {
		return nil, fmt.Errorf("%d operands: %w", len(inst.Operands), ErrMalformed)
	}
	dst, ok1 := inst.Operands[0].(disasm.RegisterOperand)
	src, ok2 := inst.Operands[1].(disasm.RegisterOperand)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("operands %T, %T: %w", inst.Operands[0], inst.Operands[1], ErrMalformed)
	}
	value, err := ReadRegister(b, st, src)
	if err != nil {
		return nil, err
	}
	a, err := WriteRegister(b, st, dst, value)
	if err != nil {
		return nil, err
	}
	return &Effect{Assignments: []Assignment{a}}, nil
}

// mov reg, imm
func movRegFromImm(b *expr.Builder, inst disasm.Instruction, st *symstate.State) (*Effect, error) {
	if len(inst.Operands) != 2 {
		return nil, fmt.Errorf("%d operands: %w", len(inst.Operands), ErrMalformed)
	}
	dst, ok1 := inst.Operands[0].(disasm.RegisterOperand)
	imm, ok2 := inst.Operands[1].(disasm.ImmediateOperand)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("operands %T, %T: %w", inst.Operands[0], inst.Operands[1], ErrMalformed)
	}
	a, err := WriteRegister(b, st, dst, b.Const(uint64(imm.Value), dst.Width))
	if err != nil {
		return nil, err
	}
	return &Effect{Assignments: []Assignment{a}}, nil
}

// mov [mem], reg
func movMemFromReg(b *expr.Builder, inst disasm.Instruction, st *symstate.State) (*Effect, error) {
	if len(inst.Operands) != 2 {
		return nil, fmt.Errorf("%d operands: %w", len(inst.Operands), ErrMalformed)
	}
	dst, ok1 := inst.Operands[0].(disasm.MemoryOperand)
	src, ok2 := inst.Operands[1].(disasm.RegisterOperand)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("operands %T, %T: %w", inst.Operands[0], inst.Operands[1], ErrMalformed)
	}
	addr, err := AddressExpr(b, inst, dst, st)
	if err != nil {
		return nil, err
	}
	start, ok := expr.IsConstant(addr)
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, ErrSymbolicAddress)
	}
	value, err := ReadRegister(b, st, src)
	if err != nil {
		return nil, err
	}
	rng := symstate.Range{Start: start, Size: dst.Size}
	if expr.Width(value) != rng.Size*8 {
		return nil, fmt.Errorf("store %d bits to %d bytes: %w", expr.Width(value), rng.Size, ErrMalformed)
	}
	return &Effect{Assignments: []Assignment{{Dest: MemoryDest{Range: rng}, Expr: value}}}, nil
}
