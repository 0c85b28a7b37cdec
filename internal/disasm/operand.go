package disasm

import (
	"fmt"
	"strings"
)

// Operand is one of RegisterOperand, MemoryOperand or ImmediateOperand.
type Operand interface {
	// IsMemory reports whether the operand dereferences memory.
	IsMemory() bool
	// EffectiveAddressInputs returns the registers that feed the address
	// computation of a memory operand, base first. It is empty for other
	// operands.
	EffectiveAddressInputs() []Reg
	String() string

	operand()
}

func (RegisterOperand) operand()  {}
func (MemoryOperand) operand()    {}
func (ImmediateOperand) operand() {}

// RegisterOperand is a view of bits [Shift, Shift+Width) of Reg.
type RegisterOperand struct {
	Reg   Reg
	Width uint
	Shift uint
}

// IsZero reports whether the operand names no register.
func (o RegisterOperand) IsZero() bool { return o.Reg == RegNone }

// IsFull reports whether the view covers the whole 64-bit register.
func (o RegisterOperand) IsFull() bool { return o.Width == RegWidth && o.Shift == 0 }

func (RegisterOperand) IsMemory() bool                { return false }
func (RegisterOperand) EffectiveAddressInputs() []Reg { return nil }

func (o RegisterOperand) String() string {
	if o.IsZero() {
		return "none"
	}
	if o.IsFull() {
		return o.Reg.String()
	}
	return fmt.Sprintf("%s[%d:%d]", o.Reg, o.Shift+o.Width-1, o.Shift)
}

// MemoryOperand is a memory reference [Base + Index*Scale + Disp] of Size
// bytes. Base and Index are optional (IsZero). Scale is 1 when there is no
// index.
type MemoryOperand struct {
	Base  RegisterOperand
	Index RegisterOperand
	Scale uint8
	Disp  int64
	Size  uint
}

func (MemoryOperand) IsMemory() bool { return true }

func (o MemoryOperand) EffectiveAddressInputs() []Reg {
	var regs []Reg
	if !o.Base.IsZero() {
		regs = append(regs, o.Base.Reg)
	}
	if !o.Index.IsZero() && (o.Base.IsZero() || o.Index.Reg != o.Base.Reg) {
		regs = append(regs, o.Index.Reg)
	}
	return regs
}

// IsRIPRelative reports whether the address is relative to the next
// instruction.
func (o MemoryOperand) IsRIPRelative() bool {
	return o.Base.Reg == RIP
}

func (o MemoryOperand) String() string {
	var parts []string
	if !o.Base.IsZero() {
		parts = append(parts, o.Base.String())
	}
	if !o.Index.IsZero() {
		parts = append(parts, fmt.Sprintf("%s*%d", o.Index, o.Scale))
	}
	s := strings.Join(parts, "+")
	switch {
	case o.Disp < 0:
		s += fmt.Sprintf("-%#x", uint64(-o.Disp))
	case o.Disp > 0 && s != "":
		s += fmt.Sprintf("+%#x", o.Disp)
	case o.Disp > 0 || s == "":
		s += fmt.Sprintf("%#x", o.Disp)
	}
	return fmt.Sprintf("[%s]:%d", s, o.Size*8)
}

// ImmediateOperand is an immediate value or a signed branch displacement.
type ImmediateOperand struct {
	Value int64
	Width uint
}

func (ImmediateOperand) IsMemory() bool                { return false }
func (ImmediateOperand) EffectiveAddressInputs() []Reg { return nil }

func (o ImmediateOperand) String() string {
	if o.Value < 0 {
		return fmt.Sprintf("-%#x:%d", uint64(-o.Value), o.Width)
	}
	return fmt.Sprintf("%#x:%d", o.Value, o.Width)
}
