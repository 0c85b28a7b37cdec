package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Reg identifies a 64-bit architectural register.
type Reg uint8

const (
	RegNone Reg = iota
	RAX
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
)

var regNames = [...]string{
	RegNone: "none",
	RAX:     "rax",
	RCX:     "rcx",
	RDX:     "rdx",
	RBX:     "rbx",
	RSP:     "rsp",
	RBP:     "rbp",
	RSI:     "rsi",
	RDI:     "rdi",
	R8:      "r8",
	R9:      "r9",
	R10:     "r10",
	R11:     "r11",
	R12:     "r12",
	R13:     "r13",
	R14:     "r14",
	R15:     "r15",
	RIP:     "rip",
}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("reg%d", uint8(r))
}

// Registers lists every architectural register tracked by the symbolic
// state, in encoding order.
func Registers() []Reg {
	regs := make([]Reg, 0, RIP)
	for r := RAX; r <= RIP; r++ {
		regs = append(regs, r)
	}
	return regs
}

// RegWidth is the width in bits of every architectural register.
const RegWidth = 64

var gprs = [16]Reg{RAX, RCX, RDX, RBX, RSP, RBP, RSI, RDI, R8, R9, R10, R11, R12, R13, R14, R15}

// x86asm register views, indexed like gprs.
var (
	asm64 = [16]x86asm.Reg{
		x86asm.RAX, x86asm.RCX, x86asm.RDX, x86asm.RBX, x86asm.RSP, x86asm.RBP, x86asm.RSI, x86asm.RDI,
		x86asm.R8, x86asm.R9, x86asm.R10, x86asm.R11, x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15,
	}
	asm32 = [16]x86asm.Reg{
		x86asm.EAX, x86asm.ECX, x86asm.EDX, x86asm.EBX, x86asm.ESP, x86asm.EBP, x86asm.ESI, x86asm.EDI,
		x86asm.R8L, x86asm.R9L, x86asm.R10L, x86asm.R11L, x86asm.R12L, x86asm.R13L, x86asm.R14L, x86asm.R15L,
	}
	asm16 = [16]x86asm.Reg{
		x86asm.AX, x86asm.CX, x86asm.DX, x86asm.BX, x86asm.SP, x86asm.BP, x86asm.SI, x86asm.DI,
		x86asm.R8W, x86asm.R9W, x86asm.R10W, x86asm.R11W, x86asm.R12W, x86asm.R13W, x86asm.R14W, x86asm.R15W,
	}
	asm8 = [16]x86asm.Reg{
		x86asm.AL, x86asm.CL, x86asm.DL, x86asm.BL, x86asm.SPB, x86asm.BPB, x86asm.SIB, x86asm.DIB,
		x86asm.R8B, x86asm.R9B, x86asm.R10B, x86asm.R11B, x86asm.R12B, x86asm.R13B, x86asm.R14B, x86asm.R15B,
	}
)

// regViews maps every supported x86asm register to the architectural
// register it aliases and the bit range it covers.
var regViews = buildRegViews()

func buildRegViews() map[x86asm.Reg]RegisterOperand {
	m := make(map[x86asm.Reg]RegisterOperand, 16*4+7)
	for i, r := range gprs {
		m[asm64[i]] = RegisterOperand{Reg: r, Width: 64}
		m[asm32[i]] = RegisterOperand{Reg: r, Width: 32}
		m[asm16[i]] = RegisterOperand{Reg: r, Width: 16}
		m[asm8[i]] = RegisterOperand{Reg: r, Width: 8}
	}
	// legacy high-byte registers
	m[x86asm.AH] = RegisterOperand{Reg: RAX, Width: 8, Shift: 8}
	m[x86asm.CH] = RegisterOperand{Reg: RCX, Width: 8, Shift: 8}
	m[x86asm.DH] = RegisterOperand{Reg: RDX, Width: 8, Shift: 8}
	m[x86asm.BH] = RegisterOperand{Reg: RBX, Width: 8, Shift: 8}

	m[x86asm.RIP] = RegisterOperand{Reg: RIP, Width: 64}
	m[x86asm.EIP] = RegisterOperand{Reg: RIP, Width: 32}
	m[x86asm.IP] = RegisterOperand{Reg: RIP, Width: 16}
	return m
}

// registerView resolves an x86asm register to its architectural view.
func registerView(r x86asm.Reg) (RegisterOperand, bool) {
	v, ok := regViews[r]
	return v, ok
}
