// Package disasm decodes raw x86-64 machine code into structured
// instructions and models their operands.
//
// Only a small subset of the instruction set is classified; everything
// else is reported as ErrUnsupportedEncoding so that callers can skip the
// entry or abort the trace.
package disasm

import (
	"fmt"
	"strings"
)

// Class is the semantic class of a decoded instruction. Each class has
// exactly one transfer function in the semantics engine.
type Class int

const (
	ClassInvalid Class = iota
	MovRegFromMem
	LeaRegFromScaledAddr
	JccConditional
	MovRegFromReg
	MovRegFromImm
	MovMemFromReg

	// NumClasses is one past the last declared class.
	NumClasses
)

var classNames = [...]string{
	ClassInvalid:         "Invalid",
	MovRegFromMem:        "MovRegFromMem",
	LeaRegFromScaledAddr: "LeaRegFromScaledAddr",
	JccConditional:       "JccConditional",
	MovRegFromReg:        "MovRegFromReg",
	MovRegFromImm:        "MovRegFromImm",
	MovMemFromReg:        "MovMemFromReg",
}

func (c Class) String() string {
	if c >= 0 && int(c) < len(classNames) && classNames[c] != "" {
		return classNames[c]
	}
	return fmt.Sprintf("Class<%d>", int(c))
}

// MaxInstructionLen is the architectural limit on the encoding length.
const MaxInstructionLen = 15

// Instruction is a decoded instruction. It is never modified after Decode
// returns it.
type Instruction struct {
	Address  uint64    // virtual address of the first byte
	Bytes    []byte    // exactly the bytes consumed by the decoder
	Length   int       // len(Bytes)
	Class    Class     // semantic class
	Mnemonic string    // lowercase mnemonic, e.g. "mov", "ja"
	Text     string    // Intel syntax rendering, informational only
	Operands []Operand // destination first
}

// Next returns the address of the instruction that follows in memory.
func (i Instruction) Next() uint64 {
	return i.Address + uint64(i.Length)
}

// String formats the instruction as "addr: text".
func (i Instruction) String() string {
	return fmt.Sprintf("%#x: %s", i.Address, i.Text)
}

// Hex returns the instruction bytes as space-separated hex pairs.
func (i Instruction) Hex() string {
	parts := make([]string, len(i.Bytes))
	for n, b := range i.Bytes {
		parts[n] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}
