// Package expr implements immutable symbolic bit-vector expressions over
// x86-64 registers and memory.
package expr

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"symtrace/internal/disasm"
)

// Expr represents a symbolic expression. Expressions are values: they are
// never modified after construction and equality is structural.
type Expr interface {
	String() string
	expr()
}

func (*RegisterRef) expr() {}
func (*MemoryRef) expr()   {}
func (*Constant) expr()    {}
func (*BinaryExpr) expr()  {}
func (*Extract) expr()     {}
func (*Concat) expr()      {}

// MaxWidth is the widest bit-vector a Constant can hold.
const MaxWidth = 64

// Width returns the bit width of the expression.
func Width(e Expr) uint {
	switch e := e.(type) {
	case *RegisterRef:
		return e.Width
	case *MemoryRef:
		return e.Size * 8
	case *Constant:
		return e.Width
	case *BinaryExpr:
		return Width(e.LHS)
	case *Extract:
		return e.High - e.Low + 1
	case *Concat:
		var w uint
		for _, p := range e.Parts {
			w += Width(p)
		}
		return w
	default:
		panic(fmt.Sprintf("expr: unexpected expression %T", e))
	}
}

// RegisterRef is the unknown initial value of an architectural register.
type RegisterRef struct {
	Reg   disasm.Reg
	Width uint
}

func (e *RegisterRef) String() string {
	if e.Width == disasm.RegWidth {
		return e.Reg.String()
	}
	return fmt.Sprintf("%s:%d", e.Reg, e.Width)
}

// MemoryRef is the unknown content of Size bytes of memory at Addr.
type MemoryRef struct {
	Addr Expr
	Size uint
}

func (e *MemoryRef) String() string {
	return fmt.Sprintf("[@%s]:%d", e.Addr, e.Size*8)
}

// Constant is a concrete bit-vector. Value never has bits set above Width.
type Constant struct {
	Value uint64
	Width uint
}

func (e *Constant) String() string {
	return fmt.Sprintf("%#x:%d", e.Value, e.Width)
}

// BinaryOp is a binary bit-vector operation.
type BinaryOp int

const (
	ADD BinaryOp = iota + 1
	SUB
	MUL
	AND
	OR
	XOR
	SHL
	LSHR
)

var binaryOps = [...]string{
	ADD:  "add",
	SUB:  "sub",
	MUL:  "mul",
	AND:  "and",
	OR:   "or",
	XOR:  "xor",
	SHL:  "shl",
	LSHR: "lshr",
}

// String returns the string representation of the operation.
func (op BinaryOp) String() string {
	if op > 0 && int(op) < len(binaryOps) && binaryOps[op] != "" {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp<%d>", int(op))
}

// IsCommutative reports whether operands of op can be swapped.
func (op BinaryOp) IsCommutative() bool {
	switch op {
	case ADD, MUL, AND, OR, XOR:
		return true
	}
	return false
}

// BinaryExpr applies Op to two expressions of equal width.
type BinaryExpr struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

// Extract selects bits [High, Low] of Expr.
type Extract struct {
	High uint
	Low  uint
	Expr Expr
}

func (e *Extract) String() string {
	return fmt.Sprintf("(extract %d %d %s)", e.High, e.Low, e.Expr)
}

// Concat joins Parts, most significant first.
type Concat struct {
	Parts []Expr
}

func (e *Concat) String() string {
	parts := make([]string, len(e.Parts))
	for i, p := range e.Parts {
		parts[i] = p.String()
	}
	return "(concat " + strings.Join(parts, " ") + ")"
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Expr) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	switch a := a.(type) {
	case *RegisterRef:
		b, ok := b.(*RegisterRef)
		return ok && a.Reg == b.Reg && a.Width == b.Width
	case *MemoryRef:
		b, ok := b.(*MemoryRef)
		return ok && a.Size == b.Size && Equal(a.Addr, b.Addr)
	case *Constant:
		b, ok := b.(*Constant)
		return ok && a.Value == b.Value && a.Width == b.Width
	case *BinaryExpr:
		b, ok := b.(*BinaryExpr)
		return ok && a.Op == b.Op && Equal(a.LHS, b.LHS) && Equal(a.RHS, b.RHS)
	case *Extract:
		b, ok := b.(*Extract)
		return ok && a.High == b.High && a.Low == b.Low && Equal(a.Expr, b.Expr)
	case *Concat:
		b, ok := b.(*Concat)
		if !ok || len(a.Parts) != len(b.Parts) {
			return false
		}
		for i := range a.Parts {
			if !Equal(a.Parts[i], b.Parts[i]) {
				return false
			}
		}
		return true
	}
	return false
}

const (
	kindRegister byte = iota + 1
	kindMemory
	kindConstant
	kindBinary
	kindExtract
	kindConcat
)

// Hash returns a structural hash: structurally equal expressions hash to
// the same value.
func Hash(e Expr) uint64 {
	d := xxhash.New()
	writeHash(d, e)
	return d.Sum64()
}

func writeHash(d *xxhash.Digest, e Expr) {
	var buf [17]byte
	put := func(kind byte, a, b uint64) {
		buf[0] = kind
		binary.LittleEndian.PutUint64(buf[1:9], a)
		binary.LittleEndian.PutUint64(buf[9:17], b)
		d.Write(buf[:])
	}

	switch e := e.(type) {
	case *RegisterRef:
		put(kindRegister, uint64(e.Reg), uint64(e.Width))
	case *MemoryRef:
		put(kindMemory, uint64(e.Size), 0)
		writeHash(d, e.Addr)
	case *Constant:
		put(kindConstant, e.Value, uint64(e.Width))
	case *BinaryExpr:
		put(kindBinary, uint64(e.Op), 0)
		writeHash(d, e.LHS)
		writeHash(d, e.RHS)
	case *Extract:
		put(kindExtract, uint64(e.High), uint64(e.Low))
		writeHash(d, e.Expr)
	case *Concat:
		put(kindConcat, uint64(len(e.Parts)), 0)
		for _, p := range e.Parts {
			writeHash(d, p)
		}
	}
}

// Walk calls fn for e and each sub-expression in depth-first pre-order.
// Children of a node are skipped when fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch e := e.(type) {
	case *MemoryRef:
		Walk(e.Addr, fn)
	case *BinaryExpr:
		Walk(e.LHS, fn)
		Walk(e.RHS, fn)
	case *Extract:
		Walk(e.Expr, fn)
	case *Concat:
		for _, p := range e.Parts {
			Walk(p, fn)
		}
	}
}

// Inputs returns the distinct registers referenced by e, in order of first
// appearance.
func Inputs(e Expr) []disasm.Reg {
	var regs []disasm.Reg
	seen := make(map[disasm.Reg]bool)
	Walk(e, func(e Expr) bool {
		if r, ok := e.(*RegisterRef); ok && !seen[r.Reg] {
			seen[r.Reg] = true
			regs = append(regs, r.Reg)
		}
		return true
	})
	return regs
}

// IsConstant returns the value of e when it is a Constant.
func IsConstant(e Expr) (uint64, bool) {
	if c, ok := e.(*Constant); ok {
		return c.Value, true
	}
	return 0, false
}

func mask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}
