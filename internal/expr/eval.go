package expr

import (
	"errors"
	"fmt"

	"symtrace/internal/disasm"
)

// ErrUnbound is returned by Eval when a register or memory location has no
// concrete value in the valuation.
var ErrUnbound = errors.New("unbound symbol")

// Valuation assigns concrete values to the free symbols of an expression.
type Valuation struct {
	Registers map[disasm.Reg]uint64

	// Memory returns size bytes at addr, little-endian. It may be nil.
	Memory func(addr uint64, size uint) (uint64, bool)
}

// Eval computes the concrete value of e under v.
func Eval(e Expr, v Valuation) (uint64, error) {
	switch e := e.(type) {
	case *Constant:
		return e.Value, nil

	case *RegisterRef:
		x, ok := v.Registers[e.Reg]
		if !ok {
			return 0, fmt.Errorf("register %s: %w", e.Reg, ErrUnbound)
		}
		return x & mask(e.Width), nil

	case *MemoryRef:
		addr, err := Eval(e.Addr, v)
		if err != nil {
			return 0, err
		}
		if v.Memory == nil {
			return 0, fmt.Errorf("memory at %#x: %w", addr, ErrUnbound)
		}
		x, ok := v.Memory(addr, e.Size)
		if !ok {
			return 0, fmt.Errorf("memory at %#x: %w", addr, ErrUnbound)
		}
		return x & mask(e.Size*8), nil

	case *BinaryExpr:
		x, err := Eval(e.LHS, v)
		if err != nil {
			return 0, err
		}
		y, err := Eval(e.RHS, v)
		if err != nil {
			return 0, err
		}
		return fold(e.Op, x, y, Width(e.LHS)), nil

	case *Extract:
		x, err := Eval(e.Expr, v)
		if err != nil {
			return 0, err
		}
		return (x >> e.Low) & mask(e.High-e.Low+1), nil

	case *Concat:
		var acc uint64
		for _, p := range e.Parts {
			x, err := Eval(p, v)
			if err != nil {
				return 0, err
			}
			w := Width(p)
			if w >= 64 {
				acc = x
			} else {
				acc = acc<<w | x
			}
		}
		return acc, nil
	}
	return 0, fmt.Errorf("eval: unexpected expression %T", e)
}
