package expr

import (
	"errors"
	"fmt"
	"sync"

	"symtrace/internal/disasm"
)

// ErrWidth is returned when operand widths are invalid or do not match.
var ErrWidth = errors.New("width mismatch")

// BuilderStats reports hash-consing activity.
type BuilderStats struct {
	Lookups  uint
	Hits     uint
	Interned uint
}

// Builder constructs expressions with local simplification and interns
// every node in an append-only pool, so structurally equal expressions
// built by the same Builder are the same pointer. A Builder is safe for
// concurrent use; the expressions it returns are immutable.
type Builder struct {
	mu    sync.RWMutex
	pool  map[uint64][]Expr
	stats BuilderStats
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{pool: make(map[uint64][]Expr)}
}

// Stats returns a copy of the pool counters.
func (b *Builder) Stats() BuilderStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// intern returns the pooled node structurally equal to e, adding e if
// there is none.
func (b *Builder) intern(e Expr) Expr {
	h := Hash(e)

	b.mu.RLock()
	for _, x := range b.pool[h] {
		if Equal(x, e) {
			b.mu.RUnlock()
			b.mu.Lock()
			b.stats.Lookups++
			b.stats.Hits++
			b.mu.Unlock()
			return x
		}
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Lookups++
	// another goroutine may have interned it in between
	for _, x := range b.pool[h] {
		if Equal(x, e) {
			b.stats.Hits++
			return x
		}
	}
	b.pool[h] = append(b.pool[h], e)
	b.stats.Interned++
	return e
}

// Reg returns the symbolic reference to the initial value of r.
func (b *Builder) Reg(r disasm.Reg, width uint) Expr {
	return b.intern(&RegisterRef{Reg: r, Width: width})
}

// Const returns a constant of the given width. Bits above width are
// discarded. Widths above MaxWidth are clamped.
func (b *Builder) Const(v uint64, width uint) Expr {
	if width > MaxWidth {
		width = MaxWidth
	}
	return b.intern(&Constant{Value: v & mask(width), Width: width})
}

// Mem returns a reference to size bytes of memory at addr.
func (b *Builder) Mem(addr Expr, size uint) (Expr, error) {
	if size == 0 || size*8 > MaxWidth {
		return nil, fmt.Errorf("memory access of %d bytes: %w", size, ErrWidth)
	}
	return b.intern(&MemoryRef{Addr: addr, Size: size}), nil
}

// Add returns lhs + rhs.
func (b *Builder) Add(lhs, rhs Expr) (Expr, error) { return b.Binary(ADD, lhs, rhs) }

// Mul returns lhs * rhs.
func (b *Builder) Mul(lhs, rhs Expr) (Expr, error) { return b.Binary(MUL, lhs, rhs) }

// Binary returns op(lhs, rhs) after local simplification.
func (b *Builder) Binary(op BinaryOp, lhs, rhs Expr) (Expr, error) {
	w := Width(lhs)
	if rw := Width(rhs); rw != w {
		return nil, fmt.Errorf("%s of %d and %d bits: %w", op, w, rw, ErrWidth)
	}

	// Constant folding
	if c1, ok := lhs.(*Constant); ok {
		if c2, ok := rhs.(*Constant); ok {
			return b.Const(fold(op, c1.Value, c2.Value, w), w), nil
		}
		// constants go to the right of commutative operations
		if op.IsCommutative() {
			lhs, rhs = rhs, lhs
		}
	}

	if c, ok := rhs.(*Constant); ok {
		switch {
		case c.Value == 0 && (op == ADD || op == SUB || op == OR || op == XOR || op == SHL || op == LSHR):
			return lhs, nil
		case c.Value == 0 && (op == MUL || op == AND):
			return rhs, nil
		case c.Value == 1 && op == MUL:
			return lhs, nil
		case c.Value == mask(w) && op == AND:
			return lhs, nil
		case c.Value >= uint64(w) && (op == SHL || op == LSHR):
			return b.Const(0, w), nil
		}

		// (x + c1) + c2 => x + (c1 + c2)
		if op == ADD {
			if inner, ok := lhs.(*BinaryExpr); ok && inner.Op == ADD {
				if c1, ok := inner.RHS.(*Constant); ok {
					return b.Binary(ADD, inner.LHS, b.Const(c1.Value+c.Value, w))
				}
			}
		}
	}

	return b.intern(&BinaryExpr{Op: op, LHS: lhs, RHS: rhs}), nil
}

func fold(op BinaryOp, x, y uint64, w uint) uint64 {
	var v uint64
	switch op {
	case ADD:
		v = x + y
	case SUB:
		v = x - y
	case MUL:
		v = x * y
	case AND:
		v = x & y
	case OR:
		v = x | y
	case XOR:
		v = x ^ y
	case SHL:
		if y < uint64(w) {
			v = x << y
		}
	case LSHR:
		if y < uint64(w) {
			v = x >> y
		}
	}
	return v & mask(w)
}

// Extract returns bits [high, low] of e.
func (b *Builder) Extract(high, low uint, e Expr) (Expr, error) {
	w := Width(e)
	if high < low || high >= w {
		return nil, fmt.Errorf("extract [%d:%d] of %d bits: %w", high, low, w, ErrWidth)
	}
	if low == 0 && high == w-1 {
		return e, nil
	}

	switch e := e.(type) {
	case *Constant:
		return b.Const(e.Value>>low, high-low+1), nil
	case *Extract:
		return b.Extract(e.Low+high, e.Low+low, e.Expr)
	case *Concat:
		// bits that fall inside a single part come straight from it
		off := w
		for _, p := range e.Parts {
			pw := Width(p)
			off -= pw
			if low >= off && high < off+pw {
				return b.Extract(high-off, low-off, p)
			}
		}
	}

	return b.intern(&Extract{High: high, Low: low, Expr: e}), nil
}

// Concat joins parts, most significant first.
func (b *Builder) Concat(parts ...Expr) (Expr, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat of nothing: %w", ErrWidth)
	}

	flat := make([]Expr, 0, len(parts))
	for _, p := range parts {
		if c, ok := p.(*Concat); ok {
			flat = append(flat, c.Parts...)
		} else {
			flat = append(flat, p)
		}
	}

	// merge neighbouring constants
	merged := flat[:0:0]
	for _, p := range flat {
		if c, ok := p.(*Constant); ok && len(merged) > 0 {
			if prev, ok := merged[len(merged)-1].(*Constant); ok && prev.Width+c.Width <= MaxWidth {
				merged[len(merged)-1] = b.Const(prev.Value<<c.Width|c.Value, prev.Width+c.Width)
				continue
			}
		}
		merged = append(merged, p)
	}

	if len(merged) == 1 {
		return merged[0], nil
	}
	return b.intern(&Concat{Parts: merged}), nil
}

// ZeroExtend widens e to width bits with zero high bits.
func (b *Builder) ZeroExtend(e Expr, width uint) (Expr, error) {
	w := Width(e)
	switch {
	case width < w:
		return nil, fmt.Errorf("zero-extend %d bits to %d: %w", w, width, ErrWidth)
	case width == w:
		return e, nil
	}
	return b.Concat(b.Const(0, width-w), e)
}
