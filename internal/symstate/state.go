// Package symstate holds the symbolic machine state of a trace: the current
// expression of every architectural register and of every written memory
// range.
package symstate

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/immutable"

	"symtrace/internal/disasm"
	"symtrace/internal/expr"
)

var (
	// ErrPartialOverlap means a memory range intersects a mapped range
	// without matching it exactly.
	ErrPartialOverlap = errors.New("partial overlap")

	// ErrInvalidRange means a range is empty, too wide or wraps around
	// the address space.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidWrite means a register write does not cover a full
	// architectural register.
	ErrInvalidWrite = errors.New("invalid register write")
)

// MaxAccessSize is the widest memory range in bytes.
const MaxAccessSize = expr.MaxWidth / 8

// Range is Size bytes of memory starting at Start.
type Range struct {
	Start uint64
	Size  uint
}

// End returns the first address past the range.
func (r Range) End() uint64 { return r.Start + uint64(r.Size) }

// last returns the address of the final byte. Size must be non-zero.
func (r Range) last() uint64 { return r.Start + uint64(r.Size) - 1 }

// Overlaps reports whether r and o share at least one byte.
func (r Range) Overlaps(o Range) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}
	return r.Start <= o.last() && o.Start <= r.last()
}

func (r Range) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Start, r.End())
}

func (r Range) validate() error {
	// End wraps to 0 for a range touching the top of the address space.
	if r.Size == 0 || r.Size > MaxAccessSize || r.last() < r.Start {
		return fmt.Errorf("%s: %w", r, ErrInvalidRange)
	}
	return nil
}

// StateError reports a rejected state access.
type StateError struct {
	Op       string // "read" or "write"
	Range    Range
	Existing Range
	Err      error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s memory %s: %v with %s", e.Op, e.Range, e.Err, e.Existing)
}

func (e *StateError) Unwrap() error { return e.Err }

// RegisterEntry is the current expression of a register.
type RegisterEntry struct {
	Reg  disasm.Reg
	Expr expr.Expr
}

// MemoryEntry is the current expression of a written memory range.
type MemoryEntry struct {
	Range Range
	Expr  expr.Expr
}

// State maps registers and memory ranges to symbolic expressions. The
// maps are persistent, so Clone is cheap and clones never observe later
// writes. A State must not be mutated from more than one goroutine.
type State struct {
	b    *expr.Builder
	regs *immutable.SortedMap // disasm.Reg -> expr.Expr
	mem  *immutable.SortedMap // uint64 -> MemoryEntry
	init *immutable.SortedMap
}

// New returns a state in which every register holds a fresh reference to
// its initial value and no memory is mapped.
func New(b *expr.Builder) *State {
	regs := immutable.NewSortedMap(&regComparer{})
	for _, r := range disasm.Registers() {
		regs = regs.Set(r, b.Reg(r, disasm.RegWidth))
	}
	return &State{
		b:    b,
		regs: regs,
		mem:  immutable.NewSortedMap(&uint64Comparer{}),
		init: regs,
	}
}

// Builder returns the expression builder the state was created with.
func (s *State) Builder() *expr.Builder { return s.b }

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	other := *s
	return &other
}

// Update runs fn against a copy of the state and keeps the copy only when
// fn succeeds, so a failing sequence of writes leaves s untouched.
func (s *State) Update(fn func(tx *State) error) error {
	tx := s.Clone()
	if err := fn(tx); err != nil {
		return err
	}
	*s = *tx
	return nil
}

// Reset restores the initial state.
func (s *State) Reset() {
	s.regs = s.init
	s.mem = immutable.NewSortedMap(&uint64Comparer{})
}

// Read returns the current expression of r. Registers that were never
// written hold their initial reference.
func (s *State) Read(r disasm.Reg) expr.Expr {
	if v, ok := s.regs.Get(r); ok {
		return v.(expr.Expr)
	}
	// not an architectural register; still a valid fresh symbol
	return s.b.Reg(r, disasm.RegWidth)
}

// Write replaces the expression of r.
func (s *State) Write(r disasm.Reg, e expr.Expr) error {
	if _, ok := s.regs.Get(r); !ok {
		return fmt.Errorf("register %s: %w", r, ErrInvalidWrite)
	}
	if w := expr.Width(e); w != disasm.RegWidth {
		return fmt.Errorf("register %s with %d-bit value: %w", r, w, ErrInvalidWrite)
	}
	s.regs = s.regs.Set(r, e)
	return nil
}

// Written reports whether r holds something other than its initial
// reference.
func (s *State) Written(r disasm.Reg) bool {
	cur, _ := s.regs.Get(r)
	orig, _ := s.init.Get(r)
	return cur != orig
}

// ReadMemory returns the expression stored for exactly rng, or a fresh
// reference to the memory when nothing overlaps rng.
func (s *State) ReadMemory(rng Range) (expr.Expr, error) {
	if err := rng.validate(); err != nil {
		return nil, err
	}
	for _, ent := range s.overlapping(rng) {
		if ent.Range == rng {
			return ent.Expr, nil
		}
		return nil, &StateError{Op: "read", Range: rng, Existing: ent.Range, Err: ErrPartialOverlap}
	}
	return s.b.Mem(s.b.Const(rng.Start, disasm.RegWidth), rng.Size)
}

// WriteMemory maps rng to e. It replaces an entry for the identical range
// and fails with ErrPartialOverlap if rng intersects any other entry.
func (s *State) WriteMemory(rng Range, e expr.Expr) error {
	if err := rng.validate(); err != nil {
		return err
	}
	if w := expr.Width(e); w != rng.Size*8 {
		return fmt.Errorf("write %d-bit value to %s: %w", w, rng, expr.ErrWidth)
	}
	for _, ent := range s.overlapping(rng) {
		if ent.Range != rng {
			return &StateError{Op: "write", Range: rng, Existing: ent.Range, Err: ErrPartialOverlap}
		}
	}
	s.mem = s.mem.Set(rng.Start, MemoryEntry{Range: rng, Expr: e})
	return nil
}

// overlapping returns the entries sharing a byte with rng, by address.
func (s *State) overlapping(rng Range) []MemoryEntry {
	// entries are at most MaxAccessSize wide, so nothing starting earlier
	// than this can reach rng
	from := uint64(0)
	if rng.Start >= MaxAccessSize {
		from = rng.Start - (MaxAccessSize - 1)
	}

	var out []MemoryEntry
	itr := s.mem.Iterator()
	for itr.Seek(from); !itr.Done(); {
		_, v := itr.Next()
		ent := v.(MemoryEntry)
		if ent.Range.Start > rng.last() {
			break
		}
		if ent.Range.Overlaps(rng) {
			out = append(out, ent)
		}
	}
	return out
}

// Registers returns the current expression of every register.
func (s *State) Registers() []RegisterEntry {
	out := make([]RegisterEntry, 0, s.regs.Len())
	itr := s.regs.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		out = append(out, RegisterEntry{Reg: k.(disasm.Reg), Expr: v.(expr.Expr)})
	}
	return out
}

// Memory returns the mapped memory ranges by address.
func (s *State) Memory() []MemoryEntry {
	out := make([]MemoryEntry, 0, s.mem.Len())
	itr := s.mem.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		out = append(out, v.(MemoryEntry))
	}
	return out
}

// regComparer orders registers by id. Implements immutable.Comparer.
type regComparer struct{}

func (c *regComparer) Compare(a, b interface{}) int {
	if i, j := a.(disasm.Reg), b.(disasm.Reg); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

// uint64Comparer compares two 64-bit unsigned integers. Implements immutable.Comparer.
type uint64Comparer struct{}

func (c *uint64Comparer) Compare(a, b interface{}) int {
	if i, j := a.(uint64), b.(uint64); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
