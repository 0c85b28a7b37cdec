// Package semantics maps decoded instructions to symbolic assignments.
//
// Each instruction class has one transfer function (Handler). Apply never
// mutates the state it reads; Commit applies the resulting assignments.
package semantics

import (
	"errors"
	"fmt"
	"sort"

	"symtrace/internal/disasm"
	"symtrace/internal/expr"
	"symtrace/internal/symstate"
)

var (
	// ErrUnhandledClass means no handler is registered for the class of
	// the instruction.
	ErrUnhandledClass = errors.New("unhandled instruction class")

	// ErrSymbolicAddress means a store address does not reduce to a
	// constant, so no memory range can be keyed for it.
	ErrSymbolicAddress = errors.New("symbolic store address")

	// ErrMalformed means the operands do not match the instruction class.
	ErrMalformed = errors.New("malformed operands")
)

// SemanticsError reports a failure to compute the effect of an
// instruction.
type SemanticsError struct {
	Addr  uint64
	Class disasm.Class
	Err   error
}

func (e *SemanticsError) Error() string {
	return fmt.Sprintf("semantics %#x (%s): %v", e.Addr, e.Class, e.Err)
}

func (e *SemanticsError) Unwrap() error { return e.Err }

// Destination is a RegisterDest or a MemoryDest.
type Destination interface {
	String() string
	destination()
}

func (RegisterDest) destination() {}
func (MemoryDest) destination()   {}

// RegisterDest targets a full architectural register.
type RegisterDest struct {
	Reg disasm.Reg
}

func (d RegisterDest) String() string { return d.Reg.String() }

// MemoryDest targets a concrete memory range.
type MemoryDest struct {
	Range symstate.Range
}

func (d MemoryDest) String() string {
	return fmt.Sprintf("[@%#x]:%d", d.Range.Start, d.Range.Size*8)
}

// Assignment gives Dest a new expression.
type Assignment struct {
	ID   int // position in the trace, set by the trace driver
	Dest Destination
	Expr expr.Expr
}

func (a Assignment) String() string {
	return fmt.Sprintf("ref!%d = %s <- %s", a.ID, a.Dest, a.Expr)
}

// BranchHint describes a conditional branch. The condition itself is not
// modelled; Condition is the mnemonic.
type BranchHint struct {
	Address     uint64
	Target      uint64
	Fallthrough uint64
	Condition   string
}

// Effect is the outcome of one instruction.
type Effect struct {
	Assignments []Assignment
	Branch      *BranchHint

	// Loads lists the concrete memory ranges the instruction read.
	Loads []symstate.Range
}

// Handler is the transfer function of one instruction class. It must not
// modify st.
type Handler func(b *expr.Builder, inst disasm.Instruction, st *symstate.State) (*Effect, error)

// Engine dispatches instructions to the handler of their class.
type Engine struct {
	handlers map[disasm.Class]Handler
}

// NewEngine returns an engine with a handler for every class the decoder
// produces.
func NewEngine() *Engine {
	e := &Engine{handlers: make(map[disasm.Class]Handler, len(defaultHandlers))}
	for class, h := range defaultHandlers {
		if h != nil {
			e.handlers[disasm.Class(class)] = h
		}
	}
	return e
}

// Register installs h for class, replacing any previous handler.
func (e *Engine) Register(class disasm.Class, h Handler) {
	if h == nil {
		delete(e.handlers, class)
		return
	}
	e.handlers[class] = h
}

// Classes returns the classes with a registered handler.
func (e *Engine) Classes() []disasm.Class {
	classes := make([]disasm.Class, 0, len(e.handlers))
	for c := range e.handlers {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}

// Apply computes the effect of inst on st without modifying st.
func (e *Engine) Apply(inst disasm.Instruction, st *symstate.State) (*Effect, error) {
	h, ok := e.handlers[inst.Class]
	if !ok {
		return nil, &SemanticsError{Addr: inst.Address, Class: inst.Class, Err: ErrUnhandledClass}
	}
	eff, err := h(st.Builder(), inst, st)
	if err != nil {
		return nil, &SemanticsError{Addr: inst.Address, Class: inst.Class, Err: err}
	}
	if eff == nil {
		eff = &Effect{}
	}
	return eff, nil
}

// Commit applies assignments to st in order. Either all of them take
// effect or, on error, none do.
func Commit(st *symstate.State, assignments []Assignment) error {
	return st.Update(func(tx *symstate.State) error {
		for _, a := range assignments {
			switch d := a.Dest.(type) {
			case RegisterDest:
				if err := tx.Write(d.Reg, a.Expr); err != nil {
					return err
				}
			case MemoryDest:
				if err := tx.WriteMemory(d.Range, a.Expr); err != nil {
					return err
				}
			default:
				return fmt.Errorf("assignment to %T: %w", a.Dest, ErrMalformed)
			}
		}
		return nil
	})
}
