package analysis

import (
	"fmt"

	"symtrace/internal/disasm"
	"symtrace/internal/semantics"
	"symtrace/internal/symstate"
)

// Entry is one record of a trace: the bytes found at Address and the
// length the producer of the trace declared for them. A Length of 0 means
// the length is not known and the decoder decides.
type Entry struct {
	Address uint64
	Bytes   []byte
	Length  int
}

// ErrorPolicy decides what Run does when a step fails.
type ErrorPolicy int

const (
	// Halt stops at the first failing step and returns the partial result.
	Halt ErrorPolicy = iota
	// Skip records the error on the step and continues with the next entry.
	Skip
)

func (p ErrorPolicy) String() string {
	switch p {
	case Halt:
		return "halt"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("ErrorPolicy(%d)", int(p))
}

// Step is the outcome of feeding one entry to the Tracer.
type Step struct {
	Index       int
	Entry       Entry
	Instruction disasm.Instruction

	// Assignments are the expressions created by this step, in order.
	// Their IDs keep increasing across the whole trace.
	Assignments []semantics.Assignment
	Branch      *semantics.BranchHint
	Loads       []symstate.Range

	Annotations []string // Comments added by the tracer and detectors
	Err         error
}

// Annotate adds a comment to the step.
func (s *Step) Annotate(format string, args ...interface{}) {
	s.Annotations = append(s.Annotations, fmt.Sprintf(format, args...))
}

// Decoded reports whether the entry produced an instruction.
func (s *Step) Decoded() bool {
	return s.Instruction.Length > 0
}

// Result is the outcome of Run.
type Result struct {
	Steps  []*Step
	State  *symstate.State // snapshot taken when Run returned
	Failed int             // steps with a non-nil Err
}
