// Package analysis drives symbolic execution over a trace: each entry is
// decoded, its semantics applied to the symbolic state, and the resulting
// step handed to the detector chain.
package analysis

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"symtrace/internal/disasm"
	"symtrace/internal/expr"
	"symtrace/internal/logging"
	"symtrace/internal/semantics"
	"symtrace/internal/symstate"
)

// Option configures a Tracer.
type Option func(*Tracer)

// WithPolicy sets the error policy used by Run. The default is Halt.
func WithPolicy(p ErrorPolicy) Option {
	return func(t *Tracer) { t.policy = p }
}

// WithLogger sets the logger. Steps are logged at debug level, failures
// at warn.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracer) { t.logger = l }
}

// WithBuilder shares an expression builder between tracers.
func WithBuilder(b *expr.Builder) Option {
	return func(t *Tracer) { t.b = b }
}

// WithEngine replaces the default semantics engine.
func WithEngine(e *semantics.Engine) Option {
	return func(t *Tracer) { t.engine = e }
}

// WithDetectors sets the detectors run after every step.
func WithDetectors(d ...Detector) Option {
	return func(t *Tracer) { t.chain = NewDetectorChain(d...) }
}

// Tracer executes one trace at a time. It owns its symbolic state and is
// not safe for concurrent use; independent traces need their own Tracer.
type Tracer struct {
	b      *expr.Builder
	engine *semantics.Engine
	dec    *disasm.Decoder
	state  *symstate.State
	chain  *DetectorChain
	policy ErrorPolicy
	logger *log.Logger

	index  int // next step index
	nextID int // next assignment ID
}

// NewTracer returns a Tracer positioned at the start of a trace.
func NewTracer(opts ...Option) *Tracer {
	t := &Tracer{dec: disasm.NewDecoder(), policy: Halt}
	for _, opt := range opts {
		opt(t)
	}
	if t.b == nil {
		t.b = expr.NewBuilder()
	}
	if t.engine == nil {
		t.engine = semantics.NewEngine()
	}
	if t.chain == nil {
		t.chain = NewDetectorChain()
	}
	if t.logger == nil {
		t.logger = logging.Discard()
	}
	t.state = symstate.New(t.b)
	return t
}

// Builder returns the expression builder of the tracer.
func (t *Tracer) Builder() *expr.Builder { return t.b }

// State returns the live symbolic state. It must not be modified.
func (t *Tracer) State() *symstate.State { return t.state }

// Reset starts a new trace: the state returns to its initial values and
// step and assignment numbering restart at zero.
func (t *Tracer) Reset() {
	t.state.Reset()
	t.chain.Reset()
	t.index = 0
	t.nextID = 0
}

// Step decodes e and applies it to the state. On error the state is left
// as it was and the returned step carries the error as well.
func (t *Tracer) Step(e Entry) (*Step, error) {
	s := &Step{Index: t.index, Entry: e}
	t.index++

	if err := t.step(s); err != nil {
		s.Err = err
		t.logger.Warn("step failed", "index", s.Index, "addr", fmt.Sprintf("%#x", e.Address), "err", err)
		t.chain.Detect(s)
		return s, err
	}

	t.chain.Detect(s)
	t.logger.Debug("step",
		"index", s.Index,
		"addr", fmt.Sprintf("%#x", s.Instruction.Address),
		"inst", s.Instruction.Text,
		"class", s.Instruction.Class,
		"assignments", len(s.Assignments))
	return s, nil
}

func (t *Tracer) step(s *Step) error {
	e := s.Entry
	inst, err := t.dec.DecodeDeclared(e.Bytes, e.Address, e.Length)
	if err != nil {
		return err
	}
	s.Instruction = inst
	if e.Length > 0 && inst.Length < e.Length {
		s.Annotate("decoded %d of %d declared bytes", inst.Length, e.Length)
		t.logger.Warn("declared length exceeds instruction", "addr", fmt.Sprintf("%#x", e.Address),
			"declared", e.Length, "decoded", inst.Length)
	}

	eff, err := t.engine.Apply(inst, t.state)
	if err != nil {
		return err
	}
	if err := semantics.Commit(t.state, eff.Assignments); err != nil {
		return fmt.Errorf("commit %#x: %w", inst.Address, err)
	}

	for i := range eff.Assignments {
		eff.Assignments[i].ID = t.nextID
		t.nextID++
	}
	s.Assignments = eff.Assignments
	s.Branch = eff.Branch
	s.Loads = eff.Loads
	return nil
}

// Run feeds entries to the tracer in order. With the Halt policy it stops
// at the first error and returns the steps so far together with it. With
// Skip, failed steps are recorded in the result and the trace goes on.
// Cancelling ctx stops the trace between steps.
func (t *Tracer) Run(ctx context.Context, entries []Entry) (*Result, error) {
	res := &Result{Steps: make([]*Step, 0, len(entries))}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			res.State = t.state.Clone()
			return res, err
		}
		s, err := t.Step(e)
		res.Steps = append(res.Steps, s)
		if err != nil {
			res.Failed++
			if t.policy == Halt {
				res.State = t.state.Clone()
				return res, err
			}
		}
	}
	res.State = t.state.Clone()
	return res, nil
}
