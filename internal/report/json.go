package report

import (
	"fmt"

	"symtrace/internal/analysis"
	"symtrace/internal/disasm"
	"symtrace/internal/expr"
)

type operandJSON struct {
	Kind  string `json:"kind"`
	Text  string `json:"text"`
	Base  string `json:"base,omitempty"`
	Index string `json:"index,omitempty"`
	Scale uint8  `json:"scale,omitempty"`
	Disp  int64  `json:"disp,omitempty"`
	Size  uint   `json:"size,omitempty"`
	Value *int64 `json:"value,omitempty"`
}

type assignmentJSON struct {
	ID     int      `json:"id"`
	Dest   string   `json:"dest"`
	Expr   string   `json:"expr"`
	Inputs []string `json:"inputs,omitempty"` // registers the expression reads
}

type branchJSON struct {
	Condition   string `json:"condition"`
	Target      string `json:"target"`
	Fallthrough string `json:"fallthrough"`
}

type stepJSON struct {
	Index       int              `json:"index"`
	Address     string           `json:"address"`
	Bytes       string           `json:"bytes"`
	Class       string           `json:"class,omitempty"`
	Text        string           `json:"text,omitempty"`
	Operands    []operandJSON    `json:"operands,omitempty"`
	Assignments []assignmentJSON `json:"assignments,omitempty"`
	Branch      *branchJSON      `json:"branch,omitempty"`
	Annotations []string         `json:"annotations,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type stateEntryJSON struct {
	Location string `json:"location"`
	Expr     string `json:"expr"`
}

type resultJSON struct {
	Steps     []stepJSON       `json:"steps"`
	Failed    int              `json:"failed"`
	Registers []stateEntryJSON `json:"registers"`
	Memory    []stateEntryJSON `json:"memory"`
}

func newStepJSON(s *analysis.Step) stepJSON {
	out := stepJSON{
		Index:       s.Index,
		Address:     fmt.Sprintf("%#x", s.Entry.Address),
		Bytes:       hexBytes(s.Entry.Bytes),
		Annotations: s.Annotations,
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	if !s.Decoded() {
		return out
	}

	inst := s.Instruction
	out.Bytes = inst.Hex()
	out.Class = inst.Class.String()
	out.Text = inst.Text
	for _, op := range inst.Operands {
		out.Operands = append(out.Operands, newOperandJSON(op))
	}
	for _, a := range s.Assignments {
		aj := assignmentJSON{ID: a.ID, Dest: a.Dest.String(), Expr: a.Expr.String()}
		for _, r := range expr.Inputs(a.Expr) {
			aj.Inputs = append(aj.Inputs, r.String())
		}
		out.Assignments = append(out.Assignments, aj)
	}
	if b := s.Branch; b != nil {
		out.Branch = &branchJSON{
			Condition:   b.Condition,
			Target:      fmt.Sprintf("%#x", b.Target),
			Fallthrough: fmt.Sprintf("%#x", b.Fallthrough),
		}
	}
	return out
}

func newOperandJSON(op disasm.Operand) operandJSON {
	out := operandJSON{Text: op.String()}
	switch op := op.(type) {
	case disasm.RegisterOperand:
		out.Kind = "register"
	case disasm.MemoryOperand:
		out.Kind = "memory"
		if !op.Base.IsZero() {
			out.Base = op.Base.String()
		}
		if !op.Index.IsZero() {
			out.Index = op.Index.String()
		}
		out.Scale = op.Scale
		out.Disp = op.Disp
		out.Size = op.Size
	case disasm.ImmediateOperand:
		out.Kind = "immediate"
		v := op.Value
		out.Value = &v
	}
	return out
}

func newResultJSON(res *analysis.Result) resultJSON {
	out := resultJSON{
		Steps:     make([]stepJSON, 0, len(res.Steps)),
		Failed:    res.Failed,
		Registers: []stateEntryJSON{},
		Memory:    []stateEntryJSON{},
	}
	for _, s := range res.Steps {
		out.Steps = append(out.Steps, newStepJSON(s))
	}
	if res.State == nil {
		return out
	}
	for _, r := range res.State.Registers() {
		if res.State.Written(r.Reg) {
			out.Registers = append(out.Registers, stateEntryJSON{Location: r.Reg.String(), Expr: r.Expr.String()})
		}
	}
	for _, m := range res.State.Memory() {
		out.Memory = append(out.Memory, stateEntryJSON{Location: m.Range.String(), Expr: m.Expr.String()})
	}
	return out
}
