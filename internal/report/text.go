package report

import (
	"fmt"
	"strings"

	"symtrace/internal/analysis"
	"symtrace/internal/disasm"
)

// stepText lays a step out like this:
//
//	0x400000: mov rax, qword ptr [rip+0x13b8]
//		Operand 0: rax
//		Operand 1: [rip+0x13b8]:64
//		   base  : rip
//		   index : none
//		   disp  : 0x13b8
//		   scale : 1
//		-------
//		SymExpr 0: ref!0 = rax <- [@0x4013bf]:64
func (rw *Writer) stepText(s *analysis.Step) string {
	th := rw.theme
	var sb strings.Builder

	if !s.Decoded() {
		fmt.Fprintf(&sb, "%s\n", rw.colorizer.Instruction(s.Entry.Address, hexBytes(s.Entry.Bytes)))
	} else {
		fmt.Fprintf(&sb, "%s\n", rw.colorizer.Instruction(s.Instruction.Address, s.Instruction.Text))
		for i, op := range s.Instruction.Operands {
			fmt.Fprintf(&sb, "\t%s %s\n", th.Label.Render(fmt.Sprintf("Operand %d:", i)), op)
			if m, ok := op.(disasm.MemoryOperand); ok {
				fmt.Fprintf(&sb, "\t   %s %s\n", th.Label.Render("base  :"), m.Base)
				fmt.Fprintf(&sb, "\t   %s %s\n", th.Label.Render("index :"), m.Index)
				fmt.Fprintf(&sb, "\t   %s %s\n", th.Label.Render("disp  :"), signedHex(m.Disp))
				fmt.Fprintf(&sb, "\t   %s %d\n", th.Label.Render("scale :"), m.Scale)
			}
		}
	}

	fmt.Fprintf(&sb, "\t%s\n", th.Rule.Render("-------"))

	for i, a := range s.Assignments {
		fmt.Fprintf(&sb, "\t%s %s = %s <- %s\n",
			th.Label.Render(fmt.Sprintf("SymExpr %d:", i)),
			th.Ref.Render(fmt.Sprintf("ref!%d", a.ID)),
			a.Dest,
			th.Expr.Render(a.Expr.String()))
	}
	if b := s.Branch; b != nil {
		fmt.Fprintf(&sb, "\t%s\n", th.Branch.Render(fmt.Sprintf("Branch: %s taken %#x, fall-through %#x", b.Condition, b.Target, b.Fallthrough)))
	}
	for _, note := range s.Annotations {
		fmt.Fprintf(&sb, "\t%s\n", th.Annotation.Render("; "+note))
	}
	if s.Err != nil {
		fmt.Fprintf(&sb, "\t%s\n", th.Error.Render("error: "+s.Err.Error()))
	}

	sb.WriteString("\n\n")
	return sb.String()
}

func (rw *Writer) stateText(res *analysis.Result) string {
	th := rw.theme
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", th.Label.Render(fmt.Sprintf("State after %d steps (%d failed):", len(res.Steps), res.Failed)))
	if res.State == nil {
		return sb.String()
	}
	for _, r := range res.State.Registers() {
		if res.State.Written(r.Reg) {
			fmt.Fprintf(&sb, "\t%-8s = %s\n", r.Reg, th.Expr.Render(r.Expr.String()))
		}
	}
	for _, m := range res.State.Memory() {
		fmt.Fprintf(&sb, "\t%-8s = %s\n", m.Range, th.Expr.Render(m.Expr.String()))
	}
	return sb.String()
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02x", x)
	}
	return strings.Join(parts, " ")
}

func signedHex(v int64) string {
	if v < 0 {
		return fmt.Sprintf("-%#x", uint64(-v))
	}
	return fmt.Sprintf("%#x", v)
}
