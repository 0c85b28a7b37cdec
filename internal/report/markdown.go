package report

import (
	"fmt"
	"strings"

	"symtrace/internal/analysis"
	"symtrace/internal/disasm"
)

func writeStepMarkdown(sb *strings.Builder, s *analysis.Step) {
	if !s.Decoded() {
		fmt.Fprintf(sb, "### `%#x` `%s`\n\n", s.Entry.Address, hexBytes(s.Entry.Bytes))
	} else {
		inst := s.Instruction
		fmt.Fprintf(sb, "### `%#x` `%s`\n\n", inst.Address, inst.Text)
		fmt.Fprintf(sb, "*%s*, %d bytes: `%s`\n\n", inst.Class, inst.Length, inst.Hex())
		for i, op := range inst.Operands {
			fmt.Fprintf(sb, "- operand %d: `%s`", i, op)
			if m, ok := op.(disasm.MemoryOperand); ok {
				fmt.Fprintf(sb, " (base `%s`, index `%s`, disp `%s`, scale `%d`)", m.Base, m.Index, signedHex(m.Disp), m.Scale)
			}
			sb.WriteString("\n")
		}
		if len(inst.Operands) > 0 {
			sb.WriteString("\n")
		}
	}

	for _, a := range s.Assignments {
		fmt.Fprintf(sb, "- **ref!%d** `%s` ← `%s`\n", a.ID, a.Dest, a.Expr)
	}
	if b := s.Branch; b != nil {
		fmt.Fprintf(sb, "- branch `%s`: taken `%#x`, fall-through `%#x`\n", b.Condition, b.Target, b.Fallthrough)
	}
	if len(s.Assignments) > 0 || s.Branch != nil {
		sb.WriteString("\n")
	}
	for _, note := range s.Annotations {
		fmt.Fprintf(sb, "> %s\n", note)
	}
	if s.Err != nil {
		fmt.Fprintf(sb, "> **error:** %s\n", s.Err)
	}
	if len(s.Annotations) > 0 || s.Err != nil {
		sb.WriteString("\n")
	}
}

func resultMarkdown(res *analysis.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Symbolic trace\n\n%d steps, %d failed.\n\n", len(res.Steps), res.Failed)
	for _, s := range res.Steps {
		writeStepMarkdown(&sb, s)
	}

	if res.State == nil {
		return sb.String()
	}
	sb.WriteString("## Final state\n\n| location | expression |\n|---|---|\n")
	for _, r := range res.State.Registers() {
		if res.State.Written(r.Reg) {
			fmt.Fprintf(&sb, "| `%s` | `%s` |\n", r.Reg, r.Expr)
		}
	}
	for _, m := range res.State.Memory() {
		fmt.Fprintf(&sb, "| `%s` | `%s` |\n", m.Range, m.Expr)
	}
	return sb.String()
}
