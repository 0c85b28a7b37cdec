// Package styles holds the colours of symtrace's terminal output.
package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Theme styles the parts of a text report.
type Theme struct {
	Label      lipgloss.Style // "Operand 0:", "SymExpr 1:"
	Ref        lipgloss.Style // ref!N
	Expr       lipgloss.Style
	Branch     lipgloss.Style
	Annotation lipgloss.Style
	Error      lipgloss.Style
	Rule       lipgloss.Style
}

// NewTheme returns the coloured theme, or a theme that renders text
// unchanged when color is false.
func NewTheme(color bool) Theme {
	if !color {
		plain := lipgloss.NewStyle()
		return Theme{plain, plain, plain, plain, plain, plain, plain}
	}
	fg := func(k charmtone.Key) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(k.Hex()))
	}
	return Theme{
		Label:      fg(palette.label),
		Ref:        fg(palette.ref).Bold(true),
		Expr:       fg(palette.expr),
		Branch:     fg(palette.branch),
		Annotation: fg(palette.note).Italic(true),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Rule:       fg(palette.rule),
	}
}
