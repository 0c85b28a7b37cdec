package styles

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/x/exp/charmtone"
)

// palette maps report roles to charmtone keys. The text theme and the
// markdown style share it.
var palette = struct {
	text, muted, label, ref, expr, branch, note, rule charmtone.Key
}{
	text:   charmtone.Smoke,
	muted:  charmtone.Squid,
	label:  charmtone.Squid,
	ref:    charmtone.Zest,
	expr:   charmtone.Malibu,
	branch: charmtone.Guac,
	note:   charmtone.Cheeky,
	rule:   charmtone.Charcoal,
}

func ptr[T any](v T) *T { return &v }

func color(k charmtone.Key) *string { return ptr(k.Hex()) }

// MarkdownRenderer returns a glamour renderer for markdown trace reports.
func MarkdownRenderer(width int) (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithStyles(MarkdownStyle()),
		glamour.WithWordWrap(width),
	)
}

// MarkdownStyle styles the elements a markdown report uses: an H1 title,
// one H3 per step, assignment lists, annotation quotes and the final
// state table. Code spans hold instruction text and expressions.
func MarkdownStyle() ansi.StyleConfig {
	var s ansi.StyleConfig

	s.Document.Color = color(palette.text)
	s.Paragraph.BlockSuffix = "\n"

	s.Heading.Bold = ptr(true)
	s.Heading.BlockSuffix = "\n"
	s.H1.Color = color(palette.ref)
	s.H1.BackgroundColor = ptr(charmtone.Charple.Hex())
	s.H1.Prefix, s.H1.Suffix = " ", " "
	s.H2.Prefix = "▌ "
	s.H2.Color = color(palette.branch)
	s.H3.Prefix = "› "
	s.H3.Color = color(palette.label)

	s.Strong.Bold = ptr(true)
	s.Strong.Color = color(palette.ref)
	s.Emph.Italic = ptr(true)
	s.Emph.Color = color(palette.muted)
	s.Code.Color = color(palette.expr)

	s.List.LevelIndent = 2
	s.Item.BlockPrefix = "• "
	s.Enumeration.BlockPrefix = ". "

	s.BlockQuote.Color = color(palette.note)
	s.BlockQuote.Italic = ptr(true)
	s.BlockQuote.Indent = ptr(uint(1))
	s.BlockQuote.IndentToken = ptr("; ")

	s.HorizontalRule.Color = color(palette.rule)
	s.HorizontalRule.Format = "\n-------\n"
	s.Table.CenterSeparator = ptr("┼")
	s.Table.ColumnSeparator = ptr("│")
	s.Table.RowSeparator = ptr("─")
	return s
}
