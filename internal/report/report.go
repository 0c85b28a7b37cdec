// Package report renders trace steps as text, JSON or markdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"symtrace/internal/analysis"
	"symtrace/internal/symtrace/styles"
	"symtrace/internal/ui/colorize"
)

// Format is an output format.
type Format int

const (
	Text Format = iota
	JSON
	Markdown
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case JSON:
		return "json"
	case Markdown:
		return "markdown"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat parses "text", "json" or "markdown".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return Text, nil
	case "json":
		return JSON, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return Text, fmt.Errorf("unknown output format %q", s)
}

// Option configures a Writer.
type Option func(*Writer)

// WithColor turns on terminal colours for text and markdown output.
func WithColor(on bool) Option {
	return func(w *Writer) { w.color = on }
}

// WithWidth sets the word-wrap width of markdown output.
func WithWidth(n int) Option {
	return func(w *Writer) { w.width = n }
}

// Writer renders steps to an io.Writer. Step renders one step at a time
// for streaming; Result renders a finished trace.
type Writer struct {
	w      io.Writer
	format Format
	color  bool
	width  int

	colorizer *colorize.Colorizer
	theme     styles.Theme
	enc       *json.Encoder
}

// NewWriter creates a Writer for format f.
func NewWriter(w io.Writer, f Format, opts ...Option) *Writer {
	rw := &Writer{w: w, format: f, width: 100}
	for _, opt := range opts {
		opt(rw)
	}
	rw.colorizer = colorize.New(rw.color)
	rw.theme = styles.NewTheme(rw.colorizer.Enabled())
	rw.enc = json.NewEncoder(w)
	return rw
}

// Step renders a single step. JSON output is one object per line.
func (rw *Writer) Step(s *analysis.Step) error {
	switch rw.format {
	case JSON:
		return rw.enc.Encode(newStepJSON(s))
	case Markdown:
		var sb strings.Builder
		writeStepMarkdown(&sb, s)
		return rw.markdown(sb.String())
	default:
		_, err := io.WriteString(rw.w, rw.stepText(s))
		return err
	}
}

// Result renders a complete trace followed by the final state.
func (rw *Writer) Result(res *analysis.Result) error {
	switch rw.format {
	case JSON:
		rw.enc.SetIndent("", "  ")
		return rw.enc.Encode(newResultJSON(res))
	case Markdown:
		return rw.markdown(resultMarkdown(res))
	default:
		var sb strings.Builder
		for _, s := range res.Steps {
			sb.WriteString(rw.stepText(s))
		}
		sb.WriteString(rw.stateText(res))
		_, err := io.WriteString(rw.w, sb.String())
		return err
	}
}

// State renders only the final state of res, always as text.
func (rw *Writer) State(res *analysis.Result) error {
	_, err := io.WriteString(rw.w, rw.stateText(res))
	return err
}

func (rw *Writer) markdown(md string) error {
	if !rw.colorizer.Enabled() {
		_, err := io.WriteString(rw.w, md)
		return err
	}
	r, err := styles.MarkdownRenderer(rw.width)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(rw.w, out)
	return err
}
