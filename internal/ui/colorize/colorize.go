// Package colorize highlights x86-64 instruction text for the terminal
// with chroma.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// EnvNoColor disables colour when set to any value.
const EnvNoColor = "SYMTRACE_NO_COLOR"

// Disabled reports whether colour was turned off through the environment.
func Disabled() bool {
	return os.Getenv(EnvNoColor) != ""
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	for _, name := range []string{"nasm", "gas"} {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getStyle returns the instruction style with fallbacks
func getStyle() *chroma.Style {
	if SymtraceDark != nil {
		return SymtraceDark
	}
	for _, name := range []string{"dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Colorizer renders instruction text. The zero value does not colour
// anything.
type Colorizer struct {
	enabled   bool
	lexer     chroma.Lexer
	style     *chroma.Style
	formatter chroma.Formatter
}

// New returns a Colorizer. It is disabled when enabled is false, when
// SYMTRACE_NO_COLOR is set or when no assembly lexer is available.
func New(enabled bool) *Colorizer {
	c := &Colorizer{
		lexer:     getAssemblyLexer(),
		style:     getStyle(),
		formatter: getTerminalFormatter(),
	}
	c.enabled = enabled && !Disabled() && c.lexer != nil
	return c
}

// Enabled reports whether output is coloured.
func (c *Colorizer) Enabled() bool { return c != nil && c.enabled }

// Assembly highlights Intel-syntax assembly.
func (c *Colorizer) Assembly(code string) string {
	if !c.Enabled() {
		return code
	}
	iterator, err := c.lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := c.formatter.Format(&buf, c.style, iterator); err != nil {
		return code
	}
	out := buf.String()
	if !strings.Contains(code, "\n") {
		// the lexer terminates its input with a newline
		out = strings.ReplaceAll(out, "\n", "")
	}
	return out
}

// Instruction colours an "address: text" line: the address grey and the
// rest as assembly.
func (c *Colorizer) Instruction(addr uint64, text string) string {
	a := fmt.Sprintf("%#x:", addr)
	if !c.Enabled() {
		return a + " " + text
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m %s", a, c.Assembly(text))
}

// StripANSI removes ANSI colour sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}
