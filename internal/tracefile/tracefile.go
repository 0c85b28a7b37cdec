// Package tracefile reads traces of (address, bytes, length) records from
// text and JSON files.
//
// The text format has one entry per line:
//
//	0x400000: 48 8b 05 b8 13 00 00 [7]
//
// The trailing length is optional. Blank lines and anything after '#' or
// ';' are ignored.
package tracefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"symtrace/internal/analysis"
)

// ErrSyntax is wrapped by every ParseError.
var ErrSyntax = errors.New("syntax error")

// ParseError reports a malformed record.
type ParseError struct {
	Line int // 1-based line number, or entry index for JSON
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Format is a trace file format.
type Format int

const (
	Auto Format = iota // decided from the file extension
	Text
	JSON
)

func (f Format) String() string {
	switch f {
	case Auto:
		return "auto"
	case Text:
		return "text"
	case JSON:
		return "json"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat parses "auto", "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return Auto, nil
	case "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	}
	return Auto, fmt.Errorf("unknown trace format %q", s)
}

// Read parses a whole trace from r. Auto is treated as Text.
func Read(r io.Reader, f Format) ([]analysis.Entry, error) {
	if f == JSON {
		return ReadJSON(r)
	}
	return ReadText(r)
}

// Open reads the trace file at path.
func Open(path string, f Format) ([]analysis.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer file.Close()

	if f == Auto {
		f = detect(path)
	}
	entries, err := Read(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func detect(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return Text
}

// Demo returns the three-instruction trace the engine was first shown on:
// a RIP-relative load, a scaled-index address computation and a
// conditional jump.
func Demo() []analysis.Entry {
	return []analysis.Entry{
		{Address: 0x400000, Bytes: []byte{0x48, 0x8b, 0x05, 0xb8, 0x13, 0x00, 0x00}, Length: 7}, // mov rax, [rip+0x13b8]
		{Address: 0x400007, Bytes: []byte{0x48, 0x8d, 0x34, 0xc3}, Length: 4},                   // lea rsi, [rbx+rax*8]
		{Address: 0x400023, Bytes: []byte{0x0f, 0x87, 0x00, 0x00, 0x00, 0x00}, Length: 6},       // ja 0x400029
	}
}
