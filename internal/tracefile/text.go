package tracefile

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"symtrace/internal/analysis"
	"symtrace/internal/disasm"
)

// ReadText parses the text format.
func ReadText(r io.Reader) ([]analysis.Entry, error) {
	var entries []analysis.Entry
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		e, ok, err := ParseLine(sc.Text())
		if err != nil {
			return nil, &ParseError{Line: n, Text: sc.Text(), Err: err}
		}
		if ok {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return entries, nil
}

// ParseLine parses one line of the text format. ok is false for blank and
// comment-only lines.
func ParseLine(line string) (e analysis.Entry, ok bool, err error) {
	if i := strings.IndexAny(line, "#;"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return analysis.Entry{}, false, nil
	}

	addr, rest, found := strings.Cut(line, ":")
	if !found {
		return analysis.Entry{}, false, fmt.Errorf("missing ':' after address: %w", ErrSyntax)
	}
	e.Address, err = parseAddress(strings.TrimSpace(addr))
	if err != nil {
		return analysis.Entry{}, false, err
	}

	rest = strings.TrimSpace(rest)
	if i := strings.IndexByte(rest, '['); i >= 0 {
		if !strings.HasSuffix(rest, "]") {
			return analysis.Entry{}, false, fmt.Errorf("unterminated length: %w", ErrSyntax)
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[i+1 : len(rest)-1]))
		if err != nil || n <= 0 {
			return analysis.Entry{}, false, fmt.Errorf("bad length %q: %w", rest[i:], ErrSyntax)
		}
		e.Length = n
		rest = rest[:i]
	}

	e.Bytes, err = parseBytes(strings.Fields(rest))
	if err != nil {
		return analysis.Entry{}, false, err
	}
	if e.Length == 0 {
		e.Length = len(e.Bytes)
	}
	return e, true, nil
}

// parseAddress parses a hexadecimal address with or without 0x.
func parseAddress(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, ErrSyntax)
	}
	return v, nil
}

// parseBytes decodes hex byte groups such as "48 8b 05" or "488b05".
func parseBytes(fields []string) ([]byte, error) {
	var out []byte
	for _, f := range fields {
		b, err := hex.DecodeString(strings.TrimPrefix(f, "0x"))
		if err != nil {
			return nil, fmt.Errorf("bad bytes %q: %w", f, ErrSyntax)
		}
		out = append(out, b...)
	}
	switch {
	case len(out) == 0:
		return nil, fmt.Errorf("no instruction bytes: %w", ErrSyntax)
	case len(out) > disasm.MaxInstructionLen:
		return nil, fmt.Errorf("%d bytes exceed the instruction limit: %w", len(out), ErrSyntax)
	}
	return out, nil
}

// FormatLine renders e in the text format.
func FormatLine(e analysis.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%#x:", e.Address)
	for _, b := range e.Bytes {
		fmt.Fprintf(&sb, " %02x", b)
	}
	if e.Length != 0 {
		fmt.Fprintf(&sb, " [%d]", e.Length)
	}
	return sb.String()
}

// WriteText writes entries in the text format.
func WriteText(w io.Writer, entries []analysis.Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintln(bw, FormatLine(e)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
