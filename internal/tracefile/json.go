package tracefile

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/invopop/jsonschema"

	"symtrace/internal/analysis"
	"symtrace/internal/disasm"
)

// File is the JSON trace document.
type File struct {
	Entries []EntryJSON `json:"entries" jsonschema:"title=Entries,description=Trace records in execution order"`
}

// EntryJSON is one JSON trace record.
type EntryJSON struct {
	Address string `json:"address" jsonschema:"title=Address,description=Hexadecimal virtual address,pattern=^(0[xX])?[0-9a-fA-F]+$,example=0x400000"`
	Bytes   string `json:"bytes" jsonschema:"title=Bytes,description=Instruction bytes as a hex string,pattern=^([0-9a-fA-F]{2})+$,example=488b05b8130000"`
	Length  int    `json:"length,omitempty" jsonschema:"title=Length,description=Declared instruction length; defaults to the number of bytes,minimum=1,maximum=15"`
}

// ReadJSON parses the JSON format.
func ReadJSON(r io.Reader) ([]analysis.Entry, error) {
	var f File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}

	entries := make([]analysis.Entry, 0, len(f.Entries))
	for i, je := range f.Entries {
		e, err := je.entry()
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: je.Address + " " + je.Bytes, Err: err}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (je EntryJSON) entry() (analysis.Entry, error) {
	addr, err := parseAddress(je.Address)
	if err != nil {
		return analysis.Entry{}, err
	}
	b, err := hex.DecodeString(strings.ReplaceAll(je.Bytes, " ", ""))
	if err != nil {
		return analysis.Entry{}, fmt.Errorf("bad bytes %q: %w", je.Bytes, ErrSyntax)
	}
	switch {
	case len(b) == 0:
		return analysis.Entry{}, fmt.Errorf("no instruction bytes: %w", ErrSyntax)
	case len(b) > disasm.MaxInstructionLen:
		return analysis.Entry{}, fmt.Errorf("%d bytes exceed the instruction limit: %w", len(b), ErrSyntax)
	}
	if je.Length < 0 {
		return analysis.Entry{}, fmt.Errorf("bad length %d: %w", je.Length, ErrSyntax)
	}
	n := je.Length
	if n == 0 {
		n = len(b)
	}
	return analysis.Entry{Address: addr, Bytes: b, Length: n}, nil
}

// WriteJSON writes entries as an indented JSON document.
func WriteJSON(w io.Writer, entries []analysis.Entry) error {
	f := File{Entries: make([]EntryJSON, len(entries))}
	for i, e := range entries {
		f.Entries[i] = EntryJSON{
			Address: fmt.Sprintf("%#x", e.Address),
			Bytes:   hex.EncodeToString(e.Bytes),
			Length:  e.Length,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// Schema returns the JSON schema of the trace format.
func Schema() *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	return r.Reflect(&File{})
}
