package analysis

import "symtrace/internal/disasm"

// Sweep disassembles code linearly from base and returns one entry per
// instruction. It stops after max entries (0 means no limit) or at the
// first instruction it cannot decode; that error is returned together
// with the entries before it.
func Sweep(code []byte, base uint64, max int) ([]Entry, error) {
	dec := disasm.NewDecoder()
	s := disasm.NewByteStream(code, base)

	var entries []Entry
	for !s.Done() && (max <= 0 || len(entries) < max) {
		inst, err := dec.Next(s)
		if err != nil {
			return entries, err
		}
		entries = append(entries, Entry{Address: inst.Address, Bytes: inst.Bytes, Length: inst.Length})
	}
	return entries, nil
}
