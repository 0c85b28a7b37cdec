package detectors

import (
	"symtrace/internal/analysis"
	"symtrace/internal/semantics"
	"symtrace/internal/symstate"
)

type store struct {
	id   int    // assignment ID
	addr uint64 // address of the storing instruction
}

// MemoryReuseDetector annotates loads that read back a range stored
// earlier in the same trace.
type MemoryReuseDetector struct {
	stores map[symstate.Range]store
}

// NewMemoryReuseDetector creates a new memory reuse detector.
func NewMemoryReuseDetector() *MemoryReuseDetector {
	return &MemoryReuseDetector{stores: make(map[symstate.Range]store)}
}

func (d *MemoryReuseDetector) Reset() {
	d.stores = make(map[symstate.Range]store)
}

func (d *MemoryReuseDetector) Detect(s *analysis.Step) {
	if s.Err != nil {
		return
	}
	for _, r := range s.Loads {
		if st, ok := d.stores[r]; ok {
			s.Annotate("reads ref!%d stored at %#x", st.id, st.addr)
		}
	}
	for _, a := range s.Assignments {
		if dest, ok := a.Dest.(semantics.MemoryDest); ok {
			d.stores[dest.Range] = store{id: a.ID, addr: s.Instruction.Address}
		}
	}
}
