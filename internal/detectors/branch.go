// Package detectors annotates trace steps with data-flow and control-flow
// observations. Detectors plug into the tracer's detector chain.
package detectors

import (
	"fmt"
	"strings"

	"symtrace/internal/analysis"
)

// BranchTargetDetector labels steps whose address is the taken target or
// the fall-through of an earlier conditional branch, and branches whose
// target was already traced.
type BranchTargetDetector struct {
	targets      map[uint64][]uint64 // target -> branch addresses
	fallthroughs map[uint64][]uint64 // fall-through -> branch addresses
	seen         map[uint64]int      // address -> step index
}

// NewBranchTargetDetector creates a new branch target detector.
func NewBranchTargetDetector() *BranchTargetDetector {
	d := &BranchTargetDetector{}
	d.Reset()
	return d
}

func (d *BranchTargetDetector) Reset() {
	d.targets = make(map[uint64][]uint64)
	d.fallthroughs = make(map[uint64][]uint64)
	d.seen = make(map[uint64]int)
}

func (d *BranchTargetDetector) Detect(s *analysis.Step) {
	if s.Err != nil {
		return
	}
	addr := s.Instruction.Address

	if from, ok := d.targets[addr]; ok {
		s.Annotate("branch target of %s", addrList(from))
	}
	if from, ok := d.fallthroughs[addr]; ok {
		s.Annotate("fall-through of %s", addrList(from))
	}
	if _, ok := d.seen[addr]; !ok {
		d.seen[addr] = s.Index
	}

	b := s.Branch
	if b == nil {
		return
	}
	if idx, ok := d.seen[b.Target]; ok {
		s.Annotate("%s back to step %d", b.Condition, idx)
	}
	d.targets[b.Target] = append(d.targets[b.Target], addr)
	if b.Fallthrough != b.Target {
		d.fallthroughs[b.Fallthrough] = append(d.fallthroughs[b.Fallthrough], addr)
	}
}

func addrList(addrs []uint64) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("%#x", a)
	}
	return strings.Join(parts, ", ")
}
