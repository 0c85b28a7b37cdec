package detectors

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"symtrace/internal/analysis"
)

func annotations(res *analysis.Result) [][]string {
	out := make([][]string, len(res.Steps))
	for i, s := range res.Steps {
		out[i] = s.Annotations
	}
	return out
}

func TestBranchTargetDetector(t *testing.T) {
	tr := analysis.NewTracer(analysis.WithDetectors(NewBranchTargetDetector()))
	res, err := tr.Run(context.Background(), []analysis.Entry{
		{Address: 0x1000, Bytes: []byte{0x48, 0x89, 0xd8}},                   // mov rax, rbx
		{Address: 0x1003, Bytes: []byte{0x75, 0x02}},                         // jne 0x1007
		{Address: 0x1005, Bytes: []byte{0x89, 0xd8}},                         // mov eax, ebx
		{Address: 0x1007, Bytes: []byte{0x48, 0x89, 0xd8}},                   // mov rax, rbx
		{Address: 0x100a, Bytes: []byte{0x0f, 0x84, 0xf0, 0xff, 0xff, 0xff}}, // je 0x1000
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		nil,
		nil,
		{"fall-through of 0x1003"},
		{"branch target of 0x1003"},
		{"je back to step 0"},
	}
	if diff := cmp.Diff(want, annotations(res)); diff != "" {
		t.Errorf("annotations (-want +got):\n%s", diff)
	}

	// ja +0 has the same target and fall-through
	tr = analysis.NewTracer(analysis.WithDetectors(NewBranchTargetDetector()))
	res, err = tr.Run(context.Background(), []analysis.Entry{
		{Address: 0x400023, Bytes: []byte{0x0f, 0x87, 0x00, 0x00, 0x00, 0x00}},
		{Address: 0x400029, Bytes: []byte{0x89, 0xd8}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]string{nil, {"branch target of 0x400023"}}, annotations(res)); diff != "" {
		t.Errorf("annotations (-want +got):\n%s", diff)
	}
}

func TestMemoryReuseDetector(t *testing.T) {
	d := NewMemoryReuseDetector()
	tr := analysis.NewTracer(analysis.WithDetectors(d))
	entries := []analysis.Entry{
		{Address: 0x1000, Bytes: []byte{0x48, 0x89, 0x05, 0x10, 0x00, 0x00, 0x00}}, // mov [rip+0x10], rax
		{Address: 0x1007, Bytes: []byte{0x48, 0x8b, 0x0d, 0x09, 0x00, 0x00, 0x00}}, // mov rcx, [rip+0x9]
		{Address: 0x100e, Bytes: []byte{0x48, 0x8b, 0x15, 0x10, 0x00, 0x00, 0x00}}, // mov rdx, [rip+0x10]
	}
	res, err := tr.Run(context.Background(), entries)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{nil, {"reads ref!0 stored at 0x1000"}, nil}
	if diff := cmp.Diff(want, annotations(res)); diff != "" {
		t.Errorf("annotations (-want +got):\n%s", diff)
	}

	tr.Reset()
	res, err = tr.Run(context.Background(), entries[1:2])
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Steps[0].Annotations) != 0 {
		t.Errorf("annotations after reset: %v", res.Steps[0].Annotations)
	}
}
