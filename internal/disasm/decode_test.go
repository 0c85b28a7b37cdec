package disasm

import (
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		addr  uint64
		code  []byte
		class Class
		ops   []Operand
	}{
		{
			name:  "mov rax, [rip+0x13b8]",
			addr:  0x400000,
			code:  []byte{0x48, 0x8b, 0x05, 0xb8, 0x13, 0x00, 0x00},
			class: MovRegFromMem,
			ops: []Operand{
				RegisterOperand{Reg: RAX, Width: 64},
				MemoryOperand{Base: RegisterOperand{Reg: RIP, Width: 64}, Scale: 1, Disp: 0x13b8, Size: 8},
			},
		},
		{
			name:  "mov eax, ebx",
			addr:  0x1000,
			code:  []byte{0x89, 0xd8},
			class: MovRegFromReg,
			ops: []Operand{
				RegisterOperand{Reg: RAX, Width: 32},
				RegisterOperand{Reg: RBX, Width: 32},
			},
		},
		{
			name:  "mov rax, 0x2a",
			addr:  0x1000,
			code:  []byte{0x48, 0xc7, 0xc0, 0x2a, 0x00, 0x00, 0x00},
			class: MovRegFromImm,
			ops: []Operand{
				RegisterOperand{Reg: RAX, Width: 64},
				ImmediateOperand{Value: 0x2a, Width: 64},
			},
		},
		{
			name:  "mov [rip+0x10], rax",
			addr:  0x1000,
			code:  []byte{0x48, 0x89, 0x05, 0x10, 0x00, 0x00, 0x00},
			class: MovMemFromReg,
			ops: []Operand{
				MemoryOperand{Base: RegisterOperand{Reg: RIP, Width: 64}, Scale: 1, Disp: 0x10, Size: 8},
				RegisterOperand{Reg: RAX, Width: 64},
			},
		},
		{
			name:  "ja +0",
			addr:  0x400023,
			code:  []byte{0x0f, 0x87, 0x00, 0x00, 0x00, 0x00},
			class: JccConditional,
			ops:   []Operand{ImmediateOperand{Value: 0, Width: 32}},
		},
		{
			name:  "jne -2",
			addr:  0x2000,
			code:  []byte{0x75, 0xfe},
			class: JccConditional,
			ops:   []Operand{ImmediateOperand{Value: -2, Width: 8}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := Decode(tt.code, tt.addr)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if inst.Length != len(tt.code) {
				t.Errorf("Length = %d, want %d", inst.Length, len(tt.code))
			}
			if inst.Address != tt.addr {
				t.Errorf("Address = %#x, want %#x", inst.Address, tt.addr)
			}
			if inst.Class != tt.class {
				t.Errorf("Class = %s, want %s", inst.Class, tt.class)
			}
			if diff := cmp.Diff(tt.ops, inst.Operands); diff != "" {
				t.Errorf("operands mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_ScaledIndex(t *testing.T) {
	inst, err := Decode([]byte{0x48, 0x8d, 0x34, 0xc3, 0xcc, 0xcc}, 0x400007)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Length != 4 || inst.Class != LeaRegFromScaledAddr {
		t.Fatalf("unexpected instruction: %s", spew.Sdump(inst))
	}
	if len(inst.Bytes) != 4 {
		t.Fatalf("consumed %d bytes, want 4", len(inst.Bytes))
	}
	mem, ok := inst.Operands[1].(MemoryOperand)
	if !ok {
		t.Fatalf("operand 1 is %T", inst.Operands[1])
	}
	if mem.Base.Reg != RBX || mem.Index.Reg != RAX || mem.Scale != 8 || mem.Disp != 0 {
		t.Fatalf("unexpected memory operand: %s", mem)
	}
	if dst := inst.Operands[0].(RegisterOperand); dst.Reg != RSI || dst.Width != 64 {
		t.Fatalf("unexpected destination: %s", dst)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{name: "ud2", code: []byte{0x0f, 0x0b}, want: ErrUnsupportedEncoding},
		{name: "nop", code: []byte{0x90}, want: ErrUnsupportedEncoding},
		{name: "fs segment", code: []byte{0x64, 0x48, 0x8b, 0x04, 0x25, 0x28, 0x00, 0x00, 0x00}, want: ErrUnsupportedEncoding},
		{name: "empty", code: nil, want: ErrTruncatedInput},
		{name: "truncated displacement", code: []byte{0x48, 0x8b, 0x05, 0xb8, 0x13}, want: ErrTruncatedInput},
		{name: "truncated jcc", code: []byte{0x0f, 0x87, 0x00}, want: ErrTruncatedInput},
		{name: "truncated lea", code: []byte{0x48, 0x8d, 0x34}, want: ErrTruncatedInput},
		{name: "lone rex", code: []byte{0x48}, want: ErrTruncatedInput},
		{name: "lone escape", code: []byte{0x0f}, want: ErrTruncatedInput},
		{name: "lock mov", code: []byte{0xf0, 0x48, 0x8b, 0x05, 0xb8, 0x13, 0x00, 0x00}, want: ErrUnsupportedEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.code, 0x1000)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err is %T, want *DecodeError", err)
			}
			if de.Addr != 0x1000 {
				t.Errorf("Addr = %#x", de.Addr)
			}
		})
	}
}

func TestDecode_Deterministic(t *testing.T) {
	code := []byte{0x48, 0x8b, 0x05, 0xb8, 0x13, 0x00, 0x00}
	a, err := Decode(code, 0x400000)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decode(code, 0x400000)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("decoding is not deterministic:\n%s", diff)
	}

	// the instruction must not alias the caller's buffer
	code[3] = 0
	if a.Bytes[3] != 0xb8 {
		t.Fatal("instruction bytes alias the input buffer")
	}
}

func TestOperandAccessors(t *testing.T) {
	mem := MemoryOperand{
		Base:  RegisterOperand{Reg: RBX, Width: 64},
		Index: RegisterOperand{Reg: RAX, Width: 64},
		Scale: 8,
		Size:  8,
	}
	if !mem.IsMemory() {
		t.Error("memory operand should report IsMemory")
	}
	if diff := cmp.Diff([]Reg{RBX, RAX}, mem.EffectiveAddressInputs()); diff != "" {
		t.Error(diff)
	}
	if s := mem.String(); s != "[rbx+rax*8]:64" {
		t.Errorf("String() = %q", s)
	}

	same := MemoryOperand{Base: RegisterOperand{Reg: RCX, Width: 64}, Index: RegisterOperand{Reg: RCX, Width: 64}, Scale: 2}
	if diff := cmp.Diff([]Reg{RCX}, same.EffectiveAddressInputs()); diff != "" {
		t.Error(diff)
	}

	for _, op := range []Operand{RegisterOperand{Reg: RAX, Width: 64}, ImmediateOperand{Value: 1, Width: 8}} {
		if op.IsMemory() {
			t.Errorf("%s should not be memory", op)
		}
		if len(op.EffectiveAddressInputs()) != 0 {
			t.Errorf("%s should have no address inputs", op)
		}
	}

	if s := (RegisterOperand{Reg: RAX, Width: 8, Shift: 8}).String(); s != "rax[15:8]" {
		t.Errorf("AH String() = %q", s)
	}
}

func TestByteStream(t *testing.T) {
	s := NewByteStream([]byte{1, 2, 3, 4, 5}, 0x100)
	if w := s.Window(3); len(w) != 3 || w[0] != 1 {
		t.Fatalf("Window(3) = %v", w)
	}
	if w := s.Window(10); len(w) != 5 {
		t.Fatalf("Window(10) = %v", w)
	}
	if err := s.Advance(4); err != nil {
		t.Fatal(err)
	}
	if s.Addr() != 0x104 || s.Remaining() != 1 {
		t.Fatalf("Addr = %#x, Remaining = %d", s.Addr(), s.Remaining())
	}
	if err := s.Advance(2); err == nil {
		t.Fatal("expected error advancing past the end")
	}
	if err := s.Advance(1); err != nil || !s.Done() {
		t.Fatalf("expected stream to be done, err=%v", err)
	}
}

func TestDecoder_Next(t *testing.T) {
	code := []byte{
		0x48, 0x8b, 0x05, 0xb8, 0x13, 0x00, 0x00, // mov rax, [rip+0x13b8]
		0x48, 0x8d, 0x34, 0xc3, // lea rsi, [rbx+rax*8]
		0x0f, 0x0b, // ud2
	}
	d := NewDecoder()
	s := NewByteStream(code, 0x400000)

	var got []Instruction
	for !s.Done() {
		inst, err := d.Next(s)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedEncoding) {
				t.Fatalf("unexpected error: %v", err)
			}
			break
		}
		got = append(got, inst)
	}
	if len(got) != 2 {
		t.Fatalf("decoded %d instructions, want 2", len(got))
	}
	if got[1].Address != 0x400007 {
		t.Errorf("second instruction at %#x", got[1].Address)
	}
	if s.Addr() != 0x40000b {
		t.Errorf("cursor at %#x after failed decode", s.Addr())
	}
}

func TestDecoder_DecodeDeclared(t *testing.T) {
	mov := []byte{0x48, 0x8b, 0x05, 0xb8, 0x13, 0x00, 0x00}
	tests := []struct {
		name     string
		code     []byte
		declared int
		wantLen  int
		wantErr  error
	}{
		{"exact", mov, 7, 7, nil},
		{"unknown", mov, 0, 7, nil},
		{"longer than instruction", append(append([]byte{}, mov...), 0x90), 8, 7, nil},
		{"shorter than instruction", mov, 5, 0, ErrTruncatedInput},
		{"one byte of jcc", []byte{0x0f, 0x87, 0x00, 0x00, 0x00, 0x00}, 1, 0, ErrTruncatedInput},
		{"longer than input", mov, 9, 0, ErrTruncatedInput},
		{"negative", mov, -1, 0, ErrTruncatedInput},
	}
	d := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := d.DecodeDeclared(tt.code, 0x400000, tt.declared)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if inst.Length != tt.wantLen {
				t.Errorf("Length = %d, want %d", inst.Length, tt.wantLen)
			}
		})
	}
}
