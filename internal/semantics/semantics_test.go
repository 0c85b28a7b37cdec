package semantics

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"symtrace/internal/disasm"
	"symtrace/internal/expr"
	"symtrace/internal/symstate"
)

func decode(t *testing.T, addr uint64, code ...byte) disasm.Instruction {
	t.Helper()
	inst, err := disasm.Decode(code, addr)
	if err != nil {
		t.Fatalf("decode % x: %v", code, err)
	}
	return inst
}

func must(t *testing.T, e expr.Expr, err error) expr.Expr {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// step applies and commits a single instruction.
func step(t *testing.T, eng *Engine, st *symstate.State, inst disasm.Instruction) *Effect {
	t.Helper()
	eff, err := eng.Apply(inst, st)
	if err != nil {
		t.Fatalf("apply %s: %v", inst, err)
	}
	if err := Commit(st, eff.Assignments); err != nil {
		t.Fatalf("commit %s: %v", inst, err)
	}
	return eff
}

func TestDefaultHandlers(t *testing.T) {
	for c := disasm.Class(1); c < disasm.NumClasses; c++ {
		if defaultHandlers[c] == nil {
			t.Errorf("no handler for %s", c)
		}
	}
	eng := NewEngine()
	if got := len(eng.Classes()); got != int(disasm.NumClasses)-1 {
		t.Errorf("len(Classes()) = %d, want %d", got, disasm.NumClasses-1)
	}
}

func TestDemoTrace(t *testing.T) {
	b := expr.NewBuilder()
	st := symstate.New(b)
	eng := NewEngine()

	// mov rax, [rip+0x13b8]
	eff := step(t, eng, st, decode(t, 0x400000, 0x48, 0x8b, 0x05, 0xb8, 0x13, 0x00, 0x00))
	load := must(t, b.Mem(b.Const(0x4013bf, 64), 8))
	if len(eff.Assignments) != 1 || eff.Branch != nil {
		t.Fatalf("mov effect = %+v", eff)
	}
	if diff := cmp.Diff(Assignment{Dest: RegisterDest{Reg: disasm.RAX}, Expr: load}, eff.Assignments[0]); diff != "" {
		t.Errorf("mov (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]symstate.Range{{Start: 0x4013bf, Size: 8}}, eff.Loads); diff != "" {
		t.Errorf("loads (-want +got):\n%s", diff)
	}

	// lea rsi, [rbx+rax*8]
	eff = step(t, eng, st, decode(t, 0x400007, 0x48, 0x8d, 0x34, 0xc3))
	scaled := must(t, b.Mul(load, b.Const(8, 64)))
	want := must(t, b.Add(b.Reg(disasm.RBX, 64), scaled))
	if len(eff.Assignments) != 1 {
		t.Fatalf("lea effect = %+v", eff)
	}
	got := eff.Assignments[0]
	if got.Dest != (RegisterDest{Reg: disasm.RSI}) || got.Expr != want {
		t.Errorf("lea = %s, want rsi <- %s", got, want)
	}
	add, ok := got.Expr.(*expr.BinaryExpr)
	if !ok || add.Op != expr.ADD {
		t.Fatalf("lea value %s is not an add", got.Expr)
	}
	mul, ok := add.RHS.(*expr.BinaryExpr)
	if !ok || mul.Op != expr.MUL {
		t.Fatalf("scaled index %s is not a mul", add.RHS)
	}
	if c, ok := expr.IsConstant(mul.RHS); !ok || c != 8 {
		t.Errorf("scale = %s, want 0x8:64", mul.RHS)
	}

	// ja +0
	eff = step(t, eng, st, decode(t, 0x400023, 0x0f, 0x87, 0x00, 0x00, 0x00, 0x00))
	if len(eff.Assignments) != 0 {
		t.Errorf("ja assigned %v", eff.Assignments)
	}
	wantBranch := &BranchHint{Address: 0x400023, Target: 0x400029, Fallthrough: 0x400029, Condition: "ja"}
	if diff := cmp.Diff(wantBranch, eff.Branch); diff != "" {
		t.Errorf("branch (-want +got):\n%s", diff)
	}

	if st.Read(disasm.RSI) != want || st.Read(disasm.RAX) != load {
		t.Error("state does not hold the committed values")
	}
	if st.Written(disasm.RIP) {
		t.Error("rip was assigned")
	}
}

func TestLea_Eval(t *testing.T) {
	b := expr.NewBuilder()
	st := symstate.New(b)
	eng := NewEngine()

	eff := step(t, eng, st, decode(t, 0, 0x48, 0x8d, 0x34, 0xc3))
	for _, tc := range []struct{ rbx, rax uint64 }{
		{0, 0},
		{0x1000, 3},
		{0xffffffffffffffff, 1},
		{0x7fff0000, 0x2000000000000000},
	} {
		v := expr.Valuation{Registers: map[disasm.Reg]uint64{disasm.RBX: tc.rbx, disasm.RAX: tc.rax}}
		got, err := expr.Eval(eff.Assignments[0].Expr, v)
		if err != nil {
			t.Fatal(err)
		}
		if want := tc.rbx + tc.rax*8; got != want {
			t.Errorf("rbx=%#x rax=%#x: %#x, want %#x", tc.rbx, tc.rax, got, want)
		}
	}
}

func TestSubRegisterWrites(t *testing.T) {
	const rax, rbx = 0x1122334455667788, 0x99aabbccddeeff00
	tests := []struct {
		name string
		code []byte
		want uint64
	}{
		{"mov rax, rbx", []byte{0x48, 0x89, 0xd8}, rbx},
		{"mov eax, ebx", []byte{0x89, 0xd8}, 0xddeeff00},
		{"mov ax, bx", []byte{0x66, 0x89, 0xd8}, 0x112233445566ff00},
		{"mov al, bl", []byte{0x88, 0xd8}, 0x1122334455667700},
		{"mov ah, bl", []byte{0x88, 0xdc}, 0x1122334455660088},
		{"mov eax, 0x2a", []byte{0xb8, 0x2a, 0x00, 0x00, 0x00}, 0x2a},
		{"mov rax, -1", []byte{0x48, 0xc7, 0xc0, 0xff, 0xff, 0xff, 0xff}, 0xffffffffffffffff},
		{"lea eax, [rbx+rbx*2]", []byte{0x8d, 0x04, 0x5b}, (rbx * 3) & 0xffffffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := expr.NewBuilder()
			st := symstate.New(b)
			eff := step(t, NewEngine(), st, decode(t, 0, tt.code...))
			if len(eff.Assignments) != 1 || eff.Assignments[0].Dest != (RegisterDest{Reg: disasm.RAX}) {
				t.Fatalf("effect = %+v", eff)
			}
			if w := expr.Width(st.Read(disasm.RAX)); w != 64 {
				t.Fatalf("rax is %d bits", w)
			}
			v := expr.Valuation{Registers: map[disasm.Reg]uint64{disasm.RAX: rax, disasm.RBX: rbx}}
			got, err := expr.Eval(st.Read(disasm.RAX), v)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("rax = %#x, want %#x (%s)", got, tt.want, st.Read(disasm.RAX))
			}
		})
	}
}

func TestStoreLoad(t *testing.T) {
	b := expr.NewBuilder()
	st := symstate.New(b)
	eng := NewEngine()

	// mov [rip+0x10], rax
	eff := step(t, eng, st, decode(t, 0x1000, 0x48, 0x89, 0x05, 0x10, 0x00, 0x00, 0x00))
	wantDest := MemoryDest{Range: symstate.Range{Start: 0x1017, Size: 8}}
	if eff.Assignments[0].Dest != wantDest {
		t.Fatalf("store dest = %s, want %s", eff.Assignments[0].Dest, wantDest)
	}

	// mov rcx, [rip+0x9] reads the same range back
	step(t, eng, st, decode(t, 0x1007, 0x48, 0x8b, 0x0d, 0x09, 0x00, 0x00, 0x00))
	if got, want := st.Read(disasm.RCX), b.Reg(disasm.RAX, 64); got != want {
		t.Errorf("rcx = %s, want %s", got, want)
	}

	// mov rdx, [rip+0xd] straddles the stored range
	_, err := eng.Apply(decode(t, 0x1007, 0x48, 0x8b, 0x15, 0x0d, 0x00, 0x00, 0x00), st)
	if !errors.Is(err, symstate.ErrPartialOverlap) {
		t.Errorf("overlapping load: err = %v", err)
	}
	var se *SemanticsError
	if !errors.As(err, &se) || se.Addr != 0x1007 || se.Class != disasm.MovRegFromMem {
		t.Errorf("overlapping load: error %v is not a SemanticsError", err)
	}
}

func TestErrors(t *testing.T) {
	b := expr.NewBuilder()
	eng := NewEngine()

	tests := []struct {
		name string
		inst disasm.Instruction
		want error
	}{
		{"unhandled", disasm.Instruction{Address: 0x10, Class: disasm.ClassInvalid}, ErrUnhandledClass},
		{"symbolic store", decode(t, 0, 0x48, 0x89, 0x03), ErrSymbolicAddress},
		{"no operands", disasm.Instruction{Class: disasm.MovRegFromMem}, ErrMalformed},
		{"wrong operand kinds", disasm.Instruction{
			Class:    disasm.JccConditional,
			Operands: []disasm.Operand{disasm.RegisterOperand{Reg: disasm.RAX, Width: 64}},
		}, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := symstate.New(b)
			eff, err := eng.Apply(tt.inst, st)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if eff != nil {
				t.Errorf("effect = %+v on error", eff)
			}
			for _, r := range disasm.Registers() {
				if st.Written(r) {
					t.Errorf("%s changed", r)
				}
			}
		})
	}
}

func TestRegister(t *testing.T) {
	b := expr.NewBuilder()
	st := symstate.New(b)
	eng := NewEngine()

	eng.Register(disasm.JccConditional, nil)
	if _, err := eng.Apply(decode(t, 0, 0x75, 0xfe), st); !errors.Is(err, ErrUnhandledClass) {
		t.Errorf("removed handler: err = %v", err)
	}

	called := false
	eng.Register(disasm.JccConditional, func(*expr.Builder, disasm.Instruction, *symstate.State) (*Effect, error) {
		called = true
		return nil, nil
	})
	eff, err := eng.Apply(decode(t, 0, 0x75, 0xfe), st)
	if err != nil || !called {
		t.Fatalf("custom handler: called=%v err=%v", called, err)
	}
	if eff == nil || len(eff.Assignments) != 0 {
		t.Errorf("effect = %+v", eff)
	}
}

func TestCommit_Atomic(t *testing.T) {
	b := expr.NewBuilder()
	st := symstate.New(b)
	if err := st.WriteMemory(symstate.Range{Start: 0x100, Size: 8}, b.Const(1, 64)); err != nil {
		t.Fatal(err)
	}

	err := Commit(st, []Assignment{
		{Dest: RegisterDest{Reg: disasm.RAX}, Expr: b.Const(2, 64)},
		{Dest: MemoryDest{Range: symstate.Range{Start: 0x104, Size: 4}}, Expr: b.Const(3, 32)},
	})
	if !errors.Is(err, symstate.ErrPartialOverlap) {
		t.Fatalf("err = %v", err)
	}
	if st.Written(disasm.RAX) {
		t.Error("register write survived a failed commit")
	}
}
