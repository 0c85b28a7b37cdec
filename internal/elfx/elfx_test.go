package elfx

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"foo::bar(int, char const*)": "foo::bar",
		"main":                       "main",
		"(anonymous)":                "(anonymous)",
	}
	for in, want := range tests {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindSymbol(t *testing.T) {
	im := &Image{Syms: []Symbol{
		{Name: "main", Demangled: "main", Addr: 0x1000, Size: 0x20},
		{Name: "_ZN3foo3barEi", Demangled: "foo::bar(int)", Addr: 0x1020, Size: 0x10},
	}}
	for _, name := range []string{"_ZN3foo3barEi", "foo::bar(int)", "foo::bar"} {
		s, err := im.FindSymbol(name)
		if err != nil || s.Addr != 0x1020 {
			t.Errorf("FindSymbol(%q) = %+v, %v", name, s, err)
		}
	}
	if _, err := im.FindSymbol("baz"); !errors.Is(err, ErrNoSymbol) {
		t.Errorf("missing symbol: err = %v", err)
	}

	if s, ok := im.SymbolAt(0x1025); !ok || s.Name != "_ZN3foo3barEi" {
		t.Errorf("SymbolAt(0x1025) = %+v, %v", s, ok)
	}
	if _, ok := im.SymbolAt(0x1030); ok {
		t.Error("SymbolAt past the last symbol")
	}
}

func TestOpen_Self(t *testing.T) {
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("needs a linux/amd64 test binary")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	im, err := Open(exe)
	if err != nil {
		t.Fatal(err)
	}
	defer im.Close()

	if im.Text.Size == 0 {
		t.Error("no text section")
	}
	s, err := im.FindSymbol("main.main")
	if err != nil {
		t.Skipf("binary has no symbol table: %v", err)
	}
	code, ok := im.SliceVA(s.Addr, 16)
	if !ok || len(code) == 0 {
		t.Fatalf("SliceVA(%#x) = %d bytes, %v", s.Addr, len(code), ok)
	}
	if _, ok := im.SliceVA(0, 1); ok {
		t.Error("address 0 is mapped")
	}
}

func TestOpen_NotELF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(path, []byte("not an elf file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("opened a text file")
	}
}
