// Package elfx opens x86-64 ELF binaries, maps virtual addresses to file
// bytes and resolves symbols by raw or demangled name.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/ianlancetaylor/demangle"
)

var (
	// ErrNotX86_64 is returned by Open for binaries of other machines.
	ErrNotX86_64 = errors.New("not an x86-64 binary")

	// ErrNoSymbol is returned when a symbol cannot be found.
	ErrNoSymbol = errors.New("symbol not found")
)

type Image struct {
	Path  string
	File  *elf.File
	All   []byte
	Loads []Seg
	Text  Section
	Syms  []Symbol // defined function and object symbols, by address
	f     *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Symbol is a defined symbol. Demangled equals Name for C symbols.
type Symbol struct {
	Name      string
	Demangled string
	Addr      uint64
	Size      uint64
	Dynamic   bool
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		f.Close()
		return nil, fmt.Errorf("%s (%s): %w", path, f.Machine, ErrNotX86_64)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	if s := f.Section(".text"); s != nil {
		im.Text = Section{s.Name, s.Addr, s.Offset, s.Size}
	} else {
		// stripped section headers
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}

	im.loadSymbols()
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		if err3 := im.File.Close(); err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// SliceVA returns the mapped bytes of [va, va+size). The range is cut at
// the end of the segment holding va.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	for _, l := range im.Loads {
		if va < l.Vaddr || va >= l.Vaddr+l.Filesz {
			continue
		}
		if avail := l.Vaddr + l.Filesz - va; size > avail {
			size = avail
		}
		off := l.Off + (va - l.Vaddr)
		if off+size > uint64(len(im.All)) {
			return nil, false
		}
		return im.All[off : off+size], true
	}
	return nil, false
}

// loadSymbols collects defined symbols from .symtab and .dynsym.
func (im *Image) loadSymbols() {
	seen := make(map[string]bool)
	add := func(syms []elf.Symbol, dynamic bool) {
		for _, s := range syms {
			typ := elf.ST_TYPE(s.Info)
			if s.Value == 0 || s.Name == "" || (typ != elf.STT_FUNC && typ != elf.STT_OBJECT) {
				continue
			}
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			im.Syms = append(im.Syms, Symbol{
				Name:      s.Name,
				Demangled: demangle.Filter(s.Name),
				Addr:      s.Value,
				Size:      s.Size,
				Dynamic:   dynamic,
			})
		}
	}
	if syms, err := im.File.Symbols(); err == nil {
		add(syms, false)
	}
	if syms, err := im.File.DynamicSymbols(); err == nil {
		add(syms, true)
	}
	sort.Slice(im.Syms, func(i, j int) bool { return im.Syms[i].Addr < im.Syms[j].Addr })
}

// FindSymbol looks a symbol up by raw name, full demangled name, or
// demangled name without its parameter list ("ns::fn" for "ns::fn(int)").
func (im *Image) FindSymbol(name string) (Symbol, error) {
	for _, s := range im.Syms {
		if s.Name == name || s.Demangled == name || baseName(s.Demangled) == name {
			return s, nil
		}
	}
	return Symbol{}, fmt.Errorf("%q: %w", name, ErrNoSymbol)
}

// SymbolAt returns the symbol whose extent contains va.
func (im *Image) SymbolAt(va uint64) (Symbol, bool) {
	i := sort.Search(len(im.Syms), func(i int) bool { return im.Syms[i].Addr > va })
	for i--; i >= 0; i-- {
		s := im.Syms[i]
		if va == s.Addr || va < s.Addr+s.Size {
			return s, true
		}
		if s.Size != 0 {
			break
		}
	}
	return Symbol{}, false
}

// baseName strips the parameter list from a demangled C++ name.
func baseName(demangled string) string {
	if i := strings.IndexByte(demangled, '('); i > 0 {
		return demangled[:i]
	}
	return demangled
}
