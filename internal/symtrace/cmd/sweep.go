package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"symtrace/internal/analysis"
	"symtrace/internal/disasm"
	"symtrace/internal/elfx"
	"symtrace/internal/tracefile"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep [file]",
		Short: "Disassemble code linearly and execute it as a trace",
		Long: `Disassemble code linearly and execute the instructions as a trace.
The sweep stops at the first instruction outside the supported subset.

Without --elf the file holds raw machine code loaded at --base.`,
		Example: `
# Raw shellcode loaded at 0x400000
symtrace sweep code.bin --base 0x400000

# A function of an ELF binary, by demangled name
symtrace sweep ./a.out --elf --symbol 'ns::fn'

# Write the swept trace instead of executing it
symtrace sweep code.bin --emit text > code.trace
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := sweepEntries(cmd, args[0])
			if err != nil {
				return err
			}

			switch emit, _ := cmd.Flags().GetString("emit"); emit {
			case "":
			case "text":
				return tracefile.WriteText(cmd.OutOrStdout(), entries)
			case "json":
				return tracefile.WriteJSON(cmd.OutOrStdout(), entries)
			default:
				return fmt.Errorf("unknown --emit format %q", emit)
			}

			s, err := newTraceSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.run(cmd.Context(), entries)
		},
	}
	cmd.Flags().String("base", "0x400000", "Load address of raw code, or start address within an ELF")
	cmd.Flags().Bool("elf", false, "Treat the file as an ELF binary")
	cmd.Flags().String("symbol", "", "Start at this ELF symbol (raw or demangled name)")
	cmd.Flags().Int("max", 64, "Maximum number of instructions (0 for no limit)")
	cmd.Flags().String("emit", "", "Print the swept trace as text or json instead of executing it")
	addTraceFlags(cmd)
	return cmd
}

func sweepEntries(cmd *cobra.Command, path string) ([]analysis.Entry, error) {
	baseFlag, _ := cmd.Flags().GetString("base")
	base, err := strconv.ParseUint(baseFlag, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --base %q: %w", baseFlag, err)
	}
	isELF, _ := cmd.Flags().GetBool("elf")
	symbol, _ := cmd.Flags().GetString("symbol")
	limit, _ := cmd.Flags().GetInt("max")

	var code []byte
	if !isELF {
		if symbol != "" {
			return nil, fmt.Errorf("--symbol needs --elf")
		}
		if code, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read code: %w", err)
		}
	} else {
		im, err := elfx.Open(path)
		if err != nil {
			return nil, err
		}
		defer im.Close()

		size := uint64(disasm.MaxInstructionLen) * uint64(limit)
		switch {
		case symbol != "":
			sym, err := im.FindSymbol(symbol)
			if err != nil {
				return nil, err
			}
			slog.Debug("Sweeping symbol", "name", sym.Demangled, "addr", fmt.Sprintf("%#x", sym.Addr),
				"size", sym.Size, "exported", sym.Dynamic)
			base = sym.Addr
			if sym.Size != 0 {
				size = sym.Size
			}
		case !cmd.Flags().Changed("base"):
			base = im.Text.VA
		}
		if sym, ok := im.SymbolAt(base); ok && symbol == "" {
			slog.Debug("Sweeping inside symbol", "name", sym.Demangled, "offset", base-sym.Addr)
		}
		if limit <= 0 {
			size = im.Text.Size
		}

		b, ok := im.SliceVA(base, size)
		if !ok {
			return nil, fmt.Errorf("address %#x is not mapped in %s", base, path)
		}
		// the mapping goes away on Close
		code = append([]byte(nil), b...)
	}

	entries, err := analysis.Sweep(code, base, limit)
	if err != nil {
		slog.Warn("Sweep stopped", "error", err, "instructions", len(entries))
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no supported instructions at %#x: %w", base, err)
	}
	return entries, nil
}
