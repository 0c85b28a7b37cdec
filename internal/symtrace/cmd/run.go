package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"symtrace/internal/analysis"
	"symtrace/internal/tracefile"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [trace]",
		Short: "Execute a trace file",
		Long: `Execute a trace file symbolically and print every step.

Text traces have one entry per line, "address: bytes [length]":

  0x400000: 48 8b 05 b8 13 00 00 [7]

JSON traces hold {"entries": [{"address", "bytes", "length"}]}.`,
		Example: `
# Execute a trace, continuing past unsupported instructions
symtrace run trace.txt --skip-errors

# Follow a trace that is still being written
symtrace run live.trace --follow --output json
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			formatName, _ := cmd.Flags().GetString("format")
			format, err := tracefile.ParseFormat(formatName)
			if err != nil {
				return err
			}
			follow, _ := cmd.Flags().GetBool("follow")
			if follow {
				// a growing trace is streamed, not browsed
				if err := cmd.Flags().Set("no-tui", "true"); err != nil {
					return err
				}
			}

			s, err := newTraceSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if follow {
				if format == tracefile.JSON {
					return fmt.Errorf("--follow reads text traces only")
				}
				return s.follow(cmd, path)
			}

			slog.Debug("Reading trace", "path", path, "format", format)
			entries, err := tracefile.Open(path, format)
			if err != nil {
				return err
			}
			return s.run(cmd.Context(), entries)
		},
	}
	cmd.Flags().StringP("format", "f", "auto", "Trace format: auto, text or json")
	cmd.Flags().Bool("follow", false, "Keep reading entries appended to the trace")
	addTraceFlags(cmd)
	return cmd
}

// follow streams steps as entries are appended to path until the command
// is interrupted.
func (s *traceSession) follow(cmd *cobra.Command, path string) error {
	skip, _ := cmd.Flags().GetBool("skip-errors")
	err := tracefile.Follow(cmd.Context(), path, func(e analysis.Entry) error {
		step, err := s.tracer.Step(e)
		if werr := s.writer.Step(step); werr != nil {
			return werr
		}
		if err != nil && !skip {
			return err
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
