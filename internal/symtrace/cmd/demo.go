package cmd

import (
	"github.com/spf13/cobra"

	"symtrace/internal/tracefile"
)

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Execute the built-in demonstration trace",
		Long: `Execute the three-instruction demonstration trace:

  0x400000  mov rax, qword ptr [rip+0x13b8]
  0x400007  lea rsi, [rbx+rax*8]
  0x400023  ja  0x400029`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newTraceSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.run(cmd.Context(), tracefile.Demo())
		},
	}
	addTraceFlags(cmd)
	return cmd
}
