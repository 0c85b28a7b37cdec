package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	clog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"symtrace/internal/analysis"
	"symtrace/internal/detectors"
	"symtrace/internal/logging"
	"symtrace/internal/report"
	"symtrace/internal/symtrace/log"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var stopProfile func()

	root := &cobra.Command{
		Use:   "symtrace",
		Short: "Symbolic execution of x86-64 instruction traces",
		Long: `Symtrace decodes x86-64 instruction traces and executes them symbolically.
Every register and memory write becomes an expression over the initial machine state.`,
		Example: `
# Run the built-in three-instruction trace
symtrace demo

# Execute a trace file and print JSON
symtrace run trace.txt --output json

# Sweep a function of an ELF binary
symtrace sweep ./a.out --elf --symbol main
  `,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			logFile, _ := cmd.Flags().GetString("log-file")
			log.Setup(logFile, debug || logging.IsDebug())

			cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
			if cpuprofile == "" {
				return nil
			}
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %w", err)
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				return fmt.Errorf("could not start CPU profile: %w", err)
			}
			stopProfile = func() {
				pprof.StopCPUProfile()
				f.Close()
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if stopProfile != nil {
				stopProfile()
			}
		},
	}

	root.PersistentFlags().BoolP("debug", "d", false, "Debug")
	root.PersistentFlags().String("log-file", "", "Write log records to this file instead of stderr")
	root.PersistentFlags().String("cpuprofile", "", "Write CPU profile to file")

	root.AddCommand(newDemoCmd(), newRunCmd(), newSweepCmd(), newSchemaCmd())
	return root
}

// addTraceFlags registers the flags shared by every command that executes
// a trace.
func addTraceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format: text, json or markdown")
	cmd.Flags().Bool("skip-errors", false, "Record failing entries and continue instead of stopping")
	cmd.Flags().BoolP("no-tui", "n", false, "Print the trace instead of browsing it")
}

// traceSession holds what a command needs to execute and print a trace.
type traceSession struct {
	tracer *analysis.Tracer
	writer *report.Writer
	logger *logging.LoggerCloser
	tui    bool
}

func newTraceSession(cmd *cobra.Command) (*traceSession, error) {
	output, _ := cmd.Flags().GetString("output")
	format, err := report.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	skip, _ := cmd.Flags().GetBool("skip-errors")
	debug, _ := cmd.Flags().GetBool("debug")
	noTUI, _ := cmd.Flags().GetBool("no-tui")

	lg := logging.NewLogger()
	if debug {
		lg.SetLevel(clog.DebugLevel)
	}

	policy := analysis.Halt
	if skip {
		policy = analysis.Skip
	}

	out := cmd.OutOrStdout()
	// the browser only runs on a terminal, and only for text output
	tui := !noTUI && format == report.Text && isTerminal(out)

	tracerLog := lg.Logger
	if tui && os.Getenv(logging.EnvToFile) != "1" {
		// stderr would scribble over the alternate screen
		tracerLog = logging.Discard()
	}

	return &traceSession{
		tracer: analysis.NewTracer(
			analysis.WithPolicy(policy),
			analysis.WithLogger(tracerLog),
			analysis.WithDetectors(detectors.NewBranchTargetDetector(), detectors.NewMemoryReuseDetector()),
		),
		writer: report.NewWriter(out, format, report.WithColor(isTerminal(out))),
		logger: lg,
		tui:    tui,
	}, nil
}

// run executes entries and prints the result. A failing entry is reported
// in the output before its error is returned.
func (s *traceSession) run(ctx context.Context, entries []analysis.Entry) error {
	if s.tui {
		return s.browse(ctx, entries)
	}

	res, err := s.tracer.Run(ctx, entries)
	if werr := s.writer.Result(res); werr != nil {
		return werr
	}
	if err != nil {
		return traceError(res, err)
	}
	if res.Failed > 0 {
		slog.Warn("Trace finished with failed steps", "failed", res.Failed, "steps", len(res.Steps))
	}
	st := s.tracer.Builder().Stats()
	slog.Debug("Expression pool", "interned", st.Interned, "lookups", st.Lookups, "hits", st.Hits)
	return nil
}

// browse executes entries behind a spinner and opens the step browser on
// the result.
func (s *traceSession) browse(ctx context.Context, entries []analysis.Entry) error {
	run := func() tea.Msg {
		res, err := s.tracer.Run(ctx, entries)
		return traceDoneMsg{res: res, err: err}
	}

	program := tea.NewProgram(
		newBrowser(run, true),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	final, err := program.Run()
	if err != nil {
		slog.Error("TUI run error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}
	if b, ok := final.(browser); ok && b.err != nil {
		return traceError(b.res, b.err)
	}
	return nil
}

func traceError(res *analysis.Result, err error) error {
	if res == nil || len(res.Steps) == 0 {
		return fmt.Errorf("trace stopped: %w", err)
	}
	return fmt.Errorf("trace stopped at step %d: %w", len(res.Steps)-1, err)
}

func (s *traceSession) Close() error {
	return s.logger.Close()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func Execute() {
	rootCmd := NewRootCmd()

	// bypass fang's rendering when output is piped
	if !term.IsTerminal(os.Stdout.Fd()) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err := rootCmd.ExecuteContext(ctx)
		stop()
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
