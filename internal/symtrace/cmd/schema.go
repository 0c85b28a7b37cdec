package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"symtrace/internal/tracefile"
)

// SymtraceConfig documents the settings symtrace reads from flags and the
// environment.
type SymtraceConfig struct {
	Debug       bool   `json:"debug" jsonschema:"title=Debug,description=Enable debug logging (--debug)"`
	LogFile     string `json:"logFile,omitempty" jsonschema:"title=Log File,description=File receiving log records (--log-file)"`
	LogLevel    string `json:"logLevel,omitempty" jsonschema:"title=Log Level,description=Tracer log level (SYMTRACE_LOG_LEVEL),enum=debug,enum=info,enum=warn,enum=error"`
	LogPrefix   string `json:"logPrefix,omitempty" jsonschema:"title=Log Prefix,description=Tracer log prefix (SYMTRACE_LOG_PREFIX)"`
	LogToFile   bool   `json:"logToFile,omitempty" jsonschema:"title=Log To File,description=Write tracer logs to a timestamped file (SYMTRACE_LOG_TO_FILE=1)"`
	NoColor     bool   `json:"noColor,omitempty" jsonschema:"title=No Color,description=Disable colored output (SYMTRACE_NO_COLOR)"`
	Profile     bool   `json:"profile,omitempty" jsonschema:"title=Profile,description=Serve pprof on localhost:6060 (SYMTRACE_PROFILE)"`
	ProfilePath string `json:"profilePath,omitempty" jsonschema:"title=Profile Path,description=Path for CPU profile output (--cpuprofile)"`
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "schema",
		Short:  "Generate JSON schema for configuration",
		Long:   "Generate JSON schema for the symtrace configuration, or for JSON traces with --trace",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var schema *jsonschema.Schema
			if trace, _ := cmd.Flags().GetBool("trace"); trace {
				schema = tracefile.Schema()
			} else {
				schema = new(jsonschema.Reflector).Reflect(&SymtraceConfig{})
			}
			bts, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(bts))
			return nil
		},
	}
	cmd.Flags().Bool("trace", false, "Print the schema of JSON trace files")
	return cmd
}
