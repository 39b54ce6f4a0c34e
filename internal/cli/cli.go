package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/trustgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("trustgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
TrustGo - A stateless model checker for concurrent programs.

Usage:
  trustgo [options] [PROGRAM_PATH]

Arguments:
  PROGRAM_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	programFlag := flagSet.String("program", "", "Path to the program file or directory.")
	pFlag := flagSet.String("p", "", "Path to the program file or directory (shorthand).")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	maxIterFlag := flagSet.Int(app.SettingMaxIterations, 0, "Maximum number of runs. 0 explores until exhaustion.")
	policyFlag := flagSet.String(app.SettingPolicy, "fifo", "Task choice once a run leaves its guiding schedule. Options: 'fifo' or 'random'.")
	seedFlag := flagSet.Uint64(app.SettingSeed, 0, "Seed of the 'random' policy.")
	stopFlag := flagSet.Bool(app.SettingStopOnBug, false, "Stop at the first bug.")
	debugDirFlag := flagSet.String("debug-dir", "", "Directory for per-iteration graph dumps; also enables extensive consistency checks.")
	reportDirFlag := flagSet.String("report-dir", "", "Directory for report.yaml and the replay trace of the first bug.")
	replayFlag := flagSet.Bool("replay", false, "Replay the trace stored in -report-dir instead of exploring.")
	coverageFlag := flagSet.Bool("coverage", false, "Print the coverage series after the search.")
	vizURLFlag := flagSet.String("visualizer-url", "", "socket.io URL of a graph viewer.")
	vizNamespaceFlag := flagSet.String("visualizer-namespace", "/", "socket.io namespace of the graph viewer.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *programFlag != "" {
		path = *programFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Program path determined.", "path", path)

	if path == "" {
		slog.Debug("No program path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	explicit := map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	config, err := app.NewConfig(app.Config{
		ProgramPath:         path,
		HealthcheckPort:     *healthPortFlag,
		LogFormat:           logFormat,
		LogLevel:            logLevel,
		MaxIterations:       *maxIterFlag,
		Policy:              strings.ToLower(*policyFlag),
		Seed:                *seedFlag,
		StopOnBug:           *stopFlag,
		DebugDir:            *debugDirFlag,
		ReportDir:           *reportDirFlag,
		Replay:              *replayFlag,
		Coverage:            *coverageFlag,
		VisualizerURL:       *vizURLFlag,
		VisualizerNamespace: *vizNamespaceFlag,
		Explicit:            explicit,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
