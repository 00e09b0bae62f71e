package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/performance/engine"
)

var version = "0.1.0"

// ExitError carries a process exit code out of a command. Err may be nil
// when the command already reported the problem.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// app holds what the commands share: streams, environment and logging.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)

	logLevel  string
	logFormat string
	logger    *logrus.Logger
}

// NewRootCmd builds the command tree. Streams and environment lookup are
// injected so commands can be exercised in tests.
func NewRootCmd(stdout, stderr io.Writer, lookupEnv func(string) (string, bool)) *cobra.Command {
	a := &app{
		stdout:    stdout,
		stderr:    stderr,
		lookupEnv: lookupEnv,
		logger:    logrus.New(),
	}

	root := &cobra.Command{
		Use:     "volley",
		Short:   "Closed-model HTTP load testing",
		Version: version,
		Long: `Volley runs closed-model load tests: a pool of virtual users follows a
stage plan, each repeating a scenario, while thresholds decide pass or fail.

Exit codes: 0 passed, 99 thresholds failed, 104 invalid configuration,
105 aborted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configureLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "log format (text, json)")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newValidateCmd(a))
	root.AddCommand(newPresetsCmd(a))
	root.AddCommand(newHistoryCmd(a))

	return root
}

func (a *app) configureLogging() error {
	level, err := logrus.ParseLevel(a.logLevel)
	if err != nil {
		return &ExitError{Code: engine.ExitGenericError, Err: fmt.Errorf("invalid --log-level: %w", err)}
	}
	a.logger.SetLevel(level)
	a.logger.SetOutput(a.stderr)

	switch strings.ToLower(a.logFormat) {
	case "text":
		a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		a.logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return &ExitError{Code: engine.ExitGenericError, Err: fmt.Errorf("invalid --log-format %q, expected text or json", a.logFormat)}
	}
	return nil
}

// Run executes the command tree with args and returns the process exit code.
func Run(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return engine.ExitPassed
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(root.ErrOrStderr(), "Error:", exitErr.Err)
		}
		return exitErr.Code
	}

	fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	return engine.ExitCodeForError(err)
}

// Execute runs the CLI against the process environment. This is called by
// main.main().
func Execute() int {
	return Run(NewRootCmd(os.Stdout, os.Stderr, os.LookupEnv), os.Args[1:])
}
