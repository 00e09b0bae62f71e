package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/engine"
	"github.com/wesleyorama2/volley/internal/performance/history"
	"github.com/wesleyorama2/volley/internal/performance/output"
)

type runOptions struct {
	preset        string
	vus           int
	duration      string
	stages        []string
	iterations    int64
	baseURL       string
	summaryExport string
	metricsAddr   string
	quiet         bool
	noColor       bool
	noHistory     bool
	historyDB     string
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [config-file]",
		Short: "Run a load test from a config file or a built-in preset",
		Long: `Run a load test and exit with a code that reflects its thresholds.

Examples:
  volley run test.yaml
  volley run --preset smoke --base-url https://whoami.example.com
  volley run --preset stress --stage 30s:10 --stage 1m:10 --stage 30s:0
  BASE_URL=http://localhost:8080 volley run --preset soak --vus 5 --duration 5m`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTest(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.preset, "preset", "", "built-in preset to run (see 'volley presets')")
	f.IntVar(&opts.vus, "vus", 0, "number of VUs, replaces the configured load profile")
	f.StringVar(&opts.duration, "duration", "", "test duration used with --vus")
	f.StringArrayVar(&opts.stages, "stage", nil, "ramp stage as DURATION:TARGET, repeatable")
	f.Int64Var(&opts.iterations, "iterations", 0, "iterations per VU, 0 keeps the configured value")
	f.StringVar(&opts.baseURL, "base-url", "", "target base URL, overrides BASE_URL and the config")
	f.StringVar(&opts.summaryExport, "summary-export", "", "write the result as JSON to this file")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /progress on this address during the run")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "print only the verdict")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.BoolVar(&opts.noHistory, "no-history", false, "do not record the run in the history store")
	f.StringVar(&opts.historyDB, "history-db", "", "history store path (default ~/.volley/history.db)")

	return cmd
}

// loadTestConfig resolves the config source and applies the environment and
// flag overrides, in that order.
func (a *app) loadTestConfig(args []string, opts *runOptions) (*config.TestConfig, error) {
	var cfg *config.TestConfig
	var err error

	switch {
	case len(args) == 1 && opts.preset != "":
		return nil, &engine.ConfigError{Err: fmt.Errorf("use either a config file or --preset, not both")}
	case len(args) == 1:
		cfg, err = config.LoadConfig(args[0])
	case opts.preset != "":
		cfg, err = config.LoadPreset(opts.preset)
	default:
		return nil, &engine.ConfigError{Err: fmt.Errorf("a config file or --preset is required")}
	}
	if err != nil {
		return nil, &engine.ConfigError{Err: err}
	}

	cfg.ApplyEnv(config.EnvFromLookup(a.lookupEnv))
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}

	if len(opts.stages) > 0 && (opts.vus > 0 || opts.duration != "") {
		return nil, &engine.ConfigError{Err: fmt.Errorf("--stage cannot be combined with --vus or --duration")}
	}
	if len(opts.stages) > 0 {
		cfg.VUs, cfg.Duration = 0, ""
		cfg.Stages = cfg.Stages[:0]
		for _, s := range opts.stages {
			stage, err := config.ParseStageFlag(s)
			if err != nil {
				return nil, &engine.ConfigError{Err: err}
			}
			cfg.Stages = append(cfg.Stages, stage)
		}
	}
	if opts.vus > 0 || opts.duration != "" {
		if len(cfg.Stages) > 0 {
			cfg.Stages = nil
			cfg.Duration = ""
		}
		if opts.vus > 0 {
			cfg.VUs = opts.vus
		}
		if opts.duration != "" {
			cfg.Duration = opts.duration
		}
	}
	if opts.iterations > 0 {
		cfg.Iterations = opts.iterations
	}

	return cfg, nil
}

func (a *app) runTest(cmd *cobra.Command, args []string, opts *runOptions) error {
	cfg, err := a.loadTestConfig(args, opts)
	if err != nil {
		return &ExitError{Code: engine.ExitCodeForError(err), Err: err}
	}

	eng, err := engine.New(cfg, engine.WithLogger(a.logger))
	if err != nil {
		return &ExitError{Code: engine.ExitCodeForError(err), Err: err}
	}
	log := a.logger.WithField("run_id", eng.RunID().String())

	console := output.NewConsole(output.ConsoleConfig{
		TestName: cfg.Name,
		Writer:   a.stdout,
		Quiet:    opts.quiet,
		NoColor:  opts.noColor,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		srv, err := output.NewMetricsServer(opts.metricsAddr, eng.Collector(), eng, log)
		if err != nil {
			return &ExitError{Code: engine.ExitGenericError, Err: err}
		}
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("metrics endpoint did not shut down cleanly")
			}
		}()
	}

	console.PrintHeader(eng.Plan(), cfg.BaseURL)

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		console.Watch(watchCtx, eng, time.Second)
	}()

	result, err := eng.Run(ctx)
	stopWatch()
	<-watchDone
	if err != nil {
		return &ExitError{Code: engine.ExitCodeForError(err), Err: err}
	}

	console.PrintSummary(result)

	if opts.summaryExport != "" {
		if err := output.ExportJSONSummary(opts.summaryExport, result); err != nil {
			log.WithError(err).Error("failed to export summary")
		}
	}
	if !opts.noHistory {
		a.recordHistory(opts.historyDB, result, log)
	}

	if code := result.ExitCode(); code != engine.ExitPassed {
		return &ExitError{Code: code}
	}
	return nil
}

// recordHistory saves the run. A history failure never changes the exit
// code of the run.
func (a *app) recordHistory(path string, result *engine.Result, log logrus.FieldLogger) {
	store, err := openHistory(path)
	if err != nil {
		log.WithError(err).Warn("run history unavailable")
		return
	}
	defer store.Close()

	if err := store.Save(history.FromResult(result)); err != nil {
		log.WithError(err).Warn("failed to record run history")
	}
}

func openHistory(path string) (*history.Store, error) {
	if path == "" {
		var err error
		if path, err = history.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}
