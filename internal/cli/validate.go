package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/engine"
	"github.com/wesleyorama2/volley/internal/performance/output"
)

func newValidateCmd(a *app) *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Check a config file without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadTestConfig(args, &runOptions{preset: preset})
			if err == nil {
				config.ApplyDefaults(cfg)
				err = cfg.Validate()
			}
			if err != nil {
				return &ExitError{Code: engine.ExitConfigError, Err: err}
			}

			plan, err := cfg.StagePlan()
			if err != nil {
				return &ExitError{Code: engine.ExitConfigError, Err: err}
			}
			fmt.Fprintf(a.stdout, "%s is valid: %s, %d request(s)\n",
				cfg.Name, output.DescribePlan(plan), len(cfg.Scenario.Requests))
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "validate a built-in preset instead of a file")

	return cmd
}
