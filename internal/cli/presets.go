package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/engine"
	"github.com/wesleyorama2/volley/internal/performance/output"
)

func newPresetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the built-in load profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPROFILE\tDESCRIPTION")
			for _, name := range config.Presets() {
				cfg, err := config.LoadPreset(name)
				if err != nil {
					return err
				}
				profile := "-"
				if plan, err := cfg.StagePlan(); err == nil {
					profile = output.DescribePlan(plan)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, profile, cfg.Description)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Print the YAML of a preset, ready to copy and edit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.PresetSource(args[0])
			if err != nil {
				return &ExitError{Code: engine.ExitConfigError, Err: err}
			}
			_, err = a.stdout.Write(data)
			return err
		},
	})

	return cmd
}
