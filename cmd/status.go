package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/searchlab/ablate/internal/ablation"
	"github.com/searchlab/ablate/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "List runs, or show one run's impact summary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()

		if len(args) == 0 {
			runs, err := e.report.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			return enc.Encode(runs)
		}

		if _, err := uuid.Parse(args[0]); err != nil {
			return eris.Wrapf(err, "run id %q", args[0])
		}
		run, err := e.report.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		results, err := e.report.RunResults(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		view := struct {
			Run      *report.Run              `yaml:"run"`
			Impact   []ablation.ImpactSummary `yaml:"impact"`
			Findings []ablation.Finding       `yaml:"findings,omitempty"`
		}{
			Run:      run,
			Impact:   ablation.AggregateImpact(results),
			Findings: ablation.CheckResults(results),
		}
		return enc.Encode(view)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
