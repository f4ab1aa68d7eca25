package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/searchlab/ablate/internal/ablation"
)

var roundsSeed int64

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "Preview the round plan and combination counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		universe := cfg.Ablation.Collections
		if len(universe) == 0 {
			return eris.New("ablation.collections is empty")
		}
		seed := roundsSeed
		if seed == 0 {
			seed = cfg.Rounds.Seed
		}

		rounds, err := ablation.PlanRounds(universe, ablation.RoundConfig{
			Rounds:           cfg.Rounds.Count,
			ControlPct:       cfg.Rounds.ControlPct,
			BalanceTolerance: cfg.Rounds.BalanceTolerance,
			Seed:             seed,
		})
		if err != nil {
			return err
		}

		type roundView struct {
			Round        int      `yaml:"round"`
			Control      []string `yaml:"control"`
			Test         []string `yaml:"test"`
			Combinations int      `yaml:"combinations"`
		}
		views := make([]roundView, 0, len(rounds))
		for _, r := range rounds {
			combos := ablation.GenerateCombinations(r.Test, cfg.Rounds.MaxCombinationSize, cfg.Rounds.CombinationCap, seed+int64(r.Number))
			views = append(views, roundView{
				Round:        r.Number,
				Control:      r.Control,
				Test:         r.Test,
				Combinations: len(combos),
			})
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return eris.Wrap(err, "encode plan")
		}
		return enc.Close()
	},
}

func init() {
	roundsCmd.Flags().Int64Var(&roundsSeed, "seed", 0, "plan seed (default from config)")
	rootCmd.AddCommand(roundsCmd)
}
