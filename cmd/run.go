package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/ablation"
	"github.com/searchlab/ablate/internal/model"
	"github.com/searchlab/ablate/internal/report"
	"github.com/searchlab/ablate/internal/truth"
)

var (
	runQueriesPath string
	runOut         string
	runRounds      int
	runSeed        int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute an ablation experiment",
	Long:  "Ablates collection combinations round by round, re-executes the query battery against the emptied data, scores every result against stored truth, and restores. Results persist to the store; --out additionally writes a YAML report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		queries, err := readQueryFile(runQueriesPath)
		if err != nil {
			return err
		}
		if len(queries) == 0 {
			return eris.Errorf("no queries in %s", runQueriesPath)
		}
		universe := cfg.Ablation.Collections

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		seed := runSeed
		if seed == 0 {
			seed = cfg.Rounds.Seed
		}

		roundCount := runRounds
		if roundCount < 0 {
			roundCount = cfg.Rounds.Count
		}
		var rounds []model.Round
		if roundCount == 0 {
			// No control groups: one round testing the full universe.
			rounds = []model.Round{{Number: 1, Test: universe}}
		} else {
			rounds, err = ablation.PlanRounds(universe, ablation.RoundConfig{
				Rounds:           roundCount,
				ControlPct:       cfg.Rounds.ControlPct,
				BalanceTolerance: cfg.Rounds.BalanceTolerance,
				Seed:             seed,
			})
			if err != nil {
				return err
			}
		}

		controller := ablation.NewController(e.store)

		run, err := e.report.StartRun(ctx, len(queries), seed)
		if err != nil {
			return err
		}

		var (
			allResults  []model.AblationResult
			allFindings []ablation.Finding
			runErr      error
		)
		for _, round := range rounds {
			combos := ablation.GenerateCombinations(round.Test, cfg.Rounds.MaxCombinationSize, cfg.Rounds.CombinationCap, seed+int64(round.Number))
			zap.L().Info("round starting",
				zap.Int("round", round.Number),
				zap.Strings("control", round.Control),
				zap.Int("combinations", len(combos)),
			)

			tester := ablation.NewTester(e.store, e.truth, controller, universe, ablation.Config{
				QueryTimeout: time.Duration(cfg.Ablation.QueryTimeoutSecs) * time.Second,
				Baseline:     cfg.Ablation.Baseline,
				CrossImpact:  cfg.Ablation.CrossImpact,
				MaxParallel:  cfg.Ablation.MaxParallel,
				Round:        round.Number,
			})
			outcome, err := tester.RunBatch(ctx, queries, combos)
			allResults = append(allResults, outcome.Results...)
			allFindings = append(allFindings, outcome.Findings...)

			if perr := e.report.AppendResults(ctx, run, outcome.Results); perr != nil && runErr == nil {
				runErr = perr
			}
			if err != nil {
				runErr = err
				break
			}
		}

		status := report.StatusComplete
		switch {
		case eris.Is(runErr, ablation.ErrRestoreFailed), eris.Is(runErr, truth.ErrMissingTruth):
			status = report.StatusFailed
		case runErr != nil:
			status = report.StatusIncomplete
		}
		if err := e.report.FinishRun(ctx, run, status, runErr); err != nil {
			return err
		}

		for _, f := range allFindings {
			zap.L().Warn("sanity finding",
				zap.String("query_id", f.QueryID),
				zap.String("collection", f.Collection),
				zap.String("pattern", f.Pattern),
				zap.String("detail", f.Detail),
			)
		}

		if runOut != "" {
			f, err := os.Create(runOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", runOut)
			}
			defer f.Close()
			if err := report.WriteYAML(f, run, allResults, allFindings); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", runOut))
		}

		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runQueriesPath, "queries", "queries.yaml", "query battery file")
	runCmd.Flags().StringVar(&runOut, "out", "", "YAML report output path")
	runCmd.Flags().IntVar(&runRounds, "rounds", -1, "round count (0 disables control groups, default from config)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "plan seed (default from config)")
	rootCmd.AddCommand(runCmd)
}
