package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/truth"
)

var truthQueriesPath string

var truthCmd = &cobra.Command{
	Use:   "truth",
	Short: "Generate truth records by executing queries against live data",
	Long:  "Runs each query of the battery against its non-ablated collections and stores the matched entity keys as that query's expected answer set. Regeneration fully replaces prior records.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("truth"); err != nil {
			return err
		}
		queries, err := readQueryFile(truthQueriesPath)
		if err != nil {
			return err
		}
		if len(queries) == 0 {
			return eris.Errorf("no queries in %s", truthQueriesPath)
		}

		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		gen := truth.NewGenerator(e.store, e.truth, cfg.Ablation.Collections)
		records, err := gen.GenerateAll(cmd.Context(), queries)
		if err != nil {
			return err
		}

		zap.L().Info("truth generation complete",
			zap.Int("records", len(records)),
		)
		return nil
	},
}

func init() {
	truthCmd.Flags().StringVar(&truthQueriesPath, "queries", "queries.yaml", "query battery file")
	rootCmd.AddCommand(truthCmd)
}
