package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/searchlab/ablate/internal/model"
	"github.com/searchlab/ablate/internal/querygen"
	"github.com/searchlab/ablate/internal/resilience"
)

var (
	queriesCount   int
	queriesOut     string
	queriesContext string
)

// queryDoc is the on-disk query battery format shared by the queries,
// truth, and run commands.
type queryDoc struct {
	Context string       `yaml:"context"`
	Queries []queryEntry `yaml:"queries"`
}

type queryEntry struct {
	ID          string         `yaml:"id"`
	Text        string         `yaml:"text"`
	Collections []string       `yaml:"collections"`
	SearchTerms map[string]any `yaml:"search_terms,omitempty"`
}

func writeQueryFile(path, context string, queries []model.Query) error {
	doc := queryDoc{Context: context}
	for _, q := range queries {
		doc.Queries = append(doc.Queries, queryEntry{
			ID:          q.ID.String(),
			Text:        q.Text,
			Collections: q.Collections,
			SearchTerms: q.SearchTerms,
		})
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "encode query file")
	}
	return os.WriteFile(path, data, 0o644)
}

func readQueryFile(path string) ([]model.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read query file %s", path)
	}
	var doc queryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "decode query file %s", path)
	}
	queries := make([]model.Query, 0, len(doc.Queries))
	for _, e := range doc.Queries {
		q := model.Query{
			Text:        e.Text,
			Collections: e.Collections,
			SearchTerms: e.SearchTerms,
		}
		if e.ID != "" {
			id, err := uuid.Parse(e.ID)
			if err != nil {
				return nil, eris.Wrapf(err, "query id %q", e.ID)
			}
			q.ID = id
		} else {
			q.ID = model.NewQueryID(e.Text, doc.Context)
		}
		queries = append(queries, q)
	}
	return queries, nil
}

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Generate a natural-language query battery",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("queries"); err != nil {
			return err
		}

		gen := querygen.NewAnthropicGenerator(querygen.Config{
			APIKey:      cfg.Anthropic.Key,
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
			Context:     queriesContext,
			Breaker: resilience.FromCircuitConfig(
				cfg.Anthropic.CircuitFailures,
				cfg.Anthropic.CircuitResetSecs,
			),
		})
		queries, err := gen.Generate(cmd.Context(), cfg.Ablation.Collections, queriesCount)
		if err != nil {
			return err
		}

		if err := writeQueryFile(queriesOut, queriesContext, queries); err != nil {
			return err
		}
		zap.L().Info("query battery written",
			zap.String("path", queriesOut),
			zap.Int("queries", len(queries)),
		)
		return nil
	},
}

func init() {
	queriesCmd.Flags().IntVar(&queriesCount, "count", 20, "number of queries to generate")
	queriesCmd.Flags().StringVar(&queriesOut, "out", "queries.yaml", "output file")
	queriesCmd.Flags().StringVar(&queriesContext, "context", "default", "id namespace for the battery")
	rootCmd.AddCommand(queriesCmd)
}
