package truth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
	"github.com/searchlab/ablate/internal/query"
)

// Generator derives truth records by executing each query against live,
// non-ablated data and recording what it matches. The queries it runs are
// built by the same builder and relatedness heuristic the ablation tester
// uses, so truth and measurement never diverge on query semantics.
type Generator struct {
	store    docstore.Store
	truth    *Store
	builder  *query.Builder
	universe []string
}

// NewGenerator wires a truth generator over the full collection universe.
func NewGenerator(ds docstore.Store, ts *Store, universe []string) *Generator {
	return &Generator{
		store:    ds,
		truth:    ts,
		builder:  query.NewBuilder(),
		universe: universe,
	}
}

// Generate executes q against every collection it targets and saves the
// matched entity keys as the query's truth record. A collection the query
// matches nothing in still gets an explicit empty list, so scoring can
// distinguish "verified empty" from "never evaluated".
func (g *Generator) Generate(ctx context.Context, q model.Query) (*model.TruthRecord, error) {
	matching := make(map[string][]string, len(q.Collections))
	for _, col := range q.Collections {
		terms := query.ExtractTerms(q.Text, string(model.KindOf(col)), time.Now().UTC())
		for k, v := range q.SearchTerms {
			terms[k] = v
		}
		related := query.RelatedCollections(q.Text, col, g.universe)

		dq, err := g.builder.BuildWithRelated(col, terms, related)
		if err != nil {
			return nil, err
		}
		records, err := g.store.Execute(ctx, dq)
		if err != nil {
			return nil, err
		}

		keys := make([]string, 0, len(records))
		for _, rec := range records {
			if k := rec.Key(); k != "" {
				keys = append(keys, k)
			}
		}
		matching[col] = keys
	}

	if err := g.truth.Save(ctx, q.ID, matching); err != nil {
		return nil, err
	}

	total := 0
	for _, keys := range matching {
		total += len(keys)
	}
	zap.L().Info("truth: generated record",
		zap.String("query_id", q.ID.String()),
		zap.Int("collections", len(matching)),
		zap.Int("entities", total),
	)
	return g.truth.Get(ctx, q.ID)
}

// GenerateAll runs Generate for each query in order, stopping at the first
// failure. Truth generation is sequential: it must see stable, non-ablated
// data, and partial truth is worse than no truth.
func (g *Generator) GenerateAll(ctx context.Context, queries []model.Query) ([]*model.TruthRecord, error) {
	out := make([]*model.TruthRecord, 0, len(queries))
	for _, q := range queries {
		rec, err := g.Generate(ctx, q)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
