package ablation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
	"github.com/searchlab/ablate/internal/query"
	"github.com/searchlab/ablate/internal/truth"
)

// ErrQueryExecution wraps a store rejection or timeout during query
// execution. The unit fails but its restore still runs.
var ErrQueryExecution = eris.New("ablation: query execution failed")

// Config tunes the tester.
type Config struct {
	// QueryTimeout bounds each query execution against the store.
	// Zero means no timeout.
	QueryTimeout time.Duration

	// Baseline, when set, executes each combination collection non-ablated
	// before ablating and records the result tagged group=baseline.
	Baseline bool

	// CrossImpact, when set, also scores every relevant collection outside
	// the combination while the combination is ablated, measuring knock-on
	// effects through cross-collection references.
	CrossImpact bool

	// MaxParallel bounds concurrent units in RunBatch. Units whose
	// combinations overlap are serialized by the controller regardless.
	MaxParallel int

	// Round, when positive, is recorded in every result's metadata so
	// results from a round plan can be traced back to their round.
	Round int
}

// Tester drives one unit of ablation work per (query, combination) through
// INIT, ABLATE, QUERY_ABLATED, SCORE, RESTORE, RECORDED. Restoration runs
// on every exit path; unit errors propagate only after it completes.
type Tester struct {
	store    docstore.Store
	truth    *truth.Store
	ctrl     *Controller
	builder  *query.Builder
	metrics  Engine
	universe []string
	cfg      Config
}

// NewTester wires a Tester. universe is the full collection set, used by
// the shared relatedness heuristic.
func NewTester(store docstore.Store, ts *truth.Store, ctrl *Controller, universe []string, cfg Config) *Tester {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	return &Tester{
		store:    store,
		truth:    ts,
		ctrl:     ctrl,
		builder:  query.NewBuilder(),
		universe: universe,
		cfg:      cfg,
	}
}

// RunSingle executes one unit: ablate the combination, run the query
// against each ablated collection (and, optionally, baseline and
// cross-impact passes), score against truth, restore.
func (t *Tester) RunSingle(ctx context.Context, q model.Query, combination model.Combination) ([]model.AblationResult, error) {
	// INIT: the whole unit fails fast without a truth record.
	record, err := t.truth.Get(ctx, q.ID)
	if err != nil {
		return nil, err
	}

	var results []model.AblationResult

	if t.cfg.Baseline {
		for _, col := range combination {
			res, err := t.evaluate(ctx, q, record, col, false, map[string]any{
				model.MetaGroup:       "baseline",
				model.MetaCombination: combination.Label(),
			})
			if err != nil {
				return results, err
			}
			results = append(results, res)
		}
	}

	// ABLATE: scoped acquisition; blocks until no overlapping unit is in
	// flight.
	scope, err := t.ctrl.Ablate(ctx, combination)
	if err != nil {
		return results, err
	}

	unitErr := t.runAblated(ctx, q, record, combination, &results)

	// RESTORE always runs, even after a query or scoring error. Restore
	// context is detached from the unit's cancellation: a canceled unit
	// must still put the data back.
	restoreErr := scope.Restore(context.WithoutCancel(ctx))
	if restoreErr != nil {
		return results, restoreErr
	}
	return results, unitErr
}

func (t *Tester) runAblated(ctx context.Context, q model.Query, record *model.TruthRecord, combination model.Combination, results *[]model.AblationResult) error {
	label := combination.Label()

	// QUERY_ABLATED: real queries against the emptied collections, never a
	// canned empty result.
	for _, col := range combination {
		res, err := t.evaluate(ctx, q, record, col, true, map[string]any{
			model.MetaGroup:       "ablated",
			model.MetaCombination: label,
		})
		if err != nil {
			return err
		}
		*results = append(*results, res)
	}

	if t.cfg.CrossImpact {
		for _, col := range q.Collections {
			if combination.Overlaps(model.Combination{col}) {
				continue
			}
			res, err := t.evaluate(ctx, q, record, col, false, map[string]any{
				model.MetaGroup:         "cross",
				model.MetaCombination:   label,
				model.MetaAblatedTarget: label,
			})
			if err != nil {
				return err
			}
			*results = append(*results, res)
		}
	}
	return nil
}

// evaluate builds and executes the query for one collection under current
// state and scores it. The query is constructed identically whether or not
// the collection is ablated; only the underlying data differs.
func (t *Tester) evaluate(ctx context.Context, q model.Query, record *model.TruthRecord, collection string, ablated bool, meta map[string]any) (model.AblationResult, error) {
	if t.cfg.Round > 0 {
		meta[model.MetaRound] = t.cfg.Round
	}
	terms := query.ExtractTerms(q.Text, string(model.KindOf(collection)), time.Now().UTC())
	for k, v := range q.SearchTerms {
		terms[k] = v
	}
	related := query.RelatedCollections(q.Text, collection, t.universe)
	if len(related) > 0 {
		meta[model.MetaRelated] = related
	}

	dq, err := t.builder.BuildWithRelated(collection, terms, related)
	if err != nil {
		return model.AblationResult{}, err
	}

	execCtx := ctx
	if t.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, t.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	records, err := t.store.Execute(execCtx, dq)
	elapsed := time.Since(start)
	if err != nil {
		// A timeout here is a query failure, not "ablation worked".
		return model.AblationResult{}, eris.Wrapf(ErrQueryExecution, "%s on %s: %v", q.ID, collection, err)
	}

	return t.metrics.Score(ScoreInput{
		QueryID:       q.ID,
		Collection:    collection,
		Results:       records,
		Truth:         record.EntitySet(collection),
		Ablated:       ablated,
		ExecutionTime: elapsed,
		QueryText:     dq.Text,
		Params:        dq.Params,
		Metadata:      meta,
	}), nil
}

// BatchOutcome is everything RunBatch produced, including results from
// units that completed before a failure stopped the batch.
type BatchOutcome struct {
	Results  []model.AblationResult
	Findings []Finding
	// Incomplete marks that the batch stopped before every unit ran.
	Incomplete bool
}

// RunBatch runs every (query, combination) unit. Units with disjoint
// combinations run in parallel up to MaxParallel; overlapping units are
// serialized by the controller's collection locks.
//
// A failed restore or missing truth record stops the batch: in-flight
// units finish their own restore-or-fail cycle, no new units launch, and
// the fatal error is surfaced. Plain query failures fail their unit and
// are reported together at the end without stopping the rest.
func (t *Tester) RunBatch(ctx context.Context, queries []model.Query, combinations []model.Combination) (*BatchOutcome, error) {
	outcome := &BatchOutcome{}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		unitErrs []error
		fatalErr error
	)

	g := &errgroup.Group{}
	g.SetLimit(t.cfg.MaxParallel)

	for _, q := range queries {
		for _, comb := range combinations {
			q, comb := q, comb
			g.Go(func() error {
				if batchCtx.Err() != nil {
					mu.Lock()
					outcome.Incomplete = true
					mu.Unlock()
					return nil
				}
				results, err := t.RunSingle(batchCtx, q, comb)
				mu.Lock()
				defer mu.Unlock()
				outcome.Results = append(outcome.Results, results...)
				if err == nil {
					return nil
				}
				unitErrs = append(unitErrs, err)
				if eris.Is(err, ErrRestoreFailed) || eris.Is(err, truth.ErrMissingTruth) {
					if fatalErr == nil {
						fatalErr = err
					}
					outcome.Incomplete = true
					cancel()
					zap.L().Error("ablation: fatal batch error, stopping new units",
						zap.String("query_id", q.ID.String()),
						zap.String("combination", comb.Label()),
						zap.Error(err),
					)
				} else {
					zap.L().Error("ablation: unit failed",
						zap.String("query_id", q.ID.String()),
						zap.String("combination", comb.Label()),
						zap.Error(err),
					)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	outcome.Findings = CheckResults(outcome.Results)

	if fatalErr != nil {
		return outcome, fatalErr
	}
	if len(unitErrs) > 0 {
		outcome.Incomplete = true
		return outcome, errors.Join(unitErrs...)
	}
	return outcome, nil
}
