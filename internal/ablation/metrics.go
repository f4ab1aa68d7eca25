package ablation

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
)

// ScoreInput carries everything the metrics engine needs for one
// (query, collection) evaluation. Truth must come from the truth store; the
// engine never substitutes a default when truth is missing; that failure
// belongs to the caller, before scoring.
type ScoreInput struct {
	QueryID       uuid.UUID
	Collection    string
	Results       []docstore.Record
	Truth         map[string]struct{}
	Ablated       bool
	ExecutionTime time.Duration
	QueryText     string
	Params        map[string]any
	Metadata      map[string]any
}

// Engine computes precision/recall/F1 and the impact score. It owns all
// edge-case policy; callers never special-case empty truth or ablated runs.
type Engine struct{}

// Score evaluates results against the truth set.
//
// Edge-case policy:
//   - Empty truth, no results: the absence was correctly reported, so
//     precision = recall = f1 = 1.0. Never an error and never the
//     degenerate 0.0 that collapses whole runs into binary metrics.
//   - Empty truth, results returned: every row is a false positive;
//     precision 0.0, recall 1.0, f1 0.0. This holds whether or not the
//     collection is ablated (leakage from an ablated collection is the
//     same unexpected-rows failure).
//   - Non-empty truth, ablated: the expected matches are unreachable, so
//     all of them are false negatives and precision, recall and f1 are 0.
//     Rows returned by an ablated collection are an anomaly to log, not to
//     score as matches; they are excluded from TP/FP and surfaced in
//     metadata so result_count always equals TP+FP.
//   - Non-empty truth, not ablated: standard set arithmetic, with each
//     ratio 0.0 when its denominator is 0.
func (Engine) Score(in ScoreInput) model.AblationResult {
	var tp, fp, fn int
	var precision, recall, f1 float64

	resultKeys := make(map[string]struct{}, len(in.Results))
	for _, rec := range in.Results {
		resultKeys[rec.Key()] = struct{}{}
	}

	meta := make(map[string]any, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		meta[k] = v
	}

	switch {
	case len(in.Truth) == 0:
		if len(in.Results) == 0 {
			precision, recall, f1 = 1.0, 1.0, 1.0
		} else {
			fp = len(in.Results)
			precision, recall, f1 = 0.0, 1.0, 0.0
			if in.Ablated {
				zap.L().Warn("metrics: ablated collection returned rows",
					zap.String("collection", in.Collection),
					zap.String("query_id", in.QueryID.String()),
					zap.Int("rows", len(in.Results)),
				)
			}
		}

	case in.Ablated:
		fn = len(in.Truth)
		precision, recall, f1 = 0.0, 0.0, 0.0
		if len(in.Results) > 0 {
			// Rows from an emptied collection mean the ablation did not
			// hold; record the anomaly without letting it count as matches.
			meta[model.MetaRawResults] = len(in.Results)
			zap.L().Warn("metrics: ablated collection returned rows",
				zap.String("collection", in.Collection),
				zap.String("query_id", in.QueryID.String()),
				zap.Int("rows", len(in.Results)),
			)
		}

	default:
		for key := range resultKeys {
			if _, ok := in.Truth[key]; ok {
				tp++
			} else {
				fp++
			}
		}
		for key := range in.Truth {
			if _, ok := resultKeys[key]; !ok {
				fn++
			}
		}
		precision = ratio(tp, tp+fp)
		recall = ratio(tp, tp+fn)
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
	}

	impact := 0.0
	if in.Ablated {
		impact = 1.0 - f1
	}

	if len(meta) == 0 {
		meta = nil
	}

	result := model.AblationResult{
		QueryID:        in.QueryID,
		Collection:     in.Collection,
		ResultCount:    tp + fp,
		TruePositives:  tp,
		FalsePositives: fp,
		FalseNegatives: fn,
		Precision:      precision,
		Recall:         recall,
		F1:             f1,
		Impact:         impact,
		ExecutionTime:  in.ExecutionTime,
		QueryText:      in.QueryText,
		Params:         in.Params,
		Metadata:       meta,
	}

	zap.L().Debug("metrics: scored",
		zap.String("collection", in.Collection),
		zap.String("query_id", in.QueryID.String()),
		zap.Bool("ablated", in.Ablated),
		zap.Int("tp", tp), zap.Int("fp", fp), zap.Int("fn", fn),
		zap.Float64("precision", precision),
		zap.Float64("recall", recall),
		zap.Float64("f1", f1),
	)
	return result
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0.0
	}
	return float64(num) / float64(den)
}
