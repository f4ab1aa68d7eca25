package report

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
)

func runRecord(run *Run) docstore.Record {
	rec := docstore.Record{
		docstore.KeyField: run.ID,
		"status":          run.Status,
		"started_at":      run.StartedAt.Format(time.RFC3339Nano),
		"queries":         run.Queries,
		"results":         run.Results,
		"seed":            run.Seed,
	}
	if !run.FinishedAt.IsZero() {
		rec["finished_at"] = run.FinishedAt.Format(time.RFC3339Nano)
	}
	if run.Error != "" {
		rec["error"] = run.Error
	}
	return rec
}

func decodeRun(rec docstore.Record) (*Run, error) {
	if _, err := uuid.Parse(rec.Key()); err != nil {
		return nil, eris.Wrapf(err, "report: run key %q", rec.Key())
	}
	run := &Run{ID: rec.Key()}
	run.Status, _ = rec["status"].(string)
	run.Error, _ = rec["error"].(string)
	run.Queries = asInt(rec["queries"])
	run.Results = asInt(rec["results"])
	run.Seed = int64(asInt(rec["seed"]))
	if ts, ok := rec["started_at"].(string); ok {
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if ts, ok := rec["finished_at"].(string); ok {
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return run, nil
}

func resultRecord(r model.AblationResult) docstore.Record {
	rec := docstore.Record{
		"query_id":          r.QueryID.String(),
		"collection":        r.Collection,
		"result_count":      r.ResultCount,
		"true_positives":    r.TruePositives,
		"false_positives":   r.FalsePositives,
		"false_negatives":   r.FalseNegatives,
		"precision":         r.Precision,
		"recall":            r.Recall,
		"f1_score":          r.F1,
		"impact":            r.Impact,
		"execution_time_ms": float64(r.ExecutionTime) / float64(time.Millisecond),
		"query_text":        r.QueryText,
	}
	if len(r.Params) > 0 {
		rec["params"] = r.Params
	}
	if len(r.Metadata) > 0 {
		rec["metadata"] = r.Metadata
	}
	return rec
}

func decodeResult(rec docstore.Record) (model.AblationResult, error) {
	var r model.AblationResult
	qid, _ := rec["query_id"].(string)
	id, err := uuid.Parse(qid)
	if err != nil {
		return r, eris.Wrapf(err, "report: result %s query_id %q", rec.Key(), qid)
	}
	r.QueryID = id
	r.Collection, _ = rec["collection"].(string)
	r.ResultCount = asInt(rec["result_count"])
	r.TruePositives = asInt(rec["true_positives"])
	r.FalsePositives = asInt(rec["false_positives"])
	r.FalseNegatives = asInt(rec["false_negatives"])
	r.Precision = asFloat(rec["precision"])
	r.Recall = asFloat(rec["recall"])
	r.F1 = asFloat(rec["f1_score"])
	r.Impact = asFloat(rec["impact"])
	r.ExecutionTime = time.Duration(asFloat(rec["execution_time_ms"]) * float64(time.Millisecond))
	r.QueryText, _ = rec["query_text"].(string)
	if p, ok := rec["params"].(map[string]any); ok {
		r.Params = p
	}
	if m, ok := rec["metadata"].(map[string]any); ok {
		r.Metadata = m
	}
	return r, nil
}

// Stores round-trip numbers through JSON, so ints come back as float64.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
