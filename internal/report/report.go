// Package report persists ablation runs and their scored results, and
// renders run summaries for export.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/searchlab/ablate/internal/ablation"
	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
)

// Document-store collections for run bookkeeping.
const (
	DefaultRunCollection    = "ablation_runs"
	DefaultResultCollection = "ablation_results"
)

// Run statuses. A run is "running" from start until FinishRun; a crash
// leaves it in that state, which readers treat as incomplete.
const (
	StatusRunning    = "running"
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
	StatusFailed     = "failed"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = eris.New("report: run not found")

// Run is the persisted bookkeeping record for one batch. ID is a UUID in
// string form.
type Run struct {
	ID         string    `json:"run_id" yaml:"run_id"`
	Status     string    `json:"status" yaml:"status"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Queries    int       `json:"queries" yaml:"queries"`
	Results    int       `json:"results" yaml:"results"`
	Seed       int64     `json:"seed" yaml:"seed"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Store persists runs and results.
type Store struct {
	store   docstore.Store
	runs    string
	results string
}

// NewStore creates a report store. Empty collection names select the
// defaults.
func NewStore(ds docstore.Store, runCollection, resultCollection string) *Store {
	if runCollection == "" {
		runCollection = DefaultRunCollection
	}
	if resultCollection == "" {
		resultCollection = DefaultResultCollection
	}
	return &Store{store: ds, runs: runCollection, results: resultCollection}
}

// StartRun registers a new run in status running and returns it.
func (s *Store) StartRun(ctx context.Context, queries int, seed int64) (*Run, error) {
	if err := s.store.EnsureCollection(ctx, s.runs); err != nil {
		return nil, err
	}
	if err := s.store.EnsureCollection(ctx, s.results); err != nil {
		return nil, err
	}
	run := &Run{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		Queries:   queries,
		Seed:      seed,
	}
	if err := s.store.Insert(ctx, s.runs, runRecord(run)); err != nil {
		return nil, eris.Wrap(err, "report: register run")
	}
	zap.L().Info("report: run started",
		zap.String("run_id", run.ID),
		zap.Int("queries", queries),
	)
	return run, nil
}

// AppendResults persists scored rows for a run. Rows are immutable; the
// key embeds the run id and a sequence number.
func (s *Store) AppendResults(ctx context.Context, run *Run, results []model.AblationResult) error {
	records := make([]docstore.Record, 0, len(results))
	for _, r := range results {
		rec := resultRecord(r)
		rec[docstore.KeyField] = fmt.Sprintf("%s-%06d", run.ID, run.Results)
		rec["run_id"] = run.ID
		records = append(records, rec)
		run.Results++
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.store.InsertMany(ctx, s.results, records); err != nil {
		return eris.Wrap(err, "report: append results")
	}
	return nil
}

// FinishRun marks the run's terminal status. runErr, when non-nil, is
// recorded verbatim for later inspection.
func (s *Store) FinishRun(ctx context.Context, run *Run, status string, runErr error) error {
	run.Status = status
	run.FinishedAt = time.Now().UTC()
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.store.Update(ctx, s.runs, runRecord(run)); err != nil {
		return eris.Wrap(err, "report: finish run")
	}
	zap.L().Info("report: run finished",
		zap.String("run_id", run.ID),
		zap.String("status", status),
		zap.Int("results", run.Results),
	)
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	rec, err := s.store.Get(ctx, s.runs, id)
	if err != nil {
		if eris.Is(err, docstore.ErrNotFound) {
			return nil, eris.Wrapf(ErrRunNotFound, "%s", id)
		}
		return nil, eris.Wrap(err, "report: get run")
	}
	return decodeRun(rec)
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	if ok, err := s.store.HasCollection(ctx, s.runs); err != nil {
		return nil, eris.Wrap(err, "report: list runs")
	} else if !ok {
		return nil, nil
	}
	records, err := s.store.Contents(ctx, s.runs)
	if err != nil {
		return nil, eris.Wrap(err, "report: list runs")
	}
	runs := make([]*Run, 0, len(records))
	for _, rec := range records {
		run, err := decodeRun(rec)
		if err != nil {
			zap.L().Warn("report: skipping malformed run record",
				zap.String("key", rec.Key()),
				zap.Error(err),
			)
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

// RunResults loads every scored row of a run.
func (s *Store) RunResults(ctx context.Context, id string) ([]model.AblationResult, error) {
	records, err := s.store.FindByField(ctx, s.results, "run_id", id)
	if err != nil {
		return nil, eris.Wrap(err, "report: run results")
	}
	out := make([]model.AblationResult, 0, len(records))
	for _, rec := range records {
		r, err := decodeResult(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Export is the YAML document written for a finished run. Result rows go
// through the same string-keyed encoding used for persistence.
type Export struct {
	Run      *Run                     `yaml:"run"`
	Impact   []ablation.ImpactSummary `yaml:"impact"`
	Findings []ablation.Finding       `yaml:"findings,omitempty"`
	Results  []map[string]any         `yaml:"results"`
}

// WriteYAML renders the run, its per-collection impact aggregation, any
// sanity findings, and the raw rows as a single YAML document.
func WriteYAML(w io.Writer, run *Run, results []model.AblationResult, findings []ablation.Finding) error {
	rows := make([]map[string]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, resultRecord(r))
	}
	doc := Export{
		Run:      run,
		Impact:   ablation.AggregateImpact(results),
		Findings: findings,
		Results:  rows,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	return enc.Close()
}
