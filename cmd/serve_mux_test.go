package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlab/ablate/internal/ablation"
	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
	"github.com/searchlab/ablate/internal/report"
)

// newServeFixture seeds an in-memory report store with one finished run
// carrying a single ablated result.
func newServeFixture(t *testing.T) (*report.Store, *report.Run) {
	t.Helper()
	ctx := context.Background()
	rep := report.NewStore(docstore.NewMemory(), "", "")

	run, err := rep.StartRun(ctx, 1, 42)
	require.NoError(t, err)
	require.NoError(t, rep.AppendResults(ctx, run, []model.AblationResult{{
		QueryID:        model.NewQueryID("Taylor Swift songs", "test"),
		Collection:     "music_activity",
		ResultCount:    0,
		FalseNegatives: 2,
		Impact:         1.0,
		QueryText:      "FOR doc IN music_activity RETURN doc",
		Metadata:       map[string]any{model.MetaGroup: "ablated"},
	}}))
	require.NoError(t, rep.FinishRun(ctx, run, report.StatusComplete, nil))
	return rep, run
}

func serveGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBuildMuxHealthEndpoint(t *testing.T) {
	rep := report.NewStore(docstore.NewMemory(), "", "")
	rr := serveGet(t, buildMux(rep), "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildMuxListRuns(t *testing.T) {
	rep, run := newServeFixture(t)
	rr := serveGet(t, buildMux(rep), "/api/runs")

	require.Equal(t, http.StatusOK, rr.Code)
	var runs []report.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, report.StatusComplete, runs[0].Status)
}

func TestBuildMuxListRunsEmptyStore(t *testing.T) {
	rep := report.NewStore(docstore.NewMemory(), "", "")
	rr := serveGet(t, buildMux(rep), "/api/runs")

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBuildMuxGetRun(t *testing.T) {
	rep, run := newServeFixture(t)
	rr := serveGet(t, buildMux(rep), "/api/runs/"+run.ID)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Run    report.Run                `json:"run"`
		Impact []ablation.ImpactSummary `json:"impact"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, run.ID, body.Run.ID)
	assert.Equal(t, 1, body.Run.Results)
	require.Len(t, body.Impact, 1)
	assert.Equal(t, "music_activity", body.Impact[0].Collection)
	assert.InDelta(t, 1.0, body.Impact[0].MeanImpact, 0.001)
}

func TestBuildMuxGetRunNotFound(t *testing.T) {
	rep, _ := newServeFixture(t)
	rr := serveGet(t, buildMux(rep), "/api/runs/00000000-0000-0000-0000-000000000000")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestBuildMuxRunResults(t *testing.T) {
	rep, run := newServeFixture(t)
	rr := serveGet(t, buildMux(rep), "/api/runs/"+run.ID+"/results")

	require.Equal(t, http.StatusOK, rr.Code)
	var results []model.AblationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "music_activity", results[0].Collection)
	assert.Equal(t, 1.0, results[0].Impact)
}

func TestBuildMuxRunResultsNotFound(t *testing.T) {
	rep, _ := newServeFixture(t)
	rr := serveGet(t, buildMux(rep), "/api/runs/00000000-0000-0000-0000-000000000000/results")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
