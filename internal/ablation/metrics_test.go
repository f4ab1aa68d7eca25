package ablation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
)

func recs(keys ...string) []docstore.Record {
	out := make([]docstore.Record, len(keys))
	for i, k := range keys {
		out[i] = docstore.Record{docstore.KeyField: k}
	}
	return out
}

func truthSet(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

func TestScoreEmptyTruthNoResults(t *testing.T) {
	res := Engine{}.Score(ScoreInput{
		QueryID:    uuid.New(),
		Collection: "music_activity",
		Results:    nil,
		Truth:      truthSet(),
	})

	assert.Equal(t, 1.0, res.Precision)
	assert.Equal(t, 1.0, res.Recall)
	assert.Equal(t, 1.0, res.F1)
	assert.Equal(t, 0, res.ResultCount)
	assert.Equal(t, 0, res.FalseNegatives)
}

func TestScoreEmptyTruthWithResults(t *testing.T) {
	res := Engine{}.Score(ScoreInput{
		QueryID:    uuid.New(),
		Collection: "music_activity",
		Results:    recs("a", "b", "c"),
		Truth:      truthSet(),
	})

	assert.Equal(t, 0.0, res.Precision)
	assert.Equal(t, 1.0, res.Recall)
	assert.Equal(t, 0.0, res.F1)
	assert.Equal(t, 3, res.FalsePositives)
	assert.Equal(t, 3, res.ResultCount)
}

func TestScoreAblatedWithTruth(t *testing.T) {
	res := Engine{}.Score(ScoreInput{
		QueryID:    uuid.New(),
		Collection: "task_activity",
		Results:    nil,
		Truth:      truthSet("t1", "t2", "t3", "t4"),
		Ablated:    true,
	})

	assert.Equal(t, 0, res.TruePositives)
	assert.Equal(t, 0, res.FalsePositives)
	assert.Equal(t, 4, res.FalseNegatives)
	assert.Equal(t, 0.0, res.Precision)
	assert.Equal(t, 0.0, res.Recall)
	assert.Equal(t, 0.0, res.F1)
	assert.Equal(t, 1.0, res.Impact)
}

// Rows leaking out of an emptied collection must not count as matches.
// They land in metadata; result_count still equals TP+FP.
func TestScoreAblatedLeakageExcluded(t *testing.T) {
	res := Engine{}.Score(ScoreInput{
		QueryID:    uuid.New(),
		Collection: "task_activity",
		Results:    recs("t1", "t2"),
		Truth:      truthSet("t1", "t2", "t3"),
		Ablated:    true,
	})

	assert.Equal(t, 0, res.TruePositives)
	assert.Equal(t, 0, res.FalsePositives)
	assert.Equal(t, 3, res.FalseNegatives)
	assert.Equal(t, 0, res.ResultCount)
	require.NotNil(t, res.Metadata)
	assert.Equal(t, 2, res.Metadata[model.MetaRawResults])
}

func TestScoreStandardCase(t *testing.T) {
	res := Engine{}.Score(ScoreInput{
		QueryID:    uuid.New(),
		Collection: "location_activity",
		Results:    recs("a", "b", "c", "x"),
		Truth:      truthSet("a", "b", "c", "d", "e", "f"),
	})

	assert.Equal(t, 3, res.TruePositives)
	assert.Equal(t, 1, res.FalsePositives)
	assert.Equal(t, 3, res.FalseNegatives)
	assert.InDelta(t, 0.75, res.Precision, 1e-9)
	assert.InDelta(t, 0.5, res.Recall, 1e-9)
	assert.InDelta(t, 0.6, res.F1, 1e-9)
	assert.Equal(t, 0.0, res.Impact)
	assert.Equal(t, res.TruePositives+res.FalsePositives, res.ResultCount)
}

func TestScoreNoResultsWithTruth(t *testing.T) {
	res := Engine{}.Score(ScoreInput{
		QueryID:    uuid.New(),
		Collection: "location_activity",
		Results:    nil,
		Truth:      truthSet("a", "b"),
	})

	assert.Equal(t, 0.0, res.Precision)
	assert.Equal(t, 0.0, res.Recall)
	assert.Equal(t, 0.0, res.F1)
	assert.Equal(t, 2, res.FalseNegatives)
}

func TestScoreImpactIsComplementOfF1(t *testing.T) {
	// An ablated collection with empty truth and no results keeps perfect
	// metrics, so its impact is zero.
	res := Engine{}.Score(ScoreInput{
		QueryID:    uuid.New(),
		Collection: "media_activity",
		Truth:      truthSet(),
		Ablated:    true,
	})
	assert.Equal(t, 1.0, res.F1)
	assert.Equal(t, 0.0, res.Impact)
}

func TestScorePreservesMetadata(t *testing.T) {
	res := Engine{}.Score(ScoreInput{
		QueryID:    uuid.New(),
		Collection: "media_activity",
		Truth:      truthSet(),
		Metadata:   map[string]any{model.MetaGroup: "baseline"},
	})
	assert.Equal(t, "baseline", res.Metadata[model.MetaGroup])
}
