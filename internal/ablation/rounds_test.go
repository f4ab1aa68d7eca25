package ablation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlab/ablate/internal/model"
)

var sixCollections = []string{
	"music_activity", "location_activity", "task_activity",
	"collaboration_activity", "storage_activity", "media_activity",
}

func TestGenerateCombinationsFullPowerSet(t *testing.T) {
	combos := GenerateCombinations(sixCollections, 0, 0, 1)
	// Every non-empty subset of six collections.
	assert.Len(t, combos, 63)

	seen := map[string]bool{}
	for _, c := range combos {
		require.NotEmpty(t, c)
		label := c.Label()
		assert.False(t, seen[label], "duplicate combination %s", label)
		seen[label] = true
	}
}

func TestGenerateCombinationsMaxSize(t *testing.T) {
	combos := GenerateCombinations(sixCollections, 2, 0, 1)
	// 6 singles + 15 pairs.
	assert.Len(t, combos, 21)
	for _, c := range combos {
		assert.LessOrEqual(t, len(c), 2)
	}
}

func TestGenerateCombinationsCapKeepsSingles(t *testing.T) {
	combos := GenerateCombinations(sixCollections, 0, 10, 42)
	assert.Len(t, combos, 10)

	singles := 0
	for _, c := range combos {
		if len(c) == 1 {
			singles++
		}
	}
	assert.Equal(t, 6, singles)
}

func TestGenerateCombinationsDeterministic(t *testing.T) {
	a := GenerateCombinations(sixCollections, 0, 12, 7)
	b := GenerateCombinations(sixCollections, 0, 12, 7)
	assert.Equal(t, a, b)

	c := GenerateCombinations(sixCollections, 0, 12, 8)
	assert.NotEqual(t, a, c)
}

func TestPlanRoundsDeterministicAndSized(t *testing.T) {
	cfg := RoundConfig{Rounds: 5, ControlPct: 0.3, Seed: 11}
	a, err := PlanRounds(sixCollections, cfg)
	require.NoError(t, err)
	b, err := PlanRounds(sixCollections, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	for i, r := range a {
		assert.Equal(t, i+1, r.Number)
		assert.Len(t, r.Control, 2) // round(0.3 * 6)
		assert.Len(t, r.Test, 4)
		for _, col := range r.Control {
			assert.NotContains(t, r.Test, col)
		}
	}
}

func TestPlanRoundsRotatesControl(t *testing.T) {
	rounds, err := PlanRounds(sixCollections, RoundConfig{Rounds: 6, ControlPct: 0.3, Seed: 3})
	require.NoError(t, err)

	controlled := map[string]int{}
	for _, r := range rounds {
		for _, col := range r.Control {
			controlled[col]++
		}
	}
	// 6 rounds of 2 controls over 6 collections: each controlled exactly
	// twice under least-controlled-first rotation.
	for _, col := range sixCollections {
		assert.Equal(t, 2, controlled[col], col)
	}
}

func TestPlanRoundsRejectsBadConfig(t *testing.T) {
	_, err := PlanRounds(sixCollections, RoundConfig{Rounds: 0})
	assert.Error(t, err)

	_, err = PlanRounds(sixCollections, RoundConfig{Rounds: 1, ControlPct: 1.0})
	assert.Error(t, err)
}

func TestAggregateImpact(t *testing.T) {
	results := []model.AblationResult{
		{Collection: "music_activity", Impact: 1.0, Metadata: map[string]any{model.MetaGroup: "ablated"}},
		{Collection: "music_activity", Impact: 0.5, Metadata: map[string]any{model.MetaGroup: "ablated"}},
		{Collection: "task_activity", Impact: 0.2, Metadata: map[string]any{model.MetaGroup: "ablated"}},
		// Baseline and cross rows are excluded from aggregation.
		{Collection: "task_activity", Impact: 0.9, Metadata: map[string]any{model.MetaGroup: "baseline"}},
		{Collection: "task_activity", Impact: 0.9, Metadata: map[string]any{model.MetaGroup: "cross"}},
	}

	summaries := AggregateImpact(results)
	require.Len(t, summaries, 2)

	// Sorted by mean impact, highest first.
	assert.Equal(t, "music_activity", summaries[0].Collection)
	assert.Equal(t, 2, summaries[0].Units)
	assert.InDelta(t, 0.75, summaries[0].MeanImpact, 1e-9)
	assert.InDelta(t, 0.0625, summaries[0].Variance, 1e-9)

	assert.Equal(t, "task_activity", summaries[1].Collection)
	assert.Equal(t, 1, summaries[1].Units)
	assert.InDelta(t, 0.2, summaries[1].MeanImpact, 1e-9)
	assert.Equal(t, 0.0, summaries[1].Variance)
}
