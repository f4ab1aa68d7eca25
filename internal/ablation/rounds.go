package ablation

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/model"
)

// RoundConfig tunes combination generation and round planning. Seed makes
// both fully reproducible.
type RoundConfig struct {
	Rounds             int
	ControlPct         float64 // fraction of the universe held out per round
	MaxCombinationSize int     // 0 means single-collection ablation only
	CombinationCap     int     // 0 means unlimited
	BalanceTolerance   float64 // allowed spread in per-collection test appearances, as a fraction of the mean
	Seed               int64
}

// GenerateCombinations enumerates every non-empty subset of collections up
// to maxSize elements. With a cap, a seeded sample of that size is drawn
// instead, always retaining the single-collection subsets so each
// collection's individual contribution is measured.
func GenerateCombinations(collections []string, maxSize, cap int, seed int64) []model.Combination {
	if maxSize <= 0 || maxSize > len(collections) {
		maxSize = len(collections)
	}

	var combos []model.Combination
	n := len(collections)
	for mask := 1; mask < 1<<n; mask++ {
		var c model.Combination
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				c = append(c, collections[i])
			}
		}
		if len(c) <= maxSize {
			combos = append(combos, c)
		}
	}
	sort.Slice(combos, func(i, j int) bool {
		if len(combos[i]) != len(combos[j]) {
			return len(combos[i]) < len(combos[j])
		}
		return combos[i].Label() < combos[j].Label()
	})

	if cap <= 0 || len(combos) <= cap {
		return combos
	}

	// Singles come first after the sort; keep them all, sample the rest.
	singles := combos[:len(collections)]
	rest := append([]model.Combination(nil), combos[len(collections):]...)
	keep := cap - len(singles)
	if keep < 0 {
		keep = 0
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	rest = rest[:keep]
	sort.Slice(rest, func(i, j int) bool { return rest[i].Label() < rest[j].Label() })

	zap.L().Info("ablation: combination space sampled",
		zap.Int("total", len(combos)),
		zap.Int("kept", len(singles)+len(rest)),
		zap.Int64("seed", seed),
	)
	return append(singles, rest...)
}

// PlanRounds splits the collection universe into control and test groups
// across the configured number of rounds. Control membership rotates:
// each round holds out the collections that have been controlled least so
// far, so test exposure stays approximately balanced. Balance is best
// effort; when the spread of test appearances exceeds the tolerance the
// plan is still returned but a warning is logged.
func PlanRounds(collections []string, cfg RoundConfig) ([]model.Round, error) {
	if cfg.Rounds <= 0 {
		return nil, eris.New("ablation: rounds must be positive")
	}
	if cfg.ControlPct < 0 || cfg.ControlPct >= 1 {
		return nil, eris.Errorf("ablation: control fraction %.2f outside [0,1)", cfg.ControlPct)
	}
	universe := append([]string(nil), collections...)
	sort.Strings(universe)

	controlSize := int(math.Round(cfg.ControlPct * float64(len(universe))))
	if controlSize >= len(universe) {
		controlSize = len(universe) - 1
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	controlled := make(map[string]int, len(universe))
	tested := make(map[string]int, len(universe))

	rounds := make([]model.Round, 0, cfg.Rounds)
	for r := 1; r <= cfg.Rounds; r++ {
		// Least-controlled first; seeded shuffle breaks ties so the
		// rotation is not alphabetical.
		order := append([]string(nil), universe...)
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		sort.SliceStable(order, func(i, j int) bool {
			return controlled[order[i]] < controlled[order[j]]
		})

		control := append([]string(nil), order[:controlSize]...)
		test := append([]string(nil), order[controlSize:]...)
		sort.Strings(control)
		sort.Strings(test)
		for _, c := range control {
			controlled[c]++
		}
		for _, c := range test {
			tested[c]++
		}
		rounds = append(rounds, model.Round{Number: r, Control: control, Test: test})
	}

	if cfg.BalanceTolerance > 0 && controlSize > 0 {
		lo, hi := math.MaxInt, 0
		for _, c := range universe {
			if tested[c] < lo {
				lo = tested[c]
			}
			if tested[c] > hi {
				hi = tested[c]
			}
		}
		mean := float64(cfg.Rounds*(len(universe)-controlSize)) / float64(len(universe))
		if mean > 0 && float64(hi-lo)/mean > cfg.BalanceTolerance {
			zap.L().Warn("ablation: round plan test exposure imbalanced",
				zap.Int("min_appearances", lo),
				zap.Int("max_appearances", hi),
				zap.Float64("tolerance", cfg.BalanceTolerance),
			)
		}
	}
	return rounds, nil
}

// ImpactSummary aggregates ablated-group results per collection.
type ImpactSummary struct {
	Collection string  `json:"collection" yaml:"collection"`
	Units      int     `json:"units" yaml:"units"`
	MeanImpact float64 `json:"mean_impact" yaml:"mean_impact"`
	Variance   float64 `json:"variance" yaml:"variance"`
}

// AggregateImpact computes per-collection mean impact and population
// variance over the ablated rows of a batch. Baseline and cross rows are
// ignored.
func AggregateImpact(results []model.AblationResult) []ImpactSummary {
	sums := map[string]*ImpactSummary{}
	values := map[string][]float64{}
	for _, r := range results {
		if g, _ := r.Metadata[model.MetaGroup].(string); g != "ablated" {
			continue
		}
		s := sums[r.Collection]
		if s == nil {
			s = &ImpactSummary{Collection: r.Collection}
			sums[r.Collection] = s
		}
		s.Units++
		s.MeanImpact += r.Impact
		values[r.Collection] = append(values[r.Collection], r.Impact)
	}

	out := make([]ImpactSummary, 0, len(sums))
	for col, s := range sums {
		s.MeanImpact /= float64(s.Units)
		var v float64
		for _, x := range values[col] {
			d := x - s.MeanImpact
			v += d * d
		}
		s.Variance = v / float64(s.Units)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeanImpact > out[j].MeanImpact })
	return out
}
