package model

import (
	"sort"
	"strings"
)

// Round partitions the collection universe into a control group (never
// ablated that round) and a test group (eligible for ablation).
type Round struct {
	Number  int      `json:"number" yaml:"number"`
	Control []string `json:"control" yaml:"control"`
	Test    []string `json:"test" yaml:"test"`
}

// Combination is a non-empty subset of collections ablated jointly.
type Combination []string

// Label renders a stable name for the combination, used as the ablated
// collection name on multi-collection results.
func (c Combination) Label() string {
	sorted := append([]string(nil), c...)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

// Overlaps reports whether two combinations share any collection. Units
// whose combinations overlap must not run concurrently.
func (c Combination) Overlaps(other Combination) bool {
	for _, a := range c {
		for _, b := range other {
			if a == b {
				return true
			}
		}
	}
	return false
}
