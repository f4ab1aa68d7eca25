package model

import "time"

// TruthRecord is the canonical expected-answer set for one query, covering
// every collection evaluated for it. Exactly one record exists per query id;
// the query id is the storage key, never a per-collection composite.
type TruthRecord struct {
	QueryID string `json:"query_id"`

	// MatchingEntities maps collection name to the entity keys expected to
	// match under non-ablated conditions. An empty list means "no matches
	// expected" and is distinct from the key being absent, which means
	// "this collection was not evaluated for this query".
	MatchingEntities map[string][]string `json:"matching_entities"`

	Collections []string  `json:"collections"`
	CreatedAt   time.Time `json:"created_at"`
}

// EntitySet returns the truth entities for a collection as a set. Both an
// empty list and an absent key yield the empty set.
func (t *TruthRecord) EntitySet(collection string) map[string]struct{} {
	entities := t.MatchingEntities[collection]
	set := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		set[e] = struct{}{}
	}
	return set
}

// Evaluated reports whether the collection was covered by truth generation
// for this query (present in MatchingEntities, possibly with an empty list).
func (t *TruthRecord) Evaluated(collection string) bool {
	_, ok := t.MatchingEntities[collection]
	return ok
}
