// Package truth persists the canonical expected-answer set for each query.
// One TruthRecord exists per query id; the id is the storage key, never a
// per-collection composite, so every ablation run against the same query is
// scored against one answer set.
package truth

import (
	"sort"
	"strings"
	"time"

	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
)

// DefaultCollection is the document-store collection holding truth records.
const DefaultCollection = "AblationQueryTruth"

var (
	// ErrMissingTruth means no TruthRecord exists for a query at all.
	// Fatal: the run must not proceed with substituted truth.
	ErrMissingTruth = eris.New("truth: no record for query")

	// ErrEntityIntegrity means a truth entity reference does not exist in
	// its collection. Fatal at generation time.
	ErrEntityIntegrity = eris.New("truth: entity reference does not exist")

	// ErrVerification means a stored record failed read-back verification.
	ErrVerification = eris.New("truth: stored record failed verification")
)

// Store reads and writes TruthRecords in a document store.
type Store struct {
	store      docstore.Store
	collection string
}

// NewStore creates a truth store over the given document store. An empty
// collection name selects DefaultCollection.
func NewStore(ds docstore.Store, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{store: ds, collection: collection}
}

// Save upserts the single TruthRecord for queryID, fully replacing any
// previous matching_entities (regeneration overwrites, never merges).
//
// Every referenced entity must exist in its collection's live data; a
// missing reference is ErrEntityIntegrity. Empty lists need no validation.
// After writing, the record is read back and compared to intent; a mismatch
// is ErrVerification.
func (s *Store) Save(ctx context.Context, queryID uuid.UUID, matching map[string][]string) error {
	for collection, entities := range matching {
		for _, entityID := range entities {
			if _, err := s.store.Get(ctx, collection, entityID); err != nil {
				if eris.Is(err, docstore.ErrNotFound) {
					return eris.Wrapf(ErrEntityIntegrity, "entity %s in collection %s", entityID, collection)
				}
				return eris.Wrapf(err, "truth: validate entity %s/%s", collection, entityID)
			}
		}
	}

	if err := s.store.EnsureCollection(ctx, s.collection); err != nil {
		return err
	}

	key := queryID.String()
	collections := make([]string, 0, len(matching))
	entitiesDoc := make(map[string]any, len(matching))
	for collection, entities := range matching {
		collections = append(collections, collection)
		// Normalize nil to an empty list: "no matches expected" must
		// round-trip as a present, empty value.
		if entities == nil {
			entities = []string{}
		}
		entitiesDoc[collection] = toAnySlice(entities)
	}
	sort.Strings(collections)

	rec := docstore.Record{
		docstore.KeyField:  key,
		"query_id":         key,
		"matching_entities": entitiesDoc,
		"collections":      toAnySlice(collections),
		"created_at":       time.Now().UTC().Format(time.RFC3339Nano),
	}

	_, err := s.store.Get(ctx, s.collection, key)
	switch {
	case err == nil:
		if err := s.store.Update(ctx, s.collection, rec); err != nil {
			return eris.Wrap(err, "truth: replace record")
		}
		zap.L().Info("truth: replaced existing record", zap.String("query_id", key))
	case eris.Is(err, docstore.ErrNotFound):
		if err := s.store.Insert(ctx, s.collection, rec); err != nil {
			return eris.Wrap(err, "truth: insert record")
		}
	default:
		return eris.Wrap(err, "truth: check existing record")
	}

	// Read back and confirm persisted content matches intent.
	stored, err := s.Get(ctx, queryID)
	if err != nil {
		return eris.Wrapf(ErrVerification, "read back %s: %v", key, err)
	}
	for collection, want := range matching {
		got, ok := stored.MatchingEntities[collection]
		if !ok || !equalStrings(got, want) {
			return eris.Wrapf(ErrVerification, "collection %s content mismatch for %s", collection, key)
		}
	}
	if len(stored.MatchingEntities) != len(matching) {
		return eris.Wrapf(ErrVerification, "collection set mismatch for %s", key)
	}

	zap.L().Info("truth: stored record",
		zap.String("query_id", key),
		zap.Strings("collections", collections),
	)
	return nil
}

// Get returns the TruthRecord for queryID. Lookup is by exact key first;
// on a miss, a secondary lookup by the indexed query_id field is attempted
// with the unhyphenated form of the id, tolerating identifier representation
// drift. Only when both miss is ErrMissingTruth returned.
func (s *Store) Get(ctx context.Context, queryID uuid.UUID) (*model.TruthRecord, error) {
	key := queryID.String()
	rec, err := s.store.Get(ctx, s.collection, key)
	if eris.Is(err, docstore.ErrNotFound) {
		hex := strings.ReplaceAll(key, "-", "")
		for _, candidate := range []string{key, hex} {
			matches, ferr := s.store.FindByField(ctx, s.collection, "query_id", candidate)
			if ferr != nil {
				return nil, eris.Wrap(ferr, "truth: fallback lookup")
			}
			if len(matches) > 0 {
				zap.L().Warn("truth: record found via secondary lookup",
					zap.String("query_id", key),
					zap.String("matched_form", candidate),
				)
				rec = matches[0]
				err = nil
				break
			}
		}
		if err != nil {
			return nil, eris.Wrapf(ErrMissingTruth, "query %s", key)
		}
	} else if err != nil {
		return nil, eris.Wrapf(err, "truth: get %s", key)
	}

	return decodeTruthRecord(rec)
}

// ForCollection returns the truth entity set for (queryID, collection).
// Both an empty stored list and an absent collection key yield the empty
// set; only a wholly missing TruthRecord is an error.
func (s *Store) ForCollection(ctx context.Context, queryID uuid.UUID, collection string) (map[string]struct{}, error) {
	rec, err := s.Get(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if !rec.Evaluated(collection) {
		zap.L().Debug("truth: collection not evaluated for query, treating as no expected matches",
			zap.String("query_id", queryID.String()),
			zap.String("collection", collection),
		)
	}
	return rec.EntitySet(collection), nil
}

func decodeTruthRecord(rec docstore.Record) (*model.TruthRecord, error) {
	out := &model.TruthRecord{
		QueryID:          rec.Key(),
		MatchingEntities: map[string][]string{},
	}
	if qid, ok := rec["query_id"].(string); ok && qid != "" {
		out.QueryID = qid
	}
	raw, ok := rec["matching_entities"].(map[string]any)
	if !ok {
		return nil, eris.Errorf("truth: record %s has malformed matching_entities", out.QueryID)
	}
	for collection, v := range raw {
		list, ok := v.([]any)
		if !ok {
			return nil, eris.Errorf("truth: record %s collection %s has malformed entity list", out.QueryID, collection)
		}
		entities := make([]string, 0, len(list))
		for _, e := range list {
			id, ok := e.(string)
			if !ok {
				return nil, eris.Errorf("truth: record %s collection %s has non-string entity", out.QueryID, collection)
			}
			entities = append(entities, id)
		}
		out.MatchingEntities[collection] = entities
		out.Collections = append(out.Collections, collection)
	}
	sort.Strings(out.Collections)
	if ts, ok := rec["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			out.CreatedAt = t
		}
	}
	return out, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
