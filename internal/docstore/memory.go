package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// MemoryStore is an in-process Store used by tests and as a scratch backend.
// It evaluates the neutral query form directly against decoded records, so
// builder semantics can be tested without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record

	// ExecuteErr, when set, is returned by Execute. Lets tests simulate
	// query failures and timeouts.
	ExecuteErr error
	// RemoveAllErr and InsertManyErr simulate ablation/restore failures.
	RemoveAllErr   error
	InsertManyErr  error
	executeCalls   int
	executeCallsMu sync.Mutex
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Record)}
}

// ExecuteCalls reports how many times Execute ran.
func (m *MemoryStore) ExecuteCalls() int {
	m.executeCallsMu.Lock()
	defer m.executeCallsMu.Unlock()
	return m.executeCalls
}

func (m *MemoryStore) HasCollection(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MemoryStore) EnsureCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = make(map[string]Record)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, collection, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) Insert(_ context.Context, collection string, rec Record) error {
	key := rec.Key()
	if key == "" {
		return eris.New("docstore: record has no key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = make(map[string]Record)
	}
	if _, exists := m.collections[collection][key]; exists {
		return eris.Errorf("memory: duplicate key %s in %s", key, collection)
	}
	m.collections[collection][key] = cloneRecord(rec)
	return nil
}

func (m *MemoryStore) InsertMany(ctx context.Context, collection string, recs []Record) error {
	if m.InsertManyErr != nil {
		return m.InsertManyErr
	}
	for _, rec := range recs {
		if err := m.Insert(ctx, collection, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Update(_ context.Context, collection string, rec Record) error {
	key := rec.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection][key]; !ok {
		return ErrNotFound
	}
	m.collections[collection][key] = cloneRecord(rec)
	return nil
}

func (m *MemoryStore) RemoveAll(_ context.Context, collection string) error {
	if m.RemoveAllErr != nil {
		return m.RemoveAllErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		return eris.Errorf("memory: no such collection %s", collection)
	}
	m.collections[collection] = make(map[string]Record)
	return nil
}

func (m *MemoryStore) Contents(_ context.Context, collection string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.collections[collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	recs := make([]Record, 0, len(coll))
	for _, k := range keys {
		recs = append(recs, cloneRecord(coll[k]))
	}
	return recs, nil
}

func (m *MemoryStore) FindByField(_ context.Context, collection, field string, value any) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.collections[collection] {
		if fmt.Sprint(lookupField(rec, field)) == fmt.Sprint(value) {
			out = append(out, cloneRecord(rec))
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Execute(ctx context.Context, q Query) ([]Record, error) {
	m.executeCallsMu.Lock()
	m.executeCalls++
	m.executeCallsMu.Unlock()

	if m.ExecuteErr != nil {
		return nil, m.ExecuteErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, rec := range m.collections[q.Collection] {
		if len(q.Clauses) == 0 || m.matchesAny(rec, q) {
			out = append(out, cloneRecord(rec))
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) matchesAny(rec Record, q Query) bool {
	for _, cl := range q.Clauses {
		if m.matchesClause(rec, cl, q.Params) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) matchesClause(rec Record, cl Clause, params map[string]any) bool {
	for _, c := range cl {
		if !m.matchesCond(rec, c, params) {
			return false
		}
	}
	return len(cl) > 0
}

func (m *MemoryStore) matchesCond(rec Record, c Cond, params map[string]any) bool {
	val := lookupField(rec, c.Field)
	switch c.Op {
	case OpEq:
		return val != nil && fmt.Sprint(val) == fmt.Sprint(params[c.Param])
	case OpLike:
		s, ok := val.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(params[c.Param])))
	case OpGte:
		return toFloat(val) >= toFloat(params[c.Param])
	case OpLte:
		return toFloat(val) <= toFloat(params[c.Param])
	case OpRefExists:
		refs, ok := lookupField(rec, c.Field).([]any)
		if !ok {
			return false
		}
		related := m.collections[c.Collection]
		for _, r := range refs {
			if key, ok := r.(string); ok {
				if _, exists := related[key]; exists {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// lookupField resolves a dotted field path against nested maps.
func lookupField(rec Record, field string) any {
	parts := strings.Split(field, ".")
	var cur any = map[string]any(rec)
	for _, p := range parts {
		mp, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mp[p]
	}
	return cur
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key() < recs[j].Key() })
}
