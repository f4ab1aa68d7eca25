package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// KeyField is the record field holding the entity key within its collection.
const KeyField = "_key"

// ErrNotFound is returned by Get when no record exists under the key.
var ErrNotFound = eris.New("docstore: record not found")

// Record is one document in a collection. Every stored record carries a
// KeyField entry with a string value unique within its collection.
type Record map[string]any

// Key returns the record's key, or "" if it has none.
func (r Record) Key() string {
	k, _ := r[KeyField].(string)
	return k
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq   Op = "eq"
	OpLike Op = "like" // substring match; the bound value carries no wildcards
	OpGte  Op = "gte"
	OpLte  Op = "lte"

	// OpRefExists matches records whose references.<field> array contains
	// the key of at least one record in the named related collection. Used
	// by cross-collection queries; takes no bound parameter.
	OpRefExists Op = "ref_exists"
)

// Cond is one comparison against a record field. For ops with a bound value,
// Param names the entry in Query.Params; for OpRefExists, Collection names
// the related collection instead.
type Cond struct {
	Field      string
	Op         Op
	Param      string
	Collection string
}

// Clause is a conjunction of conditions. Clauses within a query are
// disjunctive: a record matches if any clause matches.
type Clause []Cond

// Query is the backend-neutral query form produced by the query builder.
// Adapters translate clauses into their own dialect; Text is the canonical
// rendering recorded for auditability.
type Query struct {
	Collection string
	Clauses    []Clause
	Params     map[string]any
	Text       string
}

// Render produces the canonical audit text for the query. Deterministic:
// same query, same text, regardless of ablation state.
func (q *Query) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FOR doc IN %s", q.Collection)
	if len(q.Clauses) > 0 {
		b.WriteString(" FILTER ")
		for i, cl := range q.Clauses {
			if i > 0 {
				b.WriteString(" OR ")
			}
			if len(cl) > 1 {
				b.WriteString("(")
			}
			for j, c := range cl {
				if j > 0 {
					b.WriteString(" AND ")
				}
				switch c.Op {
				case OpEq:
					fmt.Fprintf(&b, "doc.%s == @%s", c.Field, c.Param)
				case OpLike:
					fmt.Fprintf(&b, "LIKE(doc.%s, @%s)", c.Field, c.Param)
				case OpGte:
					fmt.Fprintf(&b, "doc.%s >= @%s", c.Field, c.Param)
				case OpLte:
					fmt.Fprintf(&b, "doc.%s <= @%s", c.Field, c.Param)
				case OpRefExists:
					fmt.Fprintf(&b, "EXISTS(doc.%s IN %s)", c.Field, c.Collection)
				}
			}
			if len(cl) > 1 {
				b.WriteString(")")
			}
		}
	}
	b.WriteString(" RETURN doc")
	return b.String()
}

// BoundParams returns the parameter names referenced by at least one
// condition, sorted. A well-formed query binds exactly these and no others.
func (q *Query) BoundParams() []string {
	seen := map[string]bool{}
	for _, cl := range q.Clauses {
		for _, c := range cl {
			if c.Param != "" {
				seen[c.Param] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Store is the generic document-store interface the harness depends on.
// Implementations are adapters over an existing engine; the harness never
// assumes exclusive access beyond the locks it manages itself.
type Store interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	EnsureCollection(ctx context.Context, name string) error

	Get(ctx context.Context, collection, key string) (Record, error)
	Insert(ctx context.Context, collection string, rec Record) error
	InsertMany(ctx context.Context, collection string, recs []Record) error
	Update(ctx context.Context, collection string, rec Record) error
	RemoveAll(ctx context.Context, collection string) error

	// Contents returns every record in the collection, for ablation
	// snapshot and restore.
	Contents(ctx context.Context, collection string) ([]Record, error)

	// FindByField is the indexed secondary lookup used when a key-based
	// lookup misses due to identifier representation drift.
	FindByField(ctx context.Context, collection, field string, value any) ([]Record, error)

	Execute(ctx context.Context, q Query) ([]Record, error)

	Close() error
}
