package query

import (
	"github.com/rotisserie/eris"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
)

// fieldSpec binds one search term to the record field it filters and the
// comparison used. The tables below are the only place term-to-field
// dispatch happens; the builder itself is kind-agnostic.
type fieldSpec struct {
	term  string
	field string
	op    docstore.Op
}

var kindFilters = map[model.CollectionKind][]fieldSpec{
	model.KindMusic: {
		{"artist", "artist", docstore.OpEq},
		{"genre", "genre", docstore.OpEq},
		{"location", "listening_location", docstore.OpEq},
	},
	model.KindLocation: {
		{"location_name", "location_name", docstore.OpEq},
		{"location_type", "location_type", docstore.OpEq},
	},
	model.KindTask: {
		{"task_type", "task_type", docstore.OpEq},
		{"application", "application", docstore.OpEq},
		{"project", "project", docstore.OpEq},
		{"status", "status", docstore.OpEq},
	},
	model.KindCollaboration: {
		{"event_type", "event_type", docstore.OpEq},
		{"platform", "platform", docstore.OpEq},
		{"event_title", "event_title", docstore.OpEq},
		{"participant", "participant", docstore.OpEq},
	},
	model.KindStorage: {
		{"file_type", "file_type", docstore.OpEq},
		{"operation", "operation", docstore.OpEq},
		{"source", "source", docstore.OpEq},
		{"path_fragment", "path", docstore.OpLike},
	},
	model.KindMedia: {
		{"media_type", "media_type", docstore.OpEq},
		{"platform", "platform", docstore.OpEq},
		{"creator", "creator", docstore.OpEq},
		{"title_fragment", "title", docstore.OpLike},
	},
}

// Builder translates (collection, search terms) into the backend-neutral
// query form. It never sees truth data and never consults ablation state:
// the same logical query is produced whether or not the target collection
// is currently emptied.
type Builder struct{}

// NewBuilder returns a Builder.
func NewBuilder() *Builder { return &Builder{} }

// Build constructs the query for a single collection. Filter clauses are
// disjunctive across terms (inclusive search); the timestamp window is one
// conjunctive clause of its own. Only parameters referenced by a filter
// clause appear in Params; some backends reject unused bindings.
func (b *Builder) Build(collection string, terms map[string]any) (docstore.Query, error) {
	return b.BuildWithRelated(collection, terms, nil)
}

// BuildWithRelated additionally constrains every clause by reference
// existence against each related collection, the query-time half of the
// cross-collection contract. Callers must derive related collections via
// RelatedCollections so truth generation and execution always agree.
func (b *Builder) BuildWithRelated(collection string, terms map[string]any, related []string) (docstore.Query, error) {
	kind := model.KindOf(collection)
	specs, ok := kindFilters[kind]
	if !ok {
		return docstore.Query{}, eris.Errorf("query: unknown collection kind for %s", collection)
	}

	params := make(map[string]any)
	var clauses []docstore.Clause

	for _, spec := range specs {
		val, ok := terms[spec.term]
		if !ok {
			continue
		}
		clauses = append(clauses, docstore.Clause{{Field: spec.field, Op: spec.op, Param: spec.term}})
		params[spec.term] = val
	}

	from, hasFrom := terms["from_timestamp"]
	to, hasTo := terms["to_timestamp"]
	if hasFrom && hasTo {
		clauses = append(clauses, docstore.Clause{
			{Field: "timestamp", Op: docstore.OpGte, Param: "from_timestamp"},
			{Field: "timestamp", Op: docstore.OpLte, Param: "to_timestamp"},
		})
		params["from_timestamp"] = from
		params["to_timestamp"] = to
	}

	// Reference constraints are conjunctive: distribute them into each
	// disjunct so the clause form stays OR-of-ANDs.
	if len(related) > 0 {
		primaryKind := model.KindOf(collection)
		var refConds []docstore.Cond
		for _, rel := range related {
			field := relationshipField(primaryKind, model.KindOf(rel))
			refConds = append(refConds, docstore.Cond{
				Field:      "references." + field,
				Op:         docstore.OpRefExists,
				Collection: rel,
			})
		}
		if len(clauses) == 0 {
			clauses = []docstore.Clause{refConds}
		} else {
			for i := range clauses {
				clauses[i] = append(clauses[i], refConds...)
			}
		}
	}

	q := docstore.Query{
		Collection: collection,
		Clauses:    clauses,
		Params:     params,
	}
	q.Text = q.Render()
	return q, nil
}
