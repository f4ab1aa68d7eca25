package query

import (
	"github.com/searchlab/ablate/internal/model"
)

// relatedKeywords drives the relatedness heuristic: for a primary kind,
// which query-text keywords indicate a relationship with which other kind.
// This table and RelatedCollections are the ONLY implementation of the
// relatedness rule. Truth generation and query execution both call it;
// keeping a single copy is what prevents "missing truth data" divergence
// between the two.
var relatedKeywords = map[model.CollectionKind][]struct {
	kind     model.CollectionKind
	keywords []string
}{
	model.KindLocation: {
		{model.KindMusic, []string{"music", "song", "artist", "listen"}},
		{model.KindTask, []string{"task", "project", "work"}},
		{model.KindCollaboration, []string{"meeting", "collaboration", "team"}},
	},
	model.KindMusic: {
		{model.KindLocation, []string{"location", "at ", "place", "where"}},
		{model.KindTask, []string{"task", "project", "work", "during"}},
	},
	model.KindTask: {
		{model.KindMusic, []string{"music", "song", "listen", "while"}},
		{model.KindLocation, []string{"location", "at ", "place", "where"}},
		{model.KindCollaboration, []string{"meeting", "collaboration", "team", "discussed"}},
	},
	model.KindCollaboration: {
		{model.KindLocation, []string{"location", "at ", "place", "where", "room"}},
		{model.KindTask, []string{"task", "project", "work", "assigned", "created"}},
		{model.KindStorage, []string{"file", "document", "shared", "attachment"}},
	},
	model.KindStorage: {
		{model.KindTask, []string{"task", "project", "work"}},
		{model.KindCollaboration, []string{"meeting", "shared", "collaboration", "team"}},
		{model.KindLocation, []string{"location", "at ", "place", "where"}},
	},
	model.KindMedia: {
		{model.KindLocation, []string{"location", "at ", "place", "where"}},
		{model.KindTask, []string{"task", "project", "work", "during"}},
		{model.KindMusic, []string{"music", "soundtrack", "song", "audio"}},
	},
}

// relationshipFields names the reference field linking a primary kind to a
// related kind. The first field is the join key used by the builder.
var relationshipFields = map[[2]model.CollectionKind]string{
	{model.KindTask, model.KindCollaboration}:          "created_in",
	{model.KindCollaboration, model.KindTask}:          "has_tasks",
	{model.KindLocation, model.KindCollaboration}:      "hosted_meetings",
	{model.KindCollaboration, model.KindLocation}:      "located_at",
	{model.KindMusic, model.KindLocation}:              "listened_at",
	{model.KindLocation, model.KindMusic}:              "music_activities",
	{model.KindMusic, model.KindTask}:                  "played_during",
	{model.KindTask, model.KindMusic}:                  "background_music",
	{model.KindStorage, model.KindTask}:                "related_to_task",
	{model.KindTask, model.KindStorage}:                "has_files",
	{model.KindStorage, model.KindCollaboration}:       "shared_in",
	{model.KindCollaboration, model.KindStorage}:       "has_files",
	{model.KindMedia, model.KindTask}:                  "watched_during",
	{model.KindTask, model.KindMedia}:                  "has_media",
	{model.KindMedia, model.KindLocation}:              "watched_at",
	{model.KindMedia, model.KindMusic}:                 "soundtrack_of",
}

// relationshipField returns the join field for a kind pair, defaulting to
// the generic "related_to" when the pair has no specific relationship.
func relationshipField(primary, related model.CollectionKind) string {
	if f, ok := relationshipFields[[2]model.CollectionKind{primary, related}]; ok {
		return f
	}
	return "related_to"
}

// RelatedCollections identifies which collections in the universe the query
// text relates the primary collection to. The same call decides relatedness
// at truth-generation time and at query-execution time.
func RelatedCollections(queryText, primary string, universe []string) []string {
	primaryKind := model.KindOf(primary)
	rules := relatedKeywords[primaryKind]

	var out []string
	for _, rule := range rules {
		matched := false
		for _, kw := range rule.keywords {
			if containsFold(queryText, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, candidate := range universe {
			if candidate == primary {
				continue
			}
			if model.KindOf(candidate) == rule.kind {
				out = append(out, candidate)
			}
		}
	}
	return out
}
