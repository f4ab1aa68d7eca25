package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testUniverse = []string{
	"music_activity", "location_activity", "task_activity",
	"collaboration_activity", "storage_activity", "media_activity",
}

func TestRelatedCollectionsMusicAtLocation(t *testing.T) {
	related := RelatedCollections("songs I played at the office", "music_activity", testUniverse)
	assert.Equal(t, []string{"location_activity"}, related)
}

func TestRelatedCollectionsTaskMultiple(t *testing.T) {
	related := RelatedCollections("tasks where the team discussed music", "task_activity", testUniverse)
	assert.ElementsMatch(t, []string{"music_activity", "location_activity", "collaboration_activity"}, related)
}

func TestRelatedCollectionsNoKeywords(t *testing.T) {
	assert.Empty(t, RelatedCollections("Taylor Swift", "music_activity", testUniverse))
}

func TestRelatedCollectionsExcludesPrimary(t *testing.T) {
	universe := []string{"music_activity", "music_archive", "location_activity"}
	related := RelatedCollections("music at home", "music_activity", universe)
	assert.NotContains(t, related, "music_activity")
}

func TestRelatedCollectionsUnknownPrimary(t *testing.T) {
	assert.Empty(t, RelatedCollections("anything at all", "mystery", testUniverse))
}

func TestRelationshipFieldFallback(t *testing.T) {
	// Media→collaboration has no specific relationship.
	assert.Equal(t, "related_to", relationshipField("media", "collaboration"))
	assert.Equal(t, "listened_at", relationshipField("music", "location"))
}
