package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestExtractTermsMusic(t *testing.T) {
	terms := ExtractTerms("What Taylor Swift songs did I listen to at home?", "music", testNow)

	assert.Equal(t, "Taylor Swift", terms["artist"])
	assert.Equal(t, "home", terms["location"])
	assert.Equal(t, true, terms["has_music_reference"])
	assert.Equal(t, testNow.Add(-7*24*time.Hour).Unix(), terms["from_timestamp"])
	assert.Equal(t, testNow.Unix(), terms["to_timestamp"])
}

func TestExtractTermsCaseFolded(t *testing.T) {
	terms := ExtractTerms("taylor swift ROCK playlist", "music", testNow)
	assert.Equal(t, "Taylor Swift", terms["artist"])
	assert.Equal(t, "rock", terms["genre"])
}

func TestExtractTermsStoragePath(t *testing.T) {
	terms := ExtractTerms("documents I moved to Dropbox last week", "storage", testNow)
	assert.Equal(t, "Document", terms["file_type"])
	assert.Equal(t, "dropbox", terms["source"])
	assert.Equal(t, "Documents", terms["path_fragment"])
	assert.Equal(t, true, terms["has_storage_reference"])
}

func TestExtractTermsUnknownKindStillGetsWindow(t *testing.T) {
	terms := ExtractTerms("anything at all", "unknown", testNow)
	require.Contains(t, terms, "from_timestamp")
	require.Contains(t, terms, "to_timestamp")
	assert.NotContains(t, terms, "artist")
}

func TestExtractTermsFirstValueWins(t *testing.T) {
	// Two genre values present: the table order decides.
	terms := ExtractTerms("pop and rock from the gym", "music", testNow)
	assert.Equal(t, "pop", terms["genre"])
	assert.Equal(t, "gym", terms["location"])
}

func TestExtractTermsCollaboration(t *testing.T) {
	terms := ExtractTerms("Weekly Sync meeting on Zoom with Sarah", "collaboration", testNow)
	assert.Equal(t, "meeting", terms["event_type"])
	assert.Equal(t, "Zoom", terms["platform"])
	assert.Equal(t, "Weekly Sync", terms["event_title"])
	assert.Equal(t, "Sarah", terms["participant"])
	assert.Equal(t, true, terms["has_meeting_reference"])
}
