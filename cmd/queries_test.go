package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlab/ablate/internal/model"
)

func TestQueryFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")

	in := []model.Query{
		{
			ID:          model.NewQueryID("songs I played at the office", "trip"),
			Text:        "songs I played at the office",
			Collections: []string{"music_activity", "location_activity"},
			SearchTerms: map[string]any{"artist": "Drake"},
		},
		{
			ID:          model.NewQueryID("files from last week", "trip"),
			Text:        "files from last week",
			Collections: []string{"storage_activity"},
		},
	}
	require.NoError(t, writeQueryFile(path, "trip", in))

	out, err := readQueryFile(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i := range in {
		assert.Equal(t, in[i].ID, out[i].ID)
		assert.Equal(t, in[i].Text, out[i].Text)
		assert.Equal(t, in[i].Collections, out[i].Collections)
	}
	assert.Equal(t, "Drake", out[0].SearchTerms["artist"])
}

func TestReadQueryFileDerivesMissingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	doc := `context: trip
queries:
  - text: songs I played at the office
    collections: [music_activity]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := readQueryFile(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.NewQueryID("songs I played at the office", "trip"), out[0].ID)
}

func TestReadQueryFileRejectsBadID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	doc := `context: trip
queries:
  - id: not-a-uuid
    text: songs
    collections: [music_activity]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := readQueryFile(path)
	assert.Error(t, err)
}

func TestReadQueryFileMissing(t *testing.T) {
	_, err := readQueryFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
