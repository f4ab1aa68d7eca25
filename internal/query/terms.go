// Package query builds executable semantic queries from extracted search
// terms. Queries are expressed purely in collection-semantic attributes and
// never reference truth entities; construction is identical whether or not
// the target collection is currently ablated.
package query

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// termTable lists the recognizable values for one search term of one
// collection kind. Matching is case-folded substring search over the query
// text; the first hit wins, mirroring how the upstream generator phrases
// queries around a single salient value per term.
type termTable struct {
	term   string
	values []string
}

var (
	musicTerms = []termTable{
		{"artist", []string{"Taylor Swift", "The Beatles", "Beyoncé", "Ed Sheeran", "Drake"}},
		{"genre", []string{"pop", "rock", "hip hop", "jazz", "classical"}},
		{"location", []string{"home", "office", "car", "gym"}},
	}
	locationTerms = []termTable{
		{"location_name", []string{"Home", "Office", "Coffee Shop", "Library", "Airport"}},
		{"location_type", []string{"work", "home", "leisure", "travel"}},
	}
	taskTerms = []termTable{
		{"task_type", []string{"report", "presentation", "email", "project", "document"}},
		{"application", []string{"Word", "Excel", "PowerPoint", "Outlook", "Teams"}},
		{"project", []string{"Quarterly Report", "Annual Budget", "Marketing Campaign", "Product Launch", "Research Paper"}},
		{"status", []string{"completed", "in_progress", "pending", "delayed"}},
	}
	collaborationTerms = []termTable{
		{"event_type", []string{"meeting", "call", "chat", "file share", "email", "code review"}},
		{"platform", []string{"Microsoft Teams", "Zoom", "Slack", "Discord", "Outlook", "Google Meet"}},
		{"event_title", []string{"Project Status", "Weekly Sync", "Design Review", "Sprint Planning", "Customer Call"}},
		{"participant", []string{"John", "Mary", "Alex", "Sarah", "Team", "Department"}},
	}
	storageTerms = []termTable{
		{"file_type", []string{"Document", "Image", "Video", "Audio", "Archive", "Code"}},
		{"operation", []string{"create", "read", "update", "delete", "move", "copy", "rename"}},
		{"source", []string{"ntfs", "posix", "dropbox", "onedrive", "gdrive", "s3"}},
		{"path_fragment", []string{"Documents", "Pictures", "Videos", "Music", "Downloads", "shared"}},
	}
	mediaTerms = []termTable{
		{"media_type", []string{"video", "audio", "stream", "image", "game"}},
		{"platform", []string{"YouTube", "Netflix", "Spotify", "Twitch", "Instagram", "Disney+", "Prime Video", "TikTok"}},
		{"creator", []string{"Tech Explained", "National Geographic", "TechTalk Podcast", "London Philharmonic", "CodeWithMe", "GameMaster"}},
		{"title_fragment", []string{"Quantum", "Symphony", "Deep Learning", "Jazz", "Gaming", "Marvel", "Psychology", "Cooking", "Photography", "Meditation"}},
	}
)

// referenceFlags maps cross-collection reference indicators in the query
// text to the term flag they set. Used by the relatedness heuristic.
var referenceFlags = []struct {
	flag     string
	keywords []string
}{
	{"has_meeting_reference", []string{"meeting", "collaboration"}},
	{"has_location_reference", []string{"location", "place", "at "}},
	{"has_task_reference", []string{"task", "project", "during"}},
	{"has_music_reference", []string{"music", "song", "listen"}},
	{"has_storage_reference", []string{"file", "document"}},
	{"has_media_reference", []string{"video", "watch"}},
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(fold.String(haystack), fold.String(needle))
}

// kindTables selects the term tables for a collection kind name. Kind names
// match model.CollectionKind values; the mapping lives here so the builder
// package fully owns which fields a kind exposes.
var kindTables = map[string][]termTable{
	"music":         musicTerms,
	"location":      locationTerms,
	"task":          taskTerms,
	"collaboration": collaborationTerms,
	"storage":       storageTerms,
	"media":         mediaTerms,
}

// ExtractTerms pulls the search parameters a collection kind understands out
// of the natural-language query text, plus a timestamp window and the
// cross-collection reference flags. Pure and deterministic given now.
func ExtractTerms(queryText, kind string, now time.Time) map[string]any {
	terms := make(map[string]any)

	for _, tt := range kindTables[kind] {
		for _, v := range tt.values {
			if containsFold(queryText, v) {
				terms[tt.term] = v
				break
			}
		}
	}

	terms["from_timestamp"] = now.Add(-7 * 24 * time.Hour).Unix()
	terms["to_timestamp"] = now.Unix()

	for _, rf := range referenceFlags {
		for _, kw := range rf.keywords {
			if containsFold(queryText, kw) {
				terms[rf.flag] = true
				break
			}
		}
	}

	return terms
}
