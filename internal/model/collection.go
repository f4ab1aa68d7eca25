package model

import "strings"

// CollectionKind classifies an activity collection by the semantic fields
// its records carry. The kind drives which filter fields the query builder
// may bind for that collection.
type CollectionKind string

const (
	KindMusic         CollectionKind = "music"
	KindLocation      CollectionKind = "location"
	KindTask          CollectionKind = "task"
	KindCollaboration CollectionKind = "collaboration"
	KindStorage       CollectionKind = "storage"
	KindMedia         CollectionKind = "media"
	KindUnknown       CollectionKind = "unknown"
)

// kindMarkers maps a normalized collection-name substring to its kind.
// Collection names follow a "<prefix><kind>activity" convention across the
// upstream recorders; matching ignores case and underscores so both
// "MPMusicActivity" and "music_activity" resolve to KindMusic.
var kindMarkers = []struct {
	marker string
	kind   CollectionKind
}{
	{"musicactivity", KindMusic},
	{"locationactivity", KindLocation},
	{"taskactivity", KindTask},
	{"collaborationactivity", KindCollaboration},
	{"storageactivity", KindStorage},
	{"mediaactivity", KindMedia},
}

// KindOf infers the CollectionKind from a collection name.
func KindOf(collection string) CollectionKind {
	normalized := strings.ToLower(strings.ReplaceAll(collection, "_", ""))
	for _, m := range kindMarkers {
		if strings.Contains(normalized, m.marker) {
			return m.kind
		}
	}
	return KindUnknown
}
