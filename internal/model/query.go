package model

import (
	"github.com/google/uuid"
)

// queryNamespace is the UUIDv5 namespace for query identifiers. Fixed so
// that repeated generation of the same query text yields the same id.
var queryNamespace = uuid.MustParse("8f2c1d4e-0a6b-5c3d-9e7f-2b1a0c9d8e7f")

// Query is one natural-language query in the battery, together with the
// search terms extracted from it and the collections it is relevant to.
type Query struct {
	ID          uuid.UUID      `json:"id" yaml:"id"`
	Text        string         `json:"text" yaml:"text"`
	SearchTerms map[string]any `json:"search_terms,omitempty" yaml:"search_terms,omitempty"`
	Collections []string       `json:"collections" yaml:"collections"`
}

// NewQueryID derives a stable identifier from the query text and a context
// string (e.g. the generating collection set). Never random: regenerating
// the same query must reproduce the same id.
func NewQueryID(text, context string) uuid.UUID {
	return uuid.NewSHA1(queryNamespace, []byte(context+"\x00"+text))
}
