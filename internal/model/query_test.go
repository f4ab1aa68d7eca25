package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewQueryIDIsStable(t *testing.T) {
	a := NewQueryID("Taylor Swift songs", "exp1")
	b := NewQueryID("Taylor Swift songs", "exp1")
	assert.Equal(t, a, b)
}

func TestNewQueryIDVariesByTextAndContext(t *testing.T) {
	base := NewQueryID("Taylor Swift songs", "exp1")
	assert.NotEqual(t, base, NewQueryID("Drake songs", "exp1"))
	assert.NotEqual(t, base, NewQueryID("Taylor Swift songs", "exp2"))
}

func TestNewQueryIDSeparatesTextFromContext(t *testing.T) {
	// "ab" + "c" must not collide with "a" + "bc".
	assert.NotEqual(t, NewQueryID("c", "ab"), NewQueryID("bc", "a"))
}
