package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "bare hex", raw: "abc123", expected: "CARD-ABC123"},
		{name: "dash separator", raw: "ABC-123", expected: "CARD-ABC123"},
		{name: "colon separators", raw: "ab:c1:23", expected: "CARD-ABC123"},
		{name: "already prefixed without hyphen", raw: "CARDABC123", expected: "CARD-ABC123"},
		{name: "already canonical", raw: "CARD-ABC123", expected: "CARD-ABC123"},
		{name: "lowercase prefixed", raw: "card-abc123", expected: "CARD-ABC123"},
		{name: "spaces", raw: "  ab c1 23 ", expected: "CARD-ABC123"},
		{name: "empty", raw: "", expected: Unknown},
		{name: "whitespace only", raw: "   ", expected: Unknown},
		{name: "separators only", raw: ":-:", expected: Unknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Normalize(tc.raw))
		})
	}
}

func TestNormalize_SeparatorAndCaseVariantsConverge(t *testing.T) {
	variants := []string{"abc123", "ABC-123", "ab:c1:23", "CARDABC123", "card abc 123", "A-B-C-1-2-3"}
	for _, v := range variants {
		assert.Equal(t, "CARD-ABC123", Normalize(v), "variant %q", v)
	}
}

func TestMatchesAny(t *testing.T) {
	stored := []string{"CARD-ABC123"}

	for _, raw := range []string{"abc123", "ABC-123", "ab:c1:23", "CARDABC123"} {
		match, ok := MatchesAny(raw, stored)
		assert.True(t, ok, "raw %q should resolve", raw)
		assert.Equal(t, "CARD-ABC123", match)
	}
}

func TestMatchesAny_ExactCaseInsensitiveWinsFirst(t *testing.T) {
	// Two stored ids normalize to the same canonical form; the exact
	// case-insensitive rule must pick the literal match.
	stored := []string{"CARD-AB12", "ab:12"}
	match, ok := MatchesAny("AB:12", stored)
	assert.True(t, ok)
	assert.Equal(t, "ab:12", match)
}

func TestMatchesAny_NoMatch(t *testing.T) {
	match, ok := MatchesAny("deadbeef", []string{"CARD-ABC123", "CARD-FFFF"})
	assert.False(t, ok)
	assert.Empty(t, match)
}

func TestMatchesAny_UnknownRawNeverMatches(t *testing.T) {
	match, ok := MatchesAny("  ", []string{Unknown, "CARD-ABC123"})
	assert.False(t, ok)
	assert.Empty(t, match)
}
