package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Identical(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("RYAN WEISS", "RYAN WEISS"))
	// The empty string is identical to itself too.
	assert.Equal(t, 1.0, Similarity("", ""))
}

func TestSimilarity_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("RYAN WEISS", ""))
	assert.Equal(t, 0.0, Similarity("", "RYAN WEISS"))
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"RYAN WEISS", "RYAN WEISE"},
		{"JOHN SMITH", "JON SMITH"},
		{"JANE DOE", "QUENTIN XAVIER"},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]),
			"asymmetric for %q / %q", p[0], p[1])
	}
}

func TestSimilarity_Disjoint(t *testing.T) {
	assert.Less(t, Similarity("AAAA BBBB", "XXXX YYYY"), 0.2)
}

func TestSimilarity_NearDuplicate(t *testing.T) {
	// One-character typo in a 10-character name stays above the default
	// merge threshold.
	assert.GreaterOrEqual(t, Similarity("RYAN WEISS", "RYAN WEISE"), 0.8)
	assert.GreaterOrEqual(t, Similarity("JOHN SMITH", "JON SMITH"), 0.8)
}

func TestSimilarity_TokenOrder(t *testing.T) {
	// Reordered tokens are the same person as far as the merger cares.
	assert.Equal(t, 1.0, Similarity("RYAN WEISS", "WEISS RYAN"))
}

func TestSimilarity_DifferentPeople(t *testing.T) {
	assert.Less(t, Similarity("RYAN WEISS", "JANE DOE"), 0.5)
}

func TestSimilarity_Range(t *testing.T) {
	pairs := [][2]string{
		{"A", "B"},
		{"RYAN WEISS", "RYAN WEISS JR"},
		{"JOHN JOHN JOHN", "JOHN"},
	}
	for _, p := range pairs {
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}
