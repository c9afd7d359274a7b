package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Empty(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("   "))
}

func TestNormalize_Uppercase(t *testing.T) {
	assert.Equal(t, "RYAN WEISS", Normalize("ryan weiss"))
	assert.Equal(t, "RYAN WEISS", Normalize("Ryan Weiss"))
}

func TestNormalize_CommaReorder(t *testing.T) {
	assert.Equal(t, "RYAN WEISS", Normalize("Weiss, Ryan"))
	assert.Equal(t, "JOHN SMITH", Normalize("Smith,John"))
}

func TestNormalize_TwoCommasLeftAlone(t *testing.T) {
	// Ambiguous: more than one comma is not reordered.
	assert.Equal(t, "SMITH, JOHN, JR", Normalize("Smith, John, Jr"))
}

func TestNormalize_DanglingComma(t *testing.T) {
	// One comma but an empty side: leave unchanged.
	assert.Equal(t, "SMITH,", Normalize("Smith,"))
	assert.Equal(t, ", JOHN", Normalize(", John"))
}

func TestNormalize_StripTrailingDate(t *testing.T) {
	assert.Equal(t, "RYAN WEISS", Normalize("Weiss, Ryan 11-25"))
	assert.Equal(t, "RYAN WEISS", Normalize("Weiss, Ryan 11/25"))
	assert.Equal(t, "RYAN WEISS", Normalize("Ryan Weiss 01/02/2019"))
	assert.Equal(t, "RYAN WEISS", Normalize("Ryan Weiss 01-02-2019"))
	assert.Equal(t, "RYAN WEISS", Normalize("Ryan Weiss 2019-01-02"))
}

func TestNormalize_StripBareYear(t *testing.T) {
	assert.Equal(t, "RYAN WEISS", Normalize("Ryan Weiss 2019"))
	assert.Equal(t, "RYAN WEISS", Normalize("2019 Ryan Weiss"))
}

func TestNormalize_CollapseSpaces(t *testing.T) {
	assert.Equal(t, "RYAN WEISS", Normalize("  ryan   weiss "))
}

func TestNormalize_DateInsideCommaName(t *testing.T) {
	// Date stripping runs before comma reordering.
	assert.Equal(t, "RYAN WEISS", Normalize("Weiss, Ryan 11-25-2001"))
}

func TestNormalize_Idempotent(t *testing.T) {
	samples := []string{
		"Weiss, Ryan 11-25",
		"  ryan   weiss ",
		"Smith, John, Jr",
		"Jane Doe",
		"",
		"2019 Ryan Weiss",
		"O'Neil, Shaquille",
	}
	for _, s := range samples {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "normalize not idempotent for %q", s)
	}
}

func TestDisplayName_TitleCase(t *testing.T) {
	assert.Equal(t, "Ryan Weiss", DisplayName("WEISS, RYAN"))
	assert.Equal(t, "Ryan Weiss", DisplayName("weiss, ryan 11-25"))
	assert.Equal(t, "Jane Doe", DisplayName("JANE DOE"))
}

func TestDisplayName_Empty(t *testing.T) {
	assert.Equal(t, "", DisplayName("   "))
}
