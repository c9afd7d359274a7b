package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullcount-labs/athlete-cli/internal/config"
)

func mocapSource() config.Source {
	return config.Source{Name: "mocap", Format: "xml", Domain: "mobility"}
}

func TestParseXML(t *testing.T) {
	doc := `<?xml version="1.0"?>
<sessions>
  <session>
    <athlete id="M1" name="Weiss, Ryan" dob="2001-04-12"/>
    <date>2025-03-14</date>
    <metric name="hip_rotation_deg" value="48.2"/>
    <metric name="shoulder_flexion_deg" value="171.0"/>
  </session>
  <session>
    <athlete id="M2" name="Jane Doe"/>
    <date>2025-03-15</date>
  </session>
</sessions>`

	records, skipped, err := ParseXML(strings.NewReader(doc), mocapSource())
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, "M1", r.LocalID)
	assert.Equal(t, "Weiss, Ryan", r.RawName)
	require.NotNil(t, r.Demographics.DateOfBirth)
	assert.Equal(t, 48.2, r.Metrics["hip_rotation_deg"])
	assert.Equal(t, 171.0, r.Metrics["shoulder_flexion_deg"])

	assert.Equal(t, "M2", records[1].LocalID)
	assert.Nil(t, records[1].Metrics)
}

func TestParseXML_SkipsBadSessions(t *testing.T) {
	doc := `<sessions>
  <session>
    <athlete name="No ID Here"/>
    <date>2025-03-14</date>
  </session>
  <session>
    <athlete id="M3" name="Bad Date"/>
    <date>soon</date>
  </session>
  <session>
    <athlete id="M4" name="Fine"/>
    <date>2025-03-14</date>
  </session>
</sessions>`

	records, skipped, err := ParseXML(strings.NewReader(doc), mocapSource())
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, records, 1)
	assert.Equal(t, "M4", records[0].LocalID)
}

func TestParseXML_Malformed(t *testing.T) {
	_, _, err := ParseXML(strings.NewReader("<sessions><session>"), mocapSource())
	assert.Error(t, err)
}
