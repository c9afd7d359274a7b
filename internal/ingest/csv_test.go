package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullcount-labs/athlete-cli/internal/config"
)

func hittraxSource() config.Source {
	return config.Source{
		Name:   "hittrax",
		Format: "csv",
		Domain: "hitting",
		Columns: config.ColumnMap{
			LocalID:     "PlayerID",
			Name:        "PlayerName",
			DateOfBirth: "BirthDate",
			SessionDate: "SessionDate",
			Metrics:     []string{"ExitVelo", "LaunchAngle"},
		},
	}
}

func TestParseCSV(t *testing.T) {
	csv := `PlayerID,PlayerName,BirthDate,SessionDate,ExitVelo,LaunchAngle
P1,Ryan Weiss,2001-04-12,2025-03-14,92.1,14.5
P2,"Doe, Jane",,03/15/2025,88.0,
`
	records, skipped, err := ParseCSV(strings.NewReader(csv), hittraxSource())
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, "P1", r.LocalID)
	assert.Equal(t, "Ryan Weiss", r.RawName)
	require.NotNil(t, r.Demographics.DateOfBirth)
	assert.Equal(t, "2001-04-12", r.Demographics.DateOfBirth.Format("2006-01-02"))
	assert.Equal(t, "2025-03-14", r.SessionDate.Format("2006-01-02"))
	assert.Equal(t, map[string]float64{"ExitVelo": 92.1, "LaunchAngle": 14.5}, r.Metrics)

	j := records[1]
	assert.Equal(t, "Doe, Jane", j.RawName)
	assert.Nil(t, j.Demographics.DateOfBirth)
	assert.Equal(t, "2025-03-15", j.SessionDate.Format("2006-01-02"))
	// Blank metric cells are simply absent.
	assert.Equal(t, map[string]float64{"ExitVelo": 88.0}, j.Metrics)
}

func TestParseCSV_SkipsBadRows(t *testing.T) {
	csv := `PlayerID,PlayerName,BirthDate,SessionDate,ExitVelo,LaunchAngle
,No LocalID,,2025-03-14,90,10
P2,Bad Date,,not-a-date,90,10
P3,Fine Row,,2025-03-14,90,10
`
	records, skipped, err := ParseCSV(strings.NewReader(csv), hittraxSource())
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, records, 1)
	assert.Equal(t, "P3", records[0].LocalID)
}

func TestParseCSV_HeaderCaseInsensitive(t *testing.T) {
	csv := `playerid,playername,birthdate,sessiondate,exitvelo,launchangle
P1,Ryan Weiss,,2025-03-14,92.1,14.5
`
	records, _, err := ParseCSV(strings.NewReader(csv), hittraxSource())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 92.1, records[0].Metrics["ExitVelo"])
}

func TestParseCSV_Empty(t *testing.T) {
	records, skipped, err := ParseCSV(strings.NewReader(""), hittraxSource())
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Empty(t, records)
}

func TestParseDate(t *testing.T) {
	for _, ok := range []string{"2025-03-14", "03/14/2025", "3/14/2025", "2025-03-14 10:30:00"} {
		_, err := parseDate(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "yesterday", "14.03.2025"} {
		_, err := parseDate(bad)
		assert.Error(t, err, bad)
	}
}
