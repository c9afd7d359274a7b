package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/fullcount-labs/athlete-cli/internal/config"
)

func trackmanSource() config.Source {
	return config.Source{
		Name:   "trackman",
		Format: "xlsx",
		Domain: "pitching",
		Sheet:  "Pitches",
		Columns: config.ColumnMap{
			LocalID:     "PitcherId",
			Name:        "Pitcher",
			SessionDate: "Date",
			Metrics:     []string{"RelSpeed"},
		},
	}
}

func writeWorkbook(t *testing.T, sheetName string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().Value = v
		}
	}
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseXLSX(t *testing.T) {
	path := writeWorkbook(t, "Pitches", [][]string{
		{"PitcherId", "Pitcher", "Date", "RelSpeed"},
		{"T1", "Weiss, Ryan", "2025-03-14", "91.4"},
		{"T2", "Jane Doe", "bad-date", "88.0"},
	})

	records, skipped, err := ParseXLSX(path, trackmanSource())
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 1)
	assert.Equal(t, "T1", records[0].LocalID)
	assert.Equal(t, "Weiss, Ryan", records[0].RawName)
	assert.Equal(t, 91.4, records[0].Metrics["RelSpeed"])
}

func TestParseXLSX_SheetMissing(t *testing.T) {
	path := writeWorkbook(t, "Other", [][]string{{"PitcherId"}})
	_, _, err := ParseXLSX(path, trackmanSource())
	assert.Error(t, err)
}

func TestParseXLSX_FirstSheetDefault(t *testing.T) {
	src := trackmanSource()
	src.Sheet = ""
	path := writeWorkbook(t, "Whatever", [][]string{
		{"PitcherId", "Pitcher", "Date", "RelSpeed"},
		{"T9", "Ann One", "2025-03-14", "85.0"},
	})

	records, _, err := ParseXLSX(path, src)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "T9", records[0].LocalID)
}
