package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/config"
)

// ParseXLSX reads a spreadsheet export. The source's Sheet selects by name;
// empty means the first sheet. The first row is the header.
func ParseXLSX(path string, src config.Source) ([]Record, int, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "ingest: open %s workbook", src.Name)
	}

	sheet, err := pickSheet(f, src.Sheet)
	if err != nil {
		return nil, 0, err
	}
	if len(sheet.Rows) == 0 {
		return nil, 0, nil
	}

	idx := headerIndex(rowToStrings(sheet.Rows[0]))

	var records []Record
	skipped := 0
	for i, row := range sheet.Rows[1:] {
		rec, err := recordFromRow(rowToStrings(row), idx, src.Columns)
		if err != nil {
			zap.L().Warn("skipping row",
				zap.String("source", src.Name),
				zap.Int("row", i+2),
				zap.Error(err),
			)
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, c := range row.Cells {
		cells[j] = c.String()
	}
	return cells
}
