package ingest

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/config"
)

// ParseCSV reads a headered CSV export. Rows that cannot be parsed are
// skipped and counted, not fatal; a file-level read error is.
func ParseCSV(r io.Reader, src config.Source) ([]Record, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, eris.Wrapf(err, "ingest: read %s header", src.Name)
	}
	idx := headerIndex(header)

	var records []Record
	skipped := 0
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, eris.Wrapf(err, "ingest: read %s row", src.Name)
		}
		line++

		rec, err := recordFromRow(row, idx, src.Columns)
		if err != nil {
			zap.L().Warn("skipping row",
				zap.String("source", src.Name),
				zap.Int("line", line),
				zap.Error(err),
			)
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// recordFromRow maps one tabular row through the source's column map.
func recordFromRow(row []string, idx map[string]int, cols config.ColumnMap) (Record, error) {
	rec := Record{
		LocalID: cell(row, idx, cols.LocalID),
		RawName: cell(row, idx, cols.Name),
	}
	if rec.LocalID == "" {
		return rec, eris.New("ingest: row missing local id")
	}

	date, err := parseDate(cell(row, idx, cols.SessionDate))
	if err != nil {
		return rec, err
	}
	rec.SessionDate = date

	if v := cell(row, idx, cols.DateOfBirth); v != "" {
		if dob, err := parseDate(v); err == nil {
			rec.Demographics.DateOfBirth = &dob
		}
	}
	if v := cell(row, idx, cols.Gender); v != "" {
		rec.Demographics.Gender = &v
	}
	if v, ok := parseFloat(cell(row, idx, cols.HeightCM)); ok {
		rec.Demographics.HeightCM = v
	}
	if v, ok := parseFloat(cell(row, idx, cols.WeightKG)); ok {
		rec.Demographics.WeightKG = v
	}
	if v := cell(row, idx, cols.Email); v != "" {
		rec.Demographics.Email = &v
	}

	if len(cols.Metrics) > 0 {
		rec.Metrics = make(map[string]float64, len(cols.Metrics))
		for _, m := range cols.Metrics {
			if v, ok := parseFloat(cell(row, idx, m)); ok {
				rec.Metrics[m] = *v
			}
		}
	}
	return rec, nil
}
