package ingest

import (
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/config"
)

// xmlSession mirrors the motion-capture export schema: one session element
// per capture, athlete identity on a child element, metrics as name/value
// pairs.
type xmlSession struct {
	Athlete struct {
		ID   string `xml:"id,attr"`
		Name string `xml:"name,attr"`
		DOB  string `xml:"dob,attr"`
	} `xml:"athlete"`
	Date    string `xml:"date"`
	Metrics []struct {
		Name  string  `xml:"name,attr"`
		Value float64 `xml:"value,attr"`
	} `xml:"metric"`
}

// ParseXML reads a motion-capture XML export, decoding each session element
// as it streams by. Malformed sessions are skipped and counted.
func ParseXML(r io.Reader, src config.Source) ([]Record, int, error) {
	decoder := xml.NewDecoder(r)

	var records []Record
	skipped := 0
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, eris.Wrapf(err, "ingest: read %s xml", src.Name)
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "session" {
			continue
		}

		var sess xmlSession
		if err := decoder.DecodeElement(&sess, &se); err != nil {
			return nil, skipped, eris.Wrapf(err, "ingest: decode %s session", src.Name)
		}

		rec, err := recordFromSession(sess)
		if err != nil {
			zap.L().Warn("skipping session",
				zap.String("source", src.Name),
				zap.String("local_id", sess.Athlete.ID),
				zap.Error(err),
			)
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func recordFromSession(sess xmlSession) (Record, error) {
	rec := Record{
		LocalID: sess.Athlete.ID,
		RawName: sess.Athlete.Name,
	}
	if rec.LocalID == "" {
		return rec, eris.New("ingest: session missing athlete id")
	}

	date, err := parseDate(sess.Date)
	if err != nil {
		return rec, err
	}
	rec.SessionDate = date

	if sess.Athlete.DOB != "" {
		if dob, err := parseDate(sess.Athlete.DOB); err == nil {
			rec.Demographics.DateOfBirth = &dob
		}
	}

	if len(sess.Metrics) > 0 {
		rec.Metrics = make(map[string]float64, len(sess.Metrics))
		for _, m := range sess.Metrics {
			if m.Name != "" {
				rec.Metrics[m.Name] = m.Value
			}
		}
	}
	return rec, nil
}
