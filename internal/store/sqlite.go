package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fullcount-labs/athlete-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteAthletesDDL = `
CREATE TABLE IF NOT EXISTS athletes (
	athlete_id             TEXT PRIMARY KEY,
	display_name           TEXT NOT NULL,
	normalized_name        TEXT NOT NULL UNIQUE,
	date_of_birth          DATETIME,
	gender                 TEXT,
	height_cm              REAL,
	weight_kg              REAL,
	email                  TEXT,
	phone                  TEXT,
	notes                  TEXT,
	app_db_id              TEXT,
	first_source_system    TEXT NOT NULL DEFAULT '',
	first_source_local_id  TEXT NOT NULL DEFAULT '',
	created_at             DATETIME NOT NULL,
	updated_at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS source_id_map (
	source_system   TEXT NOT NULL,
	source_local_id TEXT NOT NULL,
	athlete_id      TEXT NOT NULL REFERENCES athletes(athlete_id),
	created_at      DATETIME NOT NULL,
	PRIMARY KEY (source_system, source_local_id)
);

CREATE INDEX IF NOT EXISTS idx_source_id_map_athlete ON source_id_map(athlete_id);
`

// sqliteDomainDDL renders the per-domain derived columns and fact table.
func sqliteDomainDDL(domain string) string {
	table := model.FactTable(domain)
	var b strings.Builder
	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %[1]s (
	id           TEXT PRIMARY KEY,
	athlete_id   TEXT NOT NULL REFERENCES athletes(athlete_id),
	session_date DATETIME NOT NULL,
	metrics      TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_athlete ON %[1]s(athlete_id);
`, table)
	// Derived columns land on athletes; ALTER is idempotent-guarded below.
	return b.String()
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteAthletesDDL); err != nil {
		return eris.Wrap(err, "sqlite: migrate athletes")
	}
	for _, domain := range model.Domains {
		if _, err := s.db.ExecContext(ctx, sqliteDomainDDL(domain)); err != nil {
			return eris.Wrapf(err, "sqlite: migrate %s facts", domain)
		}
		for _, col := range []string{
			fmt.Sprintf("has_%s_data INTEGER NOT NULL DEFAULT 0", domain),
			fmt.Sprintf("%s_session_count INTEGER NOT NULL DEFAULT 0", domain),
		} {
			_, err := s.db.ExecContext(ctx, "ALTER TABLE athletes ADD COLUMN "+col)
			if err != nil && !strings.Contains(err.Error(), "duplicate column name") {
				return eris.Wrapf(err, "sqlite: add column %s", col)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetMapping(ctx context.Context, sourceSystem, sourceLocalID string) (string, error) {
	var athleteID string
	err := s.db.QueryRowContext(ctx,
		`SELECT athlete_id FROM source_id_map WHERE source_system = ? AND source_local_id = ?`,
		sourceSystem, sourceLocalID,
	).Scan(&athleteID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: get mapping")
	}
	return athleteID, nil
}

func (s *SQLiteStore) BindMapping(ctx context.Context, sourceSystem, sourceLocalID, athleteID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_id_map (source_system, source_local_id, athlete_id, created_at) VALUES (?, ?, ?, ?)`,
		sourceSystem, sourceLocalID, athleteID, time.Now().UTC(),
	)
	if isSQLiteUnique(err, "source_id_map") {
		return ErrMappingTaken
	}
	return eris.Wrap(err, "sqlite: bind mapping")
}

func (s *SQLiteStore) ListMappings(ctx context.Context, athleteID string) ([]model.SourceMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_system, source_local_id, athlete_id, created_at FROM source_id_map
		 WHERE athlete_id = ? ORDER BY source_system, source_local_id`,
		athleteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mappings")
	}
	defer rows.Close()

	var out []model.SourceMapping
	for rows.Next() {
		var m model.SourceMapping
		if err := rows.Scan(&m.SourceSystem, &m.SourceLocalID, &m.AthleteID, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list mappings iterate")
}

const athleteColumns = `athlete_id, display_name, normalized_name, date_of_birth, gender,
	height_cm, weight_kg, email, phone, notes, app_db_id,
	first_source_system, first_source_local_id, created_at, updated_at`

func (s *SQLiteStore) GetAthlete(ctx context.Context, athleteID string) (*model.Athlete, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+athleteColumns+` FROM athletes WHERE athlete_id = ?`, athleteID)
	a, err := scanAthlete(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get athlete")
	}
	return a, nil
}

func (s *SQLiteStore) GetAthleteByNormalizedName(ctx context.Context, normalizedName string) (*model.Athlete, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+athleteColumns+` FROM athletes WHERE normalized_name = ?`, normalizedName)
	a, err := scanAthlete(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get athlete by normalized name")
	}
	return a, nil
}

func (s *SQLiteStore) ListAthletes(ctx context.Context, athleteIDs []string) ([]model.Athlete, error) {
	query := `SELECT ` + athleteColumns + ` FROM athletes`
	var args []any
	if len(athleteIDs) > 0 {
		query += ` WHERE athlete_id IN (?` + strings.Repeat(",?", len(athleteIDs)-1) + `)`
		for _, id := range athleteIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at, athlete_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list athletes")
	}
	defer rows.Close()

	var out []model.Athlete
	for rows.Next() {
		a, err := scanAthlete(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan athlete")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list athletes iterate")
}

func (s *SQLiteStore) CountAthletes(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM athletes`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count athletes")
}

func (s *SQLiteStore) CreateAthleteWithMapping(ctx context.Context, a *model.Athlete, sourceSystem, sourceLocalID string) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create athlete")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO athletes (athlete_id, display_name, normalized_name, date_of_birth, gender,
			height_cm, weight_kg, email, phone, notes, app_db_id,
			first_source_system, first_source_local_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DisplayName, a.NormalizedName, a.DateOfBirth, a.Gender,
		a.HeightCM, a.WeightKG, a.Email, a.Phone, a.Notes, a.AppDBID,
		sourceSystem, sourceLocalID, now, now,
	)
	if isSQLiteUnique(err, "athletes.normalized_name") {
		return ErrNormalizedNameTaken
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: insert athlete")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO source_id_map (source_system, source_local_id, athlete_id, created_at) VALUES (?, ?, ?, ?)`,
		sourceSystem, sourceLocalID, a.ID, now,
	)
	if isSQLiteUnique(err, "source_id_map") {
		return ErrMappingTaken
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: insert mapping")
	}

	a.FirstSourceSystem = sourceSystem
	a.FirstSourceLocalID = sourceLocalID
	return eris.Wrap(tx.Commit(), "sqlite: commit create athlete")
}

func (s *SQLiteStore) FillDemographics(ctx context.Context, athleteID string, d model.Demographics) error {
	if d.Empty() {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE athletes SET
			date_of_birth = COALESCE(date_of_birth, ?),
			gender        = COALESCE(gender, ?),
			height_cm     = COALESCE(height_cm, ?),
			weight_kg     = COALESCE(weight_kg, ?),
			email         = COALESCE(email, ?),
			phone         = COALESCE(phone, ?),
			notes         = COALESCE(notes, ?),
			updated_at    = ?
		 WHERE athlete_id = ?`,
		d.DateOfBirth, d.Gender, d.HeightCM, d.WeightKG, d.Email, d.Phone, d.Notes,
		time.Now().UTC(), athleteID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fill demographics %s", athleteID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MergeAthletes(ctx context.Context, survivorID, absorbedID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback()

	absorbed, err := scanAthlete(tx.QueryRowContext(ctx,
		`SELECT `+athleteColumns+` FROM athletes WHERE athlete_id = ?`, absorbedID))
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: load absorbed athlete")
	}

	// Fill the survivor's null fields from the absorbed record. Fields
	// present on both keep the survivor's value.
	res, err := tx.ExecContext(ctx,
		`UPDATE athletes SET
			date_of_birth = COALESCE(date_of_birth, ?),
			gender        = COALESCE(gender, ?),
			height_cm     = COALESCE(height_cm, ?),
			weight_kg     = COALESCE(weight_kg, ?),
			email         = COALESCE(email, ?),
			phone         = COALESCE(phone, ?),
			notes         = COALESCE(notes, ?),
			app_db_id     = COALESCE(app_db_id, ?),
			updated_at    = ?
		 WHERE athlete_id = ?`,
		absorbed.DateOfBirth, absorbed.Gender, absorbed.HeightCM, absorbed.WeightKG,
		absorbed.Email, absorbed.Phone, absorbed.Notes, absorbed.AppDBID,
		time.Now().UTC(), survivorID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: merge fill survivor")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE source_id_map SET athlete_id = ? WHERE athlete_id = ?`,
		survivorID, absorbedID,
	); err != nil {
		return eris.Wrap(err, "sqlite: merge repoint mappings")
	}

	for _, domain := range model.Domains {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET athlete_id = ? WHERE athlete_id = ?`, model.FactTable(domain)),
			survivorID, absorbedID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: merge repoint %s facts", domain)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM athletes WHERE athlete_id = ?`, absorbedID,
	); err != nil {
		return eris.Wrap(err, "sqlite: merge delete absorbed")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

func (s *SQLiteStore) InsertFacts(ctx context.Context, domain string, rows []model.FactRow) (int64, error) {
	if !model.ValidDomain(domain) {
		return 0, eris.Errorf("sqlite: unknown domain %q", domain)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert facts")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, athlete_id, session_date, metrics, created_at) VALUES (?, ?, ?, ?, ?)`,
		model.FactTable(domain),
	))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert facts")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range rows {
		metricsJSON, err := json.Marshal(r.Metrics)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal metrics")
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), r.AthleteID, r.SessionDate, string(metricsJSON), now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s fact", domain)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert facts")
	}
	return int64(len(rows)), nil
}

func (s *SQLiteStore) GetDomainStats(ctx context.Context, athleteID string) (map[string]model.DomainStat, error) {
	cols := make([]string, 0, len(model.Domains)*2)
	for _, d := range model.Domains {
		cols = append(cols, "has_"+d+"_data", d+"_session_count")
	}

	dest := make([]any, len(cols))
	vals := make([]sql.NullInt64, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(cols, ", ")+` FROM athletes WHERE athlete_id = ?`, athleteID,
	).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get domain stats")
	}

	out := make(map[string]model.DomainStat, len(model.Domains))
	for i, d := range model.Domains {
		out[d] = model.DomainStat{
			HasData:      vals[i*2].Int64 != 0,
			SessionCount: int(vals[i*2+1].Int64),
		}
	}
	return out, nil
}

func (s *SQLiteStore) ReconcileDomainStats(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(model.Domains))
	for _, domain := range model.Domains {
		table := model.FactTable(domain)
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`UPDATE athletes SET
				%[1]s_session_count = (SELECT COUNT(*) FROM %[2]s f WHERE f.athlete_id = athletes.athlete_id),
				has_%[1]s_data = EXISTS (SELECT 1 FROM %[2]s f WHERE f.athlete_id = athletes.athlete_id)`,
			domain, table,
		))
		if err != nil {
			return counts, eris.Wrapf(err, "sqlite: reconcile %s", domain)
		}

		var n int64
		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM athletes WHERE has_%s_data`, domain),
		).Scan(&n); err != nil {
			return counts, eris.Wrapf(err, "sqlite: count %s athletes", domain)
		}
		counts[domain] = n
	}
	return counts, nil
}

// helpers

func isSQLiteUnique(err error, constraint string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, constraint)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAthlete(row scannable) (*model.Athlete, error) {
	var a model.Athlete
	var dob sql.NullTime
	var gender, email, phone, notes, appDBID sql.NullString
	var height, weight sql.NullFloat64

	err := row.Scan(
		&a.ID, &a.DisplayName, &a.NormalizedName, &dob, &gender,
		&height, &weight, &email, &phone, &notes, &appDBID,
		&a.FirstSourceSystem, &a.FirstSourceLocalID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dob.Valid {
		t := dob.Time
		a.DateOfBirth = &t
	}
	a.Gender = nullStr(gender)
	a.Email = nullStr(email)
	a.Phone = nullStr(phone)
	a.Notes = nullStr(notes)
	a.AppDBID = nullStr(appDBID)
	if height.Valid {
		v := height.Float64
		a.HeightCM = &v
	}
	if weight.Valid {
		v := weight.Float64
		a.WeightKG = &v
	}
	return &a, nil
}

func nullStr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
