package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fullcount-labs/athlete-cli/internal/db"
	"github.com/fullcount-labs/athlete-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresAthletesDDL = `
CREATE TABLE IF NOT EXISTS athletes (
	athlete_id             TEXT PRIMARY KEY,
	display_name           TEXT NOT NULL,
	normalized_name        TEXT NOT NULL UNIQUE,
	date_of_birth          TIMESTAMPTZ,
	gender                 TEXT,
	height_cm              DOUBLE PRECISION,
	weight_kg              DOUBLE PRECISION,
	email                  TEXT,
	phone                  TEXT,
	notes                  TEXT,
	app_db_id              TEXT,
	first_source_system    TEXT NOT NULL DEFAULT '',
	first_source_local_id  TEXT NOT NULL DEFAULT '',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_id_map (
	source_system   TEXT NOT NULL,
	source_local_id TEXT NOT NULL,
	athlete_id      TEXT NOT NULL REFERENCES athletes(athlete_id),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source_system, source_local_id)
);

CREATE INDEX IF NOT EXISTS idx_source_id_map_athlete ON source_id_map(athlete_id);
`

func postgresDomainDDL(domain string) string {
	table := model.FactTable(domain)
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           TEXT PRIMARY KEY,
	athlete_id   TEXT NOT NULL REFERENCES athletes(athlete_id),
	session_date TIMESTAMPTZ NOT NULL,
	metrics      JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_athlete ON %[1]s(athlete_id);
ALTER TABLE athletes ADD COLUMN IF NOT EXISTS has_%[2]s_data BOOLEAN NOT NULL DEFAULT FALSE;
ALTER TABLE athletes ADD COLUMN IF NOT EXISTS %[2]s_session_count INTEGER NOT NULL DEFAULT 0;
`, table, domain)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresAthletesDDL); err != nil {
		return eris.Wrap(err, "postgres: migrate athletes")
	}
	for _, domain := range model.Domains {
		if _, err := s.pool.Exec(ctx, postgresDomainDDL(domain)); err != nil {
			return eris.Wrapf(err, "postgres: migrate %s facts", domain)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetMapping(ctx context.Context, sourceSystem, sourceLocalID string) (string, error) {
	var athleteID string
	err := s.pool.QueryRow(ctx,
		`SELECT athlete_id FROM source_id_map WHERE source_system = $1 AND source_local_id = $2`,
		sourceSystem, sourceLocalID,
	).Scan(&athleteID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: get mapping")
	}
	return athleteID, nil
}

func (s *PostgresStore) BindMapping(ctx context.Context, sourceSystem, sourceLocalID, athleteID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_id_map (source_system, source_local_id, athlete_id, created_at) VALUES ($1, $2, $3, $4)`,
		sourceSystem, sourceLocalID, athleteID, time.Now().UTC(),
	)
	if isPGUnique(err, "source_id_map") {
		return ErrMappingTaken
	}
	return eris.Wrap(err, "postgres: bind mapping")
}

func (s *PostgresStore) ListMappings(ctx context.Context, athleteID string) ([]model.SourceMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_system, source_local_id, athlete_id, created_at FROM source_id_map
		 WHERE athlete_id = $1 ORDER BY source_system, source_local_id`,
		athleteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mappings")
	}
	defer rows.Close()

	var out []model.SourceMapping
	for rows.Next() {
		var m model.SourceMapping
		if err := rows.Scan(&m.SourceSystem, &m.SourceLocalID, &m.AthleteID, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mapping")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list mappings iterate")
}

const pgAthleteColumns = `athlete_id, display_name, normalized_name, date_of_birth, gender,
	height_cm, weight_kg, email, phone, notes, app_db_id,
	first_source_system, first_source_local_id, created_at, updated_at`

func (s *PostgresStore) GetAthlete(ctx context.Context, athleteID string) (*model.Athlete, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAthleteColumns+` FROM athletes WHERE athlete_id = $1`, athleteID)
	a, err := scanPGAthlete(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get athlete")
	}
	return a, nil
}

func (s *PostgresStore) GetAthleteByNormalizedName(ctx context.Context, normalizedName string) (*model.Athlete, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAthleteColumns+` FROM athletes WHERE normalized_name = $1`, normalizedName)
	a, err := scanPGAthlete(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get athlete by normalized name")
	}
	return a, nil
}

func (s *PostgresStore) ListAthletes(ctx context.Context, athleteIDs []string) ([]model.Athlete, error) {
	query := `SELECT ` + pgAthleteColumns + ` FROM athletes`
	var args []any
	if len(athleteIDs) > 0 {
		query += ` WHERE athlete_id = ANY($1)`
		args = append(args, athleteIDs)
	}
	query += ` ORDER BY created_at, athlete_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list athletes")
	}
	defer rows.Close()

	var out []model.Athlete
	for rows.Next() {
		a, err := scanPGAthlete(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan athlete")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list athletes iterate")
}

func (s *PostgresStore) CountAthletes(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM athletes`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count athletes")
}

func (s *PostgresStore) CreateAthleteWithMapping(ctx context.Context, a *model.Athlete, sourceSystem, sourceLocalID string) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create athlete")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO athletes (athlete_id, display_name, normalized_name, date_of_birth, gender,
			height_cm, weight_kg, email, phone, notes, app_db_id,
			first_source_system, first_source_local_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.DisplayName, a.NormalizedName, a.DateOfBirth, a.Gender,
		a.HeightCM, a.WeightKG, a.Email, a.Phone, a.Notes, a.AppDBID,
		sourceSystem, sourceLocalID, now, now,
	)
	if isPGUnique(err, "normalized_name") {
		return ErrNormalizedNameTaken
	}
	if err != nil {
		return eris.Wrap(err, "postgres: insert athlete")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO source_id_map (source_system, source_local_id, athlete_id, created_at) VALUES ($1, $2, $3, $4)`,
		sourceSystem, sourceLocalID, a.ID, now,
	)
	if isPGUnique(err, "source_id_map") {
		return ErrMappingTaken
	}
	if err != nil {
		return eris.Wrap(err, "postgres: insert mapping")
	}

	a.FirstSourceSystem = sourceSystem
	a.FirstSourceLocalID = sourceLocalID
	return eris.Wrap(tx.Commit(ctx), "postgres: commit create athlete")
}

func (s *PostgresStore) FillDemographics(ctx context.Context, athleteID string, d model.Demographics) error {
	if d.Empty() {
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE athletes SET
			date_of_birth = COALESCE(date_of_birth, $1),
			gender        = COALESCE(gender, $2),
			height_cm     = COALESCE(height_cm, $3),
			weight_kg     = COALESCE(weight_kg, $4),
			email         = COALESCE(email, $5),
			phone         = COALESCE(phone, $6),
			notes         = COALESCE(notes, $7),
			updated_at    = $8
		 WHERE athlete_id = $9`,
		d.DateOfBirth, d.Gender, d.HeightCM, d.WeightKG, d.Email, d.Phone, d.Notes,
		time.Now().UTC(), athleteID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fill demographics %s", athleteID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MergeAthletes(ctx context.Context, survivorID, absorbedID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx)

	absorbed, err := scanPGAthlete(tx.QueryRow(ctx,
		`SELECT `+pgAthleteColumns+` FROM athletes WHERE athlete_id = $1`, absorbedID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrap(err, "postgres: load absorbed athlete")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE athletes SET
			date_of_birth = COALESCE(date_of_birth, $1),
			gender        = COALESCE(gender, $2),
			height_cm     = COALESCE(height_cm, $3),
			weight_kg     = COALESCE(weight_kg, $4),
			email         = COALESCE(email, $5),
			phone         = COALESCE(phone, $6),
			notes         = COALESCE(notes, $7),
			app_db_id     = COALESCE(app_db_id, $8),
			updated_at    = $9
		 WHERE athlete_id = $10`,
		absorbed.DateOfBirth, absorbed.Gender, absorbed.HeightCM, absorbed.WeightKG,
		absorbed.Email, absorbed.Phone, absorbed.Notes, absorbed.AppDBID,
		time.Now().UTC(), survivorID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: merge fill survivor")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`UPDATE source_id_map SET athlete_id = $1 WHERE athlete_id = $2`,
		survivorID, absorbedID,
	); err != nil {
		return eris.Wrap(err, "postgres: merge repoint mappings")
	}

	for _, domain := range model.Domains {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET athlete_id = $1 WHERE athlete_id = $2`, model.FactTable(domain)),
			survivorID, absorbedID,
		); err != nil {
			return eris.Wrapf(err, "postgres: merge repoint %s facts", domain)
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM athletes WHERE athlete_id = $1`, absorbedID,
	); err != nil {
		return eris.Wrap(err, "postgres: merge delete absorbed")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
}

func (s *PostgresStore) InsertFacts(ctx context.Context, domain string, rows []model.FactRow) (int64, error) {
	if !model.ValidDomain(domain) {
		return 0, eris.Errorf("postgres: unknown domain %q", domain)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	copyRows := make([][]any, 0, len(rows))
	for _, r := range rows {
		metricsJSON, err := json.Marshal(r.Metrics)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal metrics")
		}
		copyRows = append(copyRows, []any{uuid.New().String(), r.AthleteID, r.SessionDate, metricsJSON, now})
	}

	return db.CopyFrom(ctx, s.pool, model.FactTable(domain),
		[]string{"id", "athlete_id", "session_date", "metrics", "created_at"}, copyRows)
}

func (s *PostgresStore) GetDomainStats(ctx context.Context, athleteID string) (map[string]model.DomainStat, error) {
	cols := make([]string, 0, len(model.Domains)*2)
	for _, d := range model.Domains {
		cols = append(cols, "has_"+d+"_data", d+"_session_count")
	}

	hasData := make([]bool, len(model.Domains))
	counts := make([]int, len(model.Domains))
	dest := make([]any, 0, len(cols))
	for i := range model.Domains {
		dest = append(dest, &hasData[i], &counts[i])
	}

	err := s.pool.QueryRow(ctx,
		`SELECT `+strings.Join(cols, ", ")+` FROM athletes WHERE athlete_id = $1`, athleteID,
	).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get domain stats")
	}

	out := make(map[string]model.DomainStat, len(model.Domains))
	for i, d := range model.Domains {
		out[d] = model.DomainStat{HasData: hasData[i], SessionCount: counts[i]}
	}
	return out, nil
}

func (s *PostgresStore) ReconcileDomainStats(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(model.Domains))
	for _, domain := range model.Domains {
		table := model.FactTable(domain)
		_, err := s.pool.Exec(ctx, fmt.Sprintf(
			`UPDATE athletes SET
				%[1]s_session_count = (SELECT COUNT(*) FROM %[2]s f WHERE f.athlete_id = athletes.athlete_id),
				has_%[1]s_data = EXISTS (SELECT 1 FROM %[2]s f WHERE f.athlete_id = athletes.athlete_id)`,
			domain, table,
		))
		if err != nil {
			return counts, eris.Wrapf(err, "postgres: reconcile %s", domain)
		}

		var n int64
		if err := s.pool.QueryRow(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM athletes WHERE has_%s_data`, domain),
		).Scan(&n); err != nil {
			return counts, eris.Wrapf(err, "postgres: count %s athletes", domain)
		}
		counts[domain] = n
	}
	return counts, nil
}

// isPGUnique reports whether err is a unique violation on a constraint or
// table whose name contains the given substring.
func isPGUnique(err error, substr string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return strings.Contains(pgErr.ConstraintName, substr) ||
		strings.Contains(pgErr.TableName, substr) ||
		strings.Contains(pgErr.Detail, substr)
}

// scanPGAthlete scans an athlete row from pgx.
func scanPGAthlete(row pgx.Row) (*model.Athlete, error) {
	var a model.Athlete
	var dob *time.Time
	var gender, email, phone, notes, appDBID *string
	var height, weight *float64

	err := row.Scan(
		&a.ID, &a.DisplayName, &a.NormalizedName, &dob, &gender,
		&height, &weight, &email, &phone, &notes, &appDBID,
		&a.FirstSourceSystem, &a.FirstSourceLocalID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.DateOfBirth = dob
	a.Gender = gender
	a.HeightCM = height
	a.WeightKG = weight
	a.Email = email
	a.Phone = phone
	a.Notes = notes
	a.AppDBID = appDBID
	return &a, nil
}
