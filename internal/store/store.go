// Package store persists the canonical athlete table family: athletes,
// source_id_map, and the per-domain fact tables ingest writes into.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fullcount-labs/athlete-cli/internal/model"
)

// ErrNotFound is returned when a requested athlete does not exist.
var ErrNotFound = eris.New("store: athlete not found")

// ErrNormalizedNameTaken is returned when an insert would violate the
// normalized_name uniqueness constraint. The resolver treats it as "someone
// else just created this person" and re-queries.
var ErrNormalizedNameTaken = eris.New("store: normalized name already exists")

// ErrMappingTaken is returned when a (source_system, source_local_id) pair
// is already bound to an athlete.
var ErrMappingTaken = eris.New("store: source mapping already exists")

// Store defines the persistence contract for the identity core.
type Store interface {
	// Source identity mappings
	GetMapping(ctx context.Context, sourceSystem, sourceLocalID string) (string, error) // "" when unmapped
	BindMapping(ctx context.Context, sourceSystem, sourceLocalID, athleteID string) error
	ListMappings(ctx context.Context, athleteID string) ([]model.SourceMapping, error)

	// Athletes
	GetAthlete(ctx context.Context, athleteID string) (*model.Athlete, error)
	GetAthleteByNormalizedName(ctx context.Context, normalizedName string) (*model.Athlete, error) // nil when absent
	ListAthletes(ctx context.Context, athleteIDs []string) ([]model.Athlete, error)                 // nil = all
	CountAthletes(ctx context.Context) (int64, error)

	// CreateAthleteWithMapping writes the athlete row and its first source
	// mapping as one atomic unit. A partial write is never observable.
	CreateAthleteWithMapping(ctx context.Context, a *model.Athlete, sourceSystem, sourceLocalID string) error

	// FillDemographics sets each supplied field only where the athlete's
	// current value is null. Present values are never overwritten here.
	FillDemographics(ctx context.Context, athleteID string, d model.Demographics) error

	// MergeAthletes fills the survivor's null fields from the absorbed
	// record, repoints every mapping and fact row, and deletes the absorbed
	// athlete, all in one transaction.
	MergeAthletes(ctx context.Context, survivorID, absorbedID string) error

	// Facts and derived stats
	InsertFacts(ctx context.Context, domain string, rows []model.FactRow) (int64, error)
	GetDomainStats(ctx context.Context, athleteID string) (map[string]model.DomainStat, error)
	ReconcileDomainStats(ctx context.Context) (map[string]int64, error) // athletes with data, per domain

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
