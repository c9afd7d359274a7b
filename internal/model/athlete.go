// Package model defines the canonical athlete data model shared across the CLI.
package model

import "time"

// Athlete is the canonical identity record in the warehouse. The ID is a
// random UUID rendered in hyphenated hex form, minted once at creation and
// never reused.
type Athlete struct {
	ID             string `json:"athlete_id"`
	DisplayName    string `json:"display_name"`
	NormalizedName string `json:"normalized_name"`

	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	HeightCM    *float64   `json:"height_cm,omitempty"`
	WeightKG    *float64   `json:"weight_kg,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Notes       *string    `json:"notes,omitempty"`

	// AppDBID is the identifier in the external authoritative identity
	// source, when this athlete was adopted from (or registered in) it.
	AppDBID *string `json:"app_db_id,omitempty"`

	// First registration provenance. Informational only; the authoritative
	// source bindings live in source_id_map.
	FirstSourceSystem  string `json:"first_source_system,omitempty"`
	FirstSourceLocalID string `json:"first_source_local_id,omitempty"`

	// Per-domain stats, recomputed by the reconcile job from the fact tables.
	Stats map[string]DomainStat `json:"stats,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DomainStat holds the derived per-domain presence fields for one athlete.
type DomainStat struct {
	HasData      bool `json:"has_data"`
	SessionCount int  `json:"session_count"`
}

// Demographics carries the optional attributes a source system may supply
// alongside a sighting. All fields are fill-if-null on the athlete record;
// an existing value is never overwritten outside an explicit merge.
type Demographics struct {
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	HeightCM    *float64   `json:"height_cm,omitempty"`
	WeightKG    *float64   `json:"weight_kg,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// Empty reports whether no demographic field is set.
func (d Demographics) Empty() bool {
	return d.DateOfBirth == nil && d.Gender == nil && d.HeightCM == nil &&
		d.WeightKG == nil && d.Email == nil && d.Phone == nil && d.Notes == nil
}

// SourceMapping is one durable binding from a source system's local
// identifier to a canonical athlete.
type SourceMapping struct {
	SourceSystem  string    `json:"source_system"`
	SourceLocalID string    `json:"source_local_id"`
	AthleteID     string    `json:"athlete_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// FactRow is one measurement session row destined for a domain fact table.
type FactRow struct {
	AthleteID   string             `json:"athlete_id"`
	SessionDate time.Time          `json:"session_date"`
	Metrics     map[string]float64 `json:"metrics"`
}

// Domains lists the measurement domains the warehouse tracks. Each domain
// owns a fact table named FactTable(domain) and a pair of derived columns
// on athletes.
var Domains = []string{"pitching", "hitting", "forceplate", "mobility", "power"}

// FactTable returns the fact table name for a domain.
func FactTable(domain string) string {
	return domain + "_sessions"
}

// ValidDomain reports whether domain is one of the registered domains.
func ValidDomain(domain string) bool {
	for _, d := range Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// AgeAt returns the athlete's whole-year age at the given collection date,
// or -1 when date of birth is unknown.
func (a *Athlete) AgeAt(collected time.Time) int {
	return ageAt(a.DateOfBirth, collected)
}

func ageAt(dob *time.Time, collected time.Time) int {
	if dob == nil {
		return -1
	}
	years := collected.Year() - dob.Year()
	anniversary := time.Date(collected.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC)
	if collected.Before(anniversary) {
		years--
	}
	return years
}

// AgeGroup buckets an age at collection into the training groups used by
// the reporting side of the warehouse. Unknown ages bucket to "unknown".
func AgeGroup(dob *time.Time, collected time.Time) string {
	age := ageAt(dob, collected)
	switch {
	case age < 0:
		return "unknown"
	case age < 13:
		return "youth"
	case age <= 18:
		return "high_school"
	case age <= 22:
		return "college"
	default:
		return "pro"
	}
}
