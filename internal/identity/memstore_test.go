package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fullcount-labs/athlete-cli/internal/model"
	"github.com/fullcount-labs/athlete-cli/internal/store"
)

// memStore is an in-memory store.Store used by the identity tests. It
// enforces the same uniqueness constraints the SQL stores do so the
// race-recovery paths are exercisable without a database.
type memStore struct {
	mu       sync.Mutex
	athletes map[string]*model.Athlete
	byNorm   map[string]string // normalized_name -> athlete id
	mappings map[string]string // source|local -> athlete id
	facts    map[string][]model.FactRow
	clock    time.Time

	// error injection
	failCreate  error
	failGet     error
	failMergeID string // MergeAthletes fails when the absorbed id matches
}

func newMemStore() *memStore {
	return &memStore{
		athletes: make(map[string]*model.Athlete),
		byNorm:   make(map[string]string),
		mappings: make(map[string]string),
		facts:    make(map[string][]model.FactRow),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func mapKey(system, local string) string { return system + "|" + local }

func (m *memStore) GetMapping(_ context.Context, system, local string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", m.failGet
	}
	return m.mappings[mapKey(system, local)], nil
}

func (m *memStore) BindMapping(_ context.Context, system, local, athleteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mapKey(system, local)
	if _, ok := m.mappings[key]; ok {
		return store.ErrMappingTaken
	}
	m.mappings[key] = athleteID
	return nil
}

func (m *memStore) ListMappings(_ context.Context, athleteID string) ([]model.SourceMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SourceMapping
	for key, id := range m.mappings {
		if id != athleteID {
			continue
		}
		system, local, _ := strings.Cut(key, "|")
		out = append(out, model.SourceMapping{SourceSystem: system, SourceLocalID: local, AthleteID: id})
	}
	return out, nil
}

func (m *memStore) GetAthlete(_ context.Context, id string) (*model.Athlete, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.athletes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetAthleteByNormalizedName(_ context.Context, norm string) (*model.Athlete, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	id, ok := m.byNorm[norm]
	if !ok {
		return nil, nil
	}
	cp := *m.athletes[id]
	return &cp, nil
}

func (m *memStore) ListAthletes(_ context.Context, ids []string) ([]model.Athlete, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Athlete
	if ids == nil {
		for _, a := range m.athletes {
			out = append(out, *a)
		}
		return out, nil
	}
	for _, id := range ids {
		if a, ok := m.athletes[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) CountAthletes(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.athletes)), nil
}

func (m *memStore) CreateAthleteWithMapping(_ context.Context, a *model.Athlete, system, local string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	if _, ok := m.byNorm[a.NormalizedName]; ok {
		return store.ErrNormalizedNameTaken
	}
	key := mapKey(system, local)
	if _, ok := m.mappings[key]; ok {
		return store.ErrMappingTaken
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = m.clock
	a.UpdatedAt = m.clock
	m.clock = m.clock.Add(time.Second)
	a.FirstSourceSystem = system
	a.FirstSourceLocalID = local
	cp := *a
	m.athletes[a.ID] = &cp
	m.byNorm[a.NormalizedName] = a.ID
	m.mappings[key] = a.ID
	return nil
}

func (m *memStore) FillDemographics(_ context.Context, id string, d model.Demographics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.athletes[id]
	if !ok {
		return store.ErrNotFound
	}
	if a.DateOfBirth == nil {
		a.DateOfBirth = d.DateOfBirth
	}
	if a.Gender == nil {
		a.Gender = d.Gender
	}
	if a.HeightCM == nil {
		a.HeightCM = d.HeightCM
	}
	if a.WeightKG == nil {
		a.WeightKG = d.WeightKG
	}
	if a.Email == nil {
		a.Email = d.Email
	}
	if a.Phone == nil {
		a.Phone = d.Phone
	}
	if a.Notes == nil {
		a.Notes = d.Notes
	}
	return nil
}

func (m *memStore) MergeAthletes(_ context.Context, survivorID, absorbedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMergeID != "" && absorbedID == m.failMergeID {
		return store.ErrNotFound
	}
	surv, ok := m.athletes[survivorID]
	if !ok {
		return store.ErrNotFound
	}
	abs, ok := m.athletes[absorbedID]
	if !ok {
		return store.ErrNotFound
	}
	if surv.DateOfBirth == nil {
		surv.DateOfBirth = abs.DateOfBirth
	}
	if surv.Gender == nil {
		surv.Gender = abs.Gender
	}
	if surv.HeightCM == nil {
		surv.HeightCM = abs.HeightCM
	}
	if surv.WeightKG == nil {
		surv.WeightKG = abs.WeightKG
	}
	if surv.Email == nil {
		surv.Email = abs.Email
	}
	if surv.Phone == nil {
		surv.Phone = abs.Phone
	}
	if surv.Notes == nil {
		surv.Notes = abs.Notes
	}
	if surv.AppDBID == nil {
		surv.AppDBID = abs.AppDBID
	}
	for key, id := range m.mappings {
		if id == absorbedID {
			m.mappings[key] = survivorID
		}
	}
	for domain, rows := range m.facts {
		for i := range rows {
			if rows[i].AthleteID == absorbedID {
				rows[i].AthleteID = survivorID
			}
		}
		m.facts[domain] = rows
	}
	delete(m.byNorm, abs.NormalizedName)
	delete(m.athletes, absorbedID)
	return nil
}

func (m *memStore) InsertFacts(_ context.Context, domain string, rows []model.FactRow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[domain] = append(m.facts[domain], rows...)
	return int64(len(rows)), nil
}

func (m *memStore) GetDomainStats(_ context.Context, athleteID string) (map[string]model.DomainStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.DomainStat)
	for _, domain := range model.Domains {
		var n int
		for _, row := range m.facts[domain] {
			if row.AthleteID == athleteID {
				n++
			}
		}
		out[domain] = model.DomainStat{HasData: n > 0, SessionCount: n}
	}
	return out, nil
}

func (m *memStore) ReconcileDomainStats(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for _, domain := range model.Domains {
		seen := make(map[string]bool)
		for _, row := range m.facts[domain] {
			seen[row.AthleteID] = true
		}
		out[domain] = int64(len(seen))
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }
