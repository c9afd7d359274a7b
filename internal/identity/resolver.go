package identity

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fullcount-labs/athlete-cli/internal/model"
	"github.com/fullcount-labs/athlete-cli/internal/store"
)

// Sighting is one appearance of a person in a source system: the local
// identifier the source uses for them plus whatever name and demographics
// the export carried.
type Sighting struct {
	SourceSystem  string
	SourceLocalID string
	RawName       string
	Demographics  model.Demographics
}

// Options controls a resolution run.
type Options struct {
	// CheckAuthority consults the external authoritative identity source
	// before minting a new athlete id, adopting its id when it knows the
	// person.
	CheckAuthority bool

	// Interactive allows the resolver to prompt a human for confirmation
	// and missing fields before creating a record. Never set in scheduled
	// runs.
	Interactive bool

	// Concurrency bounds parallel resolution in ResolveBatch. Values <= 1
	// resolve serially. Ignored when Interactive is set.
	Concurrency int
}

// Outcome names how a sighting was resolved.
type Outcome string

const (
	OutcomeMapped     Outcome = "mapped"     // existing source mapping hit
	OutcomeNameMatch  Outcome = "name_match" // exact normalized-name match
	OutcomeAdopted    Outcome = "adopted"    // id adopted from the external authority
	OutcomeCreated    Outcome = "created"    // new athlete minted
	OutcomeUnresolved Outcome = "unresolved" // no athlete id produced; caller skips the row
)

// Resolution is the result of resolving one sighting. AthleteID is empty
// only when Outcome is OutcomeUnresolved.
type Resolution struct {
	AthleteID string
	Outcome   Outcome
}

// Authority is the external authoritative identity source consulted when
// Options.CheckAuthority is set. LookupByName returns the authoritative id
// for a person, or "" when the authority has no record of them.
type Authority interface {
	LookupByName(ctx context.Context, name string) (string, error)
}

// Resolver maps source sightings onto canonical athletes, creating athlete
// records and source mappings as needed. Matching is exact only: a mapping
// hit or an identical normalized name. Fuzzy similarity is the merger's
// business, never the resolver's.
type Resolver struct {
	store     store.Store
	authority Authority // optional
	intake    Intake    // optional
}

// NewResolver creates a Resolver. authority and intake may be nil; the
// corresponding paths are then skipped.
func NewResolver(st store.Store, authority Authority, intake Intake) *Resolver {
	return &Resolver{store: st, authority: authority, intake: intake}
}

// ResolveOrCreate resolves one sighting, evaluated strictly in order:
// known mapping, exact normalized-name match, then creation. On the
// creation path the external authority (when enabled) is asked first; a
// human is prompted only if the authority does not know the person. The
// ordering means an existing high-confidence binding is never downgraded.
func (r *Resolver) ResolveOrCreate(ctx context.Context, s Sighting, opts Options) (Resolution, error) {
	if s.SourceSystem == "" || s.SourceLocalID == "" {
		return Resolution{}, eris.New("identity: source system and local id are required")
	}
	log := zap.L().With(
		zap.String("source_system", s.SourceSystem),
		zap.String("source_local_id", s.SourceLocalID),
	)

	// Step 1: known mapping. The fast, stable path for every repeat
	// sighting of the same local record.
	athleteID, err := r.store.GetMapping(ctx, s.SourceSystem, s.SourceLocalID)
	if err != nil {
		return Resolution{}, eris.Wrap(err, "identity: mapping lookup")
	}
	if athleteID != "" {
		return Resolution{AthleteID: athleteID, Outcome: OutcomeMapped}, nil
	}

	// Step 2: exact normalized-name match.
	norm := Normalize(s.RawName)
	if norm != "" {
		res, matched, err := r.bindByName(ctx, norm, s)
		if err != nil {
			return Resolution{}, err
		}
		if matched {
			log.Debug("resolved by normalized name", zap.String("athlete_id", res.AthleteID))
			return res, nil
		}
	}

	// Step 3: creation path. The external authority is consulted before any
	// human is prompted: an adopted id means there is nothing to ask about.
	name := s.RawName
	demo := s.Demographics

	var adoptedID string
	if norm != "" && opts.CheckAuthority && r.authority != nil {
		adoptedID, err = r.authority.LookupByName(ctx, DisplayName(name))
		if err != nil {
			return Resolution{}, eris.Wrap(err, "identity: authority lookup")
		}
	}

	if adoptedID == "" && (norm == "" || (opts.Interactive && r.intake != nil)) {
		if !opts.Interactive || r.intake == nil {
			// Nothing to create from and nobody to ask.
			log.Warn("sighting unresolved: empty name in non-interactive run")
			return Resolution{Outcome: OutcomeUnresolved}, nil
		}

		result, err := r.intake.Collect(ctx, IntakeRequest{
			SourceSystem:  s.SourceSystem,
			SourceLocalID: s.SourceLocalID,
			RawName:       s.RawName,
		})
		if eris.Is(err, ErrIntakeCanceled) {
			log.Info("intake canceled; sighting left unresolved")
			return Resolution{Outcome: OutcomeUnresolved}, nil
		}
		if err != nil {
			return Resolution{}, eris.Wrap(err, "identity: intake")
		}

		name = result.Name
		demo = mergeDemographics(demo, result.Demographics)
		norm = Normalize(name)
		if norm == "" {
			return Resolution{Outcome: OutcomeUnresolved}, nil
		}

		// The confirmed name may match an existing athlete.
		res, matched, err := r.bindByName(ctx, norm, Sighting{
			SourceSystem:  s.SourceSystem,
			SourceLocalID: s.SourceLocalID,
			RawName:       name,
			Demographics:  demo,
		})
		if err != nil {
			return Resolution{}, err
		}
		if matched {
			return res, nil
		}

		// The confirmed name may be known to the authority too.
		if opts.CheckAuthority && r.authority != nil {
			adoptedID, err = r.authority.LookupByName(ctx, DisplayName(name))
			if err != nil {
				return Resolution{}, eris.Wrap(err, "identity: authority lookup")
			}
		}
	}

	outcome := OutcomeCreated
	if adoptedID != "" {
		outcome = OutcomeAdopted
	}

	athlete := &model.Athlete{
		ID:             adoptedID,
		DisplayName:    DisplayName(name),
		NormalizedName: norm,
	}
	if adoptedID != "" {
		athlete.AppDBID = &adoptedID
	}
	applyDemographics(athlete, demo)

	err = r.store.CreateAthleteWithMapping(ctx, athlete, s.SourceSystem, s.SourceLocalID)
	if eris.Is(err, store.ErrNormalizedNameTaken) {
		// Constraint race: a concurrent writer created this person first.
		// Re-query and bind to the winner.
		log.Debug("normalized name race lost; binding to winner", zap.String("normalized_name", norm))
		res, matched, bindErr := r.bindByName(ctx, norm, s)
		if bindErr != nil {
			return Resolution{}, bindErr
		}
		if !matched {
			return Resolution{}, eris.Wrap(err, "identity: create athlete (winner vanished)")
		}
		return res, nil
	}
	if eris.Is(err, store.ErrMappingTaken) {
		// Same race on the mapping side.
		athleteID, getErr := r.store.GetMapping(ctx, s.SourceSystem, s.SourceLocalID)
		if getErr != nil {
			return Resolution{}, eris.Wrap(getErr, "identity: mapping re-query")
		}
		return Resolution{AthleteID: athleteID, Outcome: OutcomeMapped}, nil
	}
	if err != nil {
		return Resolution{}, eris.Wrap(err, "identity: create athlete")
	}

	log.Info("created athlete",
		zap.String("athlete_id", athlete.ID),
		zap.String("outcome", string(outcome)),
	)
	return Resolution{AthleteID: athlete.ID, Outcome: outcome}, nil
}

// bindByName looks up an athlete by normalized name and, on a hit, binds the
// sighting's mapping to it and fills any null demographics.
func (r *Resolver) bindByName(ctx context.Context, norm string, s Sighting) (Resolution, bool, error) {
	a, err := r.store.GetAthleteByNormalizedName(ctx, norm)
	if err != nil {
		return Resolution{}, false, eris.Wrap(err, "identity: name lookup")
	}
	if a == nil {
		return Resolution{}, false, nil
	}

	err = r.store.BindMapping(ctx, s.SourceSystem, s.SourceLocalID, a.ID)
	if err != nil && !eris.Is(err, store.ErrMappingTaken) {
		return Resolution{}, false, eris.Wrap(err, "identity: bind mapping")
	}

	if !s.Demographics.Empty() {
		if err := r.store.FillDemographics(ctx, a.ID, s.Demographics); err != nil {
			return Resolution{}, false, eris.Wrap(err, "identity: fill demographics")
		}
	}
	return Resolution{AthleteID: a.ID, Outcome: OutcomeNameMatch}, true, nil
}

// BatchResult summarizes a batch resolution run. Every row is accounted
// for: Resolved + Created + Unmatched == Total. IDs is the in-run cache:
// source_local_id to athlete id for every sighting that resolved.
type BatchResult struct {
	Total     int
	Resolved  int // bound to an existing athlete, cache-hit repeats included
	Created   int // new athletes (minted or adopted)
	Unmatched int // no athlete id produced
	IDs       map[string]string
}

// ResolveBatch resolves a batch of sightings from one source system. Rows
// sharing an unmapped source_local_id are resolved once and reuse the
// result; the returned IDs map is the explicit per-run cache. A store
// failure aborts the batch; unresolved rows do not.
func (r *Resolver) ResolveBatch(ctx context.Context, sightings []Sighting, opts Options) (BatchResult, error) {
	res := BatchResult{Total: len(sightings), IDs: make(map[string]string)}

	// First occurrence wins: later rows with the same local id reuse it.
	index := make(map[string]int)
	var uniq []Sighting
	for _, s := range sightings {
		if _, ok := index[s.SourceLocalID]; !ok {
			index[s.SourceLocalID] = len(uniq)
			uniq = append(uniq, s)
		}
	}

	outcomes := make([]Resolution, len(uniq))
	if opts.Interactive || opts.Concurrency <= 1 {
		for i, s := range uniq {
			out, err := r.ResolveOrCreate(ctx, s, opts)
			if err != nil {
				return res, err
			}
			outcomes[i] = out
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for i, s := range uniq {
			g.Go(func() error {
				out, err := r.ResolveOrCreate(gctx, s, opts)
				if err != nil {
					return err
				}
				outcomes[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return res, err
		}
	}

	// Count every row. A repeat of a local id that minted an athlete is a
	// cache hit, not a second creation, so it counts as resolved.
	seen := make(map[string]bool, len(uniq))
	for _, s := range sightings {
		out := outcomes[index[s.SourceLocalID]]
		first := !seen[s.SourceLocalID]
		seen[s.SourceLocalID] = true
		switch {
		case out.AthleteID == "":
			res.Unmatched++
		case first && (out.Outcome == OutcomeCreated || out.Outcome == OutcomeAdopted):
			res.Created++
			res.IDs[s.SourceLocalID] = out.AthleteID
		default:
			res.Resolved++
			res.IDs[s.SourceLocalID] = out.AthleteID
		}
	}
	return res, nil
}

func applyDemographics(a *model.Athlete, d model.Demographics) {
	a.DateOfBirth = d.DateOfBirth
	a.Gender = d.Gender
	a.HeightCM = d.HeightCM
	a.WeightKG = d.WeightKG
	a.Email = d.Email
	a.Phone = d.Phone
	a.Notes = d.Notes
}

// mergeDemographics fills base's nil fields from extra.
func mergeDemographics(base, extra model.Demographics) model.Demographics {
	if base.DateOfBirth == nil {
		base.DateOfBirth = extra.DateOfBirth
	}
	if base.Gender == nil {
		base.Gender = extra.Gender
	}
	if base.HeightCM == nil {
		base.HeightCM = extra.HeightCM
	}
	if base.WeightKG == nil {
		base.WeightKG = extra.WeightKG
	}
	if base.Email == nil {
		base.Email = extra.Email
	}
	if base.Phone == nil {
		base.Phone = extra.Phone
	}
	if base.Notes == nil {
		base.Notes = extra.Notes
	}
	return base
}
