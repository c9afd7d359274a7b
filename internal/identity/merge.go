package identity

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/model"
	"github.com/fullcount-labs/athlete-cli/internal/store"
)

// MergeMode selects what FindAndMerge does with candidate pairs.
type MergeMode string

const (
	// ModeReview reports candidates without merging anything.
	ModeReview MergeMode = "review"
	// ModeAuto merges every candidate above the threshold.
	ModeAuto MergeMode = "auto"
	// ModeConfirm asks the Confirm callback per pair.
	ModeConfirm MergeMode = "confirm"
)

// CandidatePair is a pair of athletes whose normalized names score at or
// above the merge threshold.
type CandidatePair struct {
	A, B  model.Athlete
	Score float64
}

// MergeReport summarizes a dedupe run.
type MergeReport struct {
	Candidates int
	Merged     int
	Skipped    int
	Failed     int
}

// Merger finds likely-duplicate athletes by fuzzy name similarity and folds
// them together. Fuzzy matching lives here and only here; resolution never
// creates bindings from a fuzzy score.
type Merger struct {
	store     store.Store
	threshold float64

	// Confirm decides a pair in ModeConfirm. Returning false skips the
	// pair; an error aborts the run. Required for ModeConfirm.
	Confirm func(ctx context.Context, pair CandidatePair) (bool, error)
}

// NewMerger creates a Merger with the given similarity threshold in (0, 1].
func NewMerger(st store.Store, threshold float64) *Merger {
	return &Merger{store: st, threshold: threshold}
}

// FindDuplicates scores athlete pairs and returns those at or above the
// threshold, highest score first. candidateIDs restricts the scan to those
// athletes; nil scans everyone. Pairs are only compared within a bucket
// keyed by the first letter of the normalized name, which keeps the
// comparison count tractable; a duplicate whose variants disagree on the
// first letter is out of scope for automated detection.
func (m *Merger) FindDuplicates(ctx context.Context, candidateIDs []string) ([]CandidatePair, error) {
	athletes, err := m.store.ListAthletes(ctx, candidateIDs)
	if err != nil {
		return nil, eris.Wrap(err, "identity: list athletes for dedupe")
	}

	buckets := make(map[string][]model.Athlete)
	for _, a := range athletes {
		if a.NormalizedName == "" {
			continue
		}
		key := a.NormalizedName[:1]
		buckets[key] = append(buckets[key], a)
	}

	var pairs []CandidatePair
	for _, bucket := range buckets {
		// Stable bucket order so runs over the same data produce the same
		// pair ordering.
		sort.Slice(bucket, func(i, j int) bool {
			return bucket[i].NormalizedName < bucket[j].NormalizedName
		})
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				score := Similarity(bucket[i].NormalizedName, bucket[j].NormalizedName)
				if score >= m.threshold {
					pairs = append(pairs, CandidatePair{A: bucket[i], B: bucket[j], Score: score})
				}
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		if pairs[i].A.NormalizedName != pairs[j].A.NormalizedName {
			return pairs[i].A.NormalizedName < pairs[j].A.NormalizedName
		}
		return pairs[i].B.NormalizedName < pairs[j].B.NormalizedName
	})
	return pairs, nil
}

// Survivor orders a pair into (survivor, absorbed). An athlete bound to the
// external authority always survives; otherwise the earlier-created record
// does, with id order breaking exact ties. Deterministic regardless of
// which order the pair arrives in.
func Survivor(a, b model.Athlete) (survivor, absorbed model.Athlete) {
	switch {
	case a.AppDBID != nil && b.AppDBID == nil:
		return a, b
	case b.AppDBID != nil && a.AppDBID == nil:
		return b, a
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	}
	if strings.Compare(a.ID, b.ID) <= 0 {
		return a, b
	}
	return b, a
}

// FindAndMerge detects duplicate pairs among candidateIDs (nil means all
// athletes) and merges them per mode. A pair where both records are bound
// to distinct authority ids is never merged automatically. One pair failing
// to merge does not stop the rest; the failure count and logs carry the
// details.
func (m *Merger) FindAndMerge(ctx context.Context, candidateIDs []string, mode MergeMode) (MergeReport, error) {
	if mode == ModeConfirm && m.Confirm == nil {
		return MergeReport{}, eris.New("identity: confirm mode requires a Confirm callback")
	}

	pairs, err := m.FindDuplicates(ctx, candidateIDs)
	if err != nil {
		return MergeReport{}, err
	}
	report := MergeReport{Candidates: len(pairs)}
	log := zap.L()

	// An athlete can appear in several pairs. Once absorbed it must not be
	// merged again.
	gone := make(map[string]bool)

	for _, pair := range pairs {
		if gone[pair.A.ID] || gone[pair.B.ID] {
			report.Skipped++
			continue
		}

		if pair.A.AppDBID != nil && pair.B.AppDBID != nil && *pair.A.AppDBID != *pair.B.AppDBID {
			log.Warn("skipping pair bound to distinct authority ids",
				zap.String("a", pair.A.ID),
				zap.String("b", pair.B.ID),
				zap.Float64("score", pair.Score),
			)
			report.Skipped++
			continue
		}

		switch mode {
		case ModeReview:
			log.Info("duplicate candidate",
				zap.String("a", pair.A.DisplayName),
				zap.String("b", pair.B.DisplayName),
				zap.Float64("score", pair.Score),
			)
			report.Skipped++
			continue
		case ModeConfirm:
			ok, err := m.Confirm(ctx, pair)
			if err != nil {
				return report, eris.Wrap(err, "identity: merge confirmation")
			}
			if !ok {
				report.Skipped++
				continue
			}
		}

		survivor, absorbed := Survivor(pair.A, pair.B)
		if err := m.store.MergeAthletes(ctx, survivor.ID, absorbed.ID); err != nil {
			log.Error("merge failed",
				zap.String("survivor", survivor.ID),
				zap.String("absorbed", absorbed.ID),
				zap.Error(err),
			)
			report.Failed++
			continue
		}
		gone[absorbed.ID] = true
		report.Merged++
		log.Info("merged athletes",
			zap.String("survivor", survivor.ID),
			zap.String("absorbed", absorbed.ID),
			zap.Float64("score", pair.Score),
		)
	}
	return report, nil
}
