// Package digest builds periodic evidence digests, publishes them and raises
// actionable flags for high-confidence themes.
package digest

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

// Store is the persistence the generator needs.
type Store interface {
	store.PaperStore
	store.SynthesisStore
	store.DigestStore
}

// Options configures digest generation.
type Options struct {
	Period              string
	ActionableThreshold float64
	MajorThemeThreshold float64
}

// Generator creates, publishes and compares digests.
type Generator struct {
	store Store
	opts  Options
	now   func() time.Time
}

// NewGenerator creates a Generator with defaults for unset options.
func NewGenerator(st Store, opts Options) *Generator {
	if opts.Period == "" {
		opts.Period = PeriodWeekly
	}
	if opts.ActionableThreshold == 0 {
		opts.ActionableThreshold = HighConfidence
	}
	if opts.MajorThemeThreshold == 0 {
		opts.MajorThemeThreshold = 75
	}
	return &Generator{store: st, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// GenerateDigest builds the draft digest for the period containing now. When
// the period already has a digest it is returned with created=false.
func (g *Generator) GenerateDigest(ctx context.Context, now time.Time, userID string) (*model.EvidenceDigest, bool, error) {
	log := zap.L().With(zap.String("component", "digest"))

	period, err := PeriodFor(now, g.opts.Period)
	if err != nil {
		return nil, false, err
	}

	existing, err := g.store.GetDigestByPeriod(ctx, period.Key)
	switch {
	case err == nil:
		log.Info("digest already exists for period", zap.String("period", period.Key))
		return existing, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, eris.Wrap(err, "digest: lookup period")
	}

	syntheses, err := g.store.ListPublishedSyntheses(ctx, period.Start, period.End)
	if err != nil {
		return nil, false, eris.Wrap(err, "digest: list syntheses")
	}
	papers, err := g.store.CountPapers(ctx, period.Start, period.End)
	if err != nil {
		return nil, false, eris.Wrap(err, "digest: count papers")
	}

	buckets := BucketThemes(syntheses)
	high, moderate := CountBands(buckets)
	d := &model.EvidenceDigest{
		PeriodKey:                 period.Key,
		PeriodStart:               period.Start,
		PeriodEnd:                 period.End,
		Status:                    model.DigestStatusDraft,
		HighConfidenceChanges:     high,
		ModerateConfidenceChanges: moderate,
		PapersReviewed:            papers,
		SynthesisCount:            len(syntheses),
		Themes:                    buckets,
		MajorThemes:               MajorThemes(buckets, g.opts.MajorThemeThreshold),
		CreatedBy:                 userID,
		CreatedAt:                 g.now(),
	}

	created, err := g.store.CreateDigest(ctx, d)
	if err != nil {
		return nil, false, eris.Wrap(err, "digest: create")
	}
	if !created {
		log.Info("digest created concurrently for period", zap.String("period", period.Key))
		existing, err := g.store.GetDigestByPeriod(ctx, period.Key)
		return existing, false, eris.Wrap(err, "digest: lookup period")
	}

	log.Info("digest generated",
		zap.String("digest_id", d.ID),
		zap.String("period", d.PeriodKey),
		zap.Int("themes", len(buckets)),
		zap.Int("high", high),
		zap.Int("moderate", moderate),
	)
	return d, true, nil
}

// PublishDigest publishes a draft digest. When it has at least one
// high-confidence theme, every theme at or above the actionable threshold
// raises an actionable flag. Returns false when the digest is not a draft.
func (g *Generator) PublishDigest(ctx context.Context, digestID, userID string) (bool, []model.EvidenceFlag, error) {
	log := zap.L().With(zap.String("component", "digest"), zap.String("digest_id", digestID))

	d, err := g.store.GetDigest(ctx, digestID)
	if err != nil {
		return false, nil, eris.Wrap(err, "digest: get")
	}
	if d.Status != model.DigestStatusDraft {
		log.Warn("digest is not a draft", zap.String("status", string(d.Status)))
		return false, nil, nil
	}

	now := g.now()
	var flags []model.EvidenceFlag
	if d.HighConfidenceChanges >= 1 {
		for _, b := range d.Themes {
			if b.Confidence < g.opts.ActionableThreshold {
				continue
			}
			flags = append(flags, model.EvidenceFlag{
				DigestID:        digestID,
				Theme:           b.Theme,
				ConfidenceScore: b.Confidence,
				State:           model.FlagStateActionable,
				CreatedAt:       now,
			})
		}
	}

	ok, err := g.store.PublishDigest(ctx, digestID, userID, now, flags)
	if err != nil {
		return false, nil, eris.Wrap(err, "digest: publish")
	}
	if !ok {
		log.Warn("digest was published concurrently")
		return false, nil, nil
	}
	if len(flags) == 0 {
		log.Info("digest published without actionable themes")
		return true, nil, nil
	}
	log.Info("digest published", zap.Int("flags", len(flags)))
	return true, flags, nil
}

// ChangeComparison compares a digest with the latest published digest of an
// earlier period.
func (g *Generator) ChangeComparison(ctx context.Context, digestID string) (*model.DigestComparison, error) {
	cur, err := g.store.GetDigest(ctx, digestID)
	if err != nil {
		return nil, eris.Wrap(err, "digest: get")
	}
	prev, err := g.store.PreviousPublishedDigest(ctx, cur.PeriodKey)
	if err != nil {
		return nil, eris.Wrap(err, "digest: previous published")
	}
	return Compare(cur, prev), nil
}

// Compare computes deltas of cur against prev. A nil prev makes every theme
// new and every delta equal to the current value.
func Compare(cur, prev *model.EvidenceDigest) *model.DigestComparison {
	cmp := &model.DigestComparison{
		CurrentID:        cur.ID,
		CurrentPeriod:    cur.PeriodKey,
		SynthesisDelta:   cur.SynthesisCount,
		PapersDelta:      cur.PapersReviewed,
		HighDelta:        cur.HighConfidenceChanges,
		ModerateDelta:    cur.ModerateConfidenceChanges,
		NewThemes:        []string{},
		PersistentThemes: []string{},
	}

	previous := make(map[string]bool)
	if prev != nil {
		cmp.PreviousID = prev.ID
		cmp.PreviousPeriod = prev.PeriodKey
		cmp.SynthesisDelta -= prev.SynthesisCount
		cmp.PapersDelta -= prev.PapersReviewed
		cmp.HighDelta -= prev.HighConfidenceChanges
		cmp.ModerateDelta -= prev.ModerateConfidenceChanges
		for _, b := range prev.Themes {
			previous[themeKey(b.Theme)] = true
		}
	}

	for _, b := range cur.Themes {
		if previous[themeKey(b.Theme)] {
			cmp.PersistentThemes = append(cmp.PersistentThemes, b.Theme)
		} else {
			cmp.NewThemes = append(cmp.NewThemes, b.Theme)
		}
	}
	return cmp
}
