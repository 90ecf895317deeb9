// Package contradiction finds pairs of comparable papers whose primary
// outcomes disagree and tracks their manual resolution.
package contradiction

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/rules"
	"github.com/sells-group/evidence-cli/internal/store"
)

// Defaults for detected outcome conflicts.
const (
	DefaultConfidence     = 75
	DefaultClinicalImpact = "medium"
)

// Store is the persistence the detector needs.
type Store interface {
	store.PaperStore
	store.ContradictionStore
}

// Detector records and resolves contradictions.
type Detector struct {
	store Store
	now   func() time.Time
}

// NewDetector creates a Detector.
func NewDetector(st Store) *Detector {
	return &Detector{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// DetectContradictions compares every unordered pair of the given papers.
// Pairs with the same study type and different non-empty primary outcomes
// are recorded once. Unknown paper IDs are skipped.
func (d *Detector) DetectContradictions(ctx context.Context, paperIDs []string, userID string) ([]model.EvidenceContradiction, error) {
	log := zap.L().With(zap.String("component", "contradiction"))

	papers := make([]*model.ResearchPaper, 0, len(paperIDs))
	seen := make(map[string]bool, len(paperIDs))
	for _, id := range paperIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, err := d.store.GetPaper(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("paper not found, skipping", zap.String("paper_id", id))
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "contradiction: get paper")
		}
		papers = append(papers, p)
	}

	var found []model.EvidenceContradiction
	for i := 0; i < len(papers); i++ {
		for j := i + 1; j < len(papers); j++ {
			a, b := papers[i], papers[j]
			if !Conflicts(a, b) {
				continue
			}
			exists, err := d.store.ContradictionExists(ctx, a.ID, b.ID)
			if err != nil {
				return found, eris.Wrap(err, "contradiction: check existing")
			}
			if exists {
				continue
			}
			c := model.EvidenceContradiction{
				PaperAID:       a.ID,
				PaperBID:       b.ID,
				Type:           model.ContradictionTypeOutcomeConflict,
				Confidence:     DefaultConfidence,
				ClinicalImpact: DefaultClinicalImpact,
				Status:         model.ContradictionUnresolved,
				DetectedBy:     userID,
			}
			if err := d.store.CreateContradiction(ctx, &c); err != nil {
				return found, eris.Wrap(err, "contradiction: create")
			}
			found = append(found, c)
		}
	}

	log.Info("contradiction detection finished",
		zap.Int("papers", len(papers)),
		zap.Int("new_contradictions", len(found)),
	)
	return found, nil
}

// Conflicts reports whether two papers share a study type but report
// different primary outcomes.
func Conflicts(a, b *model.ResearchPaper) bool {
	typeA, typeB := rules.Normalize(a.StudyType), rules.Normalize(b.StudyType)
	outA, outB := rules.Normalize(a.PrimaryOutcome), rules.Normalize(b.PrimaryOutcome)
	if typeA == "" || typeA != typeB {
		return false
	}
	return outA != "" && outB != "" && outA != outB
}

// UpdateContradictionStatus sets a new status. Resolving statuses stamp the
// resolver and time. Returns false for an invalid status.
func (d *Detector) UpdateContradictionStatus(ctx context.Context, id string, status model.ContradictionStatus, notes, userID string) (bool, error) {
	log := zap.L().With(zap.String("component", "contradiction"), zap.String("contradiction_id", id))

	if !status.Valid() {
		log.Warn("invalid contradiction status", zap.String("status", string(status)))
		return false, nil
	}
	if _, err := d.store.GetContradiction(ctx, id); err != nil {
		return false, eris.Wrap(err, "contradiction: get")
	}

	var resolvedBy string
	var resolvedAt *time.Time
	if status.IsResolved() {
		now := d.now()
		resolvedAt = &now
		resolvedBy = userID
	}
	ok, err := d.store.UpdateContradictionStatus(ctx, id, status, notes, resolvedBy, resolvedAt)
	if err != nil {
		return false, eris.Wrap(err, "contradiction: update status")
	}
	if ok {
		log.Info("contradiction status updated", zap.String("status", string(status)), zap.String("user_id", userID))
	}
	return ok, nil
}

// ListUnresolved returns unresolved contradictions. Store errors are logged
// and yield an empty list.
func (d *Detector) ListUnresolved(ctx context.Context) []model.EvidenceContradiction {
	out, err := d.store.ListContradictions(ctx, model.ContradictionUnresolved)
	if err != nil {
		zap.L().Warn("contradiction: list unresolved", zap.Error(err))
		return []model.EvidenceContradiction{}
	}
	if out == nil {
		return []model.EvidenceContradiction{}
	}
	return out
}
