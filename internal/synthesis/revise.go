package synthesis

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Edit is a partial update of a synthesis. Nil fields are left unchanged.
type Edit struct {
	Summary         *string  `json:"summary,omitempty"`
	Recommendation  *string  `json:"recommendation,omitempty"`
	Rationale       *string  `json:"rationale,omitempty"`
	ConsensusLevel  *string  `json:"consensus_level,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	Risks           []string `json:"risks,omitempty"`
}

// Revise applies edit to the current record and appends a version row with
// the field-level diff. Returns nil when the edit changes nothing.
func (s *Service) Revise(ctx context.Context, id string, edit Edit, userID string) (*model.EvidenceSynthesis, error) {
	current, err := s.store.GetSynthesis(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "synthesis: get")
	}

	next := *current
	var diff []model.FieldChange
	setString := func(field string, dst *string, v *string) {
		if v == nil || *v == *dst {
			return
		}
		diff = append(diff, model.FieldChange{Field: field, Old: *dst, New: *v})
		*dst = *v
	}
	setString("summary", &next.Summary, edit.Summary)
	setString("recommendation", &next.Recommendation, edit.Recommendation)
	setString("rationale", &next.Rationale, edit.Rationale)
	setString("consensus_level", &next.ConsensusLevel, edit.ConsensusLevel)

	if c := edit.ConfidenceScore; c != nil && *c != next.ConfidenceScore {
		score := min(max(*c, 0), 100)
		diff = append(diff, model.FieldChange{Field: "confidence_score", Old: formatScore(next.ConfidenceScore), New: formatScore(score)})
		next.ConfidenceScore = score
		if q := model.QualityForConfidence(score); q != next.EvidenceQuality {
			diff = append(diff, model.FieldChange{Field: "evidence_quality", Old: string(next.EvidenceQuality), New: string(q)})
			next.EvidenceQuality = q
		}
	}
	if edit.Risks != nil && !slices.Equal(edit.Risks, next.Risks) {
		diff = append(diff, model.FieldChange{Field: "risks", Old: strings.Join(next.Risks, "; "), New: strings.Join(edit.Risks, "; ")})
		next.Risks = edit.Risks
	}

	if len(diff) == 0 {
		zap.L().Warn("synthesis: edit changes nothing", zap.String("synthesis_id", id))
		return nil, nil
	}

	history, err := s.store.ListSynthesisVersions(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "synthesis: list versions")
	}

	now := s.now()
	next.Version = current.Version + 1
	next.UpdatedAt = now
	version := &model.SynthesisVersion{
		SynthesisID: id,
		Version:     next.Version,
		Snapshot:    next,
		Diff:        diff,
		EditedBy:    userID,
		CreatedAt:   now,
	}
	if len(history) > 0 {
		version.ParentVersionID = history[len(history)-1].ID
	}

	if err := s.store.ReviseSynthesis(ctx, &next, version); err != nil {
		return nil, eris.Wrap(err, "synthesis: revise")
	}
	zap.L().Info("synthesis revised",
		zap.String("synthesis_id", id),
		zap.Int("version", next.Version),
		zap.Int("changes", len(diff)),
	)
	return &next, nil
}

// History returns the version rows of a synthesis in ascending order.
func (s *Service) History(ctx context.Context, id string) ([]model.SynthesisVersion, error) {
	if _, err := s.store.GetSynthesis(ctx, id); err != nil {
		return nil, eris.Wrap(err, "synthesis: get")
	}
	versions, err := s.store.ListSynthesisVersions(ctx, id)
	return versions, eris.Wrap(err, "synthesis: list versions")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
