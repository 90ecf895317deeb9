package decision

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
)

var decisionLessons = map[model.Decision]string{
	model.DecisionRollout:  "Practice change improved outcomes across pilot sites and was approved for phased rollout.",
	model.DecisionRollback: "Practice change did not achieve expected outcomes and was reverted at all pilot sites.",
	model.DecisionHold:     "Pilot results were inconclusive; the practice change is on hold pending more data.",
}

// Lessons derives the lesson list for a decision and its findings.
func Lessons(d model.Decision, f model.Findings) []string {
	lessons := []string{decisionLessons[d]}
	for _, b := range f.UnexpectedBenefits {
		if b = strings.TrimSpace(b); b != "" {
			lessons = append(lessons, "Unexpected benefit: "+b)
		}
	}
	for _, b := range f.ImplementationBarriers {
		if b = strings.TrimSpace(b); b != "" {
			lessons = append(lessons, "Implementation barrier: "+b)
		}
	}
	return lessons
}

// Contexts tags where a learning applies.
func Contexts(f model.Findings) []string {
	var out []string
	if v := strings.TrimSpace(f.ClinicSize); v != "" {
		out = append(out, "clinic_size:"+v)
	}
	if v := strings.TrimSpace(f.StaffExperience); v != "" {
		out = append(out, "staff_experience:"+v)
	}
	return append(out, "multi_site_pilot", "outcome_attributed")
}

// StoreLearning writes the decision's learning record. Only the first call
// for a decision writes; later calls return false.
func (e *Engine) StoreLearning(ctx context.Context, decisionID string, findings model.Findings, userID string) (*model.LearningRecord, bool, error) {
	log := zap.L().With(zap.String("component", "decision"), zap.String("decision_id", decisionID))

	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, false, eris.Wrap(err, "decision: get")
	}
	l := &model.LearningRecord{
		DecisionID: decisionID,
		Decision:   d.Decision,
		Findings:   findings,
		Lessons:    Lessons(d.Decision, findings),
		Contexts:   Contexts(findings),
		Searchable: true,
		CreatedBy:  userID,
		CreatedAt:  e.now(),
	}
	stored, err := e.store.StoreLearning(ctx, l)
	if err != nil {
		return nil, false, eris.Wrap(err, "decision: store learning")
	}
	if !stored {
		log.Warn("learning already stored")
		return nil, false, nil
	}
	log.Info("learning stored", zap.String("learning_id", l.ID), zap.Int("lessons", len(l.Lessons)))
	return l, true, nil
}

// SearchLearnings finds searchable learning records. Store errors are logged
// and yield an empty list.
func (e *Engine) SearchLearnings(ctx context.Context, query string, limit int) []model.LearningRecord {
	out, err := e.store.SearchLearnings(ctx, query, limit)
	if err != nil {
		zap.L().Warn("decision: search learnings", zap.Error(err))
		return []model.LearningRecord{}
	}
	if out == nil {
		return []model.LearningRecord{}
	}
	return out
}
