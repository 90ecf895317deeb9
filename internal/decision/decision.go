// Package decision enforces rollout, rollback or hold decisions for finished
// pilots and keeps the organization's learning records.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

// Thresholds used when a pilot has no locked metrics.
const (
	DefaultSuccessThreshold    = 10
	DefaultAcceptableThreshold = 5
	DefaultFailureThreshold    = -5
)

// Store is the persistence the engine needs.
type Store interface {
	store.PilotStore
	store.AttributionStore
	store.DecisionStore
}

// Thresholds are the improvement bounds a decision is judged against.
type Thresholds struct {
	Success    float64 `json:"success"`
	Acceptable float64 `json:"acceptable"`
	Failure    float64 `json:"failure"`
}

// Recommendation is the suggested decision for an attribution.
type Recommendation struct {
	AttributionID string         `json:"attribution_id"`
	PilotID       string         `json:"pilot_id"`
	Decision      model.Decision `json:"decision"`
	Rationale     string         `json:"rationale"`
	Improvement   float64        `json:"improvement"`
	Significant   bool           `json:"significant"`
	Thresholds    Thresholds     `json:"thresholds"`
}

// Engine records and executes decisions.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(st Store) *Engine {
	return &Engine{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// ThresholdsFor returns the pilot's locked thresholds, or the defaults when
// nothing was locked. Locked values are used as is, including zero.
func ThresholdsFor(p *model.PracticePilot) Thresholds {
	if p == nil || p.LockedMetrics == nil {
		return Thresholds{
			Success:    DefaultSuccessThreshold,
			Acceptable: DefaultAcceptableThreshold,
			Failure:    DefaultFailureThreshold,
		}
	}
	return Thresholds{
		Success:    p.LockedMetrics.SuccessThreshold,
		Acceptable: p.LockedMetrics.AcceptableThreshold,
		Failure:    p.LockedMetrics.FailureThreshold,
	}
}

// Recommend applies the thresholds in order: success, acceptable, failure,
// then rollback.
func Recommend(improvement float64, significant bool, t Thresholds) (model.Decision, string) {
	switch {
	case improvement >= t.Success && significant:
		return model.DecisionRollout, fmt.Sprintf(
			"Improvement of %.1f%% meets the %.1f%% success threshold and is statistically significant.",
			improvement, t.Success)
	case improvement >= t.Success:
		return model.DecisionRollout, fmt.Sprintf(
			"Improvement of %.1f%% meets the %.1f%% success threshold; clinically significant but not statistically significant.",
			improvement, t.Success)
	case improvement >= t.Acceptable:
		return model.DecisionRollout, fmt.Sprintf(
			"Improvement of %.1f%% meets the %.1f%% acceptable threshold; roll out with caution and close monitoring.",
			improvement, t.Acceptable)
	case improvement >= t.Failure:
		return model.DecisionHold, fmt.Sprintf(
			"Improvement of %.1f%% is neutral (above the %.1f%% failure threshold); hold and gather more data.",
			improvement, t.Failure)
	default:
		return model.DecisionRollback, fmt.Sprintf(
			"Improvement of %.1f%% is below the %.1f%% failure threshold; roll back.",
			improvement, t.Failure)
	}
}

// EvaluatePilotOutcome recommends a decision for an attribution using the
// pilot's locked thresholds.
func (e *Engine) EvaluatePilotOutcome(ctx context.Context, attributionID string) (*Recommendation, error) {
	a, err := e.store.GetAttribution(ctx, attributionID)
	if err != nil {
		return nil, eris.Wrap(err, "decision: get attribution")
	}
	p, err := e.store.GetPilot(ctx, a.PilotID)
	if err != nil {
		return nil, eris.Wrap(err, "decision: get pilot")
	}

	t := ThresholdsFor(p)
	d, rationale := Recommend(a.OverallImprovement, a.StatisticallySignificant, t)
	zap.L().Info("pilot outcome evaluated",
		zap.String("component", "decision"),
		zap.String("attribution_id", attributionID),
		zap.String("decision", string(d)),
		zap.Float64("improvement", a.OverallImprovement),
	)
	return &Recommendation{
		AttributionID: attributionID,
		PilotID:       a.PilotID,
		Decision:      d,
		Rationale:     rationale,
		Improvement:   a.OverallImprovement,
		Significant:   a.StatisticallySignificant,
		Thresholds:    t,
	}, nil
}

// RecordDecision persists a decision with its timeline.
func (e *Engine) RecordDecision(ctx context.Context, pilotID, attributionID string, decision model.Decision, userID, rationale string) (*model.RolloutDecision, error) {
	log := zap.L().With(zap.String("component", "decision"), zap.String("pilot_id", pilotID))

	if !decision.Valid() {
		log.Warn("invalid decision", zap.String("decision", string(decision)))
		return nil, nil
	}
	p, err := e.store.GetPilot(ctx, pilotID)
	if err != nil {
		return nil, eris.Wrap(err, "decision: get pilot")
	}
	a, err := e.store.GetAttribution(ctx, attributionID)
	if err != nil {
		return nil, eris.Wrap(err, "decision: get attribution")
	}
	if a.PilotID != pilotID {
		log.Warn("attribution belongs to another pilot", zap.String("attribution_id", attributionID))
		return nil, nil
	}

	d := &model.RolloutDecision{
		PilotID:       pilotID,
		AttributionID: attributionID,
		Decision:      decision,
		Rationale:     rationale,
		Timeline:      BuildTimeline(decision, p.SiteIDs),
		DecidedBy:     userID,
		DecidedAt:     e.now(),
	}
	if err := e.store.CreateDecision(ctx, d); err != nil {
		return nil, eris.Wrap(err, "decision: create")
	}
	log.Info("decision recorded",
		zap.String("decision_id", d.ID),
		zap.String("decision", string(decision)),
		zap.Int("phases", len(d.Timeline)),
		zap.Int("total_days", TotalDays(d.Timeline)),
	)
	return d, nil
}

// InitializeRollout materializes the per-site plans of a rollout decision.
func (e *Engine) InitializeRollout(ctx context.Context, decisionID string) (int, error) {
	return e.initialize(ctx, decisionID, model.DecisionRollout, model.PlanTypeRollout)
}

// InitializeRollback materializes the per-site plans of a rollback decision.
func (e *Engine) InitializeRollback(ctx context.Context, decisionID string) (int, error) {
	return e.initialize(ctx, decisionID, model.DecisionRollback, model.PlanTypeRollback)
}

func (e *Engine) initialize(ctx context.Context, decisionID string, want model.Decision, planType model.PlanType) (int, error) {
	log := zap.L().With(zap.String("component", "decision"), zap.String("decision_id", decisionID))

	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return 0, eris.Wrap(err, "decision: get")
	}
	if d.Decision != want {
		log.Warn("decision type does not match plan", zap.String("decision", string(d.Decision)), zap.String("plan_type", string(planType)))
		return 0, nil
	}
	existing, err := e.store.ListSitePlans(ctx, decisionID, planType)
	if err != nil {
		return 0, eris.Wrap(err, "decision: list plans")
	}
	if len(existing) > 0 {
		log.Warn("plans already initialized", zap.Int("plans", len(existing)))
		return 0, nil
	}

	plans := Plans(d, planType)
	n, err := e.store.InsertSitePlans(ctx, plans)
	if err != nil {
		return 0, eris.Wrap(err, "decision: insert plans")
	}
	log.Info("site plans initialized", zap.String("plan_type", string(planType)), zap.Int64("plans", n))
	return int(n), nil
}

// Plans expands a decision's timeline into one scheduled plan per site per
// phase, starting offset days after the decision.
func Plans(d *model.RolloutDecision, planType model.PlanType) []model.SitePlan {
	var plans []model.SitePlan
	for _, phase := range d.Timeline {
		start := d.DecidedAt.AddDate(0, 0, phase.OffsetDays)
		for _, siteID := range phase.SiteIDs {
			plans = append(plans, model.SitePlan{
				DecisionID:     d.ID,
				SiteID:         siteID,
				PlanType:       planType,
				Phase:          phase.Phase,
				PhaseName:      phase.Name,
				ScheduledStart: start,
				Status:         model.PlanStatusScheduled,
			})
		}
	}
	return plans
}

// ExecutePhaseRollout moves due, scheduled rollout plans of a phase to
// implementing. Phase dependencies are not checked.
func (e *Engine) ExecutePhaseRollout(ctx context.Context, phase int, now time.Time) (int64, error) {
	log := zap.L().With(zap.String("component", "decision"), zap.Int("phase", phase))
	if phase < 1 || phase > 3 {
		log.Warn("phase out of range")
		return 0, nil
	}
	n, err := e.store.ActivatePhasePlans(ctx, phase, now)
	if err != nil {
		return 0, eris.Wrap(err, "decision: execute phase")
	}
	if n > 0 {
		log.Info("rollout phase executed", zap.Int64("plans", n))
	}
	return n, nil
}

// ExecuteRollback activates every scheduled rollback plan of a decision.
func (e *Engine) ExecuteRollback(ctx context.Context, decisionID string, now time.Time) (int64, error) {
	log := zap.L().With(zap.String("component", "decision"), zap.String("decision_id", decisionID))

	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return 0, eris.Wrap(err, "decision: get")
	}
	if d.Decision != model.DecisionRollback {
		log.Warn("decision is not a rollback", zap.String("decision", string(d.Decision)))
		return 0, nil
	}
	n, err := e.store.ActivateRollbackPlans(ctx, decisionID, now)
	if err != nil {
		return 0, eris.Wrap(err, "decision: execute rollback")
	}
	log.Info("rollback executed", zap.Int64("plans", n))
	return n, nil
}
