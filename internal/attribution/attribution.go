// Package attribution measures a pilot's effect by comparing each site's
// baseline with its current metrics.
package attribution

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/pilot"
	"github.com/sells-group/evidence-cli/internal/store"
)

// Store is the persistence the engine needs.
type Store interface {
	store.PilotStore
	store.AttributionStore
}

// Engine computes and finalizes outcome attributions.
type Engine struct {
	store       Store
	metrics     pilot.MetricsSource
	concurrency int
	now         func() time.Time
}

// NewEngine creates an Engine. Post metrics are read with up to concurrency
// sites in flight.
func NewEngine(st Store, metrics pilot.MetricsSource, concurrency int) *Engine {
	return &Engine{store: st, metrics: metrics, concurrency: concurrency, now: func() time.Time { return time.Now().UTC() }}
}

// AttributeOutcomes records a preliminary attribution for a pilot using its
// stored baseline as pre and freshly read site metrics as post.
func (e *Engine) AttributeOutcomes(ctx context.Context, pilotID, evidenceID, sopVersion, userID string) (*model.OutcomeAttribution, error) {
	log := zap.L().With(zap.String("component", "attribution"), zap.String("pilot_id", pilotID))

	p, err := e.store.GetPilot(ctx, pilotID)
	if err != nil {
		return nil, eris.Wrap(err, "attribution: get pilot")
	}
	if len(p.Baseline) == 0 {
		log.Warn("pilot has no baseline metrics")
		return nil, nil
	}

	now := e.now()
	post := pilot.CaptureMetrics(ctx, e.metrics, p.SiteIDs, now, e.concurrency)
	res := Compute(p.Baseline, post)

	windowStart := p.StartDate
	if p.StartedAt != nil {
		windowStart = *p.StartedAt
	}
	a := &model.OutcomeAttribution{
		PilotID:                  pilotID,
		EvidenceID:               evidenceID,
		SOPVersion:               sopVersion,
		WindowStart:              windowStart,
		WindowEnd:                now,
		PreMetrics:               p.Baseline,
		PostMetrics:              post,
		SiteImprovements:         res.SiteImprovements,
		MetricImprovements:       res.MetricImprovements,
		OverallImprovement:       res.Overall,
		StatisticallySignificant: res.Significant,
		ConfidenceInterval:       res.Interval,
		Status:                   model.AttributionPreliminary,
		CreatedBy:                userID,
		CreatedAt:                now,
	}
	if err := e.store.CreateAttribution(ctx, a); err != nil {
		return nil, eris.Wrap(err, "attribution: create")
	}

	log.Info("outcomes attributed",
		zap.String("attribution_id", a.ID),
		zap.Int("sites_measured", len(post)),
		zap.Float64("overall_improvement", a.OverallImprovement),
		zap.Bool("significant", a.StatisticallySignificant),
	)
	return a, nil
}

// FinalizeAttribution moves a preliminary attribution to final.
func (e *Engine) FinalizeAttribution(ctx context.Context, id, userID string) (bool, error) {
	log := zap.L().With(zap.String("component", "attribution"), zap.String("attribution_id", id))

	a, err := e.store.GetAttribution(ctx, id)
	if err != nil {
		return false, eris.Wrap(err, "attribution: get")
	}
	if a.Status != model.AttributionPreliminary {
		log.Warn("attribution is already final")
		return false, nil
	}
	ok, err := e.store.FinalizeAttribution(ctx, id, userID, e.now())
	if err != nil {
		return false, eris.Wrap(err, "attribution: finalize")
	}
	if !ok {
		log.Warn("attribution finalized concurrently")
		return false, nil
	}
	log.Info("attribution finalized", zap.String("user_id", userID))
	return true, nil
}
