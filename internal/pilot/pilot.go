// Package pilot manages time-boxed practice pilots: baseline capture,
// pre-registered success metrics, activation and closure.
package pilot

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

// Default success criteria, in percent improvement.
const (
	DefaultSuccessThreshold    = 15
	DefaultAcceptableThreshold = 5
	DefaultFailureThreshold    = -5
)

// Store is the persistence the manager needs.
type Store interface {
	store.ProposalStore
	store.PilotStore
}

// Options configures a Manager.
type Options struct {
	BaselineConcurrency int
}

// Manager runs the pilot lifecycle.
type Manager struct {
	store   Store
	metrics MetricsSource
	opts    Options
	now     func() time.Time
}

// NewManager creates a Manager.
func NewManager(st Store, metrics MetricsSource, opts Options) *Manager {
	if opts.BaselineConcurrency <= 0 {
		opts.BaselineConcurrency = 4
	}
	return &Manager{store: st, metrics: metrics, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// DefinePilot creates a planned pilot for an approved proposal and captures
// each site's baseline once. The window starts today (UTC).
func (m *Manager) DefinePilot(ctx context.Context, proposalID string, siteIDs []string, durationDays int, userID string) (*model.PracticePilot, error) {
	log := zap.L().With(zap.String("component", "pilot"), zap.String("proposal_id", proposalID))

	sites := dedupe(siteIDs)
	if len(sites) == 0 || durationDays <= 0 {
		log.Warn("pilot needs at least one site and a positive duration",
			zap.Int("sites", len(sites)), zap.Int("duration_days", durationDays))
		return nil, nil
	}

	p, err := m.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, eris.Wrap(err, "pilot: get proposal")
	}
	if p.Status != model.ProposalStatusApproved {
		log.Warn("proposal is not approved", zap.String("status", string(p.Status)))
		return nil, nil
	}

	now := m.now()
	baseline := CaptureMetrics(ctx, m.metrics, sites, now, m.opts.BaselineConcurrency)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	pilot := &model.PracticePilot{
		ProposalID:   proposalID,
		SiteIDs:      sites,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, durationDays),
		DurationDays: durationDays,
		Baseline:     baseline,
		Status:       model.PilotStatusPlanned,
		CreatedBy:    userID,
	}
	if err := m.store.CreatePilot(ctx, pilot); err != nil {
		return nil, eris.Wrap(err, "pilot: create")
	}

	log.Info("pilot defined",
		zap.String("pilot_id", pilot.ID),
		zap.Int("sites", len(sites)),
		zap.Int("baseline_sites", len(baseline)),
	)
	return pilot, nil
}

// LockRequest carries the success criteria to pre-register. Nil thresholds
// and empty strings take the defaults; an explicit zero is kept.
type LockRequest struct {
	PrimaryOutcome      string   `json:"primary_outcome"`
	SuccessThreshold    *float64 `json:"success_threshold"`
	AcceptableThreshold *float64 `json:"acceptable_threshold"`
	FailureThreshold    *float64 `json:"failure_threshold"`
	SecondaryOutcomes   []string `json:"secondary_outcomes,omitempty"`
	MonitoringCadence   string   `json:"monitoring_cadence"`
}

// Metrics resolves the request into complete locked metrics.
func (r LockRequest) Metrics() model.LockedMetrics {
	m := model.LockedMetrics{
		PrimaryOutcome:      r.PrimaryOutcome,
		SuccessThreshold:    DefaultSuccessThreshold,
		AcceptableThreshold: DefaultAcceptableThreshold,
		FailureThreshold:    DefaultFailureThreshold,
		SecondaryOutcomes:   r.SecondaryOutcomes,
		MonitoringCadence:   r.MonitoringCadence,
	}
	if r.SuccessThreshold != nil {
		m.SuccessThreshold = *r.SuccessThreshold
	}
	if r.AcceptableThreshold != nil {
		m.AcceptableThreshold = *r.AcceptableThreshold
	}
	if r.FailureThreshold != nil {
		m.FailureThreshold = *r.FailureThreshold
	}
	if m.PrimaryOutcome == "" {
		m.PrimaryOutcome = model.MetricDaysToRTW
	}
	if m.MonitoringCadence == "" {
		m.MonitoringCadence = "weekly"
	}
	return m
}

// LockSuccessMetrics pre-registers the pilot's success criteria. It succeeds
// at most once per pilot.
func (m *Manager) LockSuccessMetrics(ctx context.Context, pilotID string, req LockRequest, userID string) (bool, error) {
	log := zap.L().With(zap.String("component", "pilot"), zap.String("pilot_id", pilotID))

	p, err := m.store.GetPilot(ctx, pilotID)
	if err != nil {
		return false, eris.Wrap(err, "pilot: get")
	}
	if p.LockedMetrics != nil {
		log.Warn("success metrics already locked", zap.Time("locked_at", p.LockedMetrics.LockedAt))
		return false, nil
	}
	if len(p.Baseline) == 0 {
		log.Warn("pilot has no baseline metrics")
		return false, nil
	}

	metrics := req.Metrics()
	if metrics.SuccessThreshold < metrics.AcceptableThreshold || metrics.AcceptableThreshold < metrics.FailureThreshold {
		log.Warn("thresholds must satisfy success >= acceptable >= failure",
			zap.Float64("success", metrics.SuccessThreshold),
			zap.Float64("acceptable", metrics.AcceptableThreshold),
			zap.Float64("failure", metrics.FailureThreshold),
		)
		return false, nil
	}
	metrics.LockedBy = userID
	metrics.LockedAt = m.now()

	ok, err := m.store.LockPilotMetrics(ctx, pilotID, &metrics)
	if err != nil {
		return false, eris.Wrap(err, "pilot: lock metrics")
	}
	if !ok {
		log.Warn("success metrics locked concurrently or pilot not planned", zap.String("status", string(p.Status)))
		return false, nil
	}
	log.Info("success metrics locked", zap.String("primary_outcome", metrics.PrimaryOutcome), zap.String("user_id", userID))
	return true, nil
}

// StartPilot activates a pilot whose metrics are locked and assigns every
// site.
func (m *Manager) StartPilot(ctx context.Context, pilotID, userID string) (bool, error) {
	log := zap.L().With(zap.String("component", "pilot"), zap.String("pilot_id", pilotID))

	p, err := m.store.GetPilot(ctx, pilotID)
	if err != nil {
		return false, eris.Wrap(err, "pilot: get")
	}
	if p.LockedMetrics == nil {
		log.Warn("cannot start pilot without locked success metrics")
		return false, nil
	}
	if p.Status != model.PilotStatusMetricsLocked {
		log.Warn("pilot cannot be started", zap.String("status", string(p.Status)))
		return false, nil
	}

	assignments := make([]model.SiteAssignment, 0, len(p.SiteIDs))
	for _, siteID := range p.SiteIDs {
		assignments = append(assignments, model.SiteAssignment{SiteID: siteID, Status: model.AssignmentActive})
	}
	ok, err := m.store.StartPilot(ctx, pilotID, m.now(), assignments)
	if err != nil {
		return false, eris.Wrap(err, "pilot: start")
	}
	if !ok {
		log.Warn("pilot started concurrently")
		return false, nil
	}
	log.Info("pilot started", zap.Int("sites", len(assignments)), zap.String("user_id", userID))
	return true, nil
}

// EndPilot closes an active pilot as completed or rolled back. Every site
// assignment is completed either way.
func (m *Manager) EndPilot(ctx context.Context, pilotID string, status model.PilotStatus, userID string) (bool, error) {
	log := zap.L().With(zap.String("component", "pilot"), zap.String("pilot_id", pilotID))

	if status != model.PilotStatusCompleted && status != model.PilotStatusRolledBack {
		log.Warn("invalid terminal status", zap.String("status", string(status)))
		return false, nil
	}
	p, err := m.store.GetPilot(ctx, pilotID)
	if err != nil {
		return false, eris.Wrap(err, "pilot: get")
	}
	if p.Status != model.PilotStatusActive {
		log.Warn("pilot is not active", zap.String("status", string(p.Status)))
		return false, nil
	}

	ok, err := m.store.EndPilot(ctx, pilotID, status, m.now())
	if err != nil {
		return false, eris.Wrap(err, "pilot: end")
	}
	if !ok {
		log.Warn("pilot ended concurrently")
		return false, nil
	}
	log.Info("pilot ended", zap.String("status", string(status)), zap.String("user_id", userID))
	return true, nil
}

// OverdueReport describes an active pilot past its end date.
type OverdueReport struct {
	PilotID     string    `json:"pilot_id"`
	ProposalID  string    `json:"proposal_id"`
	SiteIDs     []string  `json:"site_ids"`
	EndDate     time.Time `json:"end_date"`
	DaysOverdue int       `json:"days_overdue"`
}

// CheckPilotCompletion lists active pilots whose end date is before now. It
// changes nothing.
func (m *Manager) CheckPilotCompletion(ctx context.Context, now time.Time) ([]OverdueReport, error) {
	active, err := m.store.ListPilots(ctx, model.PilotStatusActive)
	if err != nil {
		return nil, eris.Wrap(err, "pilot: list active")
	}

	reports := []OverdueReport{}
	for _, p := range active {
		if !p.EndDate.Before(now) {
			continue
		}
		reports = append(reports, OverdueReport{
			PilotID:     p.ID,
			ProposalID:  p.ProposalID,
			SiteIDs:     p.SiteIDs,
			EndDate:     p.EndDate,
			DaysOverdue: int(now.Sub(p.EndDate) / (24 * time.Hour)),
		})
	}
	if len(reports) > 0 {
		zap.L().Info("overdue pilots found", zap.String("component", "pilot"), zap.Int("count", len(reports)))
	}
	return reports, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
