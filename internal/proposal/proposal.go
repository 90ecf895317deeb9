// Package proposal turns actionable evidence flags into practice change
// proposals and runs them through CCO review.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

// Store is the persistence the generator needs.
type Store interface {
	store.DigestStore
	store.ProposalStore
}

// Generator creates and routes proposals.
type Generator struct {
	store Store
	now   func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(st Store) *Generator {
	return &Generator{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// GenerateFromFlag builds a proposal from an actionable flag and marks the
// flag processed. A flag that was already processed yields nil.
func (g *Generator) GenerateFromFlag(ctx context.Context, flagID, userID string) (*model.PracticeTranslation, error) {
	log := zap.L().With(zap.String("component", "proposal"), zap.String("flag_id", flagID))

	flag, err := g.store.GetFlag(ctx, flagID)
	if err != nil {
		return nil, eris.Wrap(err, "proposal: get flag")
	}
	if flag.State != model.FlagStateActionable {
		log.Warn("flag already processed")
		return nil, nil
	}

	now := g.now()
	claimed, err := g.store.MarkFlagProcessed(ctx, flagID, now)
	if err != nil {
		return nil, eris.Wrap(err, "proposal: mark flag processed")
	}
	if !claimed {
		log.Warn("flag processed concurrently")
		return nil, nil
	}

	p := Build(flag, userID, now)
	if err := g.store.CreateProposal(ctx, p); err != nil {
		return nil, eris.Wrap(err, "proposal: create")
	}

	log.Info("proposal generated",
		zap.String("proposal_id", p.ID),
		zap.String("change_type", p.ChangeType),
		zap.String("complexity", string(p.Complexity)),
		zap.String("risk", string(p.Risk.Level)),
	)
	return p, nil
}

// Build derives a proposal from a flag without persisting it.
func Build(flag *model.EvidenceFlag, userID string, now time.Time) *model.PracticeTranslation {
	changeType := ClassifyChange(flag.Theme)
	complexity := ComplexityFor(flag.ConfidenceScore)
	areas := AffectedAreas(flag.Theme)

	return &model.PracticeTranslation{
		FlagID:     flag.ID,
		ChangeType: changeType,
		Title:      fmt.Sprintf("%s practice change: %s", titleCase(changeType), flag.Theme),
		Description: fmt.Sprintf("Evidence theme %q reached %.0f%% confidence. Proposed as a %s change affecting %d area(s).",
			flag.Theme, flag.ConfidenceScore, changeType, len(areas)),
		ProposedChange: model.ProposedChange{
			Summary:       flag.Theme,
			Theme:         flag.Theme,
			ChangeType:    changeType,
			AffectedAreas: areas,
		},
		ExpectedOutcomes: ExpectedOutcomes(flag.Theme),
		AffectedAreas:    areas,
		ConfidenceScore:  flag.ConfidenceScore,
		Complexity:       complexity,
		Risk:             AssessRisk(flag.ConfidenceScore, complexity, changeType),
		Status:           model.ProposalStatusGenerated,
		CreatedBy:        userID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// RouteToCCO sends a generated proposal for CCO review and opens a pending
// approval record.
func (g *Generator) RouteToCCO(ctx context.Context, proposalID, userID string) (bool, error) {
	log := zap.L().With(zap.String("component", "proposal"), zap.String("proposal_id", proposalID))

	p, err := g.store.GetProposal(ctx, proposalID)
	if err != nil {
		return false, eris.Wrap(err, "proposal: get")
	}
	if p.Status != model.ProposalStatusGenerated {
		log.Warn("proposal cannot be routed", zap.String("status", string(p.Status)))
		return false, nil
	}

	ok, err := g.store.RouteProposal(ctx, proposalID, &model.ApprovalRecord{
		ReviewerRole: model.ReviewerRoleCCO,
		RequestedBy:  userID,
		RequestedAt:  g.now(),
	})
	if err != nil {
		return false, eris.Wrap(err, "proposal: route")
	}
	if !ok {
		log.Warn("proposal routed concurrently")
		return false, nil
	}
	log.Info("proposal routed to cco", zap.String("user_id", userID))
	return true, nil
}

// Approve records an approving review.
func (g *Generator) Approve(ctx context.Context, proposalID, reviewerID, rationale string) (bool, error) {
	return g.decide(ctx, proposalID, model.ProposalStatusApproved, reviewerID, rationale)
}

// Reject records a rejecting review.
func (g *Generator) Reject(ctx context.Context, proposalID, reviewerID, rationale string) (bool, error) {
	return g.decide(ctx, proposalID, model.ProposalStatusRejected, reviewerID, rationale)
}

func (g *Generator) decide(ctx context.Context, proposalID string, status model.ProposalStatus, reviewerID, rationale string) (bool, error) {
	log := zap.L().With(zap.String("component", "proposal"), zap.String("proposal_id", proposalID))

	p, err := g.store.GetProposal(ctx, proposalID)
	if err != nil {
		return false, eris.Wrap(err, "proposal: get")
	}
	if p.Status != model.ProposalStatusAwaitingReview {
		log.Warn("proposal is not awaiting review", zap.String("status", string(p.Status)))
		return false, nil
	}
	if _, err := g.store.GetPendingApproval(ctx, proposalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("proposal has no pending approval")
			return false, nil
		}
		return false, eris.Wrap(err, "proposal: get pending approval")
	}

	ok, err := g.store.DecideProposal(ctx, proposalID, status, reviewerID, rationale, g.now())
	if err != nil {
		return false, eris.Wrap(err, "proposal: decide")
	}
	if !ok {
		log.Warn("proposal decided concurrently")
		return false, nil
	}
	log.Info("proposal reviewed", zap.String("status", string(status)), zap.String("reviewer_id", reviewerID))
	return true, nil
}
