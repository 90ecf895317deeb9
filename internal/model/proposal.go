package model

import "time"

// ProposalStatus is the approval-gate state of a practice translation.
type ProposalStatus string

const (
	ProposalStatusGenerated      ProposalStatus = "generated"
	ProposalStatusAwaitingReview ProposalStatus = "awaiting_review"
	ProposalStatusApproved       ProposalStatus = "approved"
	ProposalStatusRejected       ProposalStatus = "rejected"
)

// Complexity is the estimated implementation effort of a proposal.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// RiskLevel grades a proposal's implementation risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// RiskAssessment is the structured risk summary of a proposal. It is only
// serialized when written to the store.
type RiskAssessment struct {
	Level      RiskLevel `json:"level"`
	Factors    []string  `json:"factors"`
	Mitigation string    `json:"mitigation"`
}

// ProposedChange is the payload describing what would change in practice.
type ProposedChange struct {
	Summary       string   `json:"summary"`
	Theme         string   `json:"theme"`
	ChangeType    string   `json:"change_type"`
	AffectedAreas []string `json:"affected_areas"`
}

// PracticeTranslation is a candidate operational or clinical change.
type PracticeTranslation struct {
	ID               string         `json:"id"`
	FlagID           string         `json:"flag_id"`
	ChangeType       string         `json:"change_type"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	ProposedChange   ProposedChange `json:"proposed_change"`
	ExpectedOutcomes []string       `json:"expected_outcomes"`
	AffectedAreas    []string       `json:"affected_areas"`
	ConfidenceScore  float64        `json:"confidence_score"`
	Complexity       Complexity     `json:"implementation_complexity"`
	Risk             RiskAssessment `json:"risk_assessment"`
	Status           ProposalStatus `json:"status"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ReviewedBy       string         `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time     `json:"reviewed_at,omitempty"`
	ReviewRationale  string         `json:"review_rationale,omitempty"`
}

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ReviewerRoleCCO is the reviewer role for practice change approvals.
const ReviewerRoleCCO = "cco"

// ApprovalRecord tracks one review request for a proposal.
type ApprovalRecord struct {
	ID           string         `json:"id"`
	ProposalID   string         `json:"proposal_id"`
	ReviewerRole string         `json:"reviewer_role"`
	RequestedBy  string         `json:"requested_by"`
	Status       ApprovalStatus `json:"status"`
	ReviewerID   string         `json:"reviewer_id,omitempty"`
	Rationale    string         `json:"rationale,omitempty"`
	RequestedAt  time.Time      `json:"requested_at"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
}
