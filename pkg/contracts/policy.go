package contracts

import "time"

// Severity ranks how a constraint violation is treated during enforcement.
type Severity string

const (
	SeverityWarn     Severity = "warn"
	SeverityBlock    Severity = "block"
	SeverityEscalate Severity = "escalate"
)

// Critical reports whether a severity forces human attention (block or
// escalate). Used for review gating and batch critical counts.
func (s Severity) Critical() bool {
	return s == SeverityBlock || s == SeverityEscalate
}

// EnforcementStatus is the aggregated verdict for one (receipt, policy) pair.
type EnforcementStatus string

const (
	StatusClear   EnforcementStatus = "CLEAR"
	StatusFlagged EnforcementStatus = "FLAGGED"
	StatusBlocked EnforcementStatus = "BLOCKED"
)

// RecommendedAction is the remediation suggested alongside the status.
type RecommendedAction string

const (
	ActionBlock              RecommendedAction = "BLOCK"
	ActionRequireHumanReview RecommendedAction = "REQUIRE_HUMAN_REVIEW"
	ActionAnnotate           RecommendedAction = "ANNOTATE"
	ActionAlert              RecommendedAction = "ALERT"
)

// PolicyConstraint configures one evaluator within a policy. Type selects
// the evaluator implementation at registration time; Config is validated
// against the evaluator's schema when the policy is registered.
type PolicyConstraint struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Severity Severity       `json:"severity" yaml:"severity"`
	Enabled  bool           `json:"enabled" yaml:"enabled"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// AIPolicy owns an ordered list of constraints evaluated against receipts.
type AIPolicy struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Version     string             `json:"version,omitempty" yaml:"version,omitempty"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Constraints []PolicyConstraint `json:"constraints" yaml:"constraints"`
}

// ConstraintViolation is one detected policy breach with its evidence.
type ConstraintViolation struct {
	ConstraintID  string         `json:"constraint_id"`
	ViolationType string         `json:"violation_type"`
	Severity      Severity       `json:"severity"`
	Evidence      map[string]any `json:"evidence,omitempty"`
	Message       string         `json:"message"`
}

// PolicyEnforcementResult aggregates all violations of one policy against
// one receipt. It is derived, not ground truth: the same receipt, policy,
// and evaluator versions always recompute the same verdict (audit replay).
type PolicyEnforcementResult struct {
	ID                  string                `json:"id"`
	ReceiptID           string                `json:"receipt_id"`
	PolicyID            string                `json:"policy_id"`
	Status              EnforcementStatus     `json:"status"`
	Violations          []ConstraintViolation `json:"violations"`
	HumanReviewRequired bool                  `json:"human_review_required"`
	RecommendedAction   RecommendedAction     `json:"recommended_action"`
	EvaluatedAt         time.Time             `json:"evaluated_at"`
	EvaluatorVersions   map[string]string     `json:"evaluator_versions,omitempty"`
}

// BatchSummary aggregates a cross-product batch evaluation.
type BatchSummary struct {
	Passed             int `json:"passed"`
	Flagged            int `json:"flagged"`
	Blocked            int `json:"blocked"`
	TotalViolations    int `json:"total_violations"`
	CriticalViolations int `json:"critical_violations"`
	RequiresReview     int `json:"requires_review"`
}

// BatchReport is the full output of a batch evaluation: one result per
// (receipt, policy) pair plus summary and frequency-derived recommendations.
type BatchReport struct {
	ID              string                     `json:"id"`
	Results         []*PolicyEnforcementResult `json:"results"`
	Summary         BatchSummary               `json:"summary"`
	Recommendations []string                   `json:"recommendations,omitempty"`
}
