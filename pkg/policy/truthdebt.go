package policy

import (
	"fmt"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// TypeTruthDebt is the constraint type bounding unverifiable-claim debt.
const TypeTruthDebt = "truth_debt"

// DefaultMaxUnverifiableClaims is the default truth-debt ceiling.
const DefaultMaxUnverifiableClaims = 0.15

const truthDebtConfigSchema = `{
	"type": "object",
	"properties": {
		"maxUnverifiableClaims": {"type": "number", "minimum": 0}
	}
}`

// TruthDebtEvaluator compares telemetry.truth_debt to the configured ceiling.
type TruthDebtEvaluator struct {
	constraint contracts.PolicyConstraint
	max        float64
}

// NewTruthDebtEvaluator builds the evaluator from config key
// "maxUnverifiableClaims" (default 0.15).
func NewTruthDebtEvaluator(c contracts.PolicyConstraint) (Evaluator, error) {
	return &TruthDebtEvaluator{
		constraint: c,
		max:        configFloat(c.Config, "maxUnverifiableClaims", DefaultMaxUnverifiableClaims),
	}, nil
}

func (e *TruthDebtEvaluator) Type() string    { return TypeTruthDebt }
func (e *TruthDebtEvaluator) Version() string { return "1.0.0" }

// Evaluate violates when actual truth debt exceeds the ceiling. Receipts
// without truth-debt telemetry are not violations.
func (e *TruthDebtEvaluator) Evaluate(r *contracts.TrustReceipt) (*contracts.ConstraintViolation, error) {
	if r.Telemetry == nil || r.Telemetry.TruthDebt == nil {
		return nil, nil
	}
	actual := *r.Telemetry.TruthDebt
	if actual <= e.max {
		return nil, nil
	}

	return &contracts.ConstraintViolation{
		ConstraintID:  e.constraint.ID,
		ViolationType: "truth_debt_exceeded",
		Severity:      violationSeverity(e.constraint, contracts.SeverityWarn),
		Evidence: map[string]any{
			"actual": actual,
			"max":    e.max,
			"excess": actual - e.max,
		},
		Message: fmt.Sprintf("truth debt %.3f exceeds maximum %.3f by %.3f", actual, e.max, actual-e.max),
	}, nil
}
