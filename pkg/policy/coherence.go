package policy

import (
	"fmt"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// TypeCoherence is the constraint type enforcing a minimum coherence score.
const TypeCoherence = "coherence"

// DefaultMinCoherenceScore is the default coherence floor.
const DefaultMinCoherenceScore = 0.7

const coherenceConfigSchema = `{
	"type": "object",
	"properties": {
		"minCoherenceScore": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

// CoherenceEvaluator compares telemetry.coherence_score to the floor.
type CoherenceEvaluator struct {
	constraint contracts.PolicyConstraint
	min        float64
}

// NewCoherenceEvaluator builds the evaluator from config key
// "minCoherenceScore" (default 0.7).
func NewCoherenceEvaluator(c contracts.PolicyConstraint) (Evaluator, error) {
	return &CoherenceEvaluator{
		constraint: c,
		min:        configFloat(c.Config, "minCoherenceScore", DefaultMinCoherenceScore),
	}, nil
}

func (e *CoherenceEvaluator) Type() string    { return TypeCoherence }
func (e *CoherenceEvaluator) Version() string { return "1.0.0" }

// Evaluate emits a warning-severity violation when the score sits below the
// floor. Missing coherence telemetry is not a violation.
func (e *CoherenceEvaluator) Evaluate(r *contracts.TrustReceipt) (*contracts.ConstraintViolation, error) {
	if r.Telemetry == nil || r.Telemetry.CoherenceScore == nil {
		return nil, nil
	}
	actual := *r.Telemetry.CoherenceScore
	if actual >= e.min {
		return nil, nil
	}

	return &contracts.ConstraintViolation{
		ConstraintID:  e.constraint.ID,
		ViolationType: "coherence_below_minimum",
		Severity:      violationSeverity(e.constraint, contracts.SeverityWarn),
		Evidence: map[string]any{
			"actual": actual,
			"min":    e.min,
		},
		Message: fmt.Sprintf("coherence score %.3f below minimum %.3f", actual, e.min),
	}, nil
}
