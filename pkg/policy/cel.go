package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// TypeCEL is the constraint type for custom CEL expressions, the extension
// point for industry-specific constraints that have no built-in evaluator.
const TypeCEL = "cel"

const celConfigSchema = `{
	"type": "object",
	"properties": {
		"expression": {"type": "string", "minLength": 1},
		"message": {"type": "string"}
	},
	"required": ["expression"]
}`

// CELEvaluator compiles a boolean CEL expression over receipt attributes at
// registration time and violates when it evaluates true.
//
// Available variables: prompt, response, model, session_id, agent_did
// (strings), telemetry (map), metadata (map), chain_length (int).
type CELEvaluator struct {
	constraint contracts.PolicyConstraint
	program    cel.Program
	message    string
}

// NewCELEvaluator compiles config "expression". Compilation failure is a
// registration-time configuration error, consistent with unknown constraint
// types being fatal.
func NewCELEvaluator(c contracts.PolicyConstraint) (Evaluator, error) {
	expression := configString(c.Config, "expression")
	if expression == "" {
		return nil, fmt.Errorf("policy: cel constraint %s requires config.expression", c.ID)
	}

	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("prompt", types.StringType),
			decls.NewVariable("response", types.StringType),
			decls.NewVariable("model", types.StringType),
			decls.NewVariable("session_id", types.StringType),
			decls.NewVariable("agent_did", types.StringType),
			decls.NewVariable("telemetry", types.NewMapType(types.StringType, types.DynType)),
			decls.NewVariable("metadata", types.NewMapType(types.StringType, types.DynType)),
			decls.NewVariable("chain_length", types.IntType),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env failed: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: cel constraint %s compile failed: %w", c.ID, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: cel constraint %s program failed: %w", c.ID, err)
	}

	message := configString(c.Config, "message")
	if message == "" {
		message = fmt.Sprintf("custom constraint %s matched", c.ID)
	}
	return &CELEvaluator{constraint: c, program: program, message: message}, nil
}

func (e *CELEvaluator) Type() string    { return TypeCEL }
func (e *CELEvaluator) Version() string { return "1.0.0" }

// Evaluate runs the compiled expression. Evaluation errors surface as
// evaluator errors (logged and skipped by the runtime), never as verdicts.
func (e *CELEvaluator) Evaluate(r *contracts.TrustReceipt) (*contracts.ConstraintViolation, error) {
	telemetry := map[string]any{}
	if r.Telemetry != nil {
		if r.Telemetry.ResonanceScore != nil {
			telemetry["resonance_score"] = *r.Telemetry.ResonanceScore
		}
		if r.Telemetry.CoherenceScore != nil {
			telemetry["coherence_score"] = *r.Telemetry.CoherenceScore
		}
		if r.Telemetry.TruthDebt != nil {
			telemetry["truth_debt"] = *r.Telemetry.TruthDebt
		}
		if r.Telemetry.CIQMetrics != nil {
			telemetry["ciq_metrics"] = map[string]any{
				"clarity":   r.Telemetry.CIQMetrics.Clarity,
				"integrity": r.Telemetry.CIQMetrics.Integrity,
				"quality":   r.Telemetry.CIQMetrics.Quality,
			}
		}
	}
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	out, _, err := e.program.Eval(map[string]any{
		"prompt":       r.Interaction.Prompt,
		"response":     r.Interaction.Response,
		"model":        r.Interaction.Model,
		"session_id":   r.SessionID,
		"agent_did":    r.AgentDID,
		"telemetry":    telemetry,
		"metadata":     metadata,
		"chain_length": r.Chain.ChainLength,
	})
	if err != nil {
		return nil, fmt.Errorf("policy: cel constraint %s eval failed: %w", e.constraint.ID, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("policy: cel constraint %s returned non-boolean %T", e.constraint.ID, out.Value())
	}
	if !matched {
		return nil, nil
	}

	return &contracts.ConstraintViolation{
		ConstraintID:  e.constraint.ID,
		ViolationType: "cel_expression_matched",
		Severity:      violationSeverity(e.constraint, contracts.SeverityWarn),
		Evidence:      map[string]any{"expression": configString(e.constraint.Config, "expression")},
		Message:       e.message,
	}, nil
}
