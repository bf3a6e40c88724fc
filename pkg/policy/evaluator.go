// Package policy evaluates governance policies against trust receipts:
// pluggable constraint evaluators, an explicit (non-global) registry, and a
// runtime that aggregates violations into enforcement verdicts.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// ErrUnknownConstraintType is returned when a policy names a constraint type
// no evaluator factory was registered for. Fatal at registration time; never
// silently skipped.
var ErrUnknownConstraintType = errors.New("policy: unknown constraint type")

// Evaluator detects one category of policy violation from a receipt's
// content or telemetry. Implementations are pure: no side effects, no I/O.
// A nil violation with a nil error means the receipt is clean for this
// constraint.
type Evaluator interface {
	Type() string
	Version() string
	Evaluate(r *contracts.TrustReceipt) (*contracts.ConstraintViolation, error)
}

// Factory builds an evaluator from a constraint's validated config.
type Factory func(c contracts.PolicyConstraint) (Evaluator, error)

// Registry maps constraint types to evaluator factories. Constructed
// explicitly and injected — never a package-level singleton — so isolated
// runtimes (e.g. per tenant) cannot leak registrations into each other.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	schemas   map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		schemas:   make(map[string]*jsonschema.Schema),
	}
}

// DefaultRegistry returns a registry with the built-in constraint types:
// pii, truth_debt, compliance_boundary, coherence, and cel.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	// Built-in schemas are compile-time constants; registration cannot fail.
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(reg.Register(TypePII, piiConfigSchema, NewPIIEvaluator))
	must(reg.Register(TypeTruthDebt, truthDebtConfigSchema, NewTruthDebtEvaluator))
	must(reg.Register(TypeComplianceBoundary, boundaryConfigSchema, NewBoundaryEvaluator))
	must(reg.Register(TypeCoherence, coherenceConfigSchema, NewCoherenceEvaluator))
	must(reg.Register(TypeCEL, celConfigSchema, NewCELEvaluator))
	return reg
}

// Register adds an evaluator factory for a constraint type. configSchema is
// a JSON Schema (draft 2020-12) validated against each constraint's config
// at policy registration; pass "" to skip config validation.
func (reg *Registry) Register(constraintType, configSchema string, f Factory) error {
	if constraintType == "" || f == nil {
		return fmt.Errorf("policy: constraint type and factory are required")
	}

	var compiled *jsonschema.Schema
	if configSchema != "" {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://sonate.schemas.local/constraints/%s.schema.json", constraintType)
		if err := c.AddResource(url, strings.NewReader(configSchema)); err != nil {
			return fmt.Errorf("policy: config schema load failed for %q: %w", constraintType, err)
		}
		var err error
		compiled, err = c.Compile(url)
		if err != nil {
			return fmt.Errorf("policy: config schema compile failed for %q: %w", constraintType, err)
		}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.factories[constraintType] = f
	if compiled != nil {
		reg.schemas[constraintType] = compiled
	}
	return nil
}

// Build validates a constraint's config and constructs its evaluator.
func (reg *Registry) Build(c contracts.PolicyConstraint) (Evaluator, error) {
	reg.mu.RLock()
	f, ok := reg.factories[c.Type]
	schema := reg.schemas[c.Type]
	reg.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (constraint %s)", ErrUnknownConstraintType, c.Type, c.ID)
	}
	if schema != nil && c.Config != nil {
		if err := schema.Validate(normalizeConfig(c.Config)); err != nil {
			return nil, fmt.Errorf("policy: constraint %s config invalid: %w", c.ID, err)
		}
	}
	return f(c)
}

// Types lists registered constraint types.
func (reg *Registry) Types() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, 0, len(reg.factories))
	for t := range reg.factories {
		out = append(out, t)
	}
	return out
}

// normalizeConfig converts YAML-decoded config values into the generic
// JSON shapes the jsonschema validator expects.
func normalizeConfig(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeConfig(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeConfig(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// violationSeverity applies the constraint's configured severity, falling
// back to the evaluator's default.
func violationSeverity(c contracts.PolicyConstraint, fallback contracts.Severity) contracts.Severity {
	if c.Severity != "" {
		return c.Severity
	}
	return fallback
}

// configFloat reads a numeric config value, tolerating JSON/YAML decodings.
func configFloat(config map[string]any, key string, fallback float64) float64 {
	v, ok := config[key]
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return fallback
	}
}

// configStrings reads a string-list config value.
func configStrings(config map[string]any, key string) []string {
	v, ok := config[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// configString reads a string config value.
func configString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
