package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// TypeComplianceBoundary is the constraint type detecting regulated-domain
// advice (medical, financial, legal) in response text.
const TypeComplianceBoundary = "compliance_boundary"

const boundaryConfigSchema = `{
	"type": "object",
	"properties": {
		"enforcedDomains": {"type": "array", "items": {"type": "string", "enum": ["medical", "financial", "legal"]}}
	}
}`

// domainPhrases holds the regulated-domain phrase sets. Matches flag the
// response for mandatory human review regardless of constraint severity.
var domainPhrases = map[string]*regexp.Regexp{
	"medical": regexp.MustCompile(`(?i)\b(you should take|recommended dosage|diagnos(?:is|e[sd]?)|prescri(?:be|ption)|treatment plan|stop taking your|medical advice)\b`),
	"financial": regexp.MustCompile(`(?i)\b(guaranteed return|you should invest|buy (?:this|these) stocks?|financial advice|tax evasion|insider (?:trading|information))\b`),
	"legal": regexp.MustCompile(`(?i)\b(legal advice|you should sue|represent yourself|plead guilty|binding contract advice|loophole in the law)\b`),
}

// BoundaryEvaluator pattern-matches response text against the enforced
// regulated domains.
type BoundaryEvaluator struct {
	constraint contracts.PolicyConstraint
	domains    []string
}

// NewBoundaryEvaluator builds the evaluator; config "enforcedDomains"
// restricts the domains (default: all three).
func NewBoundaryEvaluator(c contracts.PolicyConstraint) (Evaluator, error) {
	domains := configStrings(c.Config, "enforcedDomains")
	if len(domains) == 0 {
		for name := range domainPhrases {
			domains = append(domains, name)
		}
	} else {
		for _, name := range domains {
			if _, ok := domainPhrases[name]; !ok {
				return nil, fmt.Errorf("policy: unknown compliance domain %q (constraint %s)", name, c.ID)
			}
		}
	}
	sort.Strings(domains)
	return &BoundaryEvaluator{constraint: c, domains: domains}, nil
}

func (e *BoundaryEvaluator) Type() string    { return TypeComplianceBoundary }
func (e *BoundaryEvaluator) Version() string { return "1.0.0" }

// Evaluate violates when any enforced domain matches the response text.
// Boundary violations always require human review, so the default severity
// is escalate.
func (e *BoundaryEvaluator) Evaluate(r *contracts.TrustReceipt) (*contracts.ConstraintViolation, error) {
	text := r.Interaction.Response
	if text == "" {
		return nil, nil
	}

	matches := make(map[string]int)
	var hit []string
	for _, domain := range e.domains {
		n := len(domainPhrases[domain].FindAllString(text, -1))
		if n > 0 {
			matches[domain] = n
			hit = append(hit, domain)
		}
	}
	if len(hit) == 0 {
		return nil, nil
	}

	return &contracts.ConstraintViolation{
		ConstraintID:  e.constraint.ID,
		ViolationType: "compliance_boundary_crossed",
		Severity:      violationSeverity(e.constraint, contracts.SeverityEscalate),
		Evidence: map[string]any{
			"domains":       hit,
			"match_counts":  matches,
			"review_reason": "regulated-domain advice requires human review",
		},
		Message: fmt.Sprintf("response crosses compliance boundary for %s; human review required", strings.Join(hit, ", ")),
	}, nil
}
