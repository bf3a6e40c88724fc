package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// TypePII is the constraint type for PII leak detection in response text.
const TypePII = "pii"

const piiConfigSchema = `{
	"type": "object",
	"properties": {
		"categories": {"type": "array", "items": {"type": "string"}}
	}
}`

// piiPatterns maps detection categories to their patterns. Categories mirror
// the regulated data classes the receipts pipeline must flag: government
// identifiers, payment data, contact data, and medical/account references.
var piiPatterns = map[string]*regexp.Regexp{
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`),
	"phone":       regexp.MustCompile(`\b(?:\+?1[ .-]?)?\(?\d{3}\)?[ .-]\d{3}[ .-]\d{4}\b`),
	"email":       regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"medical_id":  regexp.MustCompile(`(?i)\b(?:MRN|medical record)[-: #]*\d{5,10}\b`),
	"account_id":  regexp.MustCompile(`(?i)\b(?:acct|account)[-: #]*\d{6,12}\b`),
}

// PIIEvaluator pattern-matches response text against PII categories.
type PIIEvaluator struct {
	constraint contracts.PolicyConstraint
	categories []string
}

// NewPIIEvaluator builds the evaluator; config "categories" restricts the
// checked categories (default: all).
func NewPIIEvaluator(c contracts.PolicyConstraint) (Evaluator, error) {
	categories := configStrings(c.Config, "categories")
	if len(categories) == 0 {
		for name := range piiPatterns {
			categories = append(categories, name)
		}
	} else {
		for _, name := range categories {
			if _, ok := piiPatterns[name]; !ok {
				return nil, fmt.Errorf("policy: unknown pii category %q (constraint %s)", name, c.ID)
			}
		}
	}
	sort.Strings(categories)
	return &PIIEvaluator{constraint: c, categories: categories}, nil
}

func (e *PIIEvaluator) Type() string    { return TypePII }
func (e *PIIEvaluator) Version() string { return "1.0.0" }

// Evaluate flags any category match in the response text. Detection runs on
// raw response content; hash-only receipts have nothing to scan.
func (e *PIIEvaluator) Evaluate(r *contracts.TrustReceipt) (*contracts.ConstraintViolation, error) {
	text := r.Interaction.Response
	if text == "" {
		return nil, nil
	}

	var matched []string
	total := 0
	for _, name := range e.categories {
		hits := piiPatterns[name].FindAllString(text, -1)
		if len(hits) > 0 {
			matched = append(matched, name)
			total += len(hits)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	return &contracts.ConstraintViolation{
		ConstraintID:  e.constraint.ID,
		ViolationType: "pii_detected",
		Severity:      violationSeverity(e.constraint, contracts.SeverityBlock),
		Evidence: map[string]any{
			"categories":  matched,
			"match_count": total,
		},
		Message: fmt.Sprintf("response contains PII: %s", strings.Join(matched, ", ")),
	}, nil
}
