package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// Runtime registers policies, runs their constraint evaluators against
// receipts, and aggregates violations into enforcement verdicts. Construct
// one per isolation domain (e.g. per tenant); there is no global instance.
type Runtime struct {
	registry    *Registry
	logger      *slog.Logger
	now         func() time.Time
	concurrency int

	mu       sync.RWMutex
	policies map[string]*compiledPolicy

	historyMu sync.RWMutex
	history   map[string][]*contracts.PolicyEnforcementResult
}

type compiledPolicy struct {
	policy     contracts.AIPolicy
	evaluators []boundEvaluator
}

type boundEvaluator struct {
	constraint contracts.PolicyConstraint
	evaluator  Evaluator
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the logger for evaluator-failure reporting.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) { rt.logger = logger }
}

// WithClock overrides the evaluation timestamp source for testing.
func WithRuntimeClock(clock func() time.Time) RuntimeOption {
	return func(rt *Runtime) { rt.now = clock }
}

// WithConcurrency bounds the batch-evaluation worker pool. Values below 2
// keep batch evaluation sequential.
func WithConcurrency(n int) RuntimeOption {
	return func(rt *Runtime) { rt.concurrency = n }
}

// NewRuntime creates a runtime over the given evaluator registry.
func NewRuntime(registry *Registry, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		registry:    registry,
		logger:      slog.Default(),
		now:         time.Now,
		concurrency: 1,
		policies:    make(map[string]*compiledPolicy),
		history:     make(map[string][]*contracts.PolicyEnforcementResult),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// RegisterPolicy validates and compiles every constraint of the policy —
// including disabled ones, so a bad config cannot hide behind enabled=false.
// Unknown constraint types and invalid configs are fatal here, never at
// evaluation time.
func (rt *Runtime) RegisterPolicy(policy contracts.AIPolicy) error {
	if policy.ID == "" {
		return fmt.Errorf("policy: policy id is required")
	}

	evaluators := make([]boundEvaluator, 0, len(policy.Constraints))
	for _, c := range policy.Constraints {
		ev, err := rt.registry.Build(c)
		if err != nil {
			return fmt.Errorf("policy %s: %w", policy.ID, err)
		}
		evaluators = append(evaluators, boundEvaluator{constraint: c, evaluator: ev})
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.policies[policy.ID] = &compiledPolicy{policy: policy, evaluators: evaluators}
	return nil
}

// Policies lists registered policy IDs in sorted order.
func (rt *Runtime) Policies() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]string, 0, len(rt.policies))
	for id := range rt.policies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EvaluateReceipt runs every enabled constraint of a registered policy
// against the receipt. A failing evaluator is logged and skipped; it never
// blocks the remaining constraints or the receipt as a whole.
func (rt *Runtime) EvaluateReceipt(ctx context.Context, r *contracts.TrustReceipt, policyID string) (*contracts.PolicyEnforcementResult, error) {
	if r == nil {
		return nil, fmt.Errorf("policy: nil receipt")
	}
	rt.mu.RLock()
	cp, ok := rt.policies[policyID]
	rt.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("policy: policy %q not registered", policyID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := rt.evaluate(r, cp)
	rt.recordHistory(result)
	return result, nil
}

// EvaluateMultiplePolicies evaluates the receipt against several policies.
// In strict mode evaluation stops at the first policy whose status is not
// CLEAR; otherwise all policies run and one result per policy is returned.
func (rt *Runtime) EvaluateMultiplePolicies(ctx context.Context, r *contracts.TrustReceipt, policyIDs []string, strict bool) ([]*contracts.PolicyEnforcementResult, error) {
	results := make([]*contracts.PolicyEnforcementResult, 0, len(policyIDs))
	for _, id := range policyIDs {
		res, err := rt.EvaluateReceipt(ctx, r, id)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if strict && res.Status != contracts.StatusClear {
			break
		}
	}
	return results, nil
}

// BatchEvaluate evaluates the full cross product of receipts and policies.
// Cancellation is honored between (receipt, policy) pairs, never
// mid-evaluation; pairs have no data dependency and fan out over a bounded
// worker pool when WithConcurrency(n>1) is set.
func (rt *Runtime) BatchEvaluate(ctx context.Context, receipts []*contracts.TrustReceipt, policyIDs []string) (*contracts.BatchReport, error) {
	type pair struct {
		receipt *contracts.TrustReceipt
		policy  *compiledPolicy
	}

	rt.mu.RLock()
	pairs := make([]pair, 0, len(receipts)*len(policyIDs))
	for _, id := range policyIDs {
		cp, ok := rt.policies[id]
		if !ok {
			rt.mu.RUnlock()
			return nil, fmt.Errorf("policy: policy %q not registered", id)
		}
		for _, r := range receipts {
			if r == nil {
				rt.mu.RUnlock()
				return nil, fmt.Errorf("policy: nil receipt in batch")
			}
			pairs = append(pairs, pair{receipt: r, policy: cp})
		}
	}
	rt.mu.RUnlock()

	results := make([]*contracts.PolicyEnforcementResult, len(pairs))

	if rt.concurrency > 1 {
		var wg sync.WaitGroup
		sem := make(chan struct{}, rt.concurrency)
		cancelled := false

		for i, p := range pairs {
			if err := ctx.Err(); err != nil {
				cancelled = true
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, p pair) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = rt.evaluate(p.receipt, p.policy)
			}(i, p)
		}
		wg.Wait()
		if cancelled {
			return nil, ctx.Err()
		}
	} else {
		for i, p := range pairs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = rt.evaluate(p.receipt, p.policy)
		}
	}

	report := &contracts.BatchReport{
		ID:      uuid.NewString(),
		Results: results,
	}
	for _, res := range results {
		rt.recordHistory(res)
		switch res.Status {
		case contracts.StatusClear:
			report.Summary.Passed++
		case contracts.StatusFlagged:
			report.Summary.Flagged++
		case contracts.StatusBlocked:
			report.Summary.Blocked++
		}
		report.Summary.TotalViolations += len(res.Violations)
		for _, v := range res.Violations {
			if v.Severity.Critical() {
				report.Summary.CriticalViolations++
			}
		}
		if res.HumanReviewRequired {
			report.Summary.RequiresReview++
		}
	}
	report.Recommendations = recommendations(results)
	return report, nil
}

// History returns the retained enforcement results for a receipt id, in
// evaluation order. Retention is in-memory; durable retention is the
// caller's persistence concern.
func (rt *Runtime) History(receiptID string) []*contracts.PolicyEnforcementResult {
	rt.historyMu.RLock()
	defer rt.historyMu.RUnlock()
	out := make([]*contracts.PolicyEnforcementResult, len(rt.history[receiptID]))
	copy(out, rt.history[receiptID])
	return out
}

func (rt *Runtime) recordHistory(res *contracts.PolicyEnforcementResult) {
	rt.historyMu.Lock()
	defer rt.historyMu.Unlock()
	rt.history[res.ReceiptID] = append(rt.history[res.ReceiptID], res)
}

func (rt *Runtime) evaluate(r *contracts.TrustReceipt, cp *compiledPolicy) *contracts.PolicyEnforcementResult {
	var violations []contracts.ConstraintViolation
	versions := make(map[string]string)

	for _, b := range cp.evaluators {
		if !b.constraint.Enabled {
			continue
		}
		versions[b.evaluator.Type()] = b.evaluator.Version()

		v, err := rt.safeEvaluate(b, r)
		if err != nil {
			rt.logger.Error("constraint evaluator failed, skipping",
				"policy_id", cp.policy.ID,
				"constraint_id", b.constraint.ID,
				"constraint_type", b.constraint.Type,
				"receipt_id", r.ID,
				"error", err,
			)
			continue
		}
		if v != nil {
			violations = append(violations, *v)
		}
	}

	status, review, action := decide(violations)
	return &contracts.PolicyEnforcementResult{
		ID:                  uuid.NewString(),
		ReceiptID:           r.ID,
		PolicyID:            cp.policy.ID,
		Status:              status,
		Violations:          violations,
		HumanReviewRequired: review,
		RecommendedAction:   action,
		EvaluatedAt:         rt.now().UTC(),
		EvaluatorVersions:   versions,
	}
}

// safeEvaluate isolates a single evaluator: a panic becomes an error so one
// broken evaluator cannot take down the evaluation of the others.
func (rt *Runtime) safeEvaluate(b boundEvaluator, r *contracts.TrustReceipt) (v *contracts.ConstraintViolation, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v = nil
			err = fmt.Errorf("evaluator panic: %v", rec)
		}
	}()
	return b.evaluator.Evaluate(r)
}

// decide maps violations to the enforcement verdict:
//
//	status: any block violation -> BLOCKED; any violation -> FLAGGED; else CLEAR
//	review: any block or escalate violation
//	action: BLOCK > REQUIRE_HUMAN_REVIEW (escalate or >1 violation)
//	        > ANNOTATE (exactly one non-critical) > ALERT
func decide(violations []contracts.ConstraintViolation) (contracts.EnforcementStatus, bool, contracts.RecommendedAction) {
	var anyBlock, anyEscalate bool
	for _, v := range violations {
		switch v.Severity {
		case contracts.SeverityBlock:
			anyBlock = true
		case contracts.SeverityEscalate:
			anyEscalate = true
		}
	}

	status := contracts.StatusClear
	if anyBlock {
		status = contracts.StatusBlocked
	} else if len(violations) > 0 {
		status = contracts.StatusFlagged
	}

	review := anyBlock || anyEscalate

	var action contracts.RecommendedAction
	switch {
	case anyBlock:
		action = contracts.ActionBlock
	case anyEscalate || len(violations) > 1:
		action = contracts.ActionRequireHumanReview
	case len(violations) == 1 && !violations[0].Severity.Critical():
		action = contracts.ActionAnnotate
	default:
		action = contracts.ActionAlert
	}

	return status, review, action
}

// recommendations derives free-text remediation hints from violation-type
// frequency across a batch.
func recommendations(results []*contracts.PolicyEnforcementResult) []string {
	counts := make(map[string]int)
	for _, res := range results {
		for _, v := range res.Violations {
			counts[v.ViolationType]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})

	hints := map[string]string{
		"pii_detected":                "review agent output filtering: PII reached responses",
		"truth_debt_exceeded":         "tighten claim verification: unverifiable-claim debt is accumulating",
		"compliance_boundary_crossed": "add regulated-domain guardrails: responses are giving restricted advice",
		"coherence_below_minimum":     "inspect model/session quality: coherence is degrading",
		"cel_expression_matched":      "review custom constraint matches",
	}

	out := make([]string, 0, len(types))
	for _, t := range types {
		hint, ok := hints[t]
		if !ok {
			hint = "review recurring violation"
		}
		out = append(out, fmt.Sprintf("%s (%d occurrences): %s", t, counts[t], hint))
	}
	return out
}
