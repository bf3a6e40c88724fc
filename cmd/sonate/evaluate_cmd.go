package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sonate-labs/sonate/core/pkg/audit"
	"github.com/sonate-labs/sonate/core/pkg/config"
	"github.com/sonate-labs/sonate/core/pkg/contracts"
	"github.com/sonate-labs/sonate/core/pkg/observability"
	"github.com/sonate-labs/sonate/core/pkg/policy"
)

// runEvaluateCmd evaluates one or more receipts against the policies in a
// YAML policy file. A single receipt is evaluated against every policy; with
// --batch the receipt file holds a JSON array and the full cross product is
// reported.
//
// Exit codes:
//
//	0 = all evaluations CLEAR
//	1 = at least one FLAGGED or BLOCKED result
//	2 = runtime error
func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		policyFile  string
		receiptFile string
		auditFile   string
		batch       bool
		concurrency int
		jsonOutput  bool
		exportOTel  bool
	)
	cmd.StringVar(&policyFile, "policy", "", "Path to YAML policy file (default: SONATE_POLICY_FILE)")
	cmd.StringVar(&receiptFile, "receipt", "", "Path to receipt JSON (REQUIRED, array with --batch)")
	cmd.StringVar(&auditFile, "audit-log", "", "Append enforcement results to a JSONL audit log")
	cmd.BoolVar(&batch, "batch", false, "Treat the receipt file as a JSON array")
	cmd.IntVar(&concurrency, "concurrency", 1, "Worker count for batch evaluation")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.BoolVar(&exportOTel, "otel", false, "Export evaluation metrics to SONATE_OTLP_ENDPOINT")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg := config.Load()
	if policyFile == "" {
		policyFile = cfg.PolicyFile
	}
	if policyFile == "" || receiptFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --policy (or SONATE_POLICY_FILE) and --receipt are required")
		return 2
	}

	rt := policy.NewRuntime(policy.DefaultRegistry(), policy.WithConcurrency(concurrency))
	policyIDs, err := policy.LoadPolicyFile(rt, policyFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	raw, err := os.ReadFile(receiptFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read receipts: %v\n", err)
		return 2
	}
	var receipts []*contracts.TrustReceipt
	if batch {
		if err := json.Unmarshal(raw, &receipts); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot parse receipt array: %v\n", err)
			return 2
		}
	} else {
		r := &contracts.TrustReceipt{}
		if err := json.Unmarshal(raw, r); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot parse receipt: %v\n", err)
			return 2
		}
		receipts = []*contracts.TrustReceipt{r}
	}

	ctx := context.Background()
	started := time.Now()
	report, err := rt.BatchEvaluate(ctx, receipts, policyIDs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if exportOTel {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Insecure = true
		obs, err := observability.New(ctx, obsCfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		perResult := time.Since(started) / time.Duration(max(len(report.Results), 1))
		for _, res := range report.Results {
			obs.RecordEvaluation(ctx, res, perResult)
		}
		if err := obs.Shutdown(ctx); err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: metrics flush failed: %v\n", err)
		}
	}

	if auditFile != "" {
		log, err := audit.NewFileEnforcementLog(auditFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		for _, res := range report.Results {
			if err := log.Append(res); err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return 2
			}
		}
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printReport(stdout, report)
	}

	if report.Summary.Blocked > 0 || report.Summary.Flagged > 0 {
		return 1
	}
	return 0
}

func printReport(w io.Writer, report *contracts.BatchReport) {
	_, _ = fmt.Fprintf(w, "Batch %s: %d evaluations (%d passed, %d flagged, %d blocked)\n",
		report.ID, len(report.Results), report.Summary.Passed,
		report.Summary.Flagged, report.Summary.Blocked)
	for _, res := range report.Results {
		if res.Status == contracts.StatusClear {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s receipt=%s policy=%s action=%s\n",
			res.Status, res.ReceiptID, res.PolicyID, res.RecommendedAction)
		for _, v := range res.Violations {
			_, _ = fmt.Fprintf(w, "    - [%s] %s: %s\n", v.Severity, v.ViolationType, v.Message)
		}
	}
	for _, rec := range report.Recommendations {
		_, _ = fmt.Fprintf(w, "  hint: %s\n", rec)
	}
}
