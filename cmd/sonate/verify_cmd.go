package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sonate-labs/sonate/core/pkg/config"
	"github.com/sonate-labs/sonate/core/pkg/crypto"
	"github.com/sonate-labs/sonate/core/pkg/keys"
)

// runVerifyCmd verifies a signed receipt: structure, signature, chain, and
// timestamp. The verification key comes from --pubkey, or is fetched from the
// key endpoint (--key-endpoint or SONATE_KEY_ENDPOINT) when absent.
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		receiptFile string
		pubKeyHex   string
		keyEndpoint string
		jsonOutput  bool
	)
	cmd.StringVar(&receiptFile, "receipt", "", "Path to signed receipt JSON (REQUIRED)")
	cmd.StringVar(&pubKeyHex, "pubkey", "", "Hex Ed25519 public key")
	cmd.StringVar(&keyEndpoint, "key-endpoint", "", "Key distribution URL (default: SONATE_KEY_ENDPOINT)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if receiptFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --receipt is required")
		return 2
	}

	raw, err := os.ReadFile(receiptFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read receipt: %v\n", err)
		return 2
	}

	if pubKeyHex == "" {
		if keyEndpoint == "" {
			keyEndpoint = config.Load().KeyEndpoint
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		doc, err := keys.NewClient(keyEndpoint).Fetch(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		pubKeyHex = doc.PublicKey
	}

	verifier, err := crypto.NewVerifier(pubKeyHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	result := verifier.VerifyJSON(raw)

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printVerification(stdout, result)
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func printVerification(w io.Writer, result *crypto.VerificationResult) {
	if result.Valid {
		_, _ = fmt.Fprintf(w, "Receipt verification PASSED (trust score %.1f)\n", result.TrustScore)
	} else {
		_, _ = fmt.Fprintln(w, "Receipt verification FAILED")
	}
	printCheck(w, "structure", result.Structure)
	printCheck(w, "signature", result.Signature)
	printCheck(w, "chain", result.Chain)
	printCheck(w, "timestamp", result.Timestamp)
	for _, e := range result.Errors {
		_, _ = fmt.Fprintf(w, "  ! %s\n", e)
	}
}

func printCheck(w io.Writer, name string, c crypto.CheckResult) {
	state := "FAIL"
	switch {
	case c.Skipped:
		state = "SKIP"
	case c.Passed:
		state = "PASS"
	}
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, state)
}
