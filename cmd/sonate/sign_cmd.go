package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sonate-labs/sonate/core/pkg/config"
	"github.com/sonate-labs/sonate/core/pkg/contracts"
	"github.com/sonate-labs/sonate/core/pkg/crypto"
	"github.com/sonate-labs/sonate/core/pkg/receipt"
	"github.com/sonate-labs/sonate/core/pkg/store"
)

// runSignCmd builds a receipt from an interaction JSON file and signs it.
//
// The input file carries the interaction fields (session_id, model, prompt,
// response, telemetry, metadata). With --prev the new receipt chains onto the
// previous signed receipt; with --save the receipt is persisted to the
// configured store and, when --prev is absent, chained onto the session's
// stored head. Otherwise it starts a session at GENESIS.
//
// Exit codes:
//
//	0 = receipt signed
//	2 = runtime error
func runSignCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sign", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inFile     string
		prevFile   string
		outFile    string
		seedHex    string
		keyVersion string
		retain     bool
		normalize  bool
		save       bool
		tenant     string
	)
	cmd.StringVar(&inFile, "in", "", "Path to interaction JSON (REQUIRED, '-' for stdin)")
	cmd.StringVar(&prevFile, "prev", "", "Path to the previous signed receipt in the session")
	cmd.StringVar(&outFile, "out", "", "Write the signed receipt to a file instead of stdout")
	cmd.StringVar(&seedHex, "seed", "", "Ed25519 seed hex (default: SONATE_SIGNING_SEED)")
	cmd.StringVar(&keyVersion, "key-version", "", "Key version label (default: SONATE_KEY_VERSION)")
	cmd.BoolVar(&retain, "retain-content", false, "Keep raw prompt/response text on the receipt")
	cmd.BoolVar(&normalize, "normalize", true, "Apply NFC text normalization before hashing")
	cmd.BoolVar(&save, "save", false, "Persist the signed receipt (SONATE_DATABASE_URL or SONATE_SQLITE_PATH)")
	cmd.StringVar(&tenant, "tenant", "default", "Tenant scope for --save")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if inFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --in is required")
		return 2
	}

	cfg := config.Load()
	if seedHex == "" {
		seedHex = cfg.SigningSeed
	}
	if keyVersion == "" {
		keyVersion = cfg.KeyVersion
	}
	if seedHex == "" {
		_, _ = fmt.Fprintln(stderr, "Error: no signing seed (--seed or SONATE_SIGNING_SEED)")
		return 2
	}

	raw, err := readInput(inFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	var in receipt.Input
	if err := json.Unmarshal(raw, &in); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot parse interaction: %v\n", err)
		return 2
	}

	ctx := context.Background()
	var receipts store.ReceiptStore
	if save {
		rs, db, err := openReceiptStore(cfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer func() { _ = db.Close() }()
		receipts = rs
	}

	var prev *contracts.TrustReceipt
	switch {
	case prevFile != "":
		data, err := os.ReadFile(prevFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot read previous receipt: %v\n", err)
			return 2
		}
		prev = &contracts.TrustReceipt{}
		if err := json.Unmarshal(data, prev); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot parse previous receipt: %v\n", err)
			return 2
		}
	case receipts != nil:
		// Chain onto the stored session head; (nil, nil) starts at GENESIS.
		prev, err = receipts.GetLastForSession(ctx, in.SessionID, tenant)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot load session head: %v\n", err)
			return 2
		}
	}

	var opts []receipt.Option
	if normalize {
		opts = append(opts, receipt.WithContentNormalization())
	}
	if retain {
		opts = append(opts, receipt.WithContentRetention())
	}
	builder := receipt.NewBuilder(opts...)

	r, err := builder.Next(prev, in)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	signer, err := crypto.NewEd25519SignerFromSeed(seedHex, keyVersion)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	signed, err := signer.SignReceipt(r)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if receipts != nil {
		if err := receipts.Save(ctx, signed, tenant); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot save receipt: %v\n", err)
			return 2
		}
	}

	data, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot marshal receipt: %v\n", err)
		return 2
	}
	if outFile != "" {
		if err := os.WriteFile(outFile, append(data, '\n'), 0o600); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot write receipt: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "Signed receipt %s written to %s\n", signed.ID, outFile)
		return 0
	}
	_, _ = fmt.Fprintln(stdout, string(data))
	return 0
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("cannot read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return data, nil
}
