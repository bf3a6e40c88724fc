package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sonate-labs/sonate/core/pkg/config"
	"github.com/sonate-labs/sonate/core/pkg/crypto"
	"github.com/sonate-labs/sonate/core/pkg/keys"
)

// runServeKeysCmd serves the verification key over HTTP so remote verifiers
// can fetch it. The key is derived from the signing seed; --pubkey serves a
// key without holding any private material.
//
// Exit codes:
//
//	0 = clean shutdown
//	2 = runtime error
func runServeKeysCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve-keys", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		addr       string
		pubKeyHex  string
		keyVersion string
	)
	cmd.StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.StringVar(&pubKeyHex, "pubkey", "", "Hex public key to serve (default: derived from SONATE_SIGNING_SEED)")
	cmd.StringVar(&keyVersion, "key-version", "", "Key version label (default: SONATE_KEY_VERSION)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	if keyVersion == "" {
		keyVersion = cfg.KeyVersion
	}
	if pubKeyHex == "" {
		if cfg.SigningSeed == "" {
			_, _ = fmt.Fprintln(stderr, "Error: no key material (--pubkey or SONATE_SIGNING_SEED)")
			return 2
		}
		signer, err := crypto.NewEd25519SignerFromSeed(cfg.SigningSeed, keyVersion)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		pubKeyHex = signer.PublicKeyHex()
	}

	handler, err := keys.NewHandler(pubKeyHex, keyVersion)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/trust/key", handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	_, _ = fmt.Fprintf(stdout, "Serving key %s (%s) on %s\n", keyVersion, pubKeyHex[:16]+"…", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}
