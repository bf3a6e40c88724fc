package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

// runKeygenCmd generates a fresh Ed25519 keypair and prints the hex seed
// (private material, feed it back via --seed or SONATE_SIGNING_SEED) and the
// hex public key for distribution.
//
// Exit codes:
//
//	0 = key generated
//	2 = runtime error
func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		keyVersion string
		jsonOutput bool
	)
	cmd.StringVar(&keyVersion, "key-version", "v1", "Key version label")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: key generation failed: %v\n", err)
		return 2
	}

	seedHex := hex.EncodeToString(priv.Seed())
	pubHex := hex.EncodeToString(pub)

	if jsonOutput {
		data, _ := json.MarshalIndent(map[string]string{
			"key_version": keyVersion,
			"seed":        seedHex,
			"public_key":  pubHex,
		}, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "Key version: %s\n", keyVersion)
	_, _ = fmt.Fprintf(stdout, "Seed (keep secret): %s\n", seedHex)
	_, _ = fmt.Fprintf(stdout, "Public key: %s\n", pubHex)
	return 0
}
