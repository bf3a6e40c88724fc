package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"sonate"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunNoArgsShowsUsage(t *testing.T) {
	code, out, _ := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "USAGE")
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command")
}

func TestRunHelp(t *testing.T) {
	code, out, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "sign")
	assert.Contains(t, out, "verify")
	assert.Contains(t, out, "evaluate")
}

func TestKeygenJSON(t *testing.T) {
	code, out, _ := runCLI(t, "keygen", "--json", "--key-version", "v7")
	require.Equal(t, 0, code)

	var doc map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "v7", doc["key_version"])
	assert.Len(t, doc["seed"], 64)
	assert.Len(t, doc["public_key"], 64)
}

func TestSignVerifyEvaluatePipeline(t *testing.T) {
	dir := t.TempDir()
	seed := "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

	inFile := filepath.Join(dir, "interaction.json")
	require.NoError(t, os.WriteFile(inFile, []byte(`{
		"session_id": "s-cli",
		"prompt": "what is 2+2?",
		"response": "4",
		"model": "gpt-test"
	}`), 0o600))

	receiptFile := filepath.Join(dir, "receipt.json")
	code, _, errOut := runCLI(t, "sign",
		"--in", inFile, "--out", receiptFile,
		"--seed", seed, "--key-version", "v1")
	require.Equal(t, 0, code, "sign failed: %s", errOut)

	var signed map[string]any
	raw, err := os.ReadFile(receiptFile)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &signed))
	require.NotEmpty(t, signed["id"])

	// Ed25519 public key for the pinned seed (RFC 8032 test vector).
	pubKey := "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	code, out, errOut := runCLI(t, "verify", "--receipt", receiptFile, "--pubkey", pubKey)
	require.Equal(t, 0, code, "verify failed: %s / %s", out, errOut)
	assert.Contains(t, out, "PASSED")

	// Evaluate against a blocking PII policy: the clean response is CLEAR.
	policyFile := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyFile, []byte(`
id: cli-policy
name: CLI Policy
constraints:
  - id: c-pii
    type: pii
    severity: block
    enabled: true
`), 0o600))

	code, out, errOut = runCLI(t, "evaluate",
		"--policy", policyFile, "--receipt", receiptFile)
	require.Equal(t, 0, code, "evaluate failed: %s / %s", out, errOut)
	assert.Contains(t, out, "1 passed")
}

func TestVerifyTamperedReceiptFails(t *testing.T) {
	dir := t.TempDir()
	seed := "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	pubKey := "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"

	inFile := filepath.Join(dir, "interaction.json")
	require.NoError(t, os.WriteFile(inFile, []byte(`{
		"session_id": "s-cli",
		"prompt": "q",
		"response": "a",
		"model": "gpt-test"
	}`), 0o600))

	receiptFile := filepath.Join(dir, "receipt.json")
	code, _, _ := runCLI(t, "sign", "--in", inFile, "--out", receiptFile, "--seed", seed)
	require.Equal(t, 0, code)

	raw, err := os.ReadFile(receiptFile)
	require.NoError(t, err)
	var r map[string]any
	require.NoError(t, json.Unmarshal(raw, &r))
	r["session_id"] = "hijacked"
	tampered, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(receiptFile, tampered, 0o600))

	code, out, _ := runCLI(t, "verify", "--receipt", receiptFile, "--pubkey", pubKey)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "FAILED")
}

func TestSignSaveChainsFromStore(t *testing.T) {
	dir := t.TempDir()
	seed := "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	t.Setenv("SONATE_DATABASE_URL", "")
	t.Setenv("SONATE_SQLITE_PATH", filepath.Join(dir, "receipts.db"))

	inFile := filepath.Join(dir, "interaction.json")
	require.NoError(t, os.WriteFile(inFile, []byte(`{
		"session_id": "s-store",
		"prompt": "first",
		"response": "one",
		"model": "gpt-test"
	}`), 0o600))

	firstFile := filepath.Join(dir, "r1.json")
	code, _, errOut := runCLI(t, "sign",
		"--in", inFile, "--out", firstFile, "--seed", seed, "--save")
	require.Equal(t, 0, code, "first sign failed: %s", errOut)

	// Second sign without --prev picks the stored session head.
	secondFile := filepath.Join(dir, "r2.json")
	code, _, errOut = runCLI(t, "sign",
		"--in", inFile, "--out", secondFile, "--seed", seed, "--save")
	require.Equal(t, 0, code, "second sign failed: %s", errOut)

	raw, err := os.ReadFile(firstFile)
	require.NoError(t, err)
	var first contracts.TrustReceipt
	require.NoError(t, json.Unmarshal(raw, &first))

	raw, err = os.ReadFile(secondFile)
	require.NoError(t, err)
	var second contracts.TrustReceipt
	require.NoError(t, json.Unmarshal(raw, &second))

	assert.Equal(t, contracts.GenesisHash, first.Chain.PreviousHash)
	assert.Equal(t, first.Chain.ChainHash, second.Chain.PreviousHash)
	assert.Equal(t, 2, second.Chain.ChainLength)
}

func TestEvaluatePolicyFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	seed := "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

	inFile := filepath.Join(dir, "interaction.json")
	require.NoError(t, os.WriteFile(inFile, []byte(`{
		"session_id": "s-env",
		"prompt": "q",
		"response": "a",
		"model": "gpt-test"
	}`), 0o600))

	receiptFile := filepath.Join(dir, "receipt.json")
	code, _, errOut := runCLI(t, "sign", "--in", inFile, "--out", receiptFile, "--seed", seed)
	require.Equal(t, 0, code, "sign failed: %s", errOut)

	policyFile := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyFile, []byte(`
id: env-policy
name: Env Policy
constraints:
  - id: c-pii
    type: pii
    severity: block
    enabled: true
`), 0o600))
	t.Setenv("SONATE_POLICY_FILE", policyFile)

	code, out, errOut := runCLI(t, "evaluate", "--receipt", receiptFile)
	require.Equal(t, 0, code, "evaluate failed: %s / %s", out, errOut)
	assert.Contains(t, out, "1 passed")
}

func TestSignMissingInput(t *testing.T) {
	code, _, errOut := runCLI(t, "sign")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--in is required")
}

func TestVerifyMissingReceipt(t *testing.T) {
	code, _, errOut := runCLI(t, "verify")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--receipt is required")
}
