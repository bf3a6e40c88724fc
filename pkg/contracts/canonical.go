package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sonate-labs/sonate/core/pkg/canonicalize"
)

// The three hashing/signing payloads below are the safety-critical contract
// of the whole pipeline. Builder, signer, and verifier all call these
// helpers; nothing else may canonicalize a receipt.
//
// Payload shapes:
//
//	identity:  receipt minus id, minus signature, chain.chain_hash = ""
//	chain:     receipt with id,  minus signature, chain.chain_hash = "" (+ previous_hash appended)
//	signing:   receipt with id,  minus signature, chain.chain_hash as stored

// IdentityHash computes the content-addressed receipt id.
func IdentityHash(r *TrustReceipt) (string, error) {
	m, err := receiptMap(r)
	if err != nil {
		return "", err
	}
	delete(m, "id")
	delete(m, "signature")
	clearChainHash(m)

	return canonicalize.CanonicalHash(m)
}

// ChainHash binds the receipt (id included) to its predecessor:
// SHA256(canonical(receipt, chain_hash="") + previous_hash).
func ChainHash(r *TrustReceipt, previousHash string) (string, error) {
	m, err := receiptMap(r)
	if err != nil {
		return "", err
	}
	delete(m, "signature")
	clearChainHash(m)

	canonical, err := canonicalize.JCS(m)
	if err != nil {
		return "", err
	}
	return canonicalize.HashBytes(append(canonical, []byte(previousHash)...)), nil
}

// SigningBytes returns the canonical bytes the Ed25519 signature covers:
// the receipt without its signature field, chain_hash already populated.
func SigningBytes(r *TrustReceipt) ([]byte, error) {
	m, err := receiptMap(r)
	if err != nil {
		return nil, err
	}
	delete(m, "signature")

	return canonicalize.JCS(m)
}

// receiptMap round-trips the receipt through JSON into a generic map with
// UseNumber, so canonicalization sees exactly the wire representation.
func receiptMap(r *TrustReceipt) (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("contracts: receipt marshal failed: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("contracts: receipt decode failed: %w", err)
	}
	return m, nil
}

func clearChainHash(m map[string]any) {
	if chain, ok := m["chain"].(map[string]any); ok {
		chain["chain_hash"] = ""
	}
}
