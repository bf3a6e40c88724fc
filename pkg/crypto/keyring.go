package crypto

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// KeyRing holds verification keys by key_version plus one active signer,
// supporting key rotation: receipts signed under retired versions remain
// verifiable as long as their version stays on the ring.
type KeyRing struct {
	mu        sync.RWMutex
	verifiers map[string]*Verifier
	active    *Ed25519Signer
}

// NewKeyRing creates an empty keyring.
func NewKeyRing() *KeyRing {
	return &KeyRing{verifiers: make(map[string]*Verifier)}
}

// AddPublicKey registers a verification key under a key version.
func (k *KeyRing) AddPublicKey(keyVersion, pubKeyHex string) error {
	v, err := NewVerifier(pubKeyHex)
	if err != nil {
		return fmt.Errorf("keyring: %w", err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.verifiers[keyVersion] = v
	return nil
}

// SetSigner installs the active signing key and registers its public half.
func (k *KeyRing) SetSigner(s *Ed25519Signer) error {
	if s == nil {
		return &SigningError{Reason: "nil signer"}
	}
	if err := k.AddPublicKey(s.KeyVersion, s.PublicKeyHex()); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = s
	return nil
}

// RevokeKey removes a key version; receipts signed under it stop verifying.
func (k *KeyRing) RevokeKey(keyVersion string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.verifiers, keyVersion)
	if k.active != nil && k.active.KeyVersion == keyVersion {
		k.active = nil
	}
}

// KeyVersions lists registered versions in sorted order.
func (k *KeyRing) KeyVersions() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.verifiers))
	for v := range k.verifiers {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SignReceipt signs with the active key.
func (k *KeyRing) SignReceipt(r *contracts.TrustReceipt) (*contracts.TrustReceipt, error) {
	k.mu.RLock()
	s := k.active
	k.mu.RUnlock()
	if s == nil {
		return nil, &SigningError{Reason: "no active signing key"}
	}
	return s.SignReceipt(r)
}

// VerifyReceipt verifies with the key version named in the signature.
// An unknown or revoked key version yields a failed signature check, not an
// error — the result stays structured for batch pipelines.
func (k *KeyRing) VerifyReceipt(r *contracts.TrustReceipt) *VerificationResult {
	var keyVersion string
	if r != nil && r.Signature != nil {
		keyVersion = r.Signature.KeyVersion
	}

	k.mu.RLock()
	v, ok := k.verifiers[keyVersion]
	k.mu.RUnlock()

	if !ok {
		res := &VerificationResult{}
		res.Structure = CheckResult{Passed: false, Message: fmt.Sprintf("unknown or revoked key version %q", keyVersion)}
		res.Signature = CheckResult{Passed: false, Message: "no verification key available"}
		res.Chain = CheckResult{Passed: false, Message: "not checked"}
		res.Timestamp = CheckResult{Passed: false, Message: "not checked"}
		res.collectErrors()
		return res
	}
	return v.Verify(r)
}
