// Package crypto signs and verifies trust receipts with Ed25519 over the
// shared canonical byte form. Signing failures are fatal typed errors;
// verification never fails with an error — it always returns a structured
// per-check result.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// SigningError reports bad or missing key material or an unsignable receipt.
// Fatal; callers do not retry.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("signing failed: %s", e.Reason)
}

func (e *SigningError) Unwrap() error { return e.Err }

// Ed25519Signer signs receipts with a single keypair identified by
// KeyVersion (key rotation is handled one level up by KeyRing).
type Ed25519Signer struct {
	priv       ed25519.PrivateKey
	pub        ed25519.PublicKey
	KeyVersion string

	now func() time.Time
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer(keyVersion string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, &SigningError{Reason: "key generation failed", Err: err}
	}
	return &Ed25519Signer{priv: priv, pub: pub, KeyVersion: keyVersion, now: time.Now}, nil
}

// NewEd25519SignerFromSeed reconstructs a signer from a 32-byte hex seed.
// RFC 8032 key derivation makes the resulting signatures byte-stable for a
// given (seed, message) pair, which audit replay relies on.
func NewEd25519SignerFromSeed(seedHex, keyVersion string) (*Ed25519Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, &SigningError{Reason: "invalid seed hex", Err: err}
	}
	if len(seed) != ed25519.SeedSize {
		return nil, &SigningError{Reason: fmt.Sprintf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))}
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{
		priv:       priv,
		pub:        priv.Public().(ed25519.PublicKey),
		KeyVersion: keyVersion,
		now:        time.Now,
	}, nil
}

// WithClock overrides the timestamp_signed source for testing.
func (s *Ed25519Signer) WithClock(clock func() time.Time) *Ed25519Signer {
	s.now = clock
	return s
}

// Sign signs raw bytes and returns the lowercase hex of the 64-byte signature.
func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	if len(s.priv) != ed25519.PrivateKeySize {
		return "", &SigningError{Reason: "missing or malformed private key"}
	}
	return hex.EncodeToString(ed25519.Sign(s.priv, data)), nil
}

// PublicKeyHex returns the hex-encoded public key for distribution.
func (s *Ed25519Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

// PublicKeyBytes returns the raw public key.
func (s *Ed25519Signer) PublicKeyBytes() []byte {
	return s.pub
}

// SignReceipt produces a signed copy of r. The input must already carry its
// chain_hash (signing happens strictly after chain-hash computation) and is
// not mutated; receipts are immutable once created.
func (s *Ed25519Signer) SignReceipt(r *contracts.TrustReceipt) (*contracts.TrustReceipt, error) {
	if r == nil {
		return nil, &SigningError{Reason: "nil receipt"}
	}
	if r.Chain.ChainHash == "" {
		return nil, &SigningError{Reason: "receipt has no chain_hash; chain before signing"}
	}

	signed := *r
	signed.Signature = nil

	payload, err := contracts.SigningBytes(&signed)
	if err != nil {
		return nil, &SigningError{Reason: "canonicalization failed", Err: err}
	}

	sig, err := s.Sign(payload)
	if err != nil {
		return nil, err
	}

	signed.Signature = &contracts.Signature{
		Algorithm:       contracts.SignatureAlgorithm,
		Value:           sig,
		KeyVersion:      s.KeyVersion,
		TimestampSigned: s.now().UTC().Format(time.RFC3339Nano),
	}
	return &signed, nil
}

// VerifyHex verifies a hex signature over data against a hex public key.
func VerifyHex(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size: %d", len(pubKey))
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), data, sig), nil
}
