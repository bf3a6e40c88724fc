package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// Default timestamp tolerances. Future skew is boundary-inclusive: a receipt
// exactly maxFutureSkew ahead of the verifier clock still passes.
const (
	DefaultMaxFutureSkew = 5 * time.Minute
	DefaultMaxAge        = 365 * 24 * time.Hour
)

// CheckResult is the outcome of one independent verification check.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Message string `json:"message,omitempty"`
}

// VerificationResult is the structured outcome of verifying one receipt.
// Verification never throws: malformed input yields failed checks, not
// errors, so batch pipelines can report per-receipt detail without aborting.
type VerificationResult struct {
	Valid      bool        `json:"valid"`
	Structure  CheckResult `json:"structure"`
	Signature  CheckResult `json:"signature"`
	Chain      CheckResult `json:"chain"`
	Timestamp  CheckResult `json:"timestamp"`
	TrustScore float64     `json:"trust_score"` // informational, not a check
	Errors     []string    `json:"errors,omitempty"`
}

// Verifier independently recomputes a receipt's chain hash and checks its
// structure, signature, and timestamp. All four checks run unconditionally;
// there is no short-circuit between them.
type Verifier struct {
	pub           ed25519.PublicKey
	now           func() time.Time
	maxFutureSkew time.Duration
	maxAge        time.Duration
}

// NewVerifier creates a verifier for a hex-encoded Ed25519 public key.
func NewVerifier(pubKeyHex string) (*Verifier, error) {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: invalid public key size: %d", len(pub))
	}
	return &Verifier{
		pub:           ed25519.PublicKey(pub),
		now:           time.Now,
		maxFutureSkew: DefaultMaxFutureSkew,
		maxAge:        DefaultMaxAge,
	}, nil
}

// WithClock overrides the verifier clock for testing.
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	v.now = clock
	return v
}

// Verify runs the four checks against a current-format receipt.
func (v *Verifier) Verify(r *contracts.TrustReceipt) *VerificationResult {
	return v.verify(r, false)
}

// VerifyJSON decodes raw receipt JSON (current or legacy format) and
// verifies it. Legacy receipts are migrated first and their structure check
// reports the required migration; their chain check is skipped.
func (v *Verifier) VerifyJSON(raw []byte) *VerificationResult {
	r, v1, err := contracts.DecodeReceipt(raw)
	if err != nil {
		res := &VerificationResult{}
		res.Structure = CheckResult{Passed: false, Message: fmt.Sprintf("undecodable receipt: %v", err)}
		res.Signature = CheckResult{Passed: false, Message: "no verifiable payload"}
		res.Chain = CheckResult{Passed: false, Message: "no verifiable chain"}
		res.Timestamp = CheckResult{Passed: false, Message: "no timestamp"}
		res.collectErrors()
		return res
	}
	if v1 != nil {
		return v.verifyLegacy(v1)
	}
	return v.verify(r, false)
}

func (v *Verifier) verify(r *contracts.TrustReceipt, legacy bool) *VerificationResult {
	res := &VerificationResult{}
	if r == nil {
		res.Structure = CheckResult{Passed: false, Message: "nil receipt"}
		res.Signature = CheckResult{Passed: false, Message: "nil receipt"}
		res.Chain = CheckResult{Passed: false, Message: "nil receipt"}
		res.Timestamp = CheckResult{Passed: false, Message: "nil receipt"}
		res.collectErrors()
		return res
	}

	res.Structure = v.checkStructure(r, legacy)
	res.Signature = v.checkSignature(r)
	res.Chain = v.checkChain(r, legacy)
	res.Timestamp = v.checkTimestamp(r.Timestamp)
	res.TrustScore = TrustScore(r.Telemetry)

	res.Valid = res.Structure.Passed && res.Signature.Passed && res.Chain.Passed && res.Timestamp.Passed
	res.collectErrors()
	return res
}

func (v *Verifier) verifyLegacy(v1 *contracts.ReceiptV1) *VerificationResult {
	res := &VerificationResult{}

	res.Structure = CheckResult{
		Passed:  false,
		Message: "legacy self_hash receipt: migration to id format required",
	}

	// V1 signatures covered the bare self_hash string, not canonical bytes.
	switch {
	case v1.Signature == "":
		res.Signature = CheckResult{Passed: false, Message: "signature missing"}
	case v1.SelfHash == "":
		res.Signature = CheckResult{Passed: false, Message: "self_hash missing, nothing was signed"}
	default:
		ok := v.verifyBytes([]byte(v1.SelfHash), v1.Signature)
		res.Signature = CheckResult{Passed: ok}
		if !ok {
			res.Signature.Message = "legacy signature does not verify against self_hash"
		}
	}

	// No chain data existed in V1; informational skip, counted as passed.
	res.Chain = CheckResult{Passed: true, Skipped: true, Message: "no chain data on legacy receipt"}
	res.Timestamp = v.checkTimestamp(v1.Timestamp)

	res.Valid = false // legacy structure never passes
	res.collectErrors()
	return res
}

func (v *Verifier) checkStructure(r *contracts.TrustReceipt, legacy bool) CheckResult {
	if legacy {
		return CheckResult{Passed: false, Message: "legacy self_hash receipt: migration to id format required"}
	}
	if r.ID == "" {
		return CheckResult{Passed: false, Message: "id missing"}
	}
	if r.Signature == nil || r.Signature.Value == "" {
		return CheckResult{Passed: false, Message: "signature missing"}
	}
	if err := contracts.CheckVersion(r.Version); err != nil {
		return CheckResult{Passed: false, Message: err.Error()}
	}
	return CheckResult{Passed: true}
}

func (v *Verifier) checkSignature(r *contracts.TrustReceipt) CheckResult {
	if r.Signature == nil || r.Signature.Value == "" {
		return CheckResult{Passed: false, Message: "signature missing"}
	}

	unsigned := *r
	unsigned.Signature = nil
	payload, err := contracts.SigningBytes(&unsigned)
	if err != nil {
		return CheckResult{Passed: false, Message: fmt.Sprintf("canonicalization failed: %v", err)}
	}

	if !v.verifyBytes(payload, r.Signature.Value) {
		return CheckResult{Passed: false, Message: "signature does not verify against receipt content"}
	}
	return CheckResult{Passed: true}
}

func (v *Verifier) checkChain(r *contracts.TrustReceipt, legacy bool) CheckResult {
	if legacy && r.Chain.ChainHash == "" {
		return CheckResult{Passed: true, Skipped: true, Message: "no chain data on legacy receipt"}
	}
	if r.Chain.ChainHash == "" {
		return CheckResult{Passed: false, Message: "chain_hash missing"}
	}

	// GENESIS receipts are recomputed like any other, never skipped.
	unsigned := *r
	unsigned.Signature = nil
	recomputed, err := contracts.ChainHash(&unsigned, r.Chain.PreviousHash)
	if err != nil {
		return CheckResult{Passed: false, Message: fmt.Sprintf("chain recomputation failed: %v", err)}
	}
	if recomputed != r.Chain.ChainHash {
		return CheckResult{Passed: false, Message: "recomputed chain_hash does not match stored value"}
	}
	return CheckResult{Passed: true}
}

func (v *Verifier) checkTimestamp(ts string) CheckResult {
	if ts == "" {
		return CheckResult{Passed: false, Message: "timestamp missing"}
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return CheckResult{Passed: false, Message: fmt.Sprintf("unparseable timestamp: %v", err)}
	}

	now := v.now()
	if parsed.Sub(now) > v.maxFutureSkew {
		return CheckResult{Passed: false, Message: fmt.Sprintf("timestamp more than %s in the future", v.maxFutureSkew)}
	}
	if now.Sub(parsed) > v.maxAge {
		return CheckResult{Passed: false, Message: fmt.Sprintf("timestamp more than %s in the past", v.maxAge)}
	}
	return CheckResult{Passed: true}
}

func (v *Verifier) verifyBytes(payload []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.pub, payload, sig)
}

func (r *VerificationResult) collectErrors() {
	for _, c := range []struct {
		name  string
		check CheckResult
	}{
		{"structure", r.Structure},
		{"signature", r.Signature},
		{"chain", r.Chain},
		{"timestamp", r.Timestamp},
	} {
		if !c.check.Passed {
			msg := c.check.Message
			if msg == "" {
				msg = "check failed"
			}
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", c.name, msg))
		}
	}
}

// TrustScore derives the informational 0-100 score from telemetry: the CIQ
// average when present, the resonance score otherwise, zero when neither.
func TrustScore(t *contracts.Telemetry) float64 {
	if t == nil {
		return 0
	}
	if t.CIQMetrics != nil {
		return (t.CIQMetrics.Clarity + t.CIQMetrics.Integrity + t.CIQMetrics.Quality) / 3 * 100
	}
	if t.ResonanceScore != nil {
		return *t.ResonanceScore * 100
	}
	return 0
}
