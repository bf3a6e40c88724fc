// Package contracts defines the wire-stable data model shared by every
// component of the trust-receipt pipeline: the receipt itself, its legacy
// predecessor, and the policy-side entities.
package contracts

// GenesisHash is the sentinel previous_hash for the first receipt in a
// session chain. The chain hash of a genesis receipt is still computed, so
// the first receipt is independently verifiable.
const GenesisHash = "GENESIS"

// ReceiptVersion is the version stamped on newly built receipts.
const ReceiptVersion = "2.0.0"

// SignatureAlgorithm is the only signature algorithm receipts carry.
const SignatureAlgorithm = "Ed25519"

// TrustReceipt is the canonical unit of record: a tamper-evident,
// hash-chained, Ed25519-signed record of one AI interaction.
//
// Immutable once signed; lifecycle is create -> persist -> verify.
type TrustReceipt struct {
	// ID is the SHA-256 content hash of the receipt without its id,
	// signature, and chain_hash. Computed once, before chain hashing.
	ID        string `json:"id,omitempty"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"` // ISO-8601 / RFC 3339
	SessionID string `json:"session_id"`
	AgentDID  string `json:"agent_did,omitempty"`
	HumanDID  string `json:"human_did,omitempty"`

	Interaction Interaction `json:"interaction"`
	Telemetry   *Telemetry  `json:"telemetry,omitempty"`
	Chain       Chain       `json:"chain"`
	Signature   *Signature  `json:"signature,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Interaction carries the prompt/response pair either as raw text or as a
// privacy-preserving content hash. Model is always required; raw text and
// hash are never both required.
type Interaction struct {
	Prompt       string `json:"prompt,omitempty"`
	PromptHash   string `json:"prompt_hash,omitempty"`
	Response     string `json:"response,omitempty"`
	ResponseHash string `json:"response_hash,omitempty"`
	Model        string `json:"model"`
}

// Telemetry holds optional governance scores attached at creation time.
// Pointer fields distinguish "absent" from zero.
type Telemetry struct {
	ResonanceScore *float64    `json:"resonance_score,omitempty"`
	CoherenceScore *float64    `json:"coherence_score,omitempty"`
	TruthDebt      *float64    `json:"truth_debt,omitempty"`
	CIQMetrics     *CIQMetrics `json:"ciq_metrics,omitempty"`
}

// CIQMetrics is the clarity/integrity/quality score triple, each in [0,1].
type CIQMetrics struct {
	Clarity   float64 `json:"clarity"`
	Integrity float64 `json:"integrity"`
	Quality   float64 `json:"quality"`
}

// Chain links a receipt to its per-session predecessor, forming an
// append-only singly-linked list. chain_hash binds the full receipt content
// (including id) to previous_hash; tampering with any predecessor breaks
// every downstream chain hash on recomputation.
type Chain struct {
	PreviousHash string `json:"previous_hash"`
	ChainHash    string `json:"chain_hash"`
	ChainLength  int    `json:"chain_length"`
}

// Signature is the detached Ed25519 signature over the canonical form of the
// receipt without its signature field, chain_hash already populated.
type Signature struct {
	Algorithm       string `json:"algorithm"`
	Value           string `json:"value"` // lowercase hex, 64-byte signature
	KeyVersion      string `json:"key_version"`
	TimestampSigned string `json:"timestamp_signed"`
}

// Float pointer helper for telemetry construction.
func Float(v float64) *float64 { return &v }
