// Package receipt assembles trust receipts: validation, content hashing,
// content-addressed identity, and hash-chain linkage. Signing lives in
// pkg/crypto; the builder produces the unsigned receipt the signer consumes.
package receipt

import (
	"fmt"
	"time"

	"github.com/sonate-labs/sonate/core/pkg/canonicalize"
	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// ValidationError reports malformed interaction input. Fatal, never retried;
// surfaced before any hashing occurs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("receipt validation failed: %s: %s", e.Field, e.Reason)
}

// Input is everything needed to build one receipt. Raw prompt/response text
// and pre-computed hashes are alternatives; model is always required.
// PreviousHash/PreviousLength come from the session's latest receipt, or are
// zero for the first receipt in a session.
type Input struct {
	SessionID string `json:"session_id"`
	AgentDID  string `json:"agent_did,omitempty"`
	HumanDID  string `json:"human_did,omitempty"`

	Prompt       string `json:"prompt,omitempty"`
	PromptHash   string `json:"prompt_hash,omitempty"`
	Response     string `json:"response,omitempty"`
	ResponseHash string `json:"response_hash,omitempty"`
	Model        string `json:"model"`

	Telemetry *contracts.Telemetry `json:"telemetry,omitempty"`
	Metadata  map[string]any       `json:"metadata,omitempty"`

	PreviousHash   string `json:"previous_hash,omitempty"`
	PreviousLength int    `json:"previous_length,omitempty"`
}

// Builder constructs receipts with a fixed configuration. Safe for
// concurrent use; it holds no mutable state.
type Builder struct {
	now           func() time.Time
	normalizeText bool
	retainContent bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the timestamp source for testing.
func WithClock(clock func() time.Time) Option {
	return func(b *Builder) { b.now = clock }
}

// WithContentNormalization applies NFC text normalization to raw prompt and
// response text before hashing, so cosmetically different transcripts of the
// same content hash identically.
func WithContentNormalization() Option {
	return func(b *Builder) { b.normalizeText = true }
}

// WithContentRetention keeps the raw prompt/response text on the receipt
// alongside the privacy-preserving hashes. Default is hash-only.
func WithContentRetention() Option {
	return func(b *Builder) { b.retainContent = true }
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates the input and produces an unsigned receipt with id,
// chain_hash, and chain_length populated.
//
// Order is load-bearing: id is computed over the receipt WITHOUT id and with
// an empty chain_hash; chain_hash is then computed over the receipt WITH id
// (chain_hash still empty) concatenated with previous_hash. The signer later
// covers the receipt with chain_hash populated.
func (b *Builder) Build(in Input) (*contracts.TrustReceipt, error) {
	if err := b.validate(in); err != nil {
		return nil, err
	}

	interaction, err := b.buildInteraction(in)
	if err != nil {
		return nil, err
	}

	previousHash := in.PreviousHash
	if previousHash == "" {
		previousHash = contracts.GenesisHash
	}

	r := &contracts.TrustReceipt{
		Version:     contracts.ReceiptVersion,
		Timestamp:   b.now().UTC().Format(time.RFC3339Nano),
		SessionID:   in.SessionID,
		AgentDID:    in.AgentDID,
		HumanDID:    in.HumanDID,
		Interaction: interaction,
		Telemetry:   in.Telemetry,
		Metadata:    in.Metadata,
		Chain: contracts.Chain{
			PreviousHash: previousHash,
			ChainHash:    "",
			ChainLength:  in.PreviousLength + 1,
		},
	}

	id, err := contracts.IdentityHash(r)
	if err != nil {
		return nil, fmt.Errorf("receipt: identity hash failed: %w", err)
	}
	r.ID = id

	chainHash, err := contracts.ChainHash(r, previousHash)
	if err != nil {
		return nil, fmt.Errorf("receipt: chain hash failed: %w", err)
	}
	r.Chain.ChainHash = chainHash

	return r, nil
}

func (b *Builder) validate(in Input) error {
	if in.Model == "" {
		return &ValidationError{Field: "interaction.model", Reason: "required"}
	}
	if in.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "required"}
	}
	if in.Prompt == "" && in.PromptHash == "" {
		return &ValidationError{Field: "interaction.prompt", Reason: "either prompt or prompt_hash is required"}
	}
	if in.Response == "" && in.ResponseHash == "" {
		return &ValidationError{Field: "interaction.response", Reason: "either response or response_hash is required"}
	}
	if in.PreviousLength < 0 {
		return &ValidationError{Field: "chain.chain_length", Reason: "previous length must not be negative"}
	}
	return nil
}

func (b *Builder) buildInteraction(in Input) (contracts.Interaction, error) {
	interaction := contracts.Interaction{
		Model:        in.Model,
		PromptHash:   in.PromptHash,
		ResponseHash: in.ResponseHash,
	}

	if in.Prompt != "" {
		text := in.Prompt
		if b.normalizeText {
			text = canonicalize.NormalizeText(text)
		}
		h, err := canonicalize.CanonicalHash(text)
		if err != nil {
			return contracts.Interaction{}, fmt.Errorf("receipt: prompt hash failed: %w", err)
		}
		interaction.PromptHash = h
		if b.retainContent {
			interaction.Prompt = text
		}
	}

	if in.Response != "" {
		text := in.Response
		if b.normalizeText {
			text = canonicalize.NormalizeText(text)
		}
		h, err := canonicalize.CanonicalHash(text)
		if err != nil {
			return contracts.Interaction{}, fmt.Errorf("receipt: response hash failed: %w", err)
		}
		interaction.ResponseHash = h
		if b.retainContent {
			interaction.Response = text
		}
	}

	return interaction, nil
}

// Next builds the successor of prev within the same session, carrying the
// chain forward (previous_hash = prev.chain_hash, length incremented).
func (b *Builder) Next(prev *contracts.TrustReceipt, in Input) (*contracts.TrustReceipt, error) {
	if prev == nil {
		return b.Build(in)
	}
	if prev.Chain.ChainHash == "" {
		return nil, &ValidationError{Field: "chain.previous_hash", Reason: "predecessor has no chain hash"}
	}
	in.SessionID = prev.SessionID
	in.PreviousHash = prev.Chain.ChainHash
	in.PreviousLength = prev.Chain.ChainLength
	return b.Build(in)
}
