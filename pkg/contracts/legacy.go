package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ReceiptV1 is the legacy receipt format: self_hash instead of id, a bare
// hex string signature covering the self_hash, flat prompt/response hashes,
// and a loose scores map instead of structured telemetry. Kept as an
// explicit type (not nullable fields on TrustReceipt) so callers handle the
// two formats as a tagged union.
type ReceiptV1 struct {
	SelfHash        string             `json:"self_hash"`
	Version         string             `json:"version"`
	Timestamp       string             `json:"timestamp"`
	SessionID       string             `json:"session_id"`
	AgentID         string             `json:"agent_id,omitempty"`
	Model           string             `json:"model,omitempty"`
	PromptHash      string             `json:"prompt_hash"`
	ResponseHash    string             `json:"response_hash"`
	Scores          map[string]float64 `json:"scores,omitempty"`
	PrevReceiptHash string             `json:"prev_receipt_hash,omitempty"`
	Signature       string             `json:"signature,omitempty"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
}

// Migrate lifts a legacy receipt into the current format. The legacy
// self_hash becomes the id; the bare signature string becomes a structured
// signature with key_version "legacy"; chain data stays absent (zero Chain)
// because V1 receipts carried no chain hash to verify.
func (v1 *ReceiptV1) Migrate() *TrustReceipt {
	r := &TrustReceipt{
		ID:        v1.SelfHash,
		Version:   v1.Version,
		Timestamp: v1.Timestamp,
		SessionID: v1.SessionID,
		AgentDID:  v1.AgentID,
		Interaction: Interaction{
			PromptHash:   v1.PromptHash,
			ResponseHash: v1.ResponseHash,
			Model:        v1.Model,
		},
		Metadata: v1.Metadata,
	}
	r.Chain.PreviousHash = v1.PrevReceiptHash

	if len(v1.Scores) > 0 {
		t := &Telemetry{}
		if s, ok := v1.Scores["resonance_score"]; ok {
			t.ResonanceScore = Float(s)
		}
		if s, ok := v1.Scores["coherence_score"]; ok {
			t.CoherenceScore = Float(s)
		}
		if s, ok := v1.Scores["truth_debt"]; ok {
			t.TruthDebt = Float(s)
		}
		r.Telemetry = t
	}

	if v1.Signature != "" {
		r.Signature = &Signature{
			Algorithm:  SignatureAlgorithm,
			Value:      v1.Signature,
			KeyVersion: "legacy",
		}
	}
	return r
}

// DecodeReceipt sniffs the wire format of raw receipt JSON. Exactly one of
// the two returns is non-nil on success: a current-format receipt, or a
// legacy V1 receipt awaiting migration.
func DecodeReceipt(raw []byte) (*TrustReceipt, *ReceiptV1, error) {
	var probe struct {
		ID        string          `json:"id"`
		SelfHash  string          `json:"self_hash"`
		Signature json.RawMessage `json:"signature"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, nil, fmt.Errorf("contracts: receipt decode failed: %w", err)
	}

	legacy := probe.ID == "" && probe.SelfHash != ""
	if !legacy && len(probe.Signature) > 0 && bytes.HasPrefix(bytes.TrimSpace(probe.Signature), []byte(`"`)) {
		// String-typed signature is the other legacy marker.
		legacy = true
	}

	if legacy {
		var v1 ReceiptV1
		if err := json.Unmarshal(raw, &v1); err != nil {
			return nil, nil, fmt.Errorf("contracts: legacy receipt decode failed: %w", err)
		}
		return nil, &v1, nil
	}

	var r TrustReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, nil, fmt.Errorf("contracts: receipt decode failed: %w", err)
	}
	return &r, nil, nil
}
