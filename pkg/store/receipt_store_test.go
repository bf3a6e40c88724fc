package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

func storedReceipt(id, sessionID string, length int) *contracts.TrustReceipt {
	prev := contracts.GenesisHash
	if length > 1 {
		prev = fmt.Sprintf("chain-%d", length-1)
	}
	return &contracts.TrustReceipt{
		ID:        id,
		Version:   contracts.ReceiptVersion,
		Timestamp: "2026-08-01T12:00:00Z",
		SessionID: sessionID,
		Interaction: contracts.Interaction{
			PromptHash:   "aa",
			ResponseHash: "bb",
			Model:        "gpt-test",
		},
		Chain: contracts.Chain{
			PreviousHash: prev,
			ChainHash:    fmt.Sprintf("chain-%d", length),
			ChainLength:  length,
		},
		Signature: &contracts.Signature{
			Algorithm:  contracts.SignatureAlgorithm,
			Value:      "cafe",
			KeyVersion: "v1",
		},
	}
}

// exerciseStore runs the shared contract against any ReceiptStore.
func exerciseStore(t *testing.T, s ReceiptStore) {
	t.Helper()
	ctx := context.Background()

	head, err := s.GetLastForSession(ctx, "s-1", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, head, "empty session has no chain head")

	// Insert out of chain order; reads must come back ordered.
	require.NoError(t, s.Save(ctx, storedReceipt("r-2", "s-1", 2), "tenant-a"))
	require.NoError(t, s.Save(ctx, storedReceipt("r-1", "s-1", 1), "tenant-a"))
	require.NoError(t, s.Save(ctx, storedReceipt("r-3", "s-1", 3), "tenant-a"))
	require.NoError(t, s.Save(ctx, storedReceipt("r-other", "s-2", 1), "tenant-a"))
	require.NoError(t, s.Save(ctx, storedReceipt("r-foreign", "s-1", 1), "tenant-b"))

	chain, err := s.GetBySession(ctx, "s-1", "tenant-a")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []string{"r-1", "r-2", "r-3"}, []string{chain[0].ID, chain[1].ID, chain[2].ID})
	assert.Equal(t, contracts.GenesisHash, chain[0].Chain.PreviousHash)
	assert.Equal(t, "gpt-test", chain[0].Interaction.Model, "full payload round-trips")
	require.NotNil(t, chain[0].Signature)
	assert.Equal(t, "v1", chain[0].Signature.KeyVersion)

	head, err = s.GetLastForSession(ctx, "s-1", "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "r-3", head.ID)
	assert.Equal(t, 3, head.Chain.ChainLength)

	// Tenant isolation.
	foreign, err := s.GetBySession(ctx, "s-1", "tenant-b")
	require.NoError(t, err)
	require.Len(t, foreign, 1)
	assert.Equal(t, "r-foreign", foreign[0].ID)

	assert.Error(t, s.Save(ctx, nil, "tenant-a"))
}

func TestMemoryReceiptStore(t *testing.T) {
	exerciseStore(t, NewMemoryReceiptStore())
}

func TestMemoryReceiptStoreCopiesOnSave(t *testing.T) {
	s := NewMemoryReceiptStore()
	r := storedReceipt("r-1", "s-1", 1)
	require.NoError(t, s.Save(context.Background(), r, ""))

	r.SessionID = "mutated-after-save"
	chain, err := s.GetBySession(context.Background(), "s-1", "")
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "s-1", chain[0].SessionID)
}
