// Package store persists signed trust receipts. The pipeline only needs
// Save and session retrieval; schema and storage engine stay behind this
// interface.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// ErrNotFound is returned when no receipt matches.
var ErrNotFound = errors.New("store: receipt not found")

// ReceiptStore is the persistence collaborator for signed receipts.
// Receipts are immutable: Save is insert-only, never upsert.
type ReceiptStore interface {
	Save(ctx context.Context, r *contracts.TrustReceipt, tenant string) error
	// GetBySession returns a session's receipts in chain order.
	GetBySession(ctx context.Context, sessionID, tenant string) ([]*contracts.TrustReceipt, error)
	// GetLastForSession returns the chain head for appending, or
	// (nil, nil) when the session has no receipts yet.
	GetLastForSession(ctx context.Context, sessionID, tenant string) (*contracts.TrustReceipt, error)
}

// MemoryReceiptStore is a transient ReceiptStore for tests and demos.
type MemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts map[string]map[string][]*contracts.TrustReceipt // tenant -> session -> chain
}

// NewMemoryReceiptStore creates an empty in-memory store.
func NewMemoryReceiptStore() *MemoryReceiptStore {
	return &MemoryReceiptStore{receipts: make(map[string]map[string][]*contracts.TrustReceipt)}
}

// Save appends the receipt to its tenant/session bucket.
func (s *MemoryReceiptStore) Save(_ context.Context, r *contracts.TrustReceipt, tenant string) error {
	if r == nil {
		return errors.New("store: nil receipt")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, ok := s.receipts[tenant]
	if !ok {
		sessions = make(map[string][]*contracts.TrustReceipt)
		s.receipts[tenant] = sessions
	}
	copied := *r
	sessions[r.SessionID] = append(sessions[r.SessionID], &copied)
	return nil
}

// GetBySession returns the session chain ordered by chain_length.
func (s *MemoryReceiptStore) GetBySession(_ context.Context, sessionID, tenant string) ([]*contracts.TrustReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.receipts[tenant][sessionID]
	out := make([]*contracts.TrustReceipt, len(chain))
	copy(out, chain)
	sort.Slice(out, func(i, j int) bool { return out[i].Chain.ChainLength < out[j].Chain.ChainLength })
	return out, nil
}

// GetLastForSession returns the chain head or (nil, nil).
func (s *MemoryReceiptStore) GetLastForSession(ctx context.Context, sessionID, tenant string) (*contracts.TrustReceipt, error) {
	chain, err := s.GetBySession(ctx, sessionID, tenant)
	if err != nil || len(chain) == 0 {
		return nil, err
	}
	return chain[len(chain)-1], nil
}
