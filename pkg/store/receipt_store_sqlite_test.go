package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteReceiptStore(t *testing.T) {
	s, err := OpenSQLiteReceiptStore(":memory:")
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestSQLiteReceiptStoreRejectsDuplicateID(t *testing.T) {
	s, err := OpenSQLiteReceiptStore(":memory:")
	require.NoError(t, err)
	ctx := context.Background()

	r := storedReceipt("r-dup", "s-1", 1)
	require.NoError(t, s.Save(ctx, r, "tenant-a"))
	assert.Error(t, s.Save(ctx, r, "tenant-a"), "receipts are immutable, insert-only")

	// Same id under another tenant is a different row.
	assert.NoError(t, s.Save(ctx, r, "tenant-b"))
}

func TestSQLiteReceiptStoreMigrateIdempotent(t *testing.T) {
	s, err := OpenSQLiteReceiptStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.migrate())
	require.NoError(t, s.migrate())
}
