package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresReceiptStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trust_receipts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewPostgresReceiptStore(db)
	require.NoError(t, err)
	return s, mock
}

func TestPostgresReceiptStoreSave(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := storedReceipt("r-1", "s-1", 1)
	payload, err := json.Marshal(r)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trust_receipts")).
		WithArgs(r.ID, "tenant-a", r.SessionID, r.Version, r.Timestamp,
			r.Chain.PreviousHash, r.Chain.ChainHash, r.Chain.ChainLength, string(payload)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), r, "tenant-a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReceiptStoreGetBySession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	r1 := storedReceipt("r-1", "s-1", 1)
	r2 := storedReceipt("r-2", "s-1", 2)
	p1, _ := json.Marshal(r1)
	p2, _ := json.Marshal(r2)

	mock.ExpectQuery("SELECT payload FROM trust_receipts").
		WithArgs("tenant-a", "s-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(p1).AddRow(p2))

	chain, err := s.GetBySession(context.Background(), "s-1", "tenant-a")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "r-1", chain[0].ID)
	assert.Equal(t, "r-2", chain[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReceiptStoreGetLastForSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	head := storedReceipt("r-3", "s-1", 3)
	payload, _ := json.Marshal(head)

	mock.ExpectQuery("SELECT payload FROM trust_receipts").
		WithArgs("tenant-a", "s-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := s.GetLastForSession(context.Background(), "s-1", "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r-3", got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReceiptStoreGetLastForSessionEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT payload FROM trust_receipts").
		WithArgs("tenant-a", "s-empty").
		WillReturnError(sql.ErrNoRows)

	got, err := s.GetLastForSession(context.Background(), "s-empty", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReceiptStoreSaveFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := storedReceipt("r-1", "s-1", 1)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trust_receipts")).
		WillReturnError(sql.ErrConnDone)

	assert.Error(t, s.Save(context.Background(), r, "tenant-a"))
}
