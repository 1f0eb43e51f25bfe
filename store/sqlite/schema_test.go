package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

func TestSchema_TransactionsAreAppendOnly(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	user := ledger.UserID("b0000000-0000-4000-8000-000000000001")
	require.NoError(t, store.SaveUser(ctx, ledger.User{ID: user, Name: "T", Email: "t@example.com", Role: ledger.RoleResident, Active: true}))
	tx, err := store.Append(ctx, ledger.Transaction{UserID: user, Amount: 50, Type: ledger.TxSignupBonus, Status: ledger.StatusCompleted})
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", int64(tx.ID))
	assert.Error(t, err, "delete must be refused")

	_, err = store.db.ExecContext(ctx, "UPDATE transactions SET amount = 5000 WHERE id = ?", int64(tx.ID))
	assert.Error(t, err, "amount must be immutable")

	_, err = store.db.ExecContext(ctx, "UPDATE transactions SET status = 'failed' WHERE id = ?", int64(tx.ID))
	assert.Error(t, err, "completed entries never change status")

	stored, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(50), stored.Amount)
	assert.Equal(t, ledger.StatusCompleted, stored.Status)
}

func TestMigrate_Idempotent(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	assert.NoError(t, store.migrate())
}
