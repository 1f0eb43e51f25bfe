package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanjamaica/rewards-ledger/ledger"
	"github.com/cleanjamaica/rewards-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*ledger.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveUser(context.Background(), ledger.User{
		ID: alice, Name: "Alice", Email: "alice@example.com", Role: ledger.RoleResident, Active: true,
	}))
	return ledger.New(mem), mem
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_SignAndInitialStatus(t *testing.T) {
	tests := []struct {
		name string
		tx   ledger.Transaction
		ok   bool
	}{
		{"signup credit", entry(50, ledger.TxSignupBonus, ledger.StatusCompleted), true},
		{"negative signup", entry(-50, ledger.TxSignupBonus, ledger.StatusCompleted), false},
		{"positive redemption", entry(500, ledger.TxRedemption, ledger.StatusPending), false},
		{"redemption born completed", entry(-500, ledger.TxRedemption, ledger.StatusCompleted), false},
		{"reversal born pending", entry(500, ledger.TxRedemptionRejected, ledger.StatusPending), false},
		{"report without reference", entry(100, ledger.TxReportResolved, ledger.StatusCompleted), false},
		{"unknown type", entry(10, ledger.TransactionType("gift"), ledger.StatusCompleted), false},
		{"missing user", ledger.Transaction{Amount: 10, Type: ledger.TxSignupBonus, Status: ledger.StatusCompleted}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.Validate(tt.tx)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
}

// =============================================================================
// APPEND
// =============================================================================

func TestLedgerAppend_AssignsIncreasingIDs(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Append(ctx, entry(50, ledger.TxSignupBonus, ledger.StatusCompleted))
	require.NoError(t, err)
	second, err := l.Append(ctx, entry(-500, ledger.TxRedemption, ledger.StatusPending))
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestLedgerAppend_UnknownUserRejected(t *testing.T) {
	// GIVEN: No user bob
	// WHEN: Appending a credit for bob
	// THEN: ValidationError and nothing is stored

	l, mem := newTestLedger(t)
	ctx := context.Background()
	bob := ledger.UserID("9f1c1f0e-1111-4b1b-8a8a-222233334444")

	_, err := l.Append(ctx, ledger.Transaction{UserID: bob, Amount: 50, Type: ledger.TxSignupBonus, Status: ledger.StatusCompleted})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	txs, err := mem.LoadByUser(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedgerAppend_SecondSignupIsDuplicate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, entry(50, ledger.TxSignupBonus, ledger.StatusCompleted))
	require.NoError(t, err)
	_, err = l.Append(ctx, entry(50, ledger.TxSignupBonus, ledger.StatusCompleted))
	assert.ErrorIs(t, err, ledger.ErrDuplicateAward)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestLedgerListByUser_NewestFirstWithTotal(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, entry(50, ledger.TxSignupBonus, ledger.StatusCompleted))
	require.NoError(t, err)
	for _, report := range []string{"r-1", "r-2", "r-3"} {
		_, err := l.Append(ctx, ledger.Transaction{
			UserID: alice, Amount: 25, Type: ledger.TxReportResolved,
			Status: ledger.StatusCompleted, RelatedReportID: report,
		})
		require.NoError(t, err)
	}

	page, err := l.ListByUser(ctx, alice, ledger.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "r-3", page.Transactions[0].RelatedReportID)
	assert.Equal(t, "r-2", page.Transactions[1].RelatedReportID)

	rest, err := l.ListByUser(ctx, alice, ledger.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest.Transactions, 2)
	assert.Equal(t, ledger.TxSignupBonus, rest.Transactions[1].Type)
}

func TestLedgerListByUser_Defaults(t *testing.T) {
	l, _ := newTestLedger(t)

	page, err := l.ListByUser(context.Background(), alice, ledger.Page{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, ledger.MaxPageLimit, page.Limit)
	assert.NotNil(t, page.Transactions)
	assert.Empty(t, page.Transactions)

	_, err = l.ListByUser(context.Background(), alice, ledger.Page{Offset: -1})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestLedgerListByUser_UnknownUser(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.ListByUser(context.Background(), ledger.UserID("nobody"), ledger.Page{})
	assert.True(t, ledger.IsNotFound(err))
}
