/*
store.go - Persistence interfaces for users, transactions and decisions

PURPOSE:
  Defines the boundary between ledger/rewards logic and the database.
  Implementations: ledger/store (memory), store/sqlite, store/postgres.

APPEND-ONLY CONTRACT:
  Transactions are inserted once. The single mutation is UpdateStatus,
  which is conditional on the current status so a transaction can only
  leave pending once. There is no delete.

UNIQUENESS:
  Stores enforce, at the storage level:
  - one signup_bonus per user
  - one report_resolved per (user, report)
  and report violations as ErrDuplicateAward.

ATOMICITY:
  TxStore.WithTx runs a check-then-write sequence so that no other writer
  for the same user can interleave. LockUser takes the per-user lock where
  the backend needs one explicitly (Postgres row lock).

SEE ALSO:
  - ledger.go: Validation on top of Store.Append
  - rewards/redemption.go: Uses WithTx for the balance and cap checks
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// USER STORE
// =============================================================================

type UserStore interface {
	// GetUser returns nil, nil when the user does not exist.
	GetUser(ctx context.Context, id UserID) (*User, error)

	// SaveUser inserts or updates a user profile.
	SaveUser(ctx context.Context, u User) error

	// MarkFirstLogin sets FirstLoginAt when it is still null.
	// Returns false when it was already set.
	MarkFirstLogin(ctx context.Context, id UserID, at time.Time) (bool, error)

	// LockUser serializes writers for one user until the surrounding
	// WithTx ends. Outside WithTx it is a no-op.
	LockUser(ctx context.Context, id UserID) error

	// EnsureBaseline creates the zero balance row if it is missing.
	EnsureBaseline(ctx context.Context, id UserID) error

	HasBaseline(ctx context.Context, id UserID) (bool, error)
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

type TransactionStore interface {
	// Append inserts tx, assigning ID and (if zero) CreatedAt.
	// Returns ErrDuplicateAward on a bonus uniqueness violation.
	Append(ctx context.Context, tx Transaction) (Transaction, error)

	// GetTransaction returns nil, nil when the transaction does not exist.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// LoadByUser returns every transaction for the user in ID order.
	LoadByUser(ctx context.Context, userID UserID) ([]Transaction, error)

	// ListByUser returns one page of the user's history, newest first,
	// plus the total number of transactions.
	ListByUser(ctx context.Context, userID UserID, page Page) ([]Transaction, int, error)

	// FindReportAward returns the report_resolved entry for (user, report), or nil.
	FindReportAward(ctx context.Context, userID UserID, reportID string) (*Transaction, error)

	// SumRedemptions returns the total debited points of redemption_approved
	// entries with one of the given statuses created in [from, to).
	SumRedemptions(ctx context.Context, userID UserID, statuses []Status, from, to time.Time) (Points, error)

	// UpdateStatus moves a transaction from one status to another and records
	// the processing admin. Returns ErrConcurrentModification when the
	// transaction is no longer in status from.
	UpdateStatus(ctx context.Context, id TransactionID, from, to Status, processedBy UserID) error

	// ListRedemptions returns redemption requests joined with user profiles,
	// newest first, plus the total matching the filter.
	ListRedemptions(ctx context.Context, filter RedemptionFilter) ([]RedemptionView, int, error)
}

// =============================================================================
// AUDIT LOG - Separate from ledger, tracks who decided what
// =============================================================================

type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, txID TransactionID) ([]AuditEntry, error)
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	UserStore
	TransactionStore
	AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
