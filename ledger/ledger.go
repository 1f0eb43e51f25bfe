/*
ledger.go - Append-only points log

PURPOSE:
  The Ledger is the source of truth for every point movement. Balances are
  computed by folding transactions; there is no balance column that can
  drift from the log.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never deleted.
  2. IMMUTABLE: amount, type and owner never change.
  3. SIGNED BY TYPE: credits >= 0, redemption debits <= 0.
  4. BORN IN THE RIGHT STATE: bonuses and reversals completed,
     redemption requests pending.

CORRECTIONS:
  A rejected redemption is not deleted or flipped. The original entry moves
  to failed and a redemption_rejected credit of the same magnitude is
  appended. Both remain in the history.

SEE ALSO:
  - projection.go: Fold from transactions to balance figures
  - store.go: Low-level persistence interface
*/
package ledger

import (
	"context"
	"fmt"
)

// Ledger validates entries before they reach the Store.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// HistoryPage is one page of a user's transactions.
type HistoryPage struct {
	Transactions []Transaction
	Total        int
	Limit        int
	Offset       int
}

// Validate checks the type, sign and initial status of a new entry.
func Validate(tx Transaction) error {
	if tx.UserID == "" {
		return &ValidationError{Field: "user_id", Value: tx.UserID, Reason: "is required"}
	}
	if !tx.Type.Valid() {
		return &ValidationError{Field: "type", Value: tx.Type, Reason: "unknown transaction type"}
	}
	if tx.Type.IsCredit() && tx.Amount < 0 {
		return &ValidationError{Field: "amount", Value: tx.Amount, Reason: fmt.Sprintf("%s must not be negative", tx.Type)}
	}
	if !tx.Type.IsCredit() && tx.Amount > 0 {
		return &ValidationError{Field: "amount", Value: tx.Amount, Reason: fmt.Sprintf("%s must not be positive", tx.Type)}
	}
	if want := tx.Type.InitialStatus(); tx.Status != want {
		return &ValidationError{Field: "status", Value: tx.Status, Reason: fmt.Sprintf("%s must be created %s", tx.Type, want)}
	}
	if tx.Type == TxReportResolved && tx.RelatedReportID == "" {
		return &ValidationError{Field: "report_id", Value: "", Reason: "is required for report_resolved"}
	}
	return nil
}

// Append validates tx, checks that its owner exists and persists it.
// The stored entry is returned with its assigned ID and CreatedAt.
func (l *Ledger) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	if err := Validate(tx); err != nil {
		return Transaction{}, err
	}
	user, err := l.store.GetUser(ctx, tx.UserID)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return Transaction{}, &ValidationError{Field: "user_id", Value: tx.UserID, Reason: "user does not exist"}
	}
	return l.store.Append(ctx, tx)
}

// ListByUser returns a reverse-chronological page of the user's history.
// Ordering is by the store-assigned ID, never by timestamp, so two reads of
// an unchanged history always page identically.
func (l *Ledger) ListByUser(ctx context.Context, userID UserID, page Page) (HistoryPage, error) {
	page, err := page.Normalize()
	if err != nil {
		return HistoryPage{}, err
	}
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return HistoryPage{}, &NotFoundError{Resource: "user", ID: string(userID)}
	}

	txs, total, err := l.store.ListByUser(ctx, userID, page)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("failed to list transactions: %w", err)
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return HistoryPage{Transactions: txs, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}
