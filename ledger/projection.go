package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// BALANCE - Derived figures for one user
// =============================================================================

// Balance is always re-derivable by replaying the user's transactions.
type Balance struct {
	UserID            UserID
	Current           Points // sum of settled amounts (see Fold)
	LifetimeEarned    Points // positive completed amounts, reversals excluded
	LifetimeRedeemed  Points // |negative completed amounts|
	PendingRedemption Points // |pending redemption debits|
}

// Spendable is the current balance minus points already held by pending
// redemption requests, floored at zero. Without reservation, pending
// requests may add up to more than the current balance.
func (b Balance) Spendable() Points {
	if b.PendingRedemption >= b.Current {
		return 0
	}
	return b.Current - b.PendingRedemption
}

// Fold computes the balance figures from a user's transactions.
//
// A rejected redemption leaves two rows: the debit, now failed, and a
// completed redemption_rejected credit of the same size. The failed debit is
// settled against that credit, so Current returns to its value before the
// request and neither row touches the lifetime figures. Pending debits only
// count toward PendingRedemption.
func Fold(userID UserID, txs []Transaction) Balance {
	b := Balance{UserID: userID}
	for _, tx := range txs {
		switch tx.Status {
		case StatusCompleted:
			b.Current += tx.Amount
			switch {
			case tx.Type == TxRedemptionRejected:
			case tx.Amount > 0:
				b.LifetimeEarned += tx.Amount
			default:
				b.LifetimeRedeemed += tx.Amount.Abs()
			}
		case StatusPending:
			if tx.Type == TxRedemption {
				b.PendingRedemption += tx.Amount.Abs()
			}
		case StatusFailed:
			if tx.Type == TxRedemption {
				b.Current += tx.Amount
			}
		}
	}
	return b
}

// =============================================================================
// PROJECTOR
// =============================================================================

// Projector computes balances on read from the Store.
type Projector struct {
	store Store
}

func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// Project folds the user's ledger. A user with no transactions and no
// baseline row has no balance yet and gets NotFound.
func (p *Projector) Project(ctx context.Context, userID UserID) (Balance, error) {
	txs, err := p.store.LoadByUser(ctx, userID)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txs) == 0 {
		ok, err := p.store.HasBaseline(ctx, userID)
		if err != nil {
			return Balance{}, fmt.Errorf("failed to check baseline: %w", err)
		}
		if !ok {
			return Balance{}, &NotFoundError{Resource: "balance", ID: string(userID)}
		}
	}
	return Fold(userID, txs), nil
}
