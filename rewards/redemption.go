/*
redemption.go - Points-to-cash redemption workflow

LIFECYCLE:
  1. Resident requests N points → redemption_approved entry, amount -N, pending
  2. Admin approves             → entry completed, processed_by = admin
     Admin rejects              → entry failed, processed_by = admin,
                                  plus redemption_rejected entry +N completed

CHECKS ON REQUEST (in order):
  - N > 0, N >= MinRedemption, N multiple of PointsPerCurrencyUnit
  - user exists
  - N <= spendable balance
  - this month's redeemed points + N <= MonthlyCap

  Checks and the append happen in one store transaction with the user locked.
  A failed check writes nothing.

SEE ALSO:
  - ledger/status.go: Status.Apply is the transition function
  - policy.go: Numbers used by the checks
*/
package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

// RedemptionReceipt is returned to the resident after a request is accepted.
type RedemptionReceipt struct {
	Transaction      ledger.Transaction
	CurrencyAmount   decimal.Decimal // JMD equivalent
	RemainingBalance ledger.Points   // balance the check ran against, not yet reduced by this request
	Balance          ledger.Balance
}

// DecisionResult is returned to the admin after approving or rejecting.
type DecisionResult struct {
	Transaction  ledger.Transaction
	Compensation *ledger.Transaction // set on rejection
	Balance      ledger.Balance      // requester's balance after the decision
}

// RedemptionPage is one page of the admin redemption queue.
type RedemptionPage struct {
	Redemptions []ledger.RedemptionView
	Total       int
	Limit       int
	Offset      int
}

// =============================================================================
// REQUEST
// =============================================================================

// RequestRedemption records a pending debit of points for userID.
func (s *Service) RequestRedemption(ctx context.Context, userID ledger.UserID, points ledger.Points) (RedemptionReceipt, error) {
	if err := s.policy.CheckRedemptionAmount(points); err != nil {
		return RedemptionReceipt{}, err
	}

	now := s.now().UTC()
	var receipt RedemptionReceipt

	err := s.store.WithTx(ctx, func(st ledger.Store) error {
		if err := st.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}
		if _, err := requireUser(ctx, st, userID); err != nil {
			return err
		}

		balance, err := projectOrZero(ctx, st, userID)
		if err != nil {
			return err
		}
		available := s.policy.available(balance)
		if points > available {
			return &ledger.InsufficientBalanceError{
				UserID:    userID,
				Available: available,
				Requested: points,
				Shortfall: points - available,
			}
		}

		from, to := ledger.MonthWindow(now, s.policy.location())
		used, err := st.SumRedemptions(ctx, userID, s.policy.capStatuses(), from, to)
		if err != nil {
			return fmt.Errorf("failed to sum monthly redemptions: %w", err)
		}
		if used+points > s.policy.MonthlyCap {
			return &ledger.MonthlyCapExceededError{
				UserID:        userID,
				Cap:           s.policy.MonthlyCap,
				UsedThisMonth: used,
				Requested:     points,
			}
		}

		jmd := s.policy.ToCurrency(points)
		tx, err := ledger.New(st).Append(ctx, ledger.Transaction{
			UserID:      userID,
			Amount:      -points,
			Type:        ledger.TxRedemption,
			Status:      ledger.StatusPending,
			Description: fmt.Sprintf("Redemption of %d points for JMD %s", points, jmd.StringFixed(2)),
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}

		balance.PendingRedemption += points
		receipt = RedemptionReceipt{
			Transaction:      tx,
			CurrencyAmount:   jmd,
			RemainingBalance: s.policy.available(balance),
			Balance:          balance,
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"points":  points,
			"kind":    ledger.Kind(err),
		}).Warn("redemption request refused")
		return RedemptionReceipt{}, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"tx_id":   receipt.Transaction.ID,
		"points":  points,
		"jmd":     receipt.CurrencyAmount.StringFixed(2),
	}).Info("redemption requested")
	return receipt, nil
}

// =============================================================================
// DECIDE
// =============================================================================

// Decide approves or rejects a pending redemption on behalf of adminID.
func (s *Service) Decide(ctx context.Context, adminID ledger.UserID, txID ledger.TransactionID, decision ledger.Decision, notes string) (DecisionResult, error) {
	now := s.now().UTC()
	var result DecisionResult

	err := s.store.WithTx(ctx, func(st ledger.Store) error {
		if _, err := requireAdmin(ctx, st, adminID, "decide redemptions"); err != nil {
			return err
		}

		tx, err := st.GetTransaction(ctx, txID)
		if err != nil {
			return fmt.Errorf("failed to load transaction: %w", err)
		}
		if tx == nil || tx.Type != ledger.TxRedemption {
			return &ledger.NotFoundError{Resource: "redemption", ID: fmt.Sprint(txID)}
		}
		if err := st.LockUser(ctx, tx.UserID); err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		next, err := tx.Status.Apply(decision)
		if err != nil {
			var stateErr *ledger.InvalidStateError
			if errors.As(err, &stateErr) {
				stateErr.TransactionID = txID
			}
			return err
		}

		if err := st.UpdateStatus(ctx, txID, tx.Status, next, adminID); err != nil {
			if errors.Is(err, ledger.ErrConcurrentModification) {
				return &ledger.InvalidStateError{TransactionID: txID, Current: tx.Status, Required: ledger.StatusPending}
			}
			return fmt.Errorf("failed to update status: %w", err)
		}
		tx.Status = next
		tx.ProcessedBy = adminID
		result.Transaction = *tx

		if decision == ledger.DecisionReject {
			reversal, err := ledger.New(st).Append(ctx, ledger.Transaction{
				UserID:      tx.UserID,
				Amount:      tx.Amount.Abs(),
				Type:        ledger.TxRedemptionRejected,
				Status:      ledger.StatusCompleted,
				ProcessedBy: adminID,
				Description: fmt.Sprintf("Reversal of rejected redemption #%d", txID),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			result.Compensation = &reversal
		}

		if err := st.AppendAudit(ctx, ledger.AuditEntry{
			ID:            uuid.NewString(),
			TransactionID: txID,
			ActorID:       adminID,
			Action:        decision,
			Notes:         notes,
			At:            now,
		}); err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}

		result.Balance, err = projectOrZero(ctx, st, tx.UserID)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"admin_id": adminID,
			"tx_id":    txID,
			"action":   decision,
			"kind":     ledger.Kind(err),
		}).Warn("redemption decision refused")
		return DecisionResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"admin_id": adminID,
		"tx_id":    txID,
		"user_id":  result.Transaction.UserID,
		"status":   result.Transaction.Status,
	}).Info("redemption decided")
	return result, nil
}

// =============================================================================
// ADMIN QUEUE
// =============================================================================

// ListRedemptions returns redemption requests for the admin queue.
func (s *Service) ListRedemptions(ctx context.Context, adminID ledger.UserID, filter ledger.RedemptionFilter) (RedemptionPage, error) {
	if _, err := requireAdmin(ctx, s.store, adminID, "list redemptions"); err != nil {
		return RedemptionPage{}, err
	}
	page, err := filter.Page.Normalize()
	if err != nil {
		return RedemptionPage{}, err
	}
	filter.Page = page

	rows, total, err := s.store.ListRedemptions(ctx, filter)
	if err != nil {
		return RedemptionPage{}, fmt.Errorf("failed to list redemptions: %w", err)
	}
	if rows == nil {
		rows = []ledger.RedemptionView{}
	}
	return RedemptionPage{Redemptions: rows, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// StaleRedemptions returns pending requests created more than olderThan ago.
func (s *Service) StaleRedemptions(ctx context.Context, olderThan time.Duration) ([]ledger.RedemptionView, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	rows, _, err := s.store.ListRedemptions(ctx, ledger.RedemptionFilter{
		Status:        ledger.StatusPending,
		CreatedBefore: &cutoff,
		Page:          ledger.Page{Limit: ledger.MaxPageLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stale redemptions: %w", err)
	}
	return rows, nil
}

// Decisions returns the audit trail of a redemption.
func (s *Service) Decisions(ctx context.Context, adminID ledger.UserID, txID ledger.TransactionID) ([]ledger.AuditEntry, error) {
	if _, err := requireAdmin(ctx, s.store, adminID, "read decisions"); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, txID)
}
