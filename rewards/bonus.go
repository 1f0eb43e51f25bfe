package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

// =============================================================================
// BONUS AWARDERS - Idempotent credits for signup and resolved reports
// =============================================================================

// AwardResult reports the outcome of a bonus award. AlreadyAwarded results
// are successes with zero points.
type AwardResult struct {
	PointsAwarded  ledger.Points
	AlreadyAwarded bool
	Transaction    *ledger.Transaction
	Balance        ledger.Balance
}

// AwardSignupBonus credits the one-time signup bonus. The first-login
// timestamp is the guard; a unique index on the store backs it.
func (s *Service) AwardSignupBonus(ctx context.Context, userID ledger.UserID) (AwardResult, error) {
	now := s.now().UTC()
	var result AwardResult

	err := s.store.WithTx(ctx, func(st ledger.Store) error {
		if err := st.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}
		user, err := requireUser(ctx, st, userID)
		if err != nil {
			return err
		}

		if user.FirstLoginAt == nil {
			if err := st.EnsureBaseline(ctx, userID); err != nil {
				return fmt.Errorf("failed to initialize balance: %w", err)
			}
			tx, err := ledger.New(st).Append(ctx, ledger.Transaction{
				UserID:      userID,
				Amount:      s.policy.SignupBonus,
				Type:        ledger.TxSignupBonus,
				Status:      ledger.StatusCompleted,
				Description: "Welcome bonus",
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			if _, err := st.MarkFirstLogin(ctx, userID, now); err != nil {
				return fmt.Errorf("failed to record first login: %w", err)
			}
			result.Transaction = &tx
			result.PointsAwarded = tx.Amount
		} else {
			result.AlreadyAwarded = true
		}

		result.Balance, err = projectOrZero(ctx, st, userID)
		return err
	})

	if errors.Is(err, ledger.ErrDuplicateAward) {
		return s.alreadyAwarded(ctx, userID)
	}
	if err != nil {
		return AwardResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"points":          result.PointsAwarded,
		"already_claimed": result.AlreadyAwarded,
	}).Info("signup bonus processed")
	return result, nil
}

// AwardReportBonus credits the reporter of a resolved report once per
// (user, report). Points come from the priority table.
func (s *Service) AwardReportBonus(ctx context.Context, userID ledger.UserID, reportID, priority string) (AwardResult, error) {
	points, err := s.policy.PointsFor(priority)
	if err != nil {
		return AwardResult{}, err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return AwardResult{}, &ledger.ValidationError{Field: "report_id", Value: reportID, Reason: "is required"}
	}

	now := s.now().UTC()
	var result AwardResult

	err = s.store.WithTx(ctx, func(st ledger.Store) error {
		if err := st.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}
		if _, err := requireUser(ctx, st, userID); err != nil {
			return err
		}

		existing, err := st.FindReportAward(ctx, userID, reportID)
		if err != nil {
			return fmt.Errorf("failed to check prior award: %w", err)
		}

		if existing == nil {
			if err := st.EnsureBaseline(ctx, userID); err != nil {
				return fmt.Errorf("failed to initialize balance: %w", err)
			}
			tx, err := ledger.New(st).Append(ctx, ledger.Transaction{
				UserID:          userID,
				Amount:          points,
				Type:            ledger.TxReportResolved,
				Status:          ledger.StatusCompleted,
				RelatedReportID: reportID,
				Description:     fmt.Sprintf("Report %s resolved (%s priority)", reportID, PriorityKey(priority)),
				CreatedAt:       now,
			})
			if err != nil {
				return err
			}
			result.Transaction = &tx
			result.PointsAwarded = tx.Amount
		} else {
			result.AlreadyAwarded = true
		}

		result.Balance, err = projectOrZero(ctx, st, userID)
		return err
	})

	if errors.Is(err, ledger.ErrDuplicateAward) {
		return s.alreadyAwarded(ctx, userID)
	}
	if err != nil {
		return AwardResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"report_id":       reportID,
		"points":          result.PointsAwarded,
		"already_awarded": result.AlreadyAwarded,
	}).Info("report bonus processed")
	return result, nil
}

// alreadyAwarded builds the result for a bonus another writer inserted first.
// The losing transaction was rolled back, so the balance is read fresh.
func (s *Service) alreadyAwarded(ctx context.Context, userID ledger.UserID) (AwardResult, error) {
	balance, err := projectOrZero(ctx, s.store, userID)
	if err != nil {
		return AwardResult{}, err
	}
	s.log.WithField("user_id", userID).Info("bonus already awarded by a concurrent request")
	return AwardResult{AlreadyAwarded: true, Balance: balance}, nil
}
