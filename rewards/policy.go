/*
Package rewards implements the CleanJamaica reward rules on top of the ledger.

PURPOSE:
  Residents earn points for signing up and for reports that get resolved,
  then redeem points for cash (JMD) subject to admin approval.

COMPONENTS:
  policy.go:     Tunable numbers (minimum, cap, ratio, bonus table)
  redemption.go: Request → pending debit → approve | reject (+ reversal)
  bonus.go:      Idempotent signup and report-resolution awarders
  users.go:      Profile registration and admin role management

CONCURRENCY:
  Every check-then-append runs inside TxStore.WithTx with the user locked,
  so two requests from the same user cannot both pass a balance check.

SEE ALSO:
  - ledger/: Transaction log, fold, error taxonomy
  - api/handlers.go: HTTP surface
*/
package rewards

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

// =============================================================================
// POLICY - Injected reward configuration
// =============================================================================

// Policy holds every tunable number of the reward program.
type Policy struct {
	MinRedemption         ledger.Points
	MonthlyCap            ledger.Points
	PointsPerCurrencyUnit ledger.Points // points needed for one JMD
	SignupBonus           ledger.Points
	PriorityPoints        map[string]ledger.Points

	// Location decides calendar-month boundaries for the monthly cap.
	Location *time.Location

	// ReservePending is an opt-in stricter mode: pending requests count
	// against the spendable balance and the monthly cap. Off, a request is
	// checked against current_balance and completed debits only.
	ReservePending bool
}

// DefaultPriorityPoints is the report priority table used when none is configured.
func DefaultPriorityPoints() map[string]ledger.Points {
	return map[string]ledger.Points{
		"critical": 100,
		"high":     75,
		"medium":   50,
		"low":      25,
	}
}

// DefaultPolicy returns the program's standard numbers.
func DefaultPolicy() Policy {
	return Policy{
		MinRedemption:         500,
		MonthlyCap:            5000,
		PointsPerCurrencyUnit: 1,
		SignupBonus:           50,
		PriorityPoints:        DefaultPriorityPoints(),
		Location:              time.UTC,
		ReservePending:        false,
	}
}

// Validate rejects configurations the workflow cannot run with.
func (p Policy) Validate() error {
	if p.PointsPerCurrencyUnit <= 0 {
		return fmt.Errorf("points per currency unit must be positive, got %d", p.PointsPerCurrencyUnit)
	}
	if p.MinRedemption <= 0 {
		return fmt.Errorf("minimum redemption must be positive, got %d", p.MinRedemption)
	}
	if p.MonthlyCap < p.MinRedemption {
		return fmt.Errorf("monthly cap %d is below the minimum redemption %d", p.MonthlyCap, p.MinRedemption)
	}
	if p.SignupBonus < 0 {
		return fmt.Errorf("signup bonus must not be negative, got %d", p.SignupBonus)
	}
	if len(p.PriorityPoints) == 0 {
		return fmt.Errorf("priority points table is empty")
	}
	for priority, points := range p.PriorityPoints {
		if points < 0 {
			return fmt.Errorf("priority %q has negative points %d", priority, points)
		}
	}
	return nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// PriorityKey normalizes a report priority to its table key.
func PriorityKey(priority string) string {
	return strings.ToLower(strings.TrimSpace(priority))
}

// PointsFor looks up the bonus for a report priority (case-insensitive).
func (p Policy) PointsFor(priority string) (ledger.Points, error) {
	points, ok := p.PriorityPoints[PriorityKey(priority)]
	if !ok {
		return 0, &ledger.ValidationError{Field: "priority", Value: priority, Reason: "unknown report priority"}
	}
	return points, nil
}

// CheckRedemptionAmount enforces positivity, the minimum and the ratio multiple.
func (p Policy) CheckRedemptionAmount(points ledger.Points) error {
	if points <= 0 {
		return &ledger.ValidationError{Field: "points", Value: points, Reason: "must be a positive integer"}
	}
	if points < p.MinRedemption {
		return &ledger.ValidationError{Field: "points", Value: points,
			Reason: fmt.Sprintf("minimum redemption is %d points", p.MinRedemption)}
	}
	if points%p.PointsPerCurrencyUnit != 0 {
		return &ledger.ValidationError{Field: "points", Value: points,
			Reason: fmt.Sprintf("must be a multiple of %d", p.PointsPerCurrencyUnit)}
	}
	return nil
}

// ToCurrency converts points to JMD.
func (p Policy) ToCurrency(points ledger.Points) decimal.Decimal {
	return decimal.NewFromInt(int64(points)).
		Div(decimal.NewFromInt(int64(p.PointsPerCurrencyUnit))).
		Round(2)
}

func (p Policy) capStatuses() []ledger.Status {
	if p.ReservePending {
		return []ledger.Status{ledger.StatusCompleted, ledger.StatusPending}
	}
	return []ledger.Status{ledger.StatusCompleted}
}

func (p Policy) available(b ledger.Balance) ledger.Points {
	if p.ReservePending {
		return b.Spendable()
	}
	return b.Current
}
