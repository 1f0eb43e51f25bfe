/*
errors.go - Error taxonomy for the rewards ledger

PURPOSE:
  All error kinds in one place. Callers match with errors.Is against the
  sentinels; the structured types carry the figures a client needs to render
  a precise message (balance, cap, current status).

ERROR KINDS:
  validation_error      malformed or out-of-range input
  not_found             user or transaction absent
  forbidden             caller lacks the required role
  invalid_state         transaction not in the state a transition requires
  insufficient_balance  redemption exceeds the spendable balance
  monthly_cap_exceeded  redemption would exceed the monthly cap

  No failure is retried inside this module.

SEE ALSO:
  - api/handlers.go: maps Kind() to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidState        = errors.New("invalid state")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMonthlyCapExceeded  = errors.New("monthly cap exceeded")

	// ErrDuplicateAward is returned by stores when a bonus uniqueness index
	// rejects an insert. Awarders turn it into an "already awarded" success.
	ErrDuplicateAward = errors.New("duplicate award")

	// ErrConcurrentModification is returned when a conditional status update
	// matched no row because another writer moved the transaction first.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) Details() map[string]any {
	return map[string]any{"field": e.Field, "value": e.Value, "reason": e.Reason}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string // "user", "transaction", "balance"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func (e *NotFoundError) Details() map[string]any {
	return map[string]any{"resource": e.Resource, "id": e.ID}
}

// ForbiddenError is returned when the actor's role does not permit the action.
type ForbiddenError struct {
	ActorID UserID
	Role    Role
	Action  string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %s with role %q may not %s", e.ActorID, e.Role, e.Action)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

func (e *ForbiddenError) Details() map[string]any {
	return map[string]any{"actor_id": e.ActorID, "role": e.Role, "action": e.Action}
}

// InvalidStateError is returned when a transition is attempted from the wrong status.
type InvalidStateError struct {
	TransactionID TransactionID
	Current       Status
	Required      Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("transaction %d is %s, must be %s", e.TransactionID, e.Current, e.Required)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

func (e *InvalidStateError) Details() map[string]any {
	return map[string]any{"transaction_id": e.TransactionID, "current_status": e.Current, "required_status": e.Required}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    UserID
	Available Points
	Requested Points
	Shortfall Points
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested %d, shortfall %d",
		e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

func (e *InsufficientBalanceError) Details() map[string]any {
	return map[string]any{"available": e.Available, "requested": e.Requested, "shortfall": e.Shortfall}
}

// MonthlyCapExceededError provides the cap figures for the current month.
type MonthlyCapExceededError struct {
	UserID        UserID
	Cap           Points
	UsedThisMonth Points
	Requested     Points
}

func (e *MonthlyCapExceededError) Error() string {
	return fmt.Sprintf("monthly cap exceeded: cap %d, used %d, requested %d",
		e.Cap, e.UsedThisMonth, e.Requested)
}

func (e *MonthlyCapExceededError) Unwrap() error { return ErrMonthlyCapExceeded }

func (e *MonthlyCapExceededError) Details() map[string]any {
	return map[string]any{
		"cap":             e.Cap,
		"used_this_month": e.UsedThisMonth,
		"requested":       e.Requested,
		"remaining":       e.Cap - e.UsedThisMonth,
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Kind returns the stable code for err, or "internal_error".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConcurrentModification):
		return "invalid_state"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrMonthlyCapExceeded):
		return "monthly_cap_exceeded"
	}
	return "internal_error"
}

// IsClientError returns true if the error is due to the caller's input or permissions.
func IsClientError(err error) bool {
	return Kind(err) != "internal_error"
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
