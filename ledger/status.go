package ledger

import "strings"

// =============================================================================
// STATUS - Redemption lifecycle
// =============================================================================
//
//   pending ──approve──▶ completed
//      │
//      └────reject────▶ failed   (+ redemption_rejected credit)
//
// completed and failed are terminal. Bonus and reversal entries are born
// completed and never move.

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Value: s, Reason: "must be pending, completed or failed"}
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending:
		return false
	}
	return true
}

// Decision is an admin's verdict on a pending redemption.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision validates an action name.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DecisionApprove, DecisionReject:
		return d, nil
	}
	return "", &ValidationError{Field: "action", Value: s, Reason: "must be approve or reject"}
}

// Apply returns the status reached by applying d to s. It is the only place
// a status transition is decided.
func (s Status) Apply(d Decision) (Status, error) {
	switch s {
	case StatusPending:
		switch d {
		case DecisionApprove:
			return StatusCompleted, nil
		case DecisionReject:
			return StatusFailed, nil
		}
		return s, &ValidationError{Field: "action", Value: string(d), Reason: "must be approve or reject"}
	case StatusCompleted, StatusFailed:
		return s, &InvalidStateError{Current: s, Required: StatusPending}
	}
	return s, &InvalidStateError{Current: s, Required: StatusPending}
}
