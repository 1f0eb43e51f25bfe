/*
Package ledger provides the points ledger at the heart of the rewards service.

PURPOSE:
  Every point a resident earns or redeems is a Transaction in an append-only
  log. Balances are never stored as truth; they are folded from the log on
  read (see projection.go). Redemption and bonus rules live in the rewards
  package and only ever talk to the ledger through this package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Points: signed integer point amounts (credit > 0, debit < 0)
  - Transaction: an immutable ledger entry (only status/processed_by move)
  - TransactionType: the four entry kinds and their sign convention
  - User / Role: the participant record owned by the identity provider

SIGN CONVENTION:
  signup_bonus         +  completed
  report_resolved      +  completed
  redemption_approved  -  pending   (then completed or failed)
  redemption_rejected  +  completed (compensates a failed redemption)

SEE ALSO:
  - status.go: Status enum and the only legal transitions
  - ledger.go: Append validation and history paging
  - store.go: Persistence interfaces
*/
package ledger

import (
	"strings"
	"time"
)

// =============================================================================
// POINTS
// =============================================================================

// Points is a signed point amount.
type Points int64

// Abs returns the magnitude of p.
func (p Points) Abs() Points {
	if p < 0 {
		return -p
	}
	return p
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// UserID is the stable identifier issued by the identity provider (a UUID).
type UserID string

// TransactionID is assigned by the store from a monotonically increasing
// sequence. It doubles as the fixed sort key for history paging.
type TransactionID int64

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type TransactionType string

const (
	TxSignupBonus        TransactionType = "signup_bonus"        // One-time welcome credit
	TxReportResolved     TransactionType = "report_resolved"     // Credit for a resolved waste report
	TxRedemption         TransactionType = "redemption_approved" // Debit requested by the user, pending until decided
	TxRedemptionRejected TransactionType = "redemption_rejected" // Compensating credit for a rejected redemption
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxSignupBonus, TxReportResolved, TxRedemption, TxRedemptionRejected:
		return true
	}
	return false
}

// IsCredit reports whether entries of this type must carry a non-negative amount.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxSignupBonus, TxReportResolved, TxRedemptionRejected:
		return true
	case TxRedemption:
		return false
	}
	return false
}

// InitialStatus is the only status an entry of this type may be created with.
func (t TransactionType) InitialStatus() Status {
	switch t {
	case TxRedemption:
		return StatusPending
	case TxSignupBonus, TxReportResolved, TxRedemptionRejected:
		return StatusCompleted
	}
	return ""
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

// Transaction is one ledger entry. Amount, Type and UserID never change once
// written; Status and ProcessedBy change once, through the decision path.
type Transaction struct {
	ID              TransactionID
	UserID          UserID
	Amount          Points
	Type            TransactionType
	Status          Status
	RelatedReportID string // report reference for report_resolved entries
	ProcessedBy     UserID // admin who decided a redemption
	Description     string
	CreatedAt       time.Time
}

// =============================================================================
// USERS
// =============================================================================

type Role string

const (
	RoleResident Role = "resident"
	RoleAdmin    Role = "admin"
	RoleSupAdmin Role = "supadmin"
)

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleResident, RoleAdmin, RoleSupAdmin:
		return r, nil
	}
	return "", &ValidationError{Field: "role", Value: s, Reason: "must be resident, admin or supadmin"}
}

// IsAdmin reports whether the role may decide redemptions.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSupAdmin
}

// User is a participant. FirstLoginAt stays nil until the signup bonus is claimed.
type User struct {
	ID           UserID
	Email        string
	Name         string
	Community    string
	Role         Role
	Active       bool
	FirstLoginAt *time.Time
	CreatedAt    time.Time
}

// CanAdminister reports whether the user is an active admin or supadmin.
func (u *User) CanAdminister() bool {
	return u != nil && u.Active && u.Role.IsAdmin()
}

// =============================================================================
// QUERIES
// =============================================================================

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is an offset page request.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default and maximum limits.
func (p Page) Normalize() (Page, error) {
	if p.Offset < 0 {
		return p, &ValidationError{Field: "offset", Value: p.Offset, Reason: "must not be negative"}
	}
	if p.Limit < 0 {
		return p, &ValidationError{Field: "limit", Value: p.Limit, Reason: "must not be negative"}
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p, nil
}

// RedemptionFilter selects redemption requests for the admin queue.
// An empty Status matches every status.
type RedemptionFilter struct {
	Status        Status
	CreatedBefore *time.Time
	Page          Page
}

// RedemptionView is a redemption request joined with its requester's profile.
type RedemptionView struct {
	Transaction
	UserName  string
	UserEmail string
	Community string
}

// AuditEntry records an admin decision on a redemption.
type AuditEntry struct {
	ID            string
	TransactionID TransactionID
	ActorID       UserID
	Action        Decision
	Notes         string
	At            time.Time
}
