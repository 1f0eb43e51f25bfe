/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract: points are plain
  integers, currency is a fixed two-decimal string, times are RFC 3339.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Balance:      BalanceDTO
  History:      TransactionDTO, HistoryResponse
  Bonuses:      SignupBonusResponse, ReportBonusRequest, ReportBonusResponse
  Redemptions:  RedemptionRequest, RedemptionResponse, RedemptionDTO,
                RedemptionListResponse, DecisionRequest, DecisionResponse,
                DecisionDTO
  Users:        RegisterUserRequest, UpdateUserRequest, UserDTO

VALIDATION:
  Validation is done by the rewards service, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/cleanjamaica/rewards-ledger/ledger"
	"github.com/cleanjamaica/rewards-ledger/rewards"
)

// =============================================================================
// BALANCE & HISTORY
// =============================================================================

// BalanceDTO is the projected balance of one user.
type BalanceDTO struct {
	UserID            string `json:"user_id"`
	CurrentBalance    int64  `json:"current_balance"`
	LifetimeEarned    int64  `json:"lifetime_earned"`
	LifetimeRedeemed  int64  `json:"lifetime_redeemed"`
	PendingRedemption int64  `json:"pending_redemption"`
	SpendableBalance  int64  `json:"spendable_balance"`
}

// TransactionDTO represents a ledger entry in API responses.
type TransactionDTO struct {
	ID              int64     `json:"id"`
	UserID          string    `json:"user_id"`
	Amount          int64     `json:"amount"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	RelatedReportID string    `json:"related_report_id,omitempty"`
	ProcessedBy     string    `json:"processed_by,omitempty"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryResponse is one page of a user's transactions, newest first.
type HistoryResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
	Total        int              `json:"total"`
	Limit        int              `json:"limit"`
	Offset       int              `json:"offset"`
}

// =============================================================================
// BONUSES
// =============================================================================

// SignupBonusResponse is returned by the signup bonus claim.
type SignupBonusResponse struct {
	PointsAwarded  int64           `json:"points_awarded"`
	AlreadyClaimed bool            `json:"already_claimed"`
	Transaction    *TransactionDTO `json:"transaction,omitempty"`
	NewBalance     BalanceDTO      `json:"new_balance"`
}

// ReportBonusRequest is sent by an admin when a report is resolved.
type ReportBonusRequest struct {
	UserID   string `json:"user_id"`
	ReportID string `json:"report_id"`
	Priority string `json:"priority"`
}

// ReportBonusResponse is returned by the report bonus award.
type ReportBonusResponse struct {
	PointsAwarded  int64           `json:"points_awarded"`
	AlreadyAwarded bool            `json:"already_awarded"`
	Transaction    *TransactionDTO `json:"transaction,omitempty"`
	NewBalance     BalanceDTO      `json:"new_balance"`
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

// RedemptionRequest is a resident's request to cash out points.
type RedemptionRequest struct {
	Points int64 `json:"points"`
}

// RedemptionResponse confirms a pending redemption.
type RedemptionResponse struct {
	TransactionID    int64      `json:"transaction_id"`
	Points           int64      `json:"points"`
	JMDAmount        string     `json:"jmd_amount"`
	Status           string     `json:"status"`
	RemainingBalance int64      `json:"remaining_balance"`
	Balance          BalanceDTO `json:"balance"`
}

// RedemptionDTO is a row of the admin redemption queue.
type RedemptionDTO struct {
	TransactionDTO
	Points    int64  `json:"points"`
	JMDAmount string `json:"jmd_amount"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	Community string `json:"community"`
}

// RedemptionListResponse is one page of the admin redemption queue.
type RedemptionListResponse struct {
	Redemptions []RedemptionDTO `json:"redemptions"`
	Total       int             `json:"total"`
	Limit       int             `json:"limit"`
	Offset      int             `json:"offset"`
}

// DecisionRequest approves or rejects a pending redemption.
type DecisionRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

// DecisionResponse reports the decided redemption and the requester's balance.
type DecisionResponse struct {
	TransactionID int64           `json:"transaction_id"`
	Status        string          `json:"status"`
	Transaction   TransactionDTO  `json:"transaction"`
	Compensation  *TransactionDTO `json:"compensation,omitempty"`
	UserBalance   BalanceDTO      `json:"user_balance"`
}

// DecisionDTO is one entry of a redemption's audit trail.
type DecisionDTO struct {
	ID            string    `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	ActorID       string    `json:"actor_id"`
	Action        string    `json:"action"`
	Notes         string    `json:"notes,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

// =============================================================================
// USERS
// =============================================================================

// RegisterUserRequest creates or refreshes the caller's profile.
type RegisterUserRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Community string `json:"community"`
}

// UpdateUserRequest changes a user's role or active flag.
type UpdateUserRequest struct {
	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// UserDTO represents a participant in API responses.
type UserDTO struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Community    string     `json:"community,omitempty"`
	Role         string     `json:"role"`
	Active       bool       `json:"active"`
	FirstLoginAt *time.Time `json:"first_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBalanceDTO(b ledger.Balance) BalanceDTO {
	return BalanceDTO{
		UserID:            string(b.UserID),
		CurrentBalance:    int64(b.Current),
		LifetimeEarned:    int64(b.LifetimeEarned),
		LifetimeRedeemed:  int64(b.LifetimeRedeemed),
		PendingRedemption: int64(b.PendingRedemption),
		SpendableBalance:  int64(b.Spendable()),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:              int64(tx.ID),
		UserID:          string(tx.UserID),
		Amount:          int64(tx.Amount),
		Type:            string(tx.Type),
		Status:          string(tx.Status),
		RelatedReportID: tx.RelatedReportID,
		ProcessedBy:     string(tx.ProcessedBy),
		Description:     tx.Description,
		CreatedAt:       tx.CreatedAt,
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toTransactionDTOPtr(tx *ledger.Transaction) *TransactionDTO {
	if tx == nil {
		return nil
	}
	dto := toTransactionDTO(*tx)
	return &dto
}

func toRedemptionDTO(v ledger.RedemptionView, policy rewards.Policy) RedemptionDTO {
	points := v.Amount.Abs()
	return RedemptionDTO{
		TransactionDTO: toTransactionDTO(v.Transaction),
		Points:         int64(points),
		JMDAmount:      policy.ToCurrency(points).StringFixed(2),
		UserName:       v.UserName,
		UserEmail:      v.UserEmail,
		Community:      v.Community,
	}
}

func toDecisionDTO(e ledger.AuditEntry) DecisionDTO {
	return DecisionDTO{
		ID:            e.ID,
		TransactionID: int64(e.TransactionID),
		ActorID:       string(e.ActorID),
		Action:        string(e.Action),
		Notes:         e.Notes,
		DecidedAt:     e.At,
	}
}

func toUserDTO(u *ledger.User) UserDTO {
	return UserDTO{
		ID:           string(u.ID),
		Email:        u.Email,
		Name:         u.Name,
		Community:    u.Community,
		Role:         string(u.Role),
		Active:       u.Active,
		FirstLoginAt: u.FirstLoginAt,
		CreatedAt:    u.CreatedAt,
	}
}
