/*
handlers.go - HTTP API handlers for the rewards ledger

PURPOSE:
  Exposes the rewards service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every rule to the rewards package.

ENDPOINTS:
  Residents:
    GET    /api/rewards/balance                   Projected balance (?user_id= admin only)
    GET    /api/rewards/transactions              History page (?limit=&offset=)
    POST   /api/rewards/signup-bonus              Claim the one-time welcome bonus
    POST   /api/rewards/redemptions               Request a cash redemption
    POST   /api/users                             Register or refresh own profile

  Admin:
    POST   /api/admin/rewards/report-bonus        Award a resolved report
    GET    /api/admin/redemptions                 Redemption queue (?status=pending|all|...)
    POST   /api/admin/redemptions/{id}/decision   Approve or reject
    GET    /api/admin/redemptions/{id}/decisions  Decision audit trail
    PATCH  /api/admin/users/{id}                  Change role or active flag

  Public:
    GET    /api/health                            Liveness and store ping

REQUEST FLOW:
  1. Resolve the caller from the bearer token (auth.go)
  2. Parse path, query and body
  3. Call the rewards service
  4. Serialize response, or map the error kind to a status

ERROR HANDLING:
  Errors are returned as JSON {"error", "code", "details"}:
  - 400: validation_error
  - 401: unauthenticated
  - 403: forbidden
  - 404: not_found
  - 409: invalid_state
  - 422: insufficient_balance, monthly_cap_exceeded
  - 500: internal_error (message withheld, logged with request id)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/cleanjamaica/rewards-ledger/ledger"
	"github.com/cleanjamaica/rewards-ledger/rewards"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *rewards.Service
	log     logrus.FieldLogger
	store   Pinger
}

// NewHandler creates a new handler over the rewards service.
func NewHandler(service *rewards.Service, store Pinger, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Service: service,
		log:     log.WithField("component", "api"),
		store:   store,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the service and its store are up.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.log.WithError(err).Error("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// RESIDENT ENDPOINTS
// =============================================================================

// GetBalance returns the projected balance of the caller, or of ?user_id=
// for admins.
// GET /api/rewards/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target, err := h.targetUser(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	balance, err := h.Service.Balance(ctx, target)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// GetTransactions returns a page of history, newest first.
// GET /api/rewards/transactions?limit=20&offset=0
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target, err := h.targetUser(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	history, err := h.Service.History(ctx, target, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Transactions: toTransactionDTOs(history.Transactions),
		Total:        history.Total,
		Limit:        history.Limit,
		Offset:       history.Offset,
	})
}

// ClaimSignupBonus credits the welcome bonus on first login. Repeat calls
// succeed with already_claimed and zero points.
// POST /api/rewards/signup-bonus
func (h *Handler) ClaimSignupBonus(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)

	result, err := h.Service.AwardSignupBonus(r.Context(), caller)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SignupBonusResponse{
		PointsAwarded:  int64(result.PointsAwarded),
		AlreadyClaimed: result.AlreadyAwarded,
		Transaction:    toTransactionDTOPtr(result.Transaction),
		NewBalance:     toBalanceDTO(result.Balance),
	})
}

// RequestRedemption records a pending cash redemption for the caller.
// POST /api/rewards/redemptions
func (h *Handler) RequestRedemption(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)

	var req RedemptionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	receipt, err := h.Service.RequestRedemption(r.Context(), caller, ledger.Points(req.Points))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RedemptionResponse{
		TransactionID:    int64(receipt.Transaction.ID),
		Points:           req.Points,
		JMDAmount:        receipt.CurrencyAmount.StringFixed(2),
		Status:           string(receipt.Transaction.Status),
		RemainingBalance: int64(receipt.RemainingBalance),
		Balance:          toBalanceDTO(receipt.Balance),
	})
}

// RegisterUser creates or refreshes the caller's profile.
// POST /api/users
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)

	var req RegisterUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	user, err := h.Service.RegisterProfile(r.Context(), caller, rewards.ProfileInput{
		Name:      req.Name,
		Email:     req.Email,
		Community: req.Community,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// AwardReportBonus credits the reporter of a resolved report.
// POST /api/admin/rewards/report-bonus
func (h *Handler) AwardReportBonus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.Service.RequireAdmin(ctx, callerID(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req ReportBonusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	userID, err := rewards.ParseUserID(req.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	result, err := h.Service.AwardReportBonus(ctx, userID, req.ReportID, req.Priority)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReportBonusResponse{
		PointsAwarded:  int64(result.PointsAwarded),
		AlreadyAwarded: result.AlreadyAwarded,
		Transaction:    toTransactionDTOPtr(result.Transaction),
		NewBalance:     toBalanceDTO(result.Balance),
	})
}

// ListRedemptions returns the redemption queue joined with requester profiles.
// The queue shows pending requests unless ?status= names another status or all.
// GET /api/admin/redemptions?status=pending&limit=20&offset=0
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	filter := ledger.RedemptionFilter{Status: ledger.StatusPending}
	switch s := r.URL.Query().Get("status"); {
	case s == "":
	case strings.EqualFold(s, "all"):
		filter.Status = ""
	default:
		status, err := ledger.ParseStatus(s)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		filter.Status = status
	}
	page, err := parsePage(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	filter.Page = page

	result, err := h.Service.ListRedemptions(r.Context(), callerID(r), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	policy := h.Service.Policy()
	dtos := make([]RedemptionDTO, len(result.Redemptions))
	for i, v := range result.Redemptions {
		dtos[i] = toRedemptionDTO(v, policy)
	}
	writeJSON(w, http.StatusOK, RedemptionListResponse{
		Redemptions: dtos,
		Total:       result.Total,
		Limit:       result.Limit,
		Offset:      result.Offset,
	})
}

// DecideRedemption approves or rejects a pending redemption.
// POST /api/admin/redemptions/{id}/decision
func (h *Handler) DecideRedemption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerID(r)
	if _, err := h.Service.RequireAdmin(ctx, caller); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	txID, err := parseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	decision, err := ledger.ParseDecision(req.Action)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	result, err := h.Service.Decide(ctx, caller, txID, decision, strings.TrimSpace(req.Notes))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DecisionResponse{
		TransactionID: int64(result.Transaction.ID),
		Status:        string(result.Transaction.Status),
		Transaction:   toTransactionDTO(result.Transaction),
		Compensation:  toTransactionDTOPtr(result.Compensation),
		UserBalance:   toBalanceDTO(result.Balance),
	})
}

// ListDecisions returns who decided a redemption, when, and with what notes.
// GET /api/admin/redemptions/{id}/decisions
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	txID, err := parseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entries, err := h.Service.Decisions(r.Context(), callerID(r), txID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]DecisionDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toDecisionDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateUser changes a user's role (supadmin only) or active flag.
// PATCH /api/admin/users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	target, err := rewards.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	upd := rewards.UserUpdate{Active: req.Active}
	if req.Role != nil {
		role, err := ledger.ParseRole(*req.Role)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		upd.Role = &role
	}

	user, err := h.Service.UpdateUser(r.Context(), callerID(r), target, upd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// =============================================================================
// HELPERS
// =============================================================================

// callerID returns the authenticated user. Routes using it sit behind the
// auth middleware, so the value is always present.
func callerID(r *http.Request) ledger.UserID {
	id, _ := UserIDFromContext(r.Context())
	return id
}

// targetUser resolves ?user_id=. Reading another user's data requires an admin.
func (h *Handler) targetUser(r *http.Request) (ledger.UserID, error) {
	caller := callerID(r)
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return caller, nil
	}
	target, err := rewards.ParseUserID(raw)
	if err != nil {
		return "", err
	}
	if target != caller {
		if _, err := h.Service.RequireAdmin(r.Context(), caller); err != nil {
			return "", err
		}
	}
	return target, nil
}

func parsePage(r *http.Request) (ledger.Page, error) {
	var page ledger.Page
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return page, &ledger.ValidationError{Field: "limit", Value: s, Reason: "must be an integer"}
		}
		page.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return page, &ledger.ValidationError{Field: "offset", Value: s, Reason: "must be an integer"}
		}
		page.Offset = n
	}
	return page.Normalize()
}

func parseTransactionID(s string) (ledger.TransactionID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &ledger.ValidationError{Field: "id", Value: s, Reason: "must be a positive integer"}
	}
	return ledger.TransactionID(n), nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &ledger.ValidationError{Field: "body", Value: "", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation_error":
		return http.StatusBadRequest
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "invalid_state":
		return http.StatusConflict
	case "insufficient_balance", "monthly_cap_exceeded":
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeServiceError renders err with its kind and details. Internal errors
// are logged and their message withheld.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ledger.Kind(err)
	if !ledger.IsClientError(err) {
		h.log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error", kind, nil)
		return
	}

	var details any
	var detailed interface{ Details() map[string]any }
	if errors.As(err, &detailed) {
		details = detailed.Details()
	}
	writeError(w, statusFor(kind), err.Error(), kind, details)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}
