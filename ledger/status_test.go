package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

func TestStatusApply_PendingTransitions(t *testing.T) {
	tests := []struct {
		decision ledger.Decision
		want     ledger.Status
	}{
		{ledger.DecisionApprove, ledger.StatusCompleted},
		{ledger.DecisionReject, ledger.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			got, err := ledger.StatusPending.Apply(tt.decision)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusApply_TerminalStatusesRefuse(t *testing.T) {
	// GIVEN: A redemption that was already decided
	// WHEN: Any decision is applied again
	// THEN: InvalidState, and the status is unchanged

	for _, from := range []ledger.Status{ledger.StatusCompleted, ledger.StatusFailed} {
		for _, d := range []ledger.Decision{ledger.DecisionApprove, ledger.DecisionReject} {
			got, err := from.Apply(d)
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrInvalidState)
			assert.Equal(t, from, got)

			var stateErr *ledger.InvalidStateError
			require.ErrorAs(t, err, &stateErr)
			assert.Equal(t, from, stateErr.Current)
			assert.Equal(t, ledger.StatusPending, stateErr.Required)
		}
	}
}

func TestStatusApply_UnknownDecision(t *testing.T) {
	_, err := ledger.StatusPending.Apply(ledger.Decision("escalate"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestParseDecision(t *testing.T) {
	d, err := ledger.ParseDecision(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, ledger.DecisionApprove, d)

	_, err = ledger.ParseDecision("maybe")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestParseStatus(t *testing.T) {
	s, err := ledger.ParseStatus("PENDING")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, s)
	assert.False(t, s.IsTerminal())
	assert.True(t, ledger.StatusFailed.IsTerminal())

	_, err = ledger.ParseStatus("cancelled")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestKind_MapsEveryErrorFamily(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ledger.ValidationError{Field: "points"}, "validation_error"},
		{&ledger.NotFoundError{Resource: "user"}, "not_found"},
		{&ledger.ForbiddenError{Action: "decide"}, "forbidden"},
		{&ledger.InvalidStateError{Current: ledger.StatusCompleted}, "invalid_state"},
		{ledger.ErrConcurrentModification, "invalid_state"},
		{&ledger.InsufficientBalanceError{Available: 10, Requested: 500}, "insufficient_balance"},
		{&ledger.MonthlyCapExceededError{Cap: 5000}, "monthly_cap_exceeded"},
		{assert.AnError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.Kind(tt.err))
			assert.Equal(t, tt.want != "internal_error", ledger.IsClientError(tt.err))
		})
	}
}

func TestMonthlyCapExceededError_Details(t *testing.T) {
	err := &ledger.MonthlyCapExceededError{Cap: 5000, UsedThisMonth: 4800, Requested: 500}
	details := err.Details()
	assert.Equal(t, ledger.Points(200), details["remaining"])
	assert.Equal(t, ledger.Points(4800), details["used_this_month"])
}
