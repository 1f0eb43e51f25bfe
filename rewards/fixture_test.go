package rewards_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cleanjamaica/rewards-ledger/ledger"
	"github.com/cleanjamaica/rewards-ledger/ledger/store"
	"github.com/cleanjamaica/rewards-ledger/rewards"
	"github.com/cleanjamaica/rewards-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	resident = ledger.UserID("1d7e0f5c-2b3a-4c5d-8e9f-0a1b2c3d4e5f")
	neighbor = ledger.UserID("2e8f1a6d-3c4b-4d6e-9fa0-1b2c3d4e5f60")
	admin    = ledger.UserID("3f9a2b7e-4d5c-4e7f-a0b1-2c3d4e5f6071")
	supadmin = ledger.UserID("4a0b3c8f-5e6d-4f80-b1c2-3d4e5f607182")
)

type backend struct {
	name string
	open func(t *testing.T) ledger.TxStore
}

var backends = []backend{
	{"memory", func(t *testing.T) ledger.TxStore { return store.NewMemory() }},
	{"sqlite", func(t *testing.T) ledger.TxStore {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

type fixture struct {
	ctx     context.Context
	store   ledger.TxStore
	svc     *rewards.Service
	now     time.Time
	reports int
}

func newFixture(t *testing.T, b backend, policy rewards.Policy) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: b.open(t),
		now:   time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC),
	}
	f.svc = rewards.NewService(f.store, policy, nil).WithClock(func() time.Time { return f.now })

	users := []ledger.User{
		{ID: resident, Name: "Resident One", Email: "one@example.com", Community: "Kingston", Role: ledger.RoleResident, Active: true},
		{ID: neighbor, Name: "Resident Two", Email: "two@example.com", Community: "Montego Bay", Role: ledger.RoleResident, Active: true},
		{ID: admin, Name: "Admin", Email: "admin@example.com", Role: ledger.RoleAdmin, Active: true},
		{ID: supadmin, Name: "Super", Email: "super@example.com", Role: ledger.RoleSupAdmin, Active: true},
	}
	for _, u := range users {
		require.NoError(t, f.store.SaveUser(f.ctx, u))
	}
	return f
}

// forEachStore runs fn once per backend with the default policy.
func forEachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	forEachStoreWith(t, rewards.DefaultPolicy(), fn)
}

func forEachStoreWith(t *testing.T, policy rewards.Policy, fn func(t *testing.T, f *fixture)) {
	for _, b := range backends {
		b := b
		t.Run(b.name, func(t *testing.T) {
			fn(t, newFixture(t, b, policy))
		})
	}
}

// credit seeds points for user as a resolved report.
func (f *fixture) credit(t *testing.T, user ledger.UserID, points ledger.Points) {
	t.Helper()
	f.reports++
	require.NoError(t, f.store.EnsureBaseline(f.ctx, user))
	_, err := ledger.New(f.store).Append(f.ctx, ledger.Transaction{
		UserID:          user,
		Amount:          points,
		Type:            ledger.TxReportResolved,
		Status:          ledger.StatusCompleted,
		RelatedReportID: fmt.Sprintf("seed-%d", f.reports),
		CreatedAt:       f.now,
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, user ledger.UserID) ledger.Balance {
	t.Helper()
	b, err := f.svc.Balance(f.ctx, user)
	require.NoError(t, err)
	return b
}

func (f *fixture) count(t *testing.T, user ledger.UserID) int {
	t.Helper()
	txs, err := f.store.LoadByUser(f.ctx, user)
	require.NoError(t, err)
	return len(txs)
}
