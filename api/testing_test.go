package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cleanjamaica/rewards-ledger/ledger"
	"github.com/cleanjamaica/rewards-ledger/ledger/store"
	"github.com/cleanjamaica/rewards-ledger/rewards"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	testSecret = "test-secret"
	testIssuer = "cleanjamaica-test"

	resident = ledger.UserID("5b1c4d9a-6f7e-4a81-92d3-4e5f60718293")
	neighbor = ledger.UserID("6c2d5eab-7a8f-4b92-a3e4-5f60718293a4")
	admin    = ledger.UserID("7d3e6fbc-8b9a-4ca3-b4f5-60718293a4b5")
)

type testServer struct {
	t      *testing.T
	store  *store.Memory
	svc    *rewards.Service
	auth   *Authenticator
	router *chi.Mux
	now    time.Time
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestServer wires the router over a memory store with three users. The
// signup bonus is raised so a fresh resident can redeem right away.
func newTestServer(t *testing.T, pinger Pinger) *testServer {
	t.Helper()
	log := quietLogger()

	policy := rewards.DefaultPolicy()
	policy.SignupBonus = 1000

	ts := &testServer{
		t:     t,
		store: store.NewMemory(),
		now:   time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC),
	}
	ts.svc = rewards.NewService(ts.store, policy, log).WithClock(func() time.Time { return ts.now })
	ts.auth = NewAuthenticator(testSecret, testIssuer, log)
	ts.router = NewRouter(NewHandler(ts.svc, pinger, log), ts.auth, []string{"http://localhost:5173"})

	ctx := context.Background()
	for _, u := range []ledger.User{
		{ID: resident, Name: "Kemar", Email: "kemar@example.com", Community: "Trench Town", Role: ledger.RoleResident, Active: true},
		{ID: neighbor, Name: "Shanique", Email: "shanique@example.com", Role: ledger.RoleResident, Active: true},
		{ID: admin, Name: "Admin", Email: "admin@example.com", Role: ledger.RoleAdmin, Active: true},
	} {
		require.NoError(t, ts.store.SaveUser(ctx, u))
	}
	return ts
}

func (ts *testServer) token(user ledger.UserID) string {
	ts.t.Helper()
	tok, err := ts.auth.Issue(user, time.Hour)
	require.NoError(ts.t, err)
	return tok
}

// do sends a request as user; an empty user sends no Authorization header.
func (ts *testServer) do(method, path string, user ledger.UserID, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(ts.t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(user))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// statusOf is used in table tests to keep failure messages readable.
func statusOf(rec *httptest.ResponseRecorder) string {
	return http.StatusText(rec.Code) + ": " + rec.Body.String()
}

func ledgerUser(id string) ledger.UserID { return ledger.UserID(id) }
