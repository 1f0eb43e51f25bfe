package rewards

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

// Service exposes the reward operations. It is safe for concurrent use.
type Service struct {
	store  ledger.TxStore
	policy Policy
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a service over store. A nil logger discards output.
func NewService(store ledger.TxStore, policy Policy, log logrus.FieldLogger) *Service {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Service{
		store:  store,
		policy: policy,
		log:    log.WithField("component", "rewards"),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests and the scheduler.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Policy returns the active reward policy.
func (s *Service) Policy() Policy { return s.policy }

// Balance returns the projected balance of a user.
func (s *Service) Balance(ctx context.Context, userID ledger.UserID) (ledger.Balance, error) {
	return ledger.NewProjector(s.store).Project(ctx, userID)
}

// History returns a page of the user's transactions, newest first.
func (s *Service) History(ctx context.Context, userID ledger.UserID, page ledger.Page) (ledger.HistoryPage, error) {
	return ledger.New(s.store).ListByUser(ctx, userID, page)
}

// requireUser loads a user or fails with NotFound.
func requireUser(ctx context.Context, st ledger.Store, id ledger.UserID) (*ledger.User, error) {
	user, err := st.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, &ledger.NotFoundError{Resource: "user", ID: string(id)}
	}
	return user, nil
}

// requireAdmin loads the acting user and checks the admin role.
func requireAdmin(ctx context.Context, st ledger.Store, id ledger.UserID, action string) (*ledger.User, error) {
	user, err := requireUser(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if !user.CanAdminister() {
		return nil, &ledger.ForbiddenError{ActorID: id, Role: user.Role, Action: action}
	}
	return user, nil
}

// projectOrZero treats "no balance yet" as a zero balance.
func projectOrZero(ctx context.Context, st ledger.Store, id ledger.UserID) (ledger.Balance, error) {
	b, err := ledger.NewProjector(st).Project(ctx, id)
	if ledger.IsNotFound(err) {
		return ledger.Balance{UserID: id}, nil
	}
	return b, err
}
