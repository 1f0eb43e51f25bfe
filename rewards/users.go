package rewards

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cleanjamaica/rewards-ledger/ledger"
)

// ProfileInput is what a resident supplies when registering.
type ProfileInput struct {
	Name      string
	Email     string
	Community string
}

// UserUpdate is an admin change to a user. Nil fields are left alone.
type UserUpdate struct {
	Role   *ledger.Role
	Active *bool
}

// ParseUserID checks that id is a UUID as issued by the identity provider.
func ParseUserID(id string) (ledger.UserID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", &ledger.ValidationError{Field: "user_id", Value: id, Reason: "must be a UUID"}
	}
	return ledger.UserID(parsed.String()), nil
}

// GetUser returns a user or NotFound.
func (s *Service) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	return requireUser(ctx, s.store, id)
}

// RegisterProfile creates the caller's profile or refreshes its name, email
// and community. Role, active flag and first-login are never touched here.
func (s *Service) RegisterProfile(ctx context.Context, id ledger.UserID, in ProfileInput) (*ledger.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ledger.ValidationError{Field: "name", Value: in.Name, Reason: "is required"}
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, &ledger.ValidationError{Field: "email", Value: in.Email, Reason: "must be a valid email address"}
	}

	var saved *ledger.User
	err = s.store.WithTx(ctx, func(st ledger.Store) error {
		existing, err := st.GetUser(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		user := ledger.User{ID: id, Role: ledger.RoleResident, Active: true}
		if existing != nil {
			user = *existing
		}
		user.Name = name
		user.Email = strings.ToLower(addr.Address)
		user.Community = strings.TrimSpace(in.Community)

		if err := st.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		saved, err = st.GetUser(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("user_id", id).Info("profile registered")
	return saved, nil
}

// UpdateUser changes a user's role or active flag. Admins may toggle the
// active flag; only a supadmin may change roles.
func (s *Service) UpdateUser(ctx context.Context, actorID, targetID ledger.UserID, upd UserUpdate) (*ledger.User, error) {
	var saved *ledger.User
	err := s.store.WithTx(ctx, func(st ledger.Store) error {
		actor, err := requireAdmin(ctx, st, actorID, "manage users")
		if err != nil {
			return err
		}
		if upd.Role != nil && actor.Role != ledger.RoleSupAdmin {
			return &ledger.ForbiddenError{ActorID: actorID, Role: actor.Role, Action: "change roles"}
		}

		target, err := requireUser(ctx, st, targetID)
		if err != nil {
			return err
		}
		if upd.Role != nil {
			target.Role = *upd.Role
		}
		if upd.Active != nil {
			target.Active = *upd.Active
		}
		if err := st.SaveUser(ctx, *target); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		saved = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"actor_id":  actorID,
		"target_id": targetID,
		"role":      saved.Role,
		"active":    saved.Active,
	}).Info("user updated")
	return saved, nil
}

// RequireAdmin fails with NotFound or Forbidden unless id is an active admin.
func (s *Service) RequireAdmin(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	return requireAdmin(ctx, s.store, id, "administer rewards")
}
