package rewards_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanjamaica/rewards-ledger/ledger"
	"github.com/cleanjamaica/rewards-ledger/rewards"
)

func TestParseUserID(t *testing.T) {
	id, err := rewards.ParseUserID(" 1D7E0F5C-2B3A-4C5D-8E9F-0A1B2C3D4E5F ")
	require.NoError(t, err)
	assert.Equal(t, resident, id)

	_, err = rewards.ParseUserID("user-1")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRegisterProfile_NewUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		id := ledger.UserID("8e4f70c3-9ca1-4dc4-a506-718293041526")

		user, err := f.svc.RegisterProfile(f.ctx, id, rewards.ProfileInput{
			Name: " Marcia Brown ", Email: "Marcia@Example.com", Community: "Spanish Town",
		})

		require.NoError(t, err)
		assert.Equal(t, "Marcia Brown", user.Name)
		assert.Equal(t, "marcia@example.com", user.Email)
		assert.Equal(t, ledger.RoleResident, user.Role)
		assert.True(t, user.Active)
		assert.Nil(t, user.FirstLoginAt)
	})
}

func TestRegisterProfile_KeepsRoleAndFirstLogin(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		// GIVEN: An admin who already claimed the signup bonus
		_, err := f.svc.AwardSignupBonus(f.ctx, admin)
		require.NoError(t, err)

		// WHEN: They update their profile
		user, err := f.svc.RegisterProfile(f.ctx, admin, rewards.ProfileInput{
			Name: "Admin Renamed", Email: "admin@example.com",
		})

		// THEN: Role and first login are untouched
		require.NoError(t, err)
		assert.Equal(t, "Admin Renamed", user.Name)
		assert.Equal(t, ledger.RoleAdmin, user.Role)
		assert.NotNil(t, user.FirstLoginAt)
	})
}

func TestRegisterProfile_Validation(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		_, err := f.svc.RegisterProfile(f.ctx, resident, rewards.ProfileInput{Name: "", Email: "a@example.com"})
		assert.ErrorIs(t, err, ledger.ErrValidation)

		_, err = f.svc.RegisterProfile(f.ctx, resident, rewards.ProfileInput{Name: "A", Email: "not-an-email"})
		var vErr *ledger.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "email", vErr.Field)
	})
}

func TestUpdateUser_Roles(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		promote := ledger.RoleAdmin

		// An admin may not change roles
		_, err := f.svc.UpdateUser(f.ctx, admin, resident, rewards.UserUpdate{Role: &promote})
		assert.ErrorIs(t, err, ledger.ErrForbidden)

		// A supadmin may
		user, err := f.svc.UpdateUser(f.ctx, supadmin, resident, rewards.UserUpdate{Role: &promote})
		require.NoError(t, err)
		assert.Equal(t, ledger.RoleAdmin, user.Role)

		// And the promoted user can now administer
		_, err = f.svc.RequireAdmin(f.ctx, resident)
		assert.NoError(t, err)
	})
}

func TestUpdateUser_Deactivate(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		inactive := false

		_, err := f.svc.UpdateUser(f.ctx, resident, neighbor, rewards.UserUpdate{Active: &inactive})
		assert.ErrorIs(t, err, ledger.ErrForbidden)

		user, err := f.svc.UpdateUser(f.ctx, admin, neighbor, rewards.UserUpdate{Active: &inactive})
		require.NoError(t, err)
		assert.False(t, user.Active)

		stored, err := f.svc.GetUser(f.ctx, neighbor)
		require.NoError(t, err)
		assert.False(t, stored.Active)
	})
}

func TestUpdateUser_UnknownTarget(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		active := true
		_, err := f.svc.UpdateUser(f.ctx, admin, ledger.UserID("9f5081d4-adb2-4ed5-b617-829304152637"), rewards.UserUpdate{Active: &active})
		assert.True(t, ledger.IsNotFound(err))
	})
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, rewards.DefaultPolicy().Validate())

	p := rewards.DefaultPolicy()
	p.PointsPerCurrencyUnit = 0
	assert.Error(t, p.Validate())

	p = rewards.DefaultPolicy()
	p.MonthlyCap = 100
	assert.Error(t, p.Validate())
}
