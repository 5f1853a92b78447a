package session_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidRole(t *testing.T) {
	assert.True(t, session.IsValidRole(session.RoleParent))
	assert.True(t, session.IsValidRole(session.RoleAdmin))
	assert.False(t, session.IsValidRole("superuser"))
	assert.False(t, session.IsValidRole(""))
}

func TestParseRole(t *testing.T) {
	role, ok := session.ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, session.RoleAdmin, role)

	_, ok = session.ParseRole("root")
	assert.False(t, ok)
}

func TestNewUserProfileDefaults(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	identity := session.Identity{
		ID:            "u1",
		Email:         "a@b.com",
		DisplayName:   "Ada",
		EmailVerified: true,
		PhotoURL:      "https://cdn.example.com/a.png",
	}

	profile := session.NewUserProfile(identity, now)

	assert.Equal(t, "u1", profile.ID)
	assert.Equal(t, "a@b.com", profile.Email)
	assert.Equal(t, "Ada", profile.DisplayName)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, session.RoleParent, profile.Role)
	assert.Equal(t, "https://cdn.example.com/a.png", profile.Profile.ProfilePicture)
	assert.True(t, profile.Profile.Preferences.Notifications)
	assert.Equal(t, "en", profile.Profile.Preferences.Language)
	assert.Equal(t, "UTC", profile.Profile.Preferences.Timezone)
	assert.Equal(t, session.SubscriptionPlanFree, profile.Subscription.Plan)
	assert.Equal(t, session.SubscriptionStatusInactive, profile.Subscription.Status)
	require.NotNil(t, profile.CreatedAt)
	assert.Equal(t, now, *profile.CreatedAt)
	require.NotNil(t, profile.LastLogin)
	assert.Equal(t, now, *profile.LastLogin)
}

func TestEnsureRoleDefaultsLegacyDocuments(t *testing.T) {
	profile := &session.UserProfile{ID: "u1"}
	profile.EnsureRole()
	assert.Equal(t, session.RoleParent, profile.Role)

	admin := &session.UserProfile{ID: "u2", Role: session.RoleAdmin}
	admin.EnsureRole()
	assert.Equal(t, session.RoleAdmin, admin.Role)
}

func TestApplyIdentityMirrorsProviderFieldsOnly(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	profile := session.NewUserProfile(session.Identity{ID: "u1", Email: "old@b.com"}, created)
	profile.Role = session.RoleAdmin
	profile.Profile.FirstName = "Ada"
	profile.Subscription.Plan = "premium"

	profile.ApplyIdentity(session.Identity{
		ID:            "u1",
		Email:         "new@b.com",
		DisplayName:   "Ada L.",
		EmailVerified: true,
	}, now)

	assert.Equal(t, "new@b.com", profile.Email)
	assert.Equal(t, "Ada L.", profile.DisplayName)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, now, *profile.LastLogin)
	assert.Equal(t, now, *profile.UpdatedAt)

	// local fields survive the mirror
	assert.Equal(t, session.RoleAdmin, profile.Role)
	assert.Equal(t, "Ada", profile.Profile.FirstName)
	assert.Equal(t, "premium", profile.Subscription.Plan)
	assert.Equal(t, created, *profile.CreatedAt)
}

func TestCloneDoesNotShareTimestamps(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	profile := session.NewUserProfile(session.Identity{ID: "u1"}, now)

	clone := profile.Clone()
	require.NotNil(t, clone)

	later := now.Add(time.Hour)
	*profile.LastLogin = later
	assert.Equal(t, now, *clone.LastLogin)

	var nilProfile *session.UserProfile
	assert.Nil(t, nilProfile.Clone())
}
