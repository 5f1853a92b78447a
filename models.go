package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the profile's role
type UserRole = string

const (
	// RoleParent is the default role assigned on profile creation
	RoleParent UserRole = "parent"
	// RoleAdmin grants access to administrative surfaces
	RoleAdmin UserRole = "admin"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleParent, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// Preferences holds user-selected notification and locale settings.
type Preferences struct {
	Notifications bool   `json:"notifications"`
	Language      string `json:"language,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

// ProfileData holds user-entered profile fields. Sync never touches these;
// they change only through explicit profile updates.
type ProfileData struct {
	FirstName      string      `json:"first_name,omitempty"`
	LastName       string      `json:"last_name,omitempty"`
	Phone          string      `json:"phone,omitempty"`
	ProfilePicture string      `json:"profile_picture,omitempty"`
	Preferences    Preferences `json:"preferences"`
}

// Subscription plan states
const (
	SubscriptionPlanFree       = "free"
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusActive   = "active"
)

// Subscription describes the account's billing plan.
type Subscription struct {
	Plan      string     `json:"plan,omitempty"`
	Status    string     `json:"status,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// UserProfile is the locally cached profile document, keyed by the owning
// identity's id. Provider-sourced fields (email, display name, verification
// flag) are mirrored on every sync; Role and Profile are preserved verbatim
// once set.
type UserProfile struct {
	ID            string       `json:"id,omitempty"`
	Email         string       `json:"email,omitempty"`
	DisplayName   string       `json:"display_name,omitempty"`
	EmailVerified bool         `json:"is_email_verified,omitempty"`
	Role          UserRole     `json:"user_role,omitempty"`
	Profile       ProfileData  `json:"profile,omitempty"`
	Subscription  Subscription `json:"subscription,omitempty"`
	LastLogin     *time.Time   `json:"last_login,omitempty"`
	CreatedAt     *time.Time   `json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `json:"updated_at,omitempty"`
}

// NewUserProfile constructs the default profile for a first sign-in.
func NewUserProfile(identity Identity, now time.Time) *UserProfile {
	return &UserProfile{
		ID:            identity.ID,
		Email:         identity.Email,
		DisplayName:   identity.DisplayName,
		EmailVerified: identity.EmailVerified,
		Role:          RoleParent,
		Profile: ProfileData{
			ProfilePicture: identity.PhotoURL,
			Preferences: Preferences{
				Notifications: true,
				Language:      "en",
				Timezone:      "UTC",
			},
		},
		Subscription: Subscription{
			Plan:   SubscriptionPlanFree,
			Status: SubscriptionStatusInactive,
		},
		LastLogin: &now,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
}

// EnsureRole defaults the role for documents written before roles existed.
func (p *UserProfile) EnsureRole() {
	if p.Role == "" {
		p.Role = RoleParent
	}
}

// ApplyIdentity mirrors provider-sourced fields onto the stored document and
// advances the login/update timestamps. Role, Profile, and Subscription are
// left untouched.
func (p *UserProfile) ApplyIdentity(identity Identity, now time.Time) *UserProfile {
	p.Email = identity.Email
	p.DisplayName = identity.DisplayName
	p.EmailVerified = identity.EmailVerified
	p.LastLogin = &now
	p.UpdatedAt = &now
	return p
}

// Clone returns a deep-enough copy for committing into session state without
// sharing timestamp pointers with the caller.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.LastLogin = cloneTime(p.LastLogin)
	out.CreatedAt = cloneTime(p.CreatedAt)
	out.UpdatedAt = cloneTime(p.UpdatedAt)
	out.Subscription.StartDate = cloneTime(p.Subscription.StartDate)
	out.Subscription.EndDate = cloneTime(p.Subscription.EndDate)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Recovery request statuses
const (
	// RecoveryRequestedStatus is the initial status
	RecoveryRequestedStatus = "requested"
	// RecoveryDeliveredStatus means the provider accepted the request
	RecoveryDeliveredStatus = "delivered"
	// RecoveryFailedStatus means the request terminally failed
	RecoveryFailedStatus = "failed"
)

// RecoveryRequest is the audit record for an account-recovery attempt.
type RecoveryRequest struct {
	bun.BaseModel `bun:"table:recovery_requests,alias:rcvr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Status        string     `bun:"status,notnull" json:"status,omitempty"`
	Attempts      int        `bun:"attempts" json:"attempts,omitempty"`
	LastError     string     `bun:"last_error" json:"last_error,omitempty"`
	DeliveredAt   *time.Time `bun:"delivered_at,nullzero" json:"delivered_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}
