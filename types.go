package session

import (
	"context"
)

// Identity holds the attributes the external authentication service reports
// for a signed-in user. It is read-only to this package; only EmailVerified
// may change between events for the same identity.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
	PhotoURL      string `json:"photo_url,omitempty"`
}

// IdentityProvider is the boundary to the external authentication service.
// OnSessionChanged registers a listener invoked with the current identity on
// every session change (nil identity means signed out) and returns an
// unsubscribe function. Events are delivered in emission order.
type IdentityProvider interface {
	OnSessionChanged(listener func(identity *Identity)) (unsubscribe func())
	SignOut(ctx context.Context) error
	SendVerificationEmail(ctx context.Context, identity *Identity) error
	SendPasswordResetEmail(ctx context.Context, email string) error
}

// ProfileStore is the boundary to the profile document service, keyed by
// identity id. Get returns a not-found error (see IsProfileNotFound) when no
// document exists for the id.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*UserProfile, error)
	Create(ctx context.Context, profile *UserProfile) error
	Update(ctx context.Context, profile *UserProfile) error
}

// ProfileSyncer reconciles the stored profile with a freshly observed
// identity. Implementations must resolve within a bounded time and are
// expected to absorb failures by returning a nil profile; the store treats a
// returned error as an unexpected failure and records it on the session.
type ProfileSyncer interface {
	Sync(ctx context.Context, identity Identity) (*UserProfile, error)
}

// SessionState is the committed session snapshot exposed to consumers.
// Profile may be nil while Identity is non-nil: profile synchronization soft
// failed and the session proceeds without personalization.
type SessionState struct {
	Identity *Identity    `json:"identity,omitempty"`
	Profile  *UserProfile `json:"profile,omitempty"`
	Loading  bool         `json:"loading"`
	Error    string       `json:"error,omitempty"`
}

// Authenticated reports whether the committed state carries an identity.
func (s SessionState) Authenticated() bool {
	return s.Identity != nil
}
