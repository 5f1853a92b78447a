package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// HasRole checks if the profile carries a specific role.
func HasRole(profile *UserProfile, role UserRole) bool {
	if profile == nil {
		return false
	}
	return profile.Role == role
}

// IsAdmin checks if the profile carries the admin role.
func IsAdmin(profile *UserProfile) bool {
	return HasRole(profile, RoleAdmin)
}

// CanAccessAdmin checks if the profile may use administrative surfaces.
func CanAccessAdmin(profile *UserProfile) bool {
	return IsAdmin(profile)
}

// CanAccessParent checks if the profile may use the parent surfaces; admins
// always can.
func CanAccessParent(profile *UserProfile) bool {
	return HasRole(profile, RoleParent) || IsAdmin(profile)
}

// CanAccessAdmin reports whether the current session's profile may use
// administrative surfaces.
func (s *Store) CanAccessAdmin() bool {
	state := s.GetState()
	return CanAccessAdmin(state.Profile)
}

// CanAccessParent reports whether the current session's profile may use the
// parent surfaces.
func (s *Store) CanAccessParent() bool {
	state := s.GetState()
	return CanAccessParent(state.Profile)
}

// HasRole reports whether the current session's profile carries role.
func (s *Store) HasRole(role UserRole) bool {
	state := s.GetState()
	return HasRole(state.Profile, role)
}

// Policy guards role mutations against the stored profile documents. Only
// admins may change roles; the self-service promotion path exists for
// development setups and is refused unless explicitly enabled.
type Policy struct {
	profiles      ProfileStore
	selfPromotion bool
	now           func() time.Time
	logger        Logger
	provider      LoggerProvider
	activity      ActivitySink
}

// PolicyOption customizes policy construction.
type PolicyOption func(*Policy)

// WithSelfServicePromotion enables the self-service "promote to admin"
// operation. Off by default: any authenticated caller being able to grant
// itself admin is a development convenience, not production behavior.
func WithSelfServicePromotion(enabled bool) PolicyOption {
	return func(p *Policy) {
		p.selfPromotion = enabled
	}
}

// WithPolicyClock injects a custom clock (useful for tests).
func WithPolicyClock(clock func() time.Time) PolicyOption {
	return func(p *Policy) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithPolicyLogger overrides the logger.
func WithPolicyLogger(logger Logger) PolicyOption {
	return func(p *Policy) {
		p.provider, p.logger = ResolveLogger("session.policy", p.provider, logger)
	}
}

// WithPolicyActivitySink sets the ActivitySink used to publish role changes.
func WithPolicyActivitySink(sink ActivitySink) PolicyOption {
	return func(p *Policy) {
		p.activity = normalizeActivitySink(sink)
	}
}

// NewPolicy creates a role policy over the given profile store.
func NewPolicy(profiles ProfileStore, opts ...PolicyOption) *Policy {
	provider, logger := ResolveLogger("session.policy", nil, nil)
	policy := &Policy{
		profiles: profiles,
		now:      time.Now,
		logger:   logger,
		provider: provider,
		activity: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(policy)
		}
	}

	return policy
}

// SetRole assigns role to the target profile. It fails with a permission
// error unless the actor is an admin.
func (p *Policy) SetRole(ctx context.Context, actor *UserProfile, targetID string, role UserRole) (*UserProfile, error) {
	if !IsAdmin(actor) {
		return nil, ErrPermissionDenied.WithMetadata(map[string]any{
			"target_id": targetID,
			"role":      role,
		})
	}
	return p.assignRole(ctx, actor, targetID, role)
}

// PromoteSelf grants the acting profile the admin role. Refused unless the
// policy was built with WithSelfServicePromotion(true).
func (p *Policy) PromoteSelf(ctx context.Context, actor *UserProfile) (*UserProfile, error) {
	if actor == nil {
		return nil, ErrNoIdentity
	}
	if !p.selfPromotion {
		return nil, ErrPermissionDenied.WithMetadata(map[string]any{
			"target_id": actor.ID,
			"reason":    "self-service promotion is disabled",
		})
	}
	return p.assignRole(ctx, actor, actor.ID, RoleAdmin)
}

func (p *Policy) assignRole(ctx context.Context, actor *UserProfile, targetID string, role UserRole) (*UserProfile, error) {
	if !IsValidRole(role) {
		return nil, goerrors.New("unknown role", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"role": role})
	}
	if p.profiles == nil {
		return nil, goerrors.New("profile store is not configured", goerrors.CategoryInternal)
	}

	target, err := p.profiles.Get(ctx, targetID)
	if err != nil {
		if IsProfileNotFound(err) {
			return nil, goerrors.New("target profile not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"target_id": targetID})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to read target profile")
	}

	from := target.Role
	now := p.now()
	target.Role = role
	target.UpdatedAt = &now
	if err := p.profiles.Update(ctx, target); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to persist role change")
	}

	p.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventRoleChanged,
		IdentityID: targetID,
		Metadata: map[string]any{
			"actor_id":  profileID(actor),
			"from_role": from,
			"to_role":   role,
		},
	})

	return target, nil
}

func (p *Policy) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}

	sink := normalizeActivitySink(p.activity)
	if err := sink.Record(ctx, event); err != nil {
		p.logger.Warn("policy activity sink error", "error", err)
	}
}

func profileID(profile *UserProfile) string {
	if profile == nil {
		return ""
	}
	return profile.ID
}
