package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultSyncTimeout bounds how long a sync waits on the profile store
// before the session proceeds without profile data.
var DefaultSyncTimeout = 5 * time.Second

var _ ProfileSyncer = (*Synchronizer)(nil)

// Synchronizer reconciles the stored profile document with a freshly
// observed identity. A slow or unreachable store degrades the session
// (missing personalization) instead of blocking it: the reconciliation is
// raced against a timeout and any failure resolves to a nil profile.
type Synchronizer struct {
	profiles ProfileStore
	timeout  time.Duration
	now      func() time.Time
	logger   Logger
	provider LoggerProvider
}

// SynchronizerOption customizes synchronizer construction.
type SynchronizerOption func(*Synchronizer)

// WithSyncTimeout overrides the reconciliation timeout.
func WithSyncTimeout(timeout time.Duration) SynchronizerOption {
	return func(s *Synchronizer) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithSynchronizerClock injects a custom clock (useful for tests).
func WithSynchronizerClock(clock func() time.Time) SynchronizerOption {
	return func(s *Synchronizer) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSynchronizerLogger overrides the logger.
func WithSynchronizerLogger(logger Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		s.provider, s.logger = ResolveLogger("session.synchronizer", s.provider, logger)
	}
}

// NewSynchronizer creates a synchronizer backed by the given profile store.
func NewSynchronizer(profiles ProfileStore, opts ...SynchronizerOption) *Synchronizer {
	provider, logger := ResolveLogger("session.synchronizer", nil, nil)
	sync := &Synchronizer{
		profiles: profiles,
		timeout:  DefaultSyncTimeout,
		now:      time.Now,
		logger:   logger,
		provider: provider,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sync)
		}
	}

	return sync
}

type syncOutcome struct {
	profile *UserProfile
	err     error
}

// Sync reconciles the profile document for identity and resolves within the
// configured timeout. It never returns an error: timeouts and store failures
// are soft failures resolved as a nil profile. When the timer wins the race
// the outstanding store call is abandoned, not cancelled; its late result is
// dropped here and the caller's staleness check guards against any other
// path back into session state.
func (s *Synchronizer) Sync(ctx context.Context, identity Identity) (*UserProfile, error) {
	if s.profiles == nil {
		s.logger.Error("profile store is not configured")
		return nil, nil
	}
	if identity.ID == "" {
		return nil, nil
	}

	results := make(chan syncOutcome, 1)
	go func() {
		profile, err := s.reconcile(ctx, identity)
		results <- syncOutcome{profile: profile, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case outcome := <-results:
		if outcome.err != nil {
			s.logger.Warn("profile sync soft failure",
				"identity_id", identity.ID,
				"error", outcome.err,
			)
			return nil, nil
		}
		return outcome.profile, nil
	case <-timer.C:
		s.logger.Warn("profile sync timed out",
			"identity_id", identity.ID,
			"timeout", s.timeout,
		)
		return nil, nil
	case <-ctx.Done():
		s.logger.Debug("profile sync abandoned, context done", "identity_id", identity.ID)
		return nil, nil
	}
}

func (s *Synchronizer) reconcile(ctx context.Context, identity Identity) (*UserProfile, error) {
	existing, err := s.profiles.Get(ctx, identity.ID)
	if err != nil {
		if !IsProfileNotFound(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to read profile document")
		}

		profile := NewUserProfile(identity, s.now())
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to create profile document")
		}
		return profile, nil
	}

	existing.EnsureRole()
	existing.ApplyIdentity(identity, s.now())
	if err := s.profiles.Update(ctx, existing); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to update profile document")
	}

	return existing, nil
}
