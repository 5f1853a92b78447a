package session_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-session"
	"github.com/stretchr/testify/mock"
)

// MockProfileStore implements session.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) Get(ctx context.Context, id string) (*session.UserProfile, error) {
	args := m.Called(ctx, id)
	var profile *session.UserProfile
	if v := args.Get(0); v != nil {
		profile = v.(*session.UserProfile)
	}
	return profile, args.Error(1)
}

func (m *MockProfileStore) Create(ctx context.Context, profile *session.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfileStore) Update(ctx context.Context, profile *session.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

// stubProfileStore is a function-backed ProfileStore for concurrency tests
// where scripted mock expectations get in the way.
type stubProfileStore struct {
	GetFunc    func(ctx context.Context, id string) (*session.UserProfile, error)
	CreateFunc func(ctx context.Context, profile *session.UserProfile) error
	UpdateFunc func(ctx context.Context, profile *session.UserProfile) error
}

func (s *stubProfileStore) Get(ctx context.Context, id string) (*session.UserProfile, error) {
	if s.GetFunc == nil {
		return nil, nil
	}
	return s.GetFunc(ctx, id)
}

func (s *stubProfileStore) Create(ctx context.Context, profile *session.UserProfile) error {
	if s.CreateFunc == nil {
		return nil
	}
	return s.CreateFunc(ctx, profile)
}

func (s *stubProfileStore) Update(ctx context.Context, profile *session.UserProfile) error {
	if s.UpdateFunc == nil {
		return nil
	}
	return s.UpdateFunc(ctx, profile)
}

// fakeIdentityProvider lets tests emit session events like the real provider
// would, in order, on a dedicated goroutine-free path.
type fakeIdentityProvider struct {
	mu           sync.Mutex
	listener     func(*session.Identity)
	unsubscribed bool
	signOutErr   error
	signOuts     int

	resetErrs  []error
	resetCalls int

	verifyErrs  []error
	verifyCalls int
}

func (f *fakeIdentityProvider) OnSessionChanged(listener func(identity *session.Identity)) func() {
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.listener = nil
		f.mu.Unlock()
	}
}

func (f *fakeIdentityProvider) Emit(identity *session.Identity) {
	f.mu.Lock()
	listener := f.listener
	f.mu.Unlock()
	if listener != nil {
		listener(identity)
	}
}

func (f *fakeIdentityProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return f.signOutErr
}

func (f *fakeIdentityProvider) SendVerificationEmail(ctx context.Context, identity *session.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if len(f.verifyErrs) > 0 {
		err := f.verifyErrs[0]
		f.verifyErrs = f.verifyErrs[1:]
		return err
	}
	return nil
}

func (f *fakeIdentityProvider) SendPasswordResetEmail(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	if len(f.resetErrs) > 0 {
		err := f.resetErrs[0]
		f.resetErrs = f.resetErrs[1:]
		return err
	}
	return nil
}

// stubSyncer implements session.ProfileSyncer with a function field.
type stubSyncer struct {
	SyncFunc func(ctx context.Context, identity session.Identity) (*session.UserProfile, error)
}

func (s *stubSyncer) Sync(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
	if s.SyncFunc == nil {
		return nil, nil
	}
	return s.SyncFunc(ctx, identity)
}

// captureSink collects activity events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []session.ActivityEvent
}

func (c *captureSink) Record(ctx context.Context, event session.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) Events() []session.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]session.ActivityEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *captureSink) CountOf(eventType session.ActivityEventType) int {
	count := 0
	for _, event := range c.Events() {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}
