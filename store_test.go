package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitState(t *testing.T, ch <-chan session.SessionState) session.SessionState {
	t.Helper()
	select {
	case state := <-ch:
		return state
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settlement")
		return session.SessionState{}
	}
}

func assertNoState(t *testing.T, ch <-chan session.SessionState, window time.Duration) {
	t.Helper()
	select {
	case state := <-ch:
		t.Fatalf("unexpected settlement: %+v", state)
	case <-time.After(window):
	}
}

func newStates() chan session.SessionState {
	return make(chan session.SessionState, 16)
}

func TestStoreStartsInInitialState(t *testing.T) {
	provider := &fakeIdentityProvider{}
	store := session.NewStore(provider, &stubSyncer{})

	assert.Equal(t, session.StateInitial, store.CurrentState())
	state := store.GetState()
	assert.Nil(t, state.Identity)
	assert.Nil(t, state.Profile)
	assert.False(t, state.Loading)
}

func TestStoreSettlesAuthenticated(t *testing.T) {
	provider := &fakeIdentityProvider{}
	syncer := &stubSyncer{
		SyncFunc: func(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
			return &session.UserProfile{ID: identity.ID, Email: identity.Email, Role: session.RoleParent}, nil
		},
	}
	store := session.NewStore(provider, syncer)
	defer store.Stop()

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	provider.Emit(&session.Identity{ID: "u1", Email: "a@b.com"})

	state := waitState(t, states)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "u1", state.Identity.ID)
	require.NotNil(t, state.Profile)
	assert.Equal(t, "u1", state.Profile.ID)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)
	assert.Equal(t, session.StateReadyAuthenticated, store.CurrentState())
}

func TestStoreSettlesAnonymous(t *testing.T) {
	provider := &fakeIdentityProvider{}
	store := session.NewStore(provider, &stubSyncer{})
	defer store.Stop()

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	provider.Emit(nil)

	state := waitState(t, states)
	assert.Nil(t, state.Identity)
	assert.Nil(t, state.Profile)
	assert.False(t, state.Loading)
	assert.Equal(t, session.StateReadyAnonymous, store.CurrentState())
}

func TestStoreSoftFailureStillSettlesAuthenticated(t *testing.T) {
	provider := &fakeIdentityProvider{}
	syncer := &stubSyncer{
		SyncFunc: func(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
			return nil, nil
		},
	}
	store := session.NewStore(provider, syncer)
	defer store.Stop()

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	provider.Emit(&session.Identity{ID: "u1"})

	state := waitState(t, states)
	require.NotNil(t, state.Identity)
	assert.Nil(t, state.Profile)
	assert.Equal(t, session.StateReadyAuthenticated, store.CurrentState())
}

func TestStoreRecordsUnexpectedSyncError(t *testing.T) {
	provider := &fakeIdentityProvider{}
	syncer := &stubSyncer{
		SyncFunc: func(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
			return nil, errors.New("syncer blew up")
		},
	}
	store := session.NewStore(provider, syncer)
	defer store.Stop()

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	provider.Emit(&session.Identity{ID: "u1"})

	state := waitState(t, states)
	require.NotNil(t, state.Identity)
	assert.Nil(t, state.Profile)
	assert.Contains(t, state.Error, "syncer blew up")
	assert.Equal(t, session.StateReadyAuthenticated, store.CurrentState())
}

func TestStoreBackstopSettlesWhenSyncerHangs(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	provider := &fakeIdentityProvider{}
	syncer := &stubSyncer{
		SyncFunc: func(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
			<-block
			return nil, nil
		},
	}
	store := session.NewStore(provider, syncer, session.WithSettleBackstop(50*time.Millisecond))
	defer store.Stop()

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	provider.Emit(&session.Identity{ID: "u1"})

	state := waitState(t, states)
	require.NotNil(t, state.Identity)
	assert.Nil(t, state.Profile)
	assert.NotEmpty(t, state.Error)
	assert.Equal(t, session.StateReadyAuthenticated, store.CurrentState())
}

func TestStoreDiscardsStaleSyncResult(t *testing.T) {
	releaseA := make(chan struct{})

	provider := &fakeIdentityProvider{}
	sink := &captureSink{}
	syncer := &stubSyncer{
		SyncFunc: func(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
			if identity.ID == "a" {
				<-releaseA
			}
			return &session.UserProfile{ID: identity.ID, Role: session.RoleParent}, nil
		},
	}
	store := session.NewStore(provider, syncer, session.WithStoreActivitySink(sink))
	defer store.Stop()

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	provider.Emit(&session.Identity{ID: "a"})
	provider.Emit(&session.Identity{ID: "b"})

	state := waitState(t, states)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "b", state.Identity.ID)

	// a's sync finally resolves; its result must be dropped, not applied
	close(releaseA)
	assertNoState(t, states, 100*time.Millisecond)

	final := store.GetState()
	require.NotNil(t, final.Identity)
	assert.Equal(t, "b", final.Identity.ID)
	require.NotNil(t, final.Profile)
	assert.Equal(t, "b", final.Profile.ID)

	require.Eventually(t, func() bool {
		return sink.CountOf(session.ActivityEventStaleDiscarded) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStoreSignOutFlowsThroughProviderEvent(t *testing.T) {
	provider := &fakeIdentityProvider{}
	syncer := &stubSyncer{
		SyncFunc: func(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
			return &session.UserProfile{ID: identity.ID, Role: session.RoleParent}, nil
		},
	}
	store := session.NewStore(provider, syncer)
	defer store.Stop()

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	provider.Emit(&session.Identity{ID: "u1"})
	waitState(t, states)

	require.NoError(t, store.SignOut(context.Background()))
	provider.Emit(nil)

	state := waitState(t, states)
	assert.Nil(t, state.Identity)
	assert.Equal(t, session.StateReadyAnonymous, store.CurrentState())
}

func TestStoreStopIsTerminal(t *testing.T) {
	provider := &fakeIdentityProvider{}
	store := session.NewStore(provider, &stubSyncer{})

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	store.Stop()
	assert.Equal(t, session.StateTornDown, store.CurrentState())
	assert.True(t, provider.unsubscribed)

	// events after teardown never settle
	provider.Emit(&session.Identity{ID: "u1"})
	assertNoState(t, states, 100*time.Millisecond)
	assert.Equal(t, session.StateTornDown, store.CurrentState())

	require.ErrorIs(t, store.SignOut(context.Background()), session.ErrStoreTornDown)
	_, err := store.UpdateUserProfile(context.Background(), session.ProfileUpdate{})
	require.ErrorIs(t, err, session.ErrStoreTornDown)

	// double stop is a no-op
	store.Stop()
}

func TestStoreStartTwiceFails(t *testing.T) {
	provider := &fakeIdentityProvider{}
	store := session.NewStore(provider, &stubSyncer{})
	defer store.Stop()

	require.NoError(t, store.Start(context.Background()))
	require.ErrorIs(t, store.Start(context.Background()), session.ErrAlreadyStarted)
}

func TestStoreUnsubscribeStopsNotifications(t *testing.T) {
	provider := &fakeIdentityProvider{}
	syncer := &stubSyncer{
		SyncFunc: func(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
			return &session.UserProfile{ID: identity.ID, Role: session.RoleParent}, nil
		},
	}
	store := session.NewStore(provider, syncer)
	defer store.Stop()

	states := newStates()
	unsubscribe := store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	provider.Emit(&session.Identity{ID: "u1"})
	waitState(t, states)

	unsubscribe()
	provider.Emit(nil)
	assertNoState(t, states, 100*time.Millisecond)
}

func TestStoreTokenRefreshCollapsesToResync(t *testing.T) {
	provider := &fakeIdentityProvider{}
	syncs := make(chan string, 4)
	syncer := &stubSyncer{
		SyncFunc: func(ctx context.Context, identity session.Identity) (*session.UserProfile, error) {
			syncs <- identity.ID
			return &session.UserProfile{ID: identity.ID, Role: session.RoleParent}, nil
		},
	}
	store := session.NewStore(provider, syncer)
	defer store.Stop()

	states := newStates()
	store.Subscribe(func(state session.SessionState) { states <- state })
	require.NoError(t, store.Start(context.Background()))

	// same identity emitted twice (e.g. token refresh) still re-syncs
	provider.Emit(&session.Identity{ID: "u1"})
	waitState(t, states)
	provider.Emit(&session.Identity{ID: "u1", EmailVerified: true})
	state := waitState(t, states)

	require.NotNil(t, state.Identity)
	assert.True(t, state.Identity.EmailVerified)
	assert.Len(t, syncs, 2)
}
