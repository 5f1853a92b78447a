package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// StoreState identifies where the store is in its lifecycle.
type StoreState string

const (
	// StateInitial is the state before any provider event arrives
	StateInitial StoreState = "initial"
	// StateSyncing means a session event is being settled
	StateSyncing StoreState = "syncing"
	// StateReadyAuthenticated means an identity is present (profile may be nil)
	StateReadyAuthenticated StoreState = "ready_authenticated"
	// StateReadyAnonymous means no identity is signed in
	StateReadyAnonymous StoreState = "ready_anonymous"
	// StateTornDown is terminal; no further transitions are accepted
	StateTornDown StoreState = "torn_down"
)

// DefaultSettleBackstop is the hard upper bound on settlement, independent
// of the synchronizer's own timeout. It guarantees the store always settles
// even if the syncer misbehaves.
var DefaultSettleBackstop = 10 * time.Second

const (
	TextCodeInvalidTransition = "INVALID_SESSION_STATE_TRANSITION"
	TextCodeAlreadyStarted    = "SESSION_STORE_ALREADY_STARTED"
)

// ErrInvalidTransition is returned when a requested state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = goerrors.New("session store already started", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyStarted).
	WithCode(goerrors.CodeConflict)

// Listener is notified with the committed state on every settlement.
type Listener func(state SessionState)

// Store owns the authoritative session state. Provider events are delivered
// through an ordered channel into a single event loop; each event is tagged
// with a sequence number so the result of a superseded synchronization is
// discarded instead of applied.
type Store struct {
	identities IdentityProvider
	syncer     ProfileSyncer
	profiles   ProfileStore
	backstop   time.Duration
	now        func() time.Time
	logger     Logger
	provider   LoggerProvider
	activity   ActivitySink

	transitions map[StoreState]map[StoreState]struct{}

	mu           sync.Mutex
	state        StoreState
	snapshot     SessionState
	seq          uint64
	listeners    map[uint64]Listener
	nextListener uint64
	started      bool
	unsubscribe  func()

	events chan *Identity
	done   chan struct{}
}

// StoreOption customizes store construction.
type StoreOption func(*Store)

// WithSettleBackstop overrides the settlement hard bound.
func WithSettleBackstop(backstop time.Duration) StoreOption {
	return func(s *Store) {
		if backstop > 0 {
			s.backstop = backstop
		}
	}
}

// WithStoreClock injects a custom clock (useful for tests).
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithStoreLogger overrides the logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *Store) {
		s.provider, s.logger = ResolveLogger("session.store", s.provider, logger)
	}
}

// WithStoreActivitySink sets the ActivitySink used to publish session events.
func WithStoreActivitySink(sink ActivitySink) StoreOption {
	return func(s *Store) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithStoreProfiles attaches the profile store used by explicit profile
// updates and role changes. Not needed when the store only tracks sessions.
func WithStoreProfiles(profiles ProfileStore) StoreOption {
	return func(s *Store) {
		s.profiles = profiles
	}
}

// NewStore creates a session store fed by the given provider and syncer.
func NewStore(identities IdentityProvider, syncer ProfileSyncer, opts ...StoreOption) *Store {
	provider, logger := ResolveLogger("session.store", nil, nil)
	store := &Store{
		identities: identities,
		syncer:     syncer,
		backstop:   DefaultSettleBackstop,
		now:        time.Now,
		logger:     logger,
		provider:   provider,
		activity:   noopActivitySink{},
		transitions: map[StoreState]map[StoreState]struct{}{
			StateInitial: {
				StateSyncing: {},
			},
			StateSyncing: {
				StateReadyAuthenticated: {},
				StateReadyAnonymous:     {},
			},
			StateReadyAuthenticated: {
				StateSyncing: {},
			},
			StateReadyAnonymous: {
				StateSyncing: {},
			},
		},
		state:     StateInitial,
		snapshot:  SessionState{},
		listeners: map[uint64]Listener{},
		events:    make(chan *Identity, 16),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

// Start subscribes to the identity provider and begins processing session
// events. It returns immediately; events settle asynchronously.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return ErrStoreTornDown
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if s.identities != nil {
		s.unsubscribe = s.identities.OnSessionChanged(func(identity *Identity) {
			select {
			case s.events <- identity:
			case <-s.done:
			}
		})
	}

	go s.loop(ctx)
	return nil
}

// Stop tears the store down. The torn-down state is terminal: no further
// transitions are accepted and listeners receive no more notifications.
func (s *Store) Stop() {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = StateTornDown
	s.listeners = map[uint64]Listener{}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	close(s.done)

	s.recordActivity(context.Background(), ActivityEvent{
		EventType: ActivityEventStateChanged,
		FromState: from,
		ToState:   StateTornDown,
	})
}

// GetState returns the current committed session state synchronously.
func (s *Store) GetState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// CurrentState returns the store's lifecycle state.
func (s *Store) CurrentState() StoreState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a listener invoked on every committed settlement (not
// on entry to syncing) and returns an unsubscribe handle. Subscribing to a
// torn-down store returns a no-op handle.
func (s *Store) Subscribe(listener Listener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTornDown {
		return func() {}
	}

	s.nextListener++
	id := s.nextListener
	s.listeners[id] = listener

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SignOut delegates to the identity provider; the resulting session-changed
// event drives the transition to the anonymous state.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	tornDown := s.state == StateTornDown
	s.mu.Unlock()
	if tornDown {
		return ErrStoreTornDown
	}
	if s.identities == nil {
		return goerrors.New("identity provider is not configured", goerrors.CategoryInternal)
	}
	return s.identities.SignOut(ctx)
}

func (s *Store) loop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Stop()
			return
		case identity := <-s.events:
			s.beginSync(ctx, identity)
		}
	}
}

// beginSync records that a new event supersedes any in-flight settlement and
// kicks off the settlement without blocking the event loop: a slow sync for
// event N must not delay recording that event N+1 arrived.
func (s *Store) beginSync(ctx context.Context, identity *Identity) {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	if s.state != StateSyncing {
		if !s.canTransition(s.state, StateSyncing) {
			s.mu.Unlock()
			return
		}
		s.state = StateSyncing
	}
	s.seq++
	seq := s.seq
	s.snapshot.Loading = true
	s.mu.Unlock()

	go s.settle(ctx, seq, identity)
}

func (s *Store) settle(ctx context.Context, seq uint64, identity *Identity) {
	if identity == nil {
		s.commit(ctx, seq, nil, nil, "")
		return
	}

	profile, errMsg := s.runSync(ctx, *identity)
	s.commit(ctx, seq, identity, profile, errMsg)
}

// runSync waits on the syncer under the settlement backstop. The syncer
// already absorbs timeouts and store failures; the backstop and the panic
// guard only exist so a misbehaving syncer cannot leave the session stuck
// in the syncing state.
func (s *Store) runSync(ctx context.Context, identity Identity) (*UserProfile, string) {
	if s.syncer == nil {
		return nil, ""
	}

	results := make(chan syncOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- syncOutcome{err: fmt.Errorf("profile sync panic: %v", r)}
			}
		}()
		profile, err := s.syncer.Sync(ctx, identity)
		results <- syncOutcome{profile: profile, err: err}
	}()

	timer := time.NewTimer(s.backstop)
	defer timer.Stop()

	select {
	case outcome := <-results:
		if outcome.err != nil {
			s.logger.Error("profile sync failed unexpectedly",
				"identity_id", identity.ID,
				"error", outcome.err,
			)
			return nil, outcome.err.Error()
		}
		return outcome.profile, ""
	case <-timer.C:
		s.logger.Error("profile sync exceeded settlement backstop",
			"identity_id", identity.ID,
			"backstop", s.backstop,
		)
		return nil, "profile synchronization exceeded settlement backstop"
	}
}

func (s *Store) commit(ctx context.Context, seq uint64, identity *Identity, profile *UserProfile, errMsg string) {
	s.mu.Lock()
	if s.state == StateTornDown {
		s.mu.Unlock()
		return
	}
	if seq != s.seq {
		s.mu.Unlock()
		s.logger.Debug("discarding stale sync result", "seq", seq)
		s.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventStaleDiscarded,
			IdentityID: identityID(identity),
			Metadata:   map[string]any{"seq": seq},
		})
		return
	}

	// profile.id must match the identity that produced it
	if profile != nil && identity != nil && profile.ID != identity.ID {
		s.logger.Error("sync returned profile for wrong identity",
			"identity_id", identity.ID,
			"profile_id", profile.ID,
		)
		profile = nil
	}

	from := s.state
	to := StateReadyAnonymous
	if identity != nil {
		to = StateReadyAuthenticated
	}
	if !s.canTransition(from, to) {
		s.mu.Unlock()
		s.logger.Error("dropping settlement",
			"error", ErrInvalidTransition.WithMetadata(map[string]any{
				"from": from,
				"to":   to,
			}),
		)
		return
	}

	s.state = to
	s.snapshot = SessionState{
		Identity: identity,
		Profile:  profile.Clone(),
		Loading:  false,
		Error:    errMsg,
	}
	committed := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.mu.Unlock()

	if errMsg != "" {
		s.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventSyncSoftFailure,
			IdentityID: identityID(identity),
			Metadata:   map[string]any{"error": errMsg},
		})
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventStateChanged,
		IdentityID: identityID(identity),
		FromState:  from,
		ToState:    to,
	})

	for _, listener := range listeners {
		listener(committed)
	}
}

func (s *Store) canTransition(from, to StoreState) bool {
	if allowed, ok := s.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (s *Store) snapshotLocked() SessionState {
	out := s.snapshot
	out.Profile = s.snapshot.Profile.Clone()
	return out
}

func (s *Store) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	sink := normalizeActivitySink(s.activity)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("session store activity sink error", "error", err)
	}
}

func identityID(identity *Identity) string {
	if identity == nil {
		return ""
	}
	return identity.ID
}
