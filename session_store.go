package auth

import (
	"context"
	"sync"
)

// SessionStore is the single owner of "who is logged in". All reads go
// through accessors, all writes through Load, Set and Clear. Consumers
// subscribe to be told when the session changes.
type SessionStore struct {
	storage     TokenStorage
	profiles    ProfileSource
	credentials CredentialHolder
	codec       *TokenCodec
	logger      Logger
	sink        ActivitySink
	hub         *broadcaster

	// writeMu orders durable storage, the default credential and the
	// in-memory commit of Load, Set and Clear as one step.
	writeMu sync.Mutex

	mu         sync.Mutex
	token      string
	claims     *TokenClaims
	user       *UserProfile
	status     SessionStatus
	generation uint64
}

// StoreOption customizes a SessionStore
type StoreOption func(*SessionStore)

// WithStoreCodec overrides the codec used for expiry checks
func WithStoreCodec(codec *TokenCodec) StoreOption {
	return func(s *SessionStore) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithStoreLogger overrides the logger
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCredentialHolder registers the transport that carries the default
// credential for subsequent backend calls.
func WithCredentialHolder(holder CredentialHolder) StoreOption {
	return func(s *SessionStore) {
		s.credentials = holder
	}
}

// WithStoreActivitySink sets the ActivitySink used for session events
func WithStoreActivitySink(sink ActivitySink) StoreOption {
	return func(s *SessionStore) {
		s.sink = normalizeActivitySink(sink)
	}
}

// NewSessionStore returns an Idle store. Call Load to bootstrap it from
// durable storage.
func NewSessionStore(storage TokenStorage, profiles ProfileSource, opts ...StoreOption) *SessionStore {
	if storage == nil {
		storage = NewMemoryTokenStorage("")
	}
	s := &SessionStore{
		storage:  storage,
		profiles: profiles,
		codec:    DefaultCodec,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		hub:      &broadcaster{},
		status:   StatusIdle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load reads the persisted token and resolves its profile. It always ends
// in StatusReady: a missing, expired or rejected token yields an
// unauthenticated session instead of an error.
func (s *SessionStore) Load(ctx context.Context) {
	s.writeMu.Lock()
	token, err := s.storage.LoadToken()
	if err != nil {
		s.logger.Error("session store failed to read persisted token: %v", err)
		token = ""
	}

	if token != "" {
		s.attach(token)
	}
	c := s.begin(token)
	s.writeMu.Unlock()

	s.resolve(ctx, c, false)
}

// Set persists token, attaches it as the default credential, broadcasts
// the change and resolves the profile.
func (s *SessionStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear()
	}

	s.writeMu.Lock()
	if err := s.storage.SaveToken(token); err != nil {
		s.writeMu.Unlock()
		s.logger.Error("session store failed to persist token: %v", err)
		return err
	}

	s.attach(token)
	c := s.begin(token)
	s.writeMu.Unlock()

	s.resolve(ctx, c, true)
	return nil
}

// Clear forgets the token and the user and broadcasts the change.
func (s *SessionStore) Clear() error {
	s.writeMu.Lock()
	err := s.storage.DeleteToken()
	if err != nil {
		s.logger.Error("session store failed to remove persisted token: %v", err)
	}

	if s.credentials != nil {
		s.credentials.ClearDefaultToken()
	}

	s.mu.Lock()
	s.generation++
	s.token = ""
	s.claims = nil
	s.user = nil
	s.status = StatusReady
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.hub.publish(SessionEvent{Type: EventSessionChanged, Snapshot: snap})
	return err
}

// HandleUnauthorized clears the session when token is still the current
// token. A 401 caused by a superseded token leaves a newer session alone.
func (s *SessionStore) HandleUnauthorized(token string) bool {
	s.mu.Lock()
	current := s.token
	s.mu.Unlock()

	if current == "" || (token != "" && token != current) {
		s.logger.Debug("session store ignoring 401 for a superseded token")
		return false
	}

	s.logger.Info("session store clearing session after 401")
	_ = s.Clear()
	recordActivity(context.Background(), s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventSessionCleared,
		Metadata:  map[string]any{"reason": "unauthorized"},
	})
	return true
}

// Subscribe registers a listener for session events
func (s *SessionStore) Subscribe(l SessionListener) *Subscription {
	return s.hub.add(l)
}

// Subscribers returns the number of active listeners
func (s *SessionStore) Subscribers() int {
	return s.hub.count()
}

// Snapshot returns a copy of the current state
func (s *SessionStore) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SessionStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *SessionStore) User() *UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProfile(s.user)
}

func (s *SessionStore) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SessionStore) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

// Codec returns the codec the store checks tokens with
func (s *SessionStore) Codec() *TokenCodec {
	return s.codec
}

func (s *SessionStore) attach(token string) {
	if s.credentials != nil {
		s.credentials.SetDefaultToken(token)
	}
}

// loadCycle is one committed token together with the generation it took
type loadCycle struct {
	gen   uint64
	token string
	fetch bool
	snap  SessionSnapshot
}

// begin commits token to memory and starts a new generation. Callers hold
// writeMu.
func (s *SessionStore) begin(token string) loadCycle {
	claims, err := s.codec.Validate(token)
	fetch := token != "" && err == nil && s.profiles != nil
	if token != "" && err != nil {
		s.logger.Debug("session store token rejected locally: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.token = token
	s.claims = claims
	s.user = nil
	if fetch {
		s.status = StatusLoading
	} else {
		s.status = StatusReady
	}
	return loadCycle{gen: s.generation, token: token, fetch: fetch, snap: s.snapshotLocked()}
}

// resolve announces a cycle and fetches its profile. A fetch that completes
// after a newer cycle began is dropped, and so are the announcements of a
// cycle that was already superseded.
func (s *SessionStore) resolve(ctx context.Context, c loadCycle, changed bool) {
	if changed {
		s.publishCurrent(c.gen, SessionEvent{Type: EventSessionChanged, Snapshot: c.snap})
	}

	if !c.fetch {
		s.publishCurrent(c.gen, SessionEvent{Type: EventSessionReady, Snapshot: c.snap})
		return
	}

	s.publishCurrent(c.gen, SessionEvent{Type: EventSessionLoading, Snapshot: c.snap})

	user, err := s.profiles.CurrentUser(ctx, c.token)
	if err != nil {
		s.logger.Debug("session store profile fetch failed: %v", err)
		user = nil
	}

	s.mu.Lock()
	if c.gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("session store discarding stale profile response")
		return
	}
	s.user = user
	s.status = StatusReady
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.publish(SessionEvent{Type: EventSessionReady, Snapshot: snap})
}

func (s *SessionStore) publishCurrent(gen uint64, evt SessionEvent) {
	s.mu.Lock()
	current := gen == s.generation
	s.mu.Unlock()
	if current {
		s.hub.publish(evt)
	}
}

func (s *SessionStore) snapshotLocked() SessionSnapshot {
	return SessionSnapshot{
		Token:  s.token,
		Claims: s.claims,
		User:   copyProfile(s.user),
		Status: s.status,
	}
}

func copyProfile(p *UserProfile) *UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
