package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProfileSource implements auth.ProfileSource
type MockProfileSource struct {
	mock.Mock
}

func (m *MockProfileSource) CurrentUser(ctx context.Context, token string) (*auth.UserProfile, error) {
	args := m.Called(ctx, token)
	if p := args.Get(0); p != nil {
		return p.(*auth.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockAuthBackend implements auth.AuthBackend
type MockAuthBackend struct {
	mock.Mock
}

func (m *MockAuthBackend) Login(ctx context.Context, username, password string) (*auth.TokenResponse, error) {
	args := m.Called(ctx, username, password)
	if r := args.Get(0); r != nil {
		return r.(*auth.TokenResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthBackend) Register(ctx context.Context, username, email, password string) (*auth.TokenResponse, error) {
	args := m.Called(ctx, username, email, password)
	if r := args.Get(0); r != nil {
		return r.(*auth.TokenResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockResourceBackend implements auth.ResourceBackend
type MockResourceBackend struct {
	mock.Mock
}

func (m *MockResourceBackend) ResourceMeta(ctx context.Context, kind auth.ResourceKind, id int64) (*auth.ResourceMeta, error) {
	args := m.Called(ctx, kind, id)
	if r := args.Get(0); r != nil {
		return r.(*auth.ResourceMeta), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockResourceBackend) RequestAccess(ctx context.Context, kind auth.ResourceKind, id int64, password string) (string, error) {
	args := m.Called(ctx, kind, id, password)
	return args.String(0), args.Error(1)
}

func (m *MockResourceBackend) FetchContent(ctx context.Context, kind auth.ResourceKind, id int64, scopedToken string) (string, error) {
	args := m.Called(ctx, kind, id, scopedToken)
	return args.String(0), args.Error(1)
}

// MockCredentialHolder implements auth.CredentialHolder
type MockCredentialHolder struct {
	mu    sync.Mutex
	token string
	sets  int
	clear int
}

func (m *MockCredentialHolder) SetDefaultToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.sets++
}

func (m *MockCredentialHolder) ClearDefaultToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.clear++
}

func (m *MockCredentialHolder) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// blockingHolder parks the first SetDefaultToken call until release is
// closed.
type blockingHolder struct {
	MockCredentialHolder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingHolder() *blockingHolder {
	return &blockingHolder{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingHolder) SetDefaultToken(token string) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	b.MockCredentialHolder.SetDefaultToken(token)
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingListener struct {
	mu     sync.Mutex
	events []auth.SessionEvent
}

func (r *recordingListener) OnSessionEvent(evt auth.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingListener) types() []auth.SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.SessionEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// makeToken signs a token expiring at exp. A zero exp omits the claim.
func makeToken(t *testing.T, exp time.Time, mutate ...func(*auth.TokenClaims)) string {
	t.Helper()
	claims := &auth.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "7",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		UID:  "7",
		Role: "member",
	}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	for _, fn := range mutate {
		fn(claims)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return token
}

func validToken(t *testing.T) string {
	return makeToken(t, time.Now().Add(time.Hour))
}

func expiredToken(t *testing.T) string {
	return makeToken(t, time.Now().Add(-time.Second))
}

func memberProfile() *auth.UserProfile {
	return &auth.UserProfile{ID: 7, Username: "reader", Email: "reader@example.com"}
}

func adminProfile() *auth.UserProfile {
	return &auth.UserProfile{ID: 1, Username: "admin", Email: "admin@example.com", IsAdmin: true}
}
