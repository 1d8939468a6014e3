package stubbackend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/internal/stubbackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newServer(t *testing.T) *stubbackend.Server {
	t.Helper()
	srv, err := stubbackend.New(context.Background(), stubbackend.Options{
		BasePath:   "/api",
		Secret:     "test-secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
		Seed:       true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Store().Close() })
	return srv
}

func call(t *testing.T, srv *stubbackend.Server, method, path, bearer, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/api"+path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return res.StatusCode, out
}

func login(t *testing.T, srv *stubbackend.Server, username, password string) string {
	t.Helper()
	status, body := call(t, srv, http.MethodPost, "/auth/login", "",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, status, body)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLogin(t *testing.T) {
	srv := newServer(t)

	t.Run("valid credentials", func(t *testing.T) {
		token := login(t, srv, stubbackend.SeedMemberUsername, stubbackend.SeedMemberPassword)
		assert.True(t, auth.DefaultCodec.IsValid(token))
	})

	t.Run("wrong password", func(t *testing.T) {
		status, body := call(t, srv, http.MethodPost, "/auth/login", "",
			`{"username":"reader","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Incorrect username or password", body["detail"])
	})

	t.Run("unknown user", func(t *testing.T) {
		status, _ := call(t, srv, http.MethodPost, "/auth/login", "",
			`{"username":"ghost","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("missing fields", func(t *testing.T) {
		status, body := call(t, srv, http.MethodPost, "/auth/login", "", `{"username":"reader"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.NotEmpty(t, body["detail"])
	})
}

func TestRegister(t *testing.T) {
	srv := newServer(t)

	status, body := call(t, srv, http.MethodPost, "/auth/register", "",
		`{"username":"newbie","email":"newbie@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["access_token"])

	status, body = call(t, srv, http.MethodPost, "/auth/register", "",
		`{"username":"newbie","email":"other@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Username already exists", body["detail"])

	status, body = call(t, srv, http.MethodPost, "/auth/register", "",
		`{"username":"another","email":"newbie@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Email already in use", body["detail"])

	status, _ = call(t, srv, http.MethodPost, "/auth/register", "",
		`{"username":"bad","email":"not-an-email","password":"secret1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestMe(t *testing.T) {
	srv := newServer(t)

	token := login(t, srv, stubbackend.SeedAdminUsername, stubbackend.SeedAdminPassword)
	status, body := call(t, srv, http.MethodGet, "/auth/me", token, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, stubbackend.SeedAdminUsername, body["username"])
	assert.Equal(t, true, body["is_admin"])
	assert.NotNil(t, body["id"])

	status, _ = call(t, srv, http.MethodGet, "/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, srv, http.MethodGet, "/auth/me", "not.a.jwt", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	scoped, err := srv.Tokens().Scoped(string(auth.ResourcePost), stubbackend.SeedProtectedPostID)
	require.NoError(t, err)
	status, _ = call(t, srv, http.MethodGet, "/auth/me", scoped, "")
	assert.Equal(t, http.StatusUnauthorized, status, "resource tokens never act as a session")
}

func TestProtectedPostFlow(t *testing.T) {
	srv := newServer(t)

	status, meta := call(t, srv, http.MethodGet, "/posts/42", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, meta["is_protected"])
	assert.Equal(t, "Private notes", meta["title"])

	status, body := call(t, srv, http.MethodGet, "/posts/42/content", "", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.NotEmpty(t, body["detail"])

	status, _ = call(t, srv, http.MethodPost, "/posts/42/access", "", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = call(t, srv, http.MethodPost, "/posts/42/access", "", `{"password":"open-sesame"}`)
	require.Equal(t, http.StatusOK, status)
	scoped, _ := body["post_access_token"].(string)
	require.NotEmpty(t, scoped)

	status, body = call(t, srv, http.MethodGet, "/posts/42/content", scoped, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["content"], "42")

	status, _ = call(t, srv, http.MethodGet, "/posts/1/content", scoped, "")
	assert.Equal(t, http.StatusOK, status, "public posts ignore the credential")

	status, _ = call(t, srv, http.MethodGet, "/life-posts/7/content", scoped, "")
	assert.Equal(t, http.StatusForbidden, status, "scope is bound to one resource")
}

func TestLifePostAccessKey(t *testing.T) {
	srv := newServer(t)

	status, body := call(t, srv, http.MethodPost, "/life-posts/7/access", "", `{"password":"family-only"}`)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["access_token"])
	assert.Nil(t, body["post_access_token"])
}

func TestContentAdminSession(t *testing.T) {
	srv := newServer(t)

	admin := login(t, srv, stubbackend.SeedAdminUsername, stubbackend.SeedAdminPassword)
	status, _ := call(t, srv, http.MethodGet, "/posts/42/content", admin, "")
	assert.Equal(t, http.StatusOK, status)

	member := login(t, srv, stubbackend.SeedMemberUsername, stubbackend.SeedMemberPassword)
	status, _ = call(t, srv, http.MethodGet, "/posts/42/content", member, "")
	assert.Equal(t, http.StatusForbidden, status)
}

func TestNotFound(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"unknown id", http.MethodGet, "/posts/999", ""},
		{"unknown kind", http.MethodGet, "/pages/1", ""},
		{"bad id", http.MethodGet, "/posts/abc", ""},
		{"access unknown", http.MethodPost, "/posts/999/access", `{"password":"x"}`},
		{"content unknown", http.MethodGet, "/life-posts/999/content", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, srv, tt.method, tt.path, "", tt.body)
			assert.Equal(t, http.StatusNotFound, status)
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestRouteMiddlewareDetails(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		path   string
		bearer string
		status int
		detail string
	}{
		{"session route without credential", "/auth/me", "", http.StatusUnauthorized, "Not authenticated"},
		{"session route with bad credential", "/auth/me", "not.a.jwt", http.StatusUnauthorized, "Could not validate credentials"},
		{"optional route with bad credential", "/posts/1/content", "not.a.jwt", http.StatusUnauthorized, "Could not validate credentials"},
		{"optional route without credential", "/posts/42/content", "", http.StatusForbidden, "This content is password protected"},
		{"handler error rendered as detail", "/posts/999/content", "", http.StatusNotFound, "Not found"},
		{"unmatched path", "/nothing/here/at/all", "", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, srv, http.MethodGet, tt.path, tt.bearer, "")
			assert.Equal(t, tt.status, status)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, body["detail"])
			} else {
				assert.NotEmpty(t, body["detail"])
			}
		})
	}

	paths := []string{}
	for _, rec := range srv.Requests() {
		paths = append(paths, rec.Path)
	}
	assert.Contains(t, paths, "/nothing/here/at/all")
}

func TestRoutesWithoutBasePath(t *testing.T) {
	srv, err := stubbackend.New(context.Background(), stubbackend.Options{
		Secret:     "test-secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
		Seed:       true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Store().Close() })

	req := httptest.NewRequest(http.MethodGet, "/posts/1", nil)
	res, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRequestsAreRecorded(t *testing.T) {
	srv := newServer(t)

	call(t, srv, http.MethodGet, "/posts/1", "tok", "")
	records := srv.Requests()
	require.Len(t, records, 1)
	assert.Equal(t, http.MethodGet, records[0].Method)
	assert.Equal(t, "/posts/1", records[0].Path)
	assert.Equal(t, "Bearer tok", records[0].Authorization)

	srv.ResetRequests()
	assert.Empty(t, srv.Requests())
}

func TestTokenIssuerExpiry(t *testing.T) {
	issuer := stubbackend.NewTokenIssuer([]byte("k"), time.Minute, "test")

	token, err := issuer.Session(&stubbackend.User{ID: 3, Username: "x"})
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "3", claims.UserID())
	assert.Equal(t, "member", claims.Role)

	other := stubbackend.NewTokenIssuer([]byte("other"), time.Minute, "test")
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, stubbackend.ErrInvalidToken)
}
