package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const maxResponseBody = 4 << 20

// UnauthorizedHandler is invoked for every 401 on a request that carried
// the session credential. token is the credential that was rejected.
//
// A 401 on a request without the session credential says nothing about the
// session: login and registration report it as ErrInvalidCredentials, and
// password and scoped content calls as ErrAccessDenied. Those never reach
// the handler, so a wrong post password cannot log the user out.
type UnauthorizedHandler func(ctx context.Context, token string)

// APIClient talks to the blog backend. It holds the default session
// credential and the global 401 hook.
type APIClient struct {
	baseURL        string
	httpClient     *http.Client
	logger         Logger
	onUnauthorized UnauthorizedHandler

	mu           sync.RWMutex
	defaultToken string
}

// ClientOption customizes an APIClient
type ClientOption func(*APIClient)

// WithHTTPClient overrides the transport. Timeouts belong to it.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(a *APIClient) {
		if c != nil {
			a.httpClient = c
		}
	}
}

// WithClientLogger overrides the logger
func WithClientLogger(logger Logger) ClientOption {
	return func(a *APIClient) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithUnauthorizedHandler installs the global 401 hook
func WithUnauthorizedHandler(h UnauthorizedHandler) ClientOption {
	return func(a *APIClient) {
		a.onUnauthorized = h
	}
}

// NewAPIClient creates a client for the backend rooted at baseURL
func NewAPIClient(baseURL string, opts ...ClientOption) *APIClient {
	c := &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NewAPIClientFromConfig creates a client using cfg's base URL and timeout
func NewAPIClientFromConfig(cfg Config, opts ...ClientOption) *APIClient {
	timeout := cfg.GetRequestTimeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	opts = append([]ClientOption{WithHTTPClient(&http.Client{Timeout: timeout})}, opts...)
	return NewAPIClient(cfg.GetBaseURL(), opts...)
}

// SetUnauthorizedHandler installs the global 401 hook after construction,
// for wiring where the handler depends on a store built from this client.
func (c *APIClient) SetUnauthorizedHandler(h UnauthorizedHandler) {
	c.mu.Lock()
	c.onUnauthorized = h
	c.mu.Unlock()
}

// SetDefaultToken attaches token to subsequent session calls
func (c *APIClient) SetDefaultToken(token string) {
	c.mu.Lock()
	c.defaultToken = token
	c.mu.Unlock()
}

// ClearDefaultToken detaches the session credential
func (c *APIClient) ClearDefaultToken() {
	c.mu.Lock()
	c.defaultToken = ""
	c.mu.Unlock()
}

// DefaultToken returns the attached session credential
func (c *APIClient) DefaultToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultToken
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session token
func (c *APIClient) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	return c.issueToken(ctx, "/auth/login", loginRequest{Username: username, Password: password})
}

// Register creates an account and returns its session token
func (c *APIClient) Register(ctx context.Context, username, email, password string) (*TokenResponse, error) {
	return c.issueToken(ctx, "/auth/register", registerRequest{Username: username, Email: email, Password: password})
}

func (c *APIClient) issueToken(ctx context.Context, path string, body any) (*TokenResponse, error) {
	res, err := c.do(ctx, request{method: http.MethodPost, path: path, body: body})
	if err != nil {
		return nil, err
	}

	if res.status == http.StatusBadRequest || res.status == http.StatusUnauthorized ||
		res.status == http.StatusForbidden || res.status == http.StatusConflict ||
		res.status == http.StatusUnprocessableEntity {
		return nil, withMessage(ErrInvalidCredentials, res.message(), map[string]any{
			"status": res.status,
			"path":   path,
		}).WithCode(res.status)
	}
	if err := res.expectOK(path); err != nil {
		return nil, err
	}

	out := &TokenResponse{}
	if err := json.Unmarshal(res.body, out); err != nil {
		return nil, withMessage(ErrInvalidResponse, "invalid token response", map[string]any{"path": path})
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		// an empty token with 200 is how the backend reports bad credentials
		return nil, withMessage(ErrInvalidCredentials, "incorrect username or password", map[string]any{"path": path})
	}
	return out, nil
}

// CurrentUser fetches the profile that owns token
func (c *APIClient) CurrentUser(ctx context.Context, token string) (*UserProfile, error) {
	res, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/auth/me",
		bearer:  token,
		session: true,
	})
	if err != nil {
		return nil, err
	}
	if err := res.expectOK("/auth/me"); err != nil {
		return nil, err
	}
	return decodeProfile(res.body)
}

// Me fetches the profile of the attached session credential
func (c *APIClient) Me(ctx context.Context) (*UserProfile, error) {
	return c.CurrentUser(ctx, c.DefaultToken())
}

// ResourceMeta fetches public metadata for a content item
func (c *APIClient) ResourceMeta(ctx context.Context, kind ResourceKind, id int64) (*ResourceMeta, error) {
	path := fmt.Sprintf("/%s/%d", kind, id)
	res, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    path,
		bearer:  c.DefaultToken(),
		session: true,
	})
	if err != nil {
		return nil, err
	}
	if err := res.expectOK(path); err != nil {
		return nil, err
	}

	var raw struct {
		ID          *int64 `json:"id"`
		Title       string `json:"title"`
		Summary     string `json:"summary"`
		IsProtected bool   `json:"is_protected"`
	}
	if err := json.Unmarshal(res.body, &raw); err != nil || raw.ID == nil {
		return nil, withMessage(ErrInvalidResponse, "invalid resource response", map[string]any{"path": path})
	}

	return &ResourceMeta{
		ID:          *raw.ID,
		Title:       raw.Title,
		Summary:     raw.Summary,
		IsProtected: raw.IsProtected,
	}, nil
}

// RequestAccess posts the resource password and returns a scoped access
// token. The session credential is never sent.
func (c *APIClient) RequestAccess(ctx context.Context, kind ResourceKind, id int64, password string) (string, error) {
	path := fmt.Sprintf("/%s/%d/access", kind, id)
	res, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   path,
		body:   map[string]string{"password": password},
	})
	if err != nil {
		return "", err
	}

	switch res.status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusGone:
		return "", withMessage(ErrAccessDenied, res.message(), map[string]any{"path": path, "status": res.status})
	}
	if err := res.expectOK(path); err != nil {
		return "", err
	}

	var out struct {
		AccessToken     string `json:"access_token"`
		PostAccessToken string `json:"post_access_token"`
	}
	if err := json.Unmarshal(res.body, &out); err != nil {
		return "", withMessage(ErrInvalidResponse, "invalid access response", map[string]any{"path": path})
	}

	token := strings.TrimSpace(out.AccessToken)
	if token == "" {
		token = strings.TrimSpace(out.PostAccessToken)
	}
	if token == "" {
		return "", withMessage(ErrAccessDenied, "incorrect password", map[string]any{"path": path})
	}
	return token, nil
}

// FetchContent fetches the content body. With a scoped token the request
// carries only that token; otherwise the session credential is used.
func (c *APIClient) FetchContent(ctx context.Context, kind ResourceKind, id int64, scopedToken string) (string, error) {
	path := fmt.Sprintf("/%s/%d/content", kind, id)
	req := request{method: http.MethodGet, path: path, bearer: scopedToken}
	if scopedToken == "" {
		req.bearer = c.DefaultToken()
		req.session = true
	}

	res, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	if res.status == http.StatusForbidden || (res.status == http.StatusUnauthorized && !req.session) {
		return "", withMessage(ErrAccessDenied, res.message(), map[string]any{"path": path, "status": res.status})
	}
	if err := res.expectOK(path); err != nil {
		return "", err
	}

	var out struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(res.body, &out); err != nil || out.Content == nil {
		return "", withMessage(ErrInvalidResponse, "invalid content response", map[string]any{"path": path})
	}
	return *out.Content, nil
}

type request struct {
	method  string
	path    string
	body    any
	bearer  string
	session bool
}

type response struct {
	status int
	body   []byte
}

func (c *APIClient) do(ctx context.Context, r request) (*response, error) {
	var reader io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request %s %s failed: %v", r.method, r.path, err)
		return nil, errors.Wrap(err, errors.CategoryOperation, "backend request failed").
			WithTextCode(TextCodeTransport).
			WithMetadata(map[string]any{"method": r.method, "path": r.path})
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to read backend response").
			WithTextCode(TextCodeTransport)
	}

	c.logger.Debug("api request %s %s -> %d", r.method, r.path, resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized && r.session && r.bearer != "" {
		c.mu.RLock()
		hook := c.onUnauthorized
		c.mu.RUnlock()
		if hook != nil {
			hook(ctx, r.bearer)
		}
	}

	return &response{status: resp.StatusCode, body: body}, nil
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) expectOK(path string) error {
	if r.ok() {
		return nil
	}

	meta := map[string]any{"status": r.status, "path": path}
	switch r.status {
	case http.StatusUnauthorized:
		return withMessage(ErrUnauthorized, r.message(), meta)
	case http.StatusForbidden:
		return withMessage(ErrAccessDenied, r.message(), meta)
	case http.StatusNotFound:
		return withMessage(ErrResourceNotFound, r.message(), meta)
	}

	return errors.New(r.message(), errors.CategoryOperation).
		WithCode(r.status).
		WithMetadata(meta)
}

// message extracts the backend's error text: FastAPI "detail", then
// "message", then "error", then the raw body, then the status text.
func (r *response) message() string {
	var env map[string]any
	if err := json.Unmarshal(r.body, &env); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if s, ok := env[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}

	if msg := strings.TrimSpace(string(r.body)); msg != "" && len(msg) <= 512 && !strings.HasPrefix(msg, "{") {
		return msg
	}

	return http.StatusText(r.status)
}
