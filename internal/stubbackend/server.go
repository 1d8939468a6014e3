// Package stubbackend is a local implementation of the blog backend
// contract: login, registration, profile, and password protected posts.
// It backs the client tests and the blogctl stub-backend command.
package stubbackend

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	auth "github.com/goliatone/go-auth-client"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Seed data created when Options.Seed is set
const (
	SeedAdminUsername  = "admin"
	SeedAdminEmail     = "admin@example.com"
	SeedAdminPassword  = "admin-password"
	SeedMemberUsername = "reader"
	SeedMemberEmail    = "reader@example.com"
	SeedMemberPassword = "reader-password"

	SeedPublicPostID    int64 = 1
	SeedProtectedPostID int64 = 42
	SeedPostPassword          = "open-sesame"
	SeedLifePostID      int64 = 7
	SeedLifePassword          = "family-only"
)

// Options configures a Server
type Options struct {
	BasePath   string
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	Seed       bool
	Logger     auth.Logger
}

// RequestRecord is one request seen by the server, path relative to BasePath
type RequestRecord struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

// Server serves the backend contract. Routes are registered through a
// go-router fiber adapter; the underlying fiber app is kept for listening
// and for in-process tests.
type Server struct {
	opts   Options
	store  *Store
	tokens *TokenIssuer
	srv    router.Server[*fiber.App]
	app    *fiber.App
	logger auth.Logger

	mu       sync.Mutex
	requests []RequestRecord
}

// New builds a server with a fresh in-memory store
func New(ctx context.Context, opts Options) (*Server, error) {
	opts.BasePath = "/" + strings.Trim(opts.BasePath, "/")
	if opts.BasePath == "/" {
		opts.BasePath = ""
	}
	if opts.Secret == "" {
		opts.Secret = uuid.NewString()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = auth.NopLogger{}
	}

	store, err := OpenStore(ctx, opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:   opts,
		store:  store,
		tokens: NewTokenIssuer([]byte(opts.Secret), opts.TokenTTL, "blog-stub"),
		logger: opts.Logger,
	}

	if opts.Seed {
		if err := s.seed(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	s.srv = router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		s.app = fiber.New(fiber.Config{
			AppName:               "blog-stub",
			Immutable:             true,
			DisableStartupMessage: true,
			ErrorHandler:          s.fiberErrorHandler,
		})
		// recording runs ahead of routing so unmatched paths are seen too
		s.app.Use(s.recordRequest)
		return s.app
	})
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.srv.Router()
	if s.opts.BasePath != "" {
		api = api.Group(s.opts.BasePath)
	}

	session := bearerMiddleware(bearerConfig{Tokens: s.tokens})
	optional := bearerMiddleware(bearerConfig{Tokens: s.tokens, Optional: true})

	api.Post("/auth/login", s.handle(s.login))
	api.Post("/auth/register", s.handle(s.register))
	api.Get("/auth/me", s.handle(session(s.me)))

	api.Get("/:kind/:id", s.handle(s.resourceMeta))
	api.Post("/:kind/:id/access", s.handle(s.requestAccess))
	api.Get("/:kind/:id/content", s.handle(optional(s.content)))
}

// handle renders errors returned by h as detail bodies
func (s *Server) handle(h router.HandlerFunc) router.HandlerFunc {
	return func(ctx router.Context) error {
		if err := h(ctx); err != nil {
			status, message := s.errorStatus(err)
			return detail(ctx, status, message)
		}
		return nil
	}
}

// App exposes the fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

// Handler adapts the server to net/http, for httptest
func (s *Server) Handler() http.HandlerFunc {
	return adaptor.FiberApp(s.app)
}

// Listen serves on addr until Shutdown
func (s *Server) Listen(addr string) error {
	s.logger.Info("stub backend listening on %s%s", addr, s.opts.BasePath)
	return s.app.Listen(addr)
}

// Shutdown stops the listener and closes the store
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

// Requests returns the recorded requests in arrival order
func (s *Server) Requests() []RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RequestRecord, len(s.requests))
	copy(out, s.requests)
	return out
}

// ResetRequests forgets recorded requests
func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

func (s *Server) recordRequest(c *fiber.Ctx) error {
	rec := RequestRecord{
		Method:        c.Method(),
		Path:          strings.TrimPrefix(c.Path(), s.opts.BasePath),
		Authorization: c.Get(fiber.HeaderAuthorization),
		RequestID:     c.Get(fiber.HeaderXRequestID),
	}
	c.Locals(authorizationLocalsKey, rec.Authorization)

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()

	s.logger.Debug("stub %s %s", rec.Method, rec.Path)
	return c.Next()
}

func (s *Server) seed(ctx context.Context) error {
	if _, err := s.store.CreateUser(ctx, SeedAdminUsername, SeedAdminEmail, SeedAdminPassword, true); err != nil {
		return err
	}
	if _, err := s.store.CreateUser(ctx, SeedMemberUsername, SeedMemberEmail, SeedMemberPassword, false); err != nil {
		return err
	}

	resources := []struct {
		res      *Resource
		password string
	}{
		{
			res: &Resource{
				Kind:    string(auth.ResourcePost),
				ID:      SeedPublicPostID,
				Title:   "Hello, world",
				Summary: "The first post",
				Content: "<p>Welcome to the blog.</p>",
			},
		},
		{
			res: &Resource{
				Kind:    string(auth.ResourcePost),
				ID:      SeedProtectedPostID,
				Title:   "Private notes",
				Summary: "Ask for the password",
				Content: "<p>The answer is 42.</p>",
			},
			password: SeedPostPassword,
		},
		{
			res: &Resource{
				Kind:    string(auth.ResourceLifePost),
				ID:      SeedLifePostID,
				Title:   "Summer trip",
				Content: "<p>Photos from the lake.</p>",
			},
			password: SeedLifePassword,
		},
	}
	for _, r := range resources {
		if err := s.store.PutResource(ctx, r.res, r.password); err != nil {
			return err
		}
	}
	return nil
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (b loginBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Username, validation.Required),
		validation.Field(&b.Password, validation.Required),
	)
}

type registerBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b registerBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Username, validation.Required, validation.Length(3, 32)),
		validation.Field(&b.Email, validation.Required, is.Email),
		validation.Field(&b.Password, validation.Required, validation.Length(6, 0)),
	)
}

type accessBody struct {
	Password string `json:"password"`
}

func (s *Server) login(ctx router.Context) error {
	body := loginBody{}
	if err := ctx.Bind(&body); err != nil {
		return detail(ctx, fiber.StatusUnprocessableEntity, "invalid request body")
	}
	if err := body.Validate(); err != nil {
		return detail(ctx, fiber.StatusUnprocessableEntity, err.Error())
	}

	user, err := s.store.Authenticate(ctx.Context(), body.Username, body.Password)
	if err != nil {
		if goerrors.Is(err, ErrUserNotFound) || goerrors.Is(err, ErrMismatchedPassword) {
			return detail(ctx, fiber.StatusUnauthorized, "Incorrect username or password")
		}
		return err
	}
	return s.issueSession(ctx, user)
}

func (s *Server) register(ctx router.Context) error {
	body := registerBody{}
	if err := ctx.Bind(&body); err != nil {
		return detail(ctx, fiber.StatusUnprocessableEntity, "invalid request body")
	}
	if err := body.Validate(); err != nil {
		return detail(ctx, fiber.StatusUnprocessableEntity, err.Error())
	}

	user, err := s.store.CreateUser(ctx.Context(), body.Username, body.Email, body.Password, false)
	if err != nil {
		switch {
		case goerrors.Is(err, ErrUserExists):
			return detail(ctx, fiber.StatusBadRequest, "Username already exists")
		case goerrors.Is(err, ErrEmailExists):
			return detail(ctx, fiber.StatusBadRequest, "Email already in use")
		}
		return err
	}
	return s.issueSession(ctx, user)
}

func (s *Server) issueSession(ctx router.Context, user *User) error {
	token, err := s.tokens.Session(user)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.StatusOK, auth.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
	})
}

func (s *Server) me(ctx router.Context) error {
	user, ok := s.sessionUser(ctx)
	if !ok {
		return detail(ctx, fiber.StatusUnauthorized, "Could not validate credentials")
	}
	return ctx.JSON(fiber.StatusOK, user)
}

// sessionUser resolves the user behind a session token. Resource tokens
// never act as a session.
func (s *Server) sessionUser(ctx router.Context) (*User, bool) {
	claims := claimsFrom(ctx)
	if claims == nil || claims.Scope != "" {
		return nil, false
	}
	id, err := strconv.ParseInt(claims.UserID(), 10, 64)
	if err != nil {
		return nil, false
	}
	user, err := s.store.UserByID(ctx.Context(), id)
	if err != nil {
		return nil, false
	}
	return user, true
}

func (s *Server) resource(ctx router.Context) (*Resource, error) {
	kind := ctx.Param("kind")
	if kind != string(auth.ResourcePost) && kind != string(auth.ResourceLifePost) {
		return nil, ErrResourceNotFound
	}
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, ErrResourceNotFound
	}
	return s.store.Resource(ctx.Context(), kind, id)
}

func (s *Server) resourceMeta(ctx router.Context) error {
	res, err := s.resource(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.StatusOK, res)
}

func (s *Server) requestAccess(ctx router.Context) error {
	res, err := s.resource(ctx)
	if err != nil {
		return err
	}

	body := accessBody{}
	if err := ctx.Bind(&body); err != nil {
		return detail(ctx, fiber.StatusUnprocessableEntity, "invalid request body")
	}

	if _, err := s.store.VerifyResourcePassword(ctx.Context(), res.Kind, res.ID, body.Password); err != nil {
		if goerrors.Is(err, ErrMismatchedPassword) {
			return detail(ctx, fiber.StatusForbidden, "Incorrect password")
		}
		return err
	}

	token, err := s.tokens.Scoped(res.Kind, res.ID)
	if err != nil {
		return err
	}

	// posts answer with the historical key, life posts with the generic one
	key := "access_token"
	if res.Kind == string(auth.ResourcePost) {
		key = "post_access_token"
	}
	return ctx.JSON(fiber.StatusOK, map[string]string{key: token})
}

func (s *Server) content(ctx router.Context) error {
	res, err := s.resource(ctx)
	if err != nil {
		return err
	}

	if res.IsProtected && !s.unlocks(ctx, res) {
		return detail(ctx, fiber.StatusForbidden, "This content is password protected")
	}
	return ctx.JSON(fiber.StatusOK, map[string]string{"content": res.Content})
}

// unlocks accepts a resource token scoped to res, or an administrator session
func (s *Server) unlocks(ctx router.Context, res *Resource) bool {
	claims := claimsFrom(ctx)
	if claims == nil {
		return false
	}
	if claims.Scope != "" {
		return claims.Scope == ScopeFor(res.Kind, res.ID)
	}
	user, ok := s.sessionUser(ctx)
	return ok && user.IsAdmin
}

// errorStatus maps a handler error to the status and detail message sent
func (s *Server) errorStatus(err error) (int, string) {
	var fe *fiber.Error
	var richErr *goerrors.Error
	switch {
	case goerrors.As(err, &fe):
		return fe.Code, fe.Message
	case goerrors.Is(err, ErrResourceNotFound):
		return fiber.StatusNotFound, "Not found"
	case goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 600:
		return richErr.Code, richErr.Message
	}
	s.logger.Error("stub backend error: %v", err)
	return fiber.StatusInternalServerError, "Internal Server Error"
}

// fiberErrorHandler covers requests that never reach a route, like
// unknown paths
func (s *Server) fiberErrorHandler(c *fiber.Ctx, err error) error {
	status, message := s.errorStatus(err)
	return c.Status(status).JSON(fiber.Map{"detail": message})
}

func detail(ctx router.Context, status int, message string) error {
	return ctx.JSON(status, map[string]string{"detail": message})
}
