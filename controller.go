package auth

import (
	"context"
	"strings"
)

// AuthController exposes login, registration and logout. It calls the
// backend and hands the issued token to the SessionStore, which in turn
// notifies every mounted consumer.
type AuthController struct {
	store   *SessionStore
	backend AuthBackend
	logger  Logger
	sink    ActivitySink
}

// ControllerOption customizes an AuthController
type ControllerOption func(*AuthController)

// WithControllerLogger overrides the logger
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *AuthController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithControllerActivitySink sets the ActivitySink for login, register and
// logout events.
func WithControllerActivitySink(sink ActivitySink) ControllerOption {
	return func(c *AuthController) {
		c.sink = normalizeActivitySink(sink)
	}
}

// NewAuthController wires a controller to the store and backend
func NewAuthController(store *SessionStore, backend AuthBackend, opts ...ControllerOption) *AuthController {
	c := &AuthController{
		store:   store,
		backend: backend,
		logger:  defLogger{},
		sink:    noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Login exchanges credentials for a session. Backend errors are returned
// unchanged so forms can show the backend message verbatim.
func (c *AuthController) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)

	res, err := c.backend.Login(ctx, username, password)
	if err != nil {
		c.logger.Debug("login failed for %s: %v", username, err)
		c.record(ctx, ActivityEventLoginFailure, username, err)
		return err
	}

	if err := c.store.Set(ctx, res.AccessToken); err != nil {
		c.record(ctx, ActivityEventLoginFailure, username, err)
		return err
	}

	c.logger.Info("user %s logged in", username)
	c.record(ctx, ActivityEventLoginSuccess, username, nil)
	return nil
}

// Register creates an account and signs the new user in
func (c *AuthController) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	res, err := c.backend.Register(ctx, username, email, password)
	if err != nil {
		c.logger.Debug("registration failed for %s: %v", username, err)
		c.record(ctx, ActivityEventRegisterFailure, username, err)
		return err
	}

	if err := c.store.Set(ctx, res.AccessToken); err != nil {
		c.record(ctx, ActivityEventRegisterFailure, username, err)
		return err
	}

	c.logger.Info("user %s registered", username)
	c.record(ctx, ActivityEventRegisterSuccess, username, nil)
	return nil
}

// Logout forgets the session locally. No backend call is made.
func (c *AuthController) Logout() error {
	var username string
	if u := c.store.User(); u != nil {
		username = u.Username
	}

	err := c.store.Clear()
	c.record(context.Background(), ActivityEventLogout, username, err)
	return err
}

// Store returns the session store the controller writes to
func (c *AuthController) Store() *SessionStore {
	return c.store
}

func (c *AuthController) record(ctx context.Context, eventType ActivityEventType, username string, err error) {
	event := ActivityEvent{
		EventType: eventType,
		Username:  username,
	}
	if err != nil {
		event.Metadata = map[string]any{
			"error":  ErrorMessage(err),
			"status": StatusCode(err),
		}
	}
	recordActivity(ctx, c.sink, c.logger, event)
}
