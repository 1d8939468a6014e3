package auth

import (
	"context"
	"fmt"
	"os"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetTokenPath() string
	GetLoginPath() string
	GetAdminLoginPath() string
	GetAdminPathPrefix() string
	GetHomePath() string
}

// TokenStorage persists the session bearer token. Implementations hold a
// single token under a fixed key.
type TokenStorage interface {
	LoadToken() (string, error)
	SaveToken(token string) error
	DeleteToken() error
}

// ProfileSource resolves the profile that owns a bearer token
type ProfileSource interface {
	CurrentUser(ctx context.Context, token string) (*UserProfile, error)
}

// CredentialHolder receives the default credential attached to
// subsequent backend calls.
type CredentialHolder interface {
	SetDefaultToken(token string)
	ClearDefaultToken()
}

// AuthBackend issues session tokens
type AuthBackend interface {
	Login(ctx context.Context, username, password string) (*TokenResponse, error)
	Register(ctx context.Context, username, email, password string) (*TokenResponse, error)
}

// ResourceBackend serves password protected content items
type ResourceBackend interface {
	ResourceMeta(ctx context.Context, kind ResourceKind, id int64) (*ResourceMeta, error)
	RequestAccess(ctx context.Context, kind ResourceKind, id int64, password string) (string, error)
	FetchContent(ctx context.Context, kind ResourceKind, id int64, scopedToken string) (string, error)
}

// Navigator tracks the current location and performs redirects.
type Navigator interface {
	Location() string
	Navigate(path string)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	if os.Getenv("AUTH_DEBUG") == "" {
		return
	}
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
