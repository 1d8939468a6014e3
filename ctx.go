package auth

import (
	"context"
)

var profileCtxKey = &contextKey{"profile"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithProfile sets the UserProfile in the given context
func WithProfile(ctx context.Context, profile *UserProfile) context.Context {
	return context.WithValue(ctx, profileCtxKey, profile)
}

// ProfileFromContext finds the profile from the context.
func ProfileFromContext(ctx context.Context) (*UserProfile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*UserProfile)
	if raw == nil {
		return nil, false
	}
	return raw, ok
}

// WithClaimsContext sets the decoded TokenClaims in the given context
func WithClaimsContext(ctx context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the TokenClaims from the context
func GetClaims(ctx context.Context) (*TokenClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*TokenClaims)
	if raw == nil {
		return nil, false
	}
	return raw, ok
}

// IsAdmin is a convenience check on the profile stored in ctx
func IsAdmin(ctx context.Context) bool {
	p, ok := ProfileFromContext(ctx)
	return ok && p.IsAdmin
}
