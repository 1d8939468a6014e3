package stubbackend

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-auth-client"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = goerrors.New("could not validate credentials", goerrors.CategoryAuth).WithTextCode("STUB_INVALID_TOKEN").WithCode(goerrors.CodeUnauthorized)
	ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).WithTextCode("STUB_TOKEN_EXPIRED").WithCode(goerrors.CodeUnauthorized)
)

// maxScopedTTL caps resource tokens well below session tokens
const maxScopedTTL = 30 * time.Minute

// TokenIssuer signs and verifies HS256 session and resource tokens
type TokenIssuer struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	now        func() time.Time
}

// NewTokenIssuer creates a new TokenIssuer instance
func NewTokenIssuer(signingKey []byte, ttl time.Duration, issuer string) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		now:        time.Now,
	}
}

// Session mints a session token for user
func (ts *TokenIssuer) Session(user *User) (string, error) {
	id := strconv.FormatInt(user.ID, 10)
	return ts.sign(&auth.TokenClaims{
		RegisteredClaims: ts.registered(id, ts.ttl),
		UID:              id,
		Role:             user.Role(),
		IsAdmin:          user.IsAdmin,
	})
}

// Scoped mints a token that unlocks exactly one resource
func (ts *TokenIssuer) Scoped(kind string, id int64) (string, error) {
	ttl := ts.ttl
	if ttl > maxScopedTTL {
		ttl = maxScopedTTL
	}
	return ts.sign(&auth.TokenClaims{
		RegisteredClaims: ts.registered("", ttl),
		Scope:            ScopeFor(kind, id),
	})
}

// TTL is the session token lifetime
func (ts *TokenIssuer) TTL() time.Duration {
	return ts.ttl
}

// ScopeFor is the scope claim of a resource token
func ScopeFor(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

func (ts *TokenIssuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := ts.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    ts.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (ts *TokenIssuer) sign(claims *auth.TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Verify parses and validates a token string
func (ts *TokenIssuer) Verify(tokenString string) (*auth.TokenClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &auth.TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*auth.TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
