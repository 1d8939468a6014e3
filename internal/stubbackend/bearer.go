package stubbackend

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-router"
)

var ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")

const (
	claimsLocalsKey        = "stub.claims"
	authorizationLocalsKey = "stub.authorization"
)

type bearerConfig struct {
	Tokens     *TokenIssuer
	AuthScheme string
	// Optional lets requests without a credential through. A credential
	// that is present but invalid is still rejected.
	Optional bool
}

func bearerMiddleware(cfg bearerConfig) router.MiddlewareFunc {
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			header := authorizationHeader(ctx)
			raw, err := tokenFromHeader(header, cfg.AuthScheme)
			if err != nil {
				if cfg.Optional && header == "" {
					return next(ctx)
				}
				return detail(ctx, fiber.StatusUnauthorized, "Not authenticated")
			}

			claims, err := cfg.Tokens.Verify(raw)
			if err != nil {
				return detail(ctx, fiber.StatusUnauthorized, "Could not validate credentials")
			}

			ctx.Locals(claimsLocalsKey, claims)
			return next(ctx)
		}
	}
}

// authorizationHeader returns the header captured by the request recorder
func authorizationHeader(ctx router.Context) string {
	header, _ := ctx.Locals(authorizationLocalsKey).(string)
	return header
}

func tokenFromHeader(header, authScheme string) (string, error) {
	authScheme = strings.TrimSpace(authScheme)
	l := len(authScheme)
	if len(header) > l+1 && strings.EqualFold(header[:l], authScheme) {
		if token := strings.TrimSpace(header[l:]); token != "" {
			return token, nil
		}
	}
	return "", ErrJWTMissingOrMalformed
}

func claimsFrom(ctx router.Context) *auth.TokenClaims {
	claims, _ := ctx.Locals(claimsLocalsKey).(*auth.TokenClaims)
	return claims
}
