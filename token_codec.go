package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// TokenCodec decodes bearer token claims without verifying signatures and
// checks their expiry. It is a fast path for routing decisions only; the
// backend stays authoritative.
type TokenCodec struct {
	now func() time.Time
}

// CodecOption customizes a TokenCodec
type CodecOption func(*TokenCodec)

// WithCodecClock injects a custom clock (useful for tests).
func WithCodecClock(clock func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewTokenCodec returns a codec using the wall clock
func NewTokenCodec(opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var urlAlphabet = strings.NewReplacer("-", "+", "_", "/")

// Decode splits the token and parses its payload segment into claims.
func (c *TokenCodec) Decode(token string) (*TokenClaims, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, withMessage(ErrTokenMalformed, "", map[string]any{"segments": len(parts)})
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, withMessage(ErrTokenMalformed, "", map[string]any{"segment": "payload"})
	}

	if !utf8.Valid(payload) {
		return nil, ErrTokenMalformed
	}

	claims := &TokenClaims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, ErrTokenMalformed
	}

	// NumericDate drops the fraction of exp, so read the raw number too
	var raw struct {
		Exp json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrTokenMalformed
	}
	exp, err := raw.Exp.Float64()
	if raw.Exp == "" || err != nil || exp == 0 || claims.ExpiresAt == nil {
		return nil, ErrTokenMissingExpiry
	}
	claims.expSeconds = exp

	return claims, nil
}

// Validate decodes the token and rejects it once expired.
func (c *TokenCodec) Validate(token string) (*TokenClaims, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.expSeconds <= float64(c.now().Unix()) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// IsValid reports whether the token decodes and has not expired.
// It never fails loudly: any problem yields false.
func (c *TokenCodec) IsValid(token string) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			valid = false
		}
	}()
	_, err := c.Validate(token)
	return err == nil
}

// Expired reports whether the token decodes but is past its expiry
func (c *TokenCodec) Expired(token string) bool {
	_, err := c.Validate(token)
	return IsTokenExpiredError(err)
}

func decodeSegment(seg string) ([]byte, error) {
	seg = urlAlphabet.Replace(seg)
	if l := len(seg) % 4; l > 0 && !strings.HasSuffix(seg, "=") {
		return base64.RawStdEncoding.DecodeString(seg)
	}
	return base64.StdEncoding.DecodeString(seg)
}

// DefaultCodec is used by components that were not given a codec
var DefaultCodec = NewTokenCodec()

func normalizeCodec(c *TokenCodec) *TokenCodec {
	if c == nil {
		return DefaultCodec
	}
	return c
}
