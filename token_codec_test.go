package auth_test

import (
	"encoding/base64"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawToken(payload string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func TestTokenCodecIsValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := auth.NewTokenCodec(auth.WithCodecClock(func() time.Time { return now }))

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "empty", token: "", want: false},
		{name: "one segment", token: "abc", want: false},
		{name: "two segments", token: "abc.def", want: false},
		{name: "four segments", token: "a.b.c.d", want: false},
		{name: "payload not base64", token: "h.!!!.s", want: false},
		{name: "payload not json", token: rawToken("not json"), want: false},
		{name: "payload not utf8", token: "h." + base64.RawURLEncoding.EncodeToString([]byte{0xff, 0xfe}) + ".s", want: false},
		{name: "missing exp", token: rawToken(`{"sub":"1"}`), want: false},
		{name: "exp is zero", token: rawToken(`{"exp":0}`), want: false},
		{name: "exp not a number", token: rawToken(`{"exp":"soon"}`), want: false},
		{name: "exp in the past", token: rawToken(`{"exp":1699999999}`), want: false},
		{name: "exp equals now", token: rawToken(`{"exp":1700000000}`), want: false},
		{name: "exp one second ahead", token: rawToken(`{"exp":1700000001}`), want: true},
		{name: "exp far ahead", token: rawToken(`{"exp":1900000000,"uid":"7"}`), want: true},
		{name: "fractional exp later in the current second", token: rawToken(`{"exp":1700000000.5}`), want: true},
		{name: "fractional exp in the previous second", token: rawToken(`{"exp":1699999999.9}`), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codec.IsValid(tt.token))
		})
	}
}

func TestTokenCodecComparesWholeSecondsOfNow(t *testing.T) {
	now := time.Unix(1_700_000_000, 200_000_000)
	codec := auth.NewTokenCodec(auth.WithCodecClock(func() time.Time { return now }))

	assert.True(t, codec.IsValid(rawToken(`{"exp":1700000000.5}`)))
	assert.True(t, codec.IsValid(rawToken(`{"exp":1700000000.1}`)), "now is truncated to seconds")
	assert.False(t, codec.IsValid(rawToken(`{"exp":1700000000}`)))

	claims, err := codec.Validate(rawToken(`{"exp":1700000000.5}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), claims.Expires().Unix())
}

func TestTokenCodecURLSafeAlphabet(t *testing.T) {
	codec := auth.NewTokenCodec(auth.WithCodecClock(func() time.Time { return time.Unix(0, 0).Add(time.Second) }))

	// "~~~" encodes with a '+' in the standard alphabet
	payload := `{"exp":4102444800,"scope":"~~~?>"}`
	url := base64.RawURLEncoding.EncodeToString([]byte(payload))
	require.Contains(t, url, "-")

	claims, err := codec.Validate("h." + url + ".s")
	require.NoError(t, err)
	assert.Equal(t, "~~~?>", claims.Scope)

	padded := base64.URLEncoding.EncodeToString([]byte(payload))
	assert.True(t, codec.IsValid("h."+padded+".s"))
}

func TestTokenCodecErrors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := auth.NewTokenCodec(auth.WithCodecClock(func() time.Time { return now }))

	_, err := codec.Validate("a.b")
	assert.True(t, auth.IsMalformedError(err))

	_, err = codec.Validate(rawToken(`{"sub":"1"}`))
	assert.True(t, auth.IsMalformedError(err))
	assert.ErrorIs(t, err, auth.ErrTokenMissingExpiry)

	_, err = codec.Validate(rawToken(`{"exp":1600000000}`))
	assert.True(t, auth.IsTokenExpiredError(err))
	assert.True(t, codec.Expired(rawToken(`{"exp":1600000000}`)))
	assert.False(t, codec.Expired("garbage"))
}

func TestTokenCodecDecodeClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := makeToken(t, exp, func(c *auth.TokenClaims) {
		c.IsAdmin = true
		c.Role = "admin"
	})

	claims, err := auth.DefaultCodec.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.UserID())
	assert.Equal(t, "admin", claims.Role)
	assert.True(t, claims.IsAdmin)
	assert.True(t, claims.Expires().Equal(exp))
	assert.InDelta(t, time.Hour.Seconds(), claims.TTL(time.Now()).Seconds(), 5)
}

func TestTokenCodecSignatureIsNotChecked(t *testing.T) {
	token := validToken(t)
	tampered := token[:len(token)-4] + "AAAA"
	assert.True(t, auth.DefaultCodec.IsValid(tampered))
}
