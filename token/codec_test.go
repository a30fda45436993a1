package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/mindcraft-auth/token"
	"github.com/stretchr/testify/require"
)

const (
	testSecret    = "unit-test-secret"
	testIssuer    = "com.testissuer"
	testAudience  = "api"
	testSessionID = "1:6f0c8f3e-4d1b-4b9a-9d6e-2c1f0b7a9e11"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestCodec(t *testing.T, secret string, c *clock) *token.Codec {
	t.Helper()
	signer, err := token.NewHMACSigner(secret)
	require.NoError(t, err)
	return token.NewCodec(signer,
		token.WithIssuer(testIssuer),
		token.WithAudience(testAudience),
		token.WithNowFunc(c.Now),
	)
}

func TestNewHMACSigner_EmptySecret(t *testing.T) {
	_, err := token.NewHMACSigner("")
	require.ErrorIs(t, err, token.ErrMissingSecret)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, testSecret, c)

	raw, err := codec.Sign(token.Payload{UserID: 1, SessionID: testSessionID, Type: token.TypeRefresh}, time.Hour)
	require.NoError(t, err)

	c.now = c.now.Add(59 * time.Minute)
	payload, err := codec.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, int64(1), payload.UserID)
	require.Equal(t, testSessionID, payload.SessionID)
	require.Equal(t, token.TypeRefresh, payload.Type)
	require.NotEmpty(t, payload.ID)
	require.True(t, payload.ExpiresAt.Equal(time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)))
}

func TestCodec_UniqueTokensWithinSameSecond(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, testSecret, c)
	p := token.Payload{UserID: 1, SessionID: testSessionID, Type: token.TypeRefresh}

	first, err := codec.Sign(p, time.Hour)
	require.NoError(t, err)
	second, err := codec.Sign(p, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestCodec_VerifyFailures(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, testSecret, c)
	p := token.Payload{UserID: 7, SessionID: testSessionID, Type: token.TypeAccess}

	t.Run("expired", func(t *testing.T) {
		raw, err := codec.Sign(p, time.Hour)
		require.NoError(t, err)

		later := &clock{now: c.now.Add(2 * time.Hour)}
		_, err = newTestCodec(t, testSecret, later).Verify(raw)
		require.Error(t, err)
		require.Equal(t, token.KindExpired, token.KindOf(err))
	})

	t.Run("bad signature", func(t *testing.T) {
		forged, err := newTestCodec(t, "another-secret", c).Sign(p, time.Hour)
		require.NoError(t, err)

		_, err = codec.Verify(forged)
		require.Equal(t, token.KindBadSignature, token.KindOf(err))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := codec.Verify("not-a-jwt")
		require.Equal(t, token.KindMalformed, token.KindOf(err))

		_, err = codec.Verify("   ")
		require.Equal(t, token.KindMalformed, token.KindOf(err))
	})

	t.Run("wrong audience", func(t *testing.T) {
		signer, err := token.NewHMACSigner(testSecret)
		require.NoError(t, err)
		other := token.NewCodec(signer, token.WithIssuer(testIssuer), token.WithAudience("other-api"), token.WithNowFunc(c.Now))

		raw, err := other.Sign(p, time.Hour)
		require.NoError(t, err)
		_, err = codec.Verify(raw)
		require.Equal(t, token.KindInvalidClaims, token.KindOf(err))
	})

	t.Run("alg none rejected", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"iss": testIssuer,
			"aud": testAudience,
			"sid": testSessionID,
			"typ": "access",
			"exp": c.now.Add(time.Hour).Unix(),
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(raw)
		require.Equal(t, token.KindBadSignature, token.KindOf(err))
	})
}
