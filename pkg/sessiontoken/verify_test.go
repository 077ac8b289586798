package sessiontoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testShop   = "demo.harborshop.com"
	testKey    = "app-key"
	testSecret = "app-secret"
)

func newVerifier() *Verifier {
	return &Verifier{APIKey: testKey, APISecret: testSecret}
}

func mintToken(t *testing.T, mutate func(*Claims)) string {
	t.Helper()

	claims := NewClaims(testShop, "user-1", testKey, time.Minute, time.Now())
	if mutate != nil {
		mutate(&claims)
	}

	token, err := Sign(claims, testSecret)
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	t.Parallel()

	claims, err := newVerifier().Verify(mintToken(t, nil))
	require.NoError(t, err)
	require.Equal(t, testShop, claims.Shop())
	require.Equal(t, "user-1", claims.UserID())
}

func TestVerifyRejections(t *testing.T) {
	t.Parallel()

	t.Run("garbage input is malformed", func(t *testing.T) {
		_, err := newVerifier().Verify("not.a.jwt")
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		claims := NewClaims(testShop, "user-1", testKey, time.Minute, time.Now())
		token, err := Sign(claims, "other-secret")
		require.NoError(t, err)

		_, err = newVerifier().Verify(token)
		require.ErrorIs(t, err, ErrInvalidSig)
	})

	t.Run("expired token is a distinct error", func(t *testing.T) {
		token := mintToken(t, func(c *Claims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		})

		_, err := newVerifier().Verify(token)
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("audience must name the app", func(t *testing.T) {
		token := mintToken(t, func(c *Claims) {
			c.Audience = jwt.ClaimStrings{"someone-else"}
		})

		_, err := newVerifier().Verify(token)
		require.ErrorIs(t, err, ErrAudience)
	})

	t.Run("issuer host must match dest host", func(t *testing.T) {
		token := mintToken(t, func(c *Claims) {
			c.Issuer = "https://evil.harborshop.com/admin"
		})

		_, err := newVerifier().Verify(token)
		require.ErrorIs(t, err, ErrIssuer)
	})

	t.Run("missing dest", func(t *testing.T) {
		token := mintToken(t, func(c *Claims) { c.Dest = "" })

		_, err := newVerifier().Verify(token)
		require.ErrorIs(t, err, ErrDest)
	})

	t.Run("shop validator is consulted", func(t *testing.T) {
		v := newVerifier()
		v.ValidShop = func(host string) bool { return false }

		_, err := v.Verify(mintToken(t, nil))
		require.ErrorIs(t, err, ErrDest)
	})
}

func TestVerifyLeeway(t *testing.T) {
	t.Parallel()

	// Expired 5s ago: inside the default 10s leeway.
	token := mintToken(t, func(c *Claims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-5 * time.Second))
	})

	_, err := newVerifier().Verify(token)
	require.NoError(t, err)
}

func TestClaimsShop(t *testing.T) {
	t.Parallel()

	t.Run("extracts host from origin", func(t *testing.T) {
		c := Claims{Dest: "https://demo.harborshop.com"}
		require.Equal(t, "demo.harborshop.com", c.Shop())
	})

	t.Run("accepts bare host", func(t *testing.T) {
		c := Claims{Dest: "Demo.harborshop.com"}
		require.Equal(t, "demo.harborshop.com", c.Shop())
	})

	t.Run("empty dest", func(t *testing.T) {
		c := Claims{}
		require.Empty(t, c.Shop())
	})
}
