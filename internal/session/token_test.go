package session

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

func testUser() *entity.User {
	return &entity.User{ID: "7f9c1e4a-3b1d-4c62-9a55-0d4c2a1b9e01", Email: "ann@x.com", UserType: entity.UserTypeBuyer, IsActive: true}
}

func TestIssueAndVerify(t *testing.T) {
	svc := NewTokenService(Config{Secret: "s3cret", TTL: time.Hour, Issuer: "test"})
	tok, err := svc.Issue(testUser())
	require.NoError(t, err)

	claims, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "7f9c1e4a-3b1d-4c62-9a55-0d4c2a1b9e01", claims.ID)
	assert.Equal(t, "ann@x.com", claims.Email)
	assert.Equal(t, "buyer", claims.UserType)
	assert.Equal(t, "test", claims.Issuer)
	assert.NotEmpty(t, claims.RegisteredClaims.ID)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestVerifyRejects(t *testing.T) {
	svc := NewTokenService(Config{Secret: "s3cret", TTL: time.Hour})
	tok, err := svc.Issue(testUser())
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenService(Config{Secret: "other", TTL: time.Hour})
		_, err := other.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokenService(Config{Secret: "s3cret", TTL: time.Hour})
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("tampered", func(t *testing.T) {
		parts := strings.Split(tok, ".")
		require.Len(t, parts, 3)
		_, err := svc.Verify(parts[0] + "." + parts[1] + "x." + parts[2])
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			ID: "x",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestIssueRequiresID(t *testing.T) {
	svc := NewTokenService(Config{Secret: "s3cret"})
	_, err := svc.Issue(&entity.User{Email: "a@b.co"})
	assert.Error(t, err)
}

func TestConfigOverlayEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_EXPIRES_IN", "2h")
	cfg := Config{}.OverlayEnv()
	assert.Equal(t, "from-env", cfg.Secret)
	assert.Equal(t, 2*time.Hour, cfg.TTL)
	assert.False(t, cfg.UsesDevSecret())

	assert.True(t, Config{}.UsesDevSecret())
}
