// Package session issues and verifies session tokens and attaches the
// resolved identity to requests.
package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/utilities"
)

// DevSecret is used when no secret is configured. Never use it in production.
const DevSecret = "dev-secret-change-me"

type Config struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

// OverlayEnv replaces fields with values from the environment when they are set.
func (c Config) OverlayEnv() Config {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		c.Secret = s
	}
	if v := os.Getenv("JWT_EXPIRES_IN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.TTL = d
		}
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Issuer == "" {
		c.Issuer = "service-market"
	}
	return c
}

// UsesDevSecret reports whether the fallback secret is in effect.
func (c Config) UsesDevSecret() bool {
	return c.Secret == "" || c.Secret == DevSecret
}

// Claims carried by a session token.
type Claims struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid token")

// TokenService signs and verifies HS256 session tokens with a server-held secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenService(cfg Config) *TokenService {
	secret := cfg.Secret
	if secret == "" {
		secret = DevSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, issuer: cfg.Issuer, now: time.Now}
}

// Issue creates a token encoding the user's id, email and role.
func (s *TokenService) Issue(u *entity.User) (string, error) {
	if u == nil || u.ID == "" {
		return "", errors.New("user id is required to issue a token")
	}
	now := s.now()
	claims := Claims{
		ID:       u.ID,
		Email:    u.Email,
		UserType: string(u.UserType),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        utilities.NewKSUID(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" && claims.Email == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	return claims, nil
}

func (s *TokenService) keyFunc(*jwt.Token) (any, error) { return s.secret, nil }
