package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

type stubUsers struct {
	byID    map[string]*entity.User
	byEmail map[string]*entity.User
	err     error
	calls   int
}

func (s *stubUsers) GetByID(_ context.Context, id string) (*entity.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	s.calls++
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user not found")
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", tok)

	tok, ok = BearerToken("bearer   abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	for _, h := range []string{"", "Basic abc", "Bearer", "Bearer "} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestResolve(t *testing.T) {
	tokens := NewTokenService(Config{Secret: "s3cret", TTL: time.Hour})
	issued := testUser()
	tok, err := tokens.Issue(issued)
	require.NoError(t, err)

	t.Run("anonymous without header", func(t *testing.T) {
		users := &stubUsers{}
		a := NewAttacher(tokens, users, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Nil(t, a.Resolve(req))
		assert.Zero(t, users.calls)
	})

	t.Run("anonymous with invalid token", func(t *testing.T) {
		users := &stubUsers{}
		a := NewAttacher(tokens, users, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		assert.Nil(t, a.Resolve(req))
		assert.Zero(t, users.calls)
	})

	t.Run("re-fetches current row", func(t *testing.T) {
		// role changed since the token was issued
		current := *issued
		current.UserType = entity.UserTypeAdmin
		users := &stubUsers{byID: map[string]*entity.User{issued.ID: &current}}
		a := NewAttacher(tokens, users, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)

		u := a.Resolve(req)
		require.NotNil(t, u)
		assert.Equal(t, entity.UserTypeAdmin, u.UserType)
		assert.Equal(t, 1, users.calls)
	})

	t.Run("anonymous when row gone", func(t *testing.T) {
		a := NewAttacher(tokens, &stubUsers{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		assert.Nil(t, a.Resolve(req))
	})

	t.Run("anonymous on store failure", func(t *testing.T) {
		a := NewAttacher(tokens, &stubUsers{err: apperr.Internal(nil, "db down")}, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		assert.Nil(t, a.Resolve(req))
	})

	t.Run("email fallback", func(t *testing.T) {
		raw, err := issueWithoutID(tokens, "ann@x.com")
		require.NoError(t, err)
		users := &stubUsers{byEmail: map[string]*entity.User{"ann@x.com": issued}}
		a := NewAttacher(tokens, users, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		u := a.Resolve(req)
		require.NotNil(t, u)
		assert.Equal(t, issued.ID, u.ID)
	})
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	tokens := NewTokenService(Config{Secret: "s3cret", TTL: time.Hour})
	issued := testUser()
	tok, err := tokens.Issue(issued)
	require.NoError(t, err)
	a := NewAttacher(tokens, &stubUsers{byID: map[string]*entity.User{issued.ID: issued}}, nil)

	var got *entity.User
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, got)
	assert.Equal(t, issued.ID, got.ID)

	got = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, got)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	tests := []struct {
		name string
		user *entity.User
		role string
		want int
	}{
		{"anonymous", nil, "admin", http.StatusUnauthorized},
		{"wrong role", &entity.User{UserType: entity.UserTypeBuyer, IsActive: true}, "admin", http.StatusForbidden},
		{"inactive admin", &entity.User{UserType: entity.UserTypeAdmin, IsActive: false}, "admin", http.StatusForbidden},
		{"admin case-insensitive", &entity.User{UserType: entity.UserTypeAdmin, IsActive: true}, "ADMIN", http.StatusNoContent},
		{"auth only", &entity.User{UserType: entity.UserTypeFarmer, IsActive: true}, "", http.StatusNoContent},
		{"auth only inactive", &entity.User{UserType: entity.UserTypeFarmer}, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			RequireRole(tt.role, nil)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthorizeOwner(t *testing.T) {
	owner := &entity.User{ID: "u1", UserType: entity.UserTypeFarmer, IsActive: true}
	other := &entity.User{ID: "u2", UserType: entity.UserTypeBuyer, IsActive: true}
	admin := &entity.User{ID: "a1", UserType: entity.UserTypeAdmin, IsActive: true}

	_, err := AuthorizeOwner(context.Background(), "u1")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	got, err := AuthorizeOwner(WithUser(context.Background(), owner), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = AuthorizeOwner(WithUser(context.Background(), other), "u1")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = AuthorizeOwner(WithUser(context.Background(), admin), "u1")
	assert.NoError(t, err)
}

func issueWithoutID(s *TokenService, email string) (string, error) {
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
