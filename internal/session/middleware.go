package session

import (
	"context"
	"net/http"
	"regexp"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

// UserLookup loads the canonical user row.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

// Verifier validates a raw token.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

type ctxKey struct{}

// WithUser returns ctx carrying u as the request identity.
func WithUser(ctx context.Context, u *entity.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the identity attached to ctx, if any.
func UserFrom(ctx context.Context) (*entity.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*entity.User)
	return u, ok && u != nil
}

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(\S+)\s*$`)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	m := bearerPattern.FindStringSubmatch(header)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Attacher resolves the request identity from the bearer token.
type Attacher struct {
	tokens Verifier
	users  UserLookup
	logger *zap.SugaredLogger
}

func NewAttacher(tokens Verifier, users UserLookup, logger *zap.SugaredLogger) *Attacher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Attacher{tokens: tokens, users: users, logger: logger}
}

// Resolve returns the current user row for the request's token, or nil for
// an anonymous request. It never fails: every error yields nil.
func (a *Attacher) Resolve(r *http.Request) *entity.User {
	raw, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}
	claims, err := a.tokens.Verify(raw)
	if err != nil {
		a.logger.Debugw("ignoring invalid token", "err", err)
		return nil
	}
	// claims only locate the row; role and active flag come from the store
	var u *entity.User
	if claims.ID != "" {
		u, err = a.users.GetByID(r.Context(), claims.ID)
	} else {
		u, err = a.users.GetByEmail(r.Context(), claims.Email)
	}
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			a.logger.Warnw("identity lookup failed", "err", err)
		}
		return nil
	}
	return u
}

// Middleware attaches the resolved identity and always calls next.
func (a *Attacher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := a.Resolve(r); u != nil {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

var (
	errUnauthorized = apperr.Unauthorized("authentication required")
	errForbidden    = apperr.Forbidden("forbidden")
)

// Authorize checks that ctx carries an active identity and, when role is
// non-empty, that it has that role (case-insensitive).
func Authorize(ctx context.Context, role string) (*entity.User, error) {
	u, ok := UserFrom(ctx)
	if !ok {
		return nil, errUnauthorized
	}
	if !u.IsActive {
		return nil, errForbidden
	}
	if role != "" && !u.HasRole(role) {
		return nil, errForbidden
	}
	return u, nil
}

// AuthorizeOwner admits the active identity owning ownerID, or any admin.
func AuthorizeOwner(ctx context.Context, ownerID string) (*entity.User, error) {
	u, err := Authorize(ctx, "")
	if err != nil {
		return nil, err
	}
	if u.ID != ownerID && !u.HasRole(string(entity.UserTypeAdmin)) {
		return nil, errForbidden
	}
	return u, nil
}

// RequireRole is the role gate. An empty role only requires an active identity.
func RequireRole(role string, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := Authorize(r.Context(), role); err != nil {
				httpx.WriteError(w, logger, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
