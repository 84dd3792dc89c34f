package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandlerSignup(t *testing.T) {
	svc, _, mock := newTestService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())
	mock.ExpectQuery(existsEmailQuery).WithArgs("ann@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"name":"Ann","email":"Ann@X.com","password":"secret1","user_type":"buyer"}`
	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var res struct {
		User  map[string]any `json:"user"`
		Token string         `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "ann@x.com", res.User["email"])
	assert.NotContains(t, res.User, "password")
	assert.NotEmpty(t, res.Token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerSignupBadBody(t *testing.T) {
	svc, _, _ := newTestService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Code)
}

func TestHandlerSignupPasswordTooLong(t *testing.T) {
	svc, _, mock := newTestService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())

	body := `{"name":"Ann","email":"ann@x.com","password":"` + strings.Repeat("p", 80) + `","user_type":"buyer"}`
	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "at most 72 bytes")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerLoginLocked(t *testing.T) {
	svc, _, mock := newTestService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())
	until := fixedNow.Add(5 * time.Minute)
	mock.ExpectQuery(byEmailQuery).WithArgs("ann@x.com").
		WillReturnRows(userRows(fixture{password: "secret1", attempts: 5, lockedUntil: &until}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"ann@x.com","password":"secret1"}`))
	h.Login(rec, req)

	assert.Equal(t, http.StatusLocked, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "account_locked", body.Code)
	require.NotNil(t, body.LockedUntil)
	assert.True(t, body.LockedUntil.Equal(until))
}

func TestHandlerLoginBadCredentials(t *testing.T) {
	svc, _, mock := newTestService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())
	mock.ExpectQuery(byEmailQuery).WillReturnRows(sqlmock.NewRows(userCols))

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"x@y.com","password":"secret1"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decodeError(t, rec).Code)
}

func TestHandlerMe(t *testing.T) {
	svc, _, _ := newTestService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	u := &entity.User{ID: testUserID, Email: "ann@x.com", Name: "Ann", UserType: entity.UserTypeFarmer, IsActive: true}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(session.WithUser(req.Context(), u))
	rec = httptest.NewRecorder()
	h.Me(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_type":"farmer"`)
}

func TestHandlerChangePassword(t *testing.T) {
	svc, _, mock := newTestService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())
	mock.ExpectQuery(byIDQuery).WithArgs(testUserID).
		WillReturnRows(userRows(fixture{password: mustHash(t, "secret1")}))
	mock.ExpectExec(updatePasswordExec).WithArgs(testUserID, bcryptArg{}, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &entity.User{ID: testUserID, IsActive: true, UserType: entity.UserTypeBuyer}
	req := httptest.NewRequest(http.MethodPut, "/api/auth/password",
		strings.NewReader(`{"current_password":"secret1","new_password":"secret2"}`))
	req = req.WithContext(session.WithUser(req.Context(), u))
	rec := httptest.NewRecorder()
	h.ChangePassword(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
