package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("login: %w", New(KindUnauthorized, "invalid_credentials", "invalid email or password"))

	assert.True(t, errors.Is(err, &Error{Kind: KindUnauthorized}))
	assert.True(t, errors.Is(err, &Error{Kind: KindUnauthorized, Code: "invalid_credentials"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindUnauthorized, Code: "other"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindForbidden}))
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	e := As(errors.New("boom"))
	assert.Equal(t, KindInternal, e.Kind)
}

func TestLocked(t *testing.T) {
	until := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	e := Locked(until)
	require.NotNil(t, e.LockedUntil)
	assert.True(t, e.LockedUntil.Equal(until))
	assert.Equal(t, time.UTC, e.LockedUntil.Location())
}

func TestFromDB(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"no rows", sql.ErrNoRows, KindNotFound},
		{"unique", &pq.Error{Code: "23505"}, KindConflict},
		{"foreign key", &pq.Error{Code: "23503"}, KindNotFound},
		{"check", &pq.Error{Code: "23514"}, KindValidation},
		{"bad uuid", &pq.Error{Code: "22P02"}, KindValidation},
		{"other pq", &pq.Error{Code: "40001"}, KindInternal},
		{"plain", errors.New("connection refused"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromDB(fmt.Errorf("wrapped: %w", tt.err), "op")
			assert.Equal(t, tt.want, KindOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, FromDB(nil, "op"))
	})
	t.Run("already classified", func(t *testing.T) {
		in := Validation("bad")
		assert.Same(t, in, FromDB(in, "op"))
	})
}
