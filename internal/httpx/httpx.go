// Package httpx holds the JSON response helpers shared by handlers.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/apperr"
)

const maxBodyBytes = 1 << 20

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error       string     `json:"error"`
	Code        string     `json:"code"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindNoOp, apperr.KindInsufficientFunds:
		return http.StatusBadRequest
	case apperr.KindConflict, apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as a structured error response. Internal errors are
// logged with their cause and rendered with a generic message.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, r *http.Request, err error) {
	e := apperr.As(err)
	status := StatusFor(e.Kind)
	body := ErrorBody{Error: e.Message, Code: e.Code, LockedUntil: e.LockedUntil}
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path,
				"request_id", RequestID(r.Context()), "err", err)
		}
		body = ErrorBody{Error: "internal server error", Code: "internal"}
	} else if logger != nil {
		logger.Debugw("request rejected", "method", r.Method, "path", r.URL.Path,
			"request_id", RequestID(r.Context()), "kind", e.Kind, "code", e.Code)
	}
	WriteJSON(w, status, body)
}

// DecodeJSON decodes a size-limited JSON body into v. Unknown fields are
// ignored; an empty or malformed body is a validation error.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apperr.Validation("invalid payload")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Wrap(err, apperr.KindValidation, "validation_error", "invalid payload")
	}
	return nil
}
