package router

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/coin"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/complaint"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/utilities"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs requests at debug level, and 5xx responses at warn.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"size", lrw.size,
				"request_id", w.Header().Get(RequestIDHeader),
			}
			if status >= http.StatusInternalServerError {
				logger.Warnw("http request", fields...)
				return
			}
			logger.Debugw("http request", fields...)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// JSON API: nothing should ever be rendered or framed
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			w.Header().Set("Cache-Control", "no-store")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware keeps a caller supplied X-Request-ID or assigns a
// snowflake id, echoes it on the response and stores it for httpx.RequestID.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = utilities.NewSnowflakeID()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(httpx.WithRequestID(r.Context(), id)))
		})
	}
}

// Deps are the services the routes are served by.
type Deps struct {
	DB         *sqlx.DB
	Users      *user.UserService
	Tokens     *session.TokenService
	Coins      *coin.Service
	Complaints *complaint.Service
}

// RegisterRoutes mounts the API on an http.ServeMux and wraps it with the
// cross-cutting middleware.
func RegisterRoutes(logger *zap.SugaredLogger, deps Deps) http.Handler {
	mux := http.NewServeMux()
	admin := func(h http.HandlerFunc) http.Handler {
		return session.RequireRole("admin", logger)(h)
	}

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.DB.PingContext(ctx); err != nil {
				logger.Warnw("health check failed", "err", err)
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// auth
	uh := user.NewHandler(deps.Users, logger)
	mux.HandleFunc("POST /api/auth/signup", uh.Signup)
	mux.HandleFunc("POST /api/auth/login", uh.Login)
	mux.HandleFunc("GET /api/auth/me", uh.Me)
	mux.HandleFunc("PUT /api/auth/profile", uh.UpdateProfile)
	mux.HandleFunc("PUT /api/auth/password", uh.ChangePassword)

	// coins
	ch := coin.NewHandler(deps.Coins, logger)
	mux.HandleFunc("GET /api/coins/{userId}", ch.GetBalance)
	mux.Handle("PUT /api/coins/{userId}", admin(ch.SetBalance))
	mux.Handle("POST /api/coins/{userId}/credit", admin(ch.Credit))
	mux.Handle("POST /api/coins/{userId}/add", admin(ch.Credit))
	mux.HandleFunc("POST /api/coins/{userId}/debit", ch.Debit)
	mux.HandleFunc("POST /api/coins/{userId}/deduct", ch.Debit)
	mux.HandleFunc("GET /api/coins/{userId}/transactions", ch.UserTransactions)
	mux.Handle("GET /api/admin/coins/transactions", admin(ch.AllTransactions))
	mux.Handle("GET /api/admin/coins/balances", admin(ch.Balances))

	// complaints
	cph := complaint.NewHandler(deps.Complaints, logger)
	mux.HandleFunc("POST /api/complaints", cph.Create)
	mux.HandleFunc("GET /api/complaints", cph.List)
	mux.HandleFunc("GET /api/complaints/{id}", cph.Get)
	mux.Handle("PATCH /api/complaints/{id}", admin(cph.UpdateStatus))
	mux.Handle("PATCH /api/complaints/{id}/remarks", admin(cph.UpdateRemarks))

	attacher := session.NewAttacher(deps.Tokens, deps.Users, logger)
	var handler http.Handler = mux
	handler = attacher.Middleware(handler)
	handler = RequestIDMiddleware()(handler)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	return handler
}
