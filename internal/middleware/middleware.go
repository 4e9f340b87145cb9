// Package middleware carries the HTTP cross-cutting layers: correlation ids,
// request logging, and bearer-token authentication with on-first-sight user
// provisioning.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/auth"
	"github.com/mutqin/backend/internal/core"
)

type contextKey string

const (
	userKey        contextKey = "user"
	correlationKey contextKey = "correlation_id"
)

// CorrelationHeader is echoed on every response.
const CorrelationHeader = "X-Correlation-ID"

// UserFromContext returns the authenticated user, or nil on unauthenticated
// routes.
func UserFromContext(ctx context.Context) *core.User {
	u, _ := ctx.Value(userKey).(*core.User)
	return u
}

// CorrelationID returns the request's correlation id.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// Correlation reuses the caller's correlation id or mints one, echoes it on
// the response, and stores it in context for error bodies and logs.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey, id)))
	})
}

// statusRecorder captures the written status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Logging writes one structured line per request.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("correlation_id", CorrelationID(r.Context())))
		})
	}
}

// UserStore resolves or provisions the account behind a verified token.
type UserStore interface {
	FindOrCreateUserByEmail(ctx context.Context, email string) (*core.User, error)
}

// Auth verifies the bearer token and injects the user into context. Unknown
// emails are provisioned on first sight; identity itself lives upstream.
func Auth(verifier auth.Verifier, store UserStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := verifier.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				unauthorized(w, r, "invalid bearer token")
				return
			}

			user, err := store.FindOrCreateUserByEmail(r.Context(), claims.Email)
			if err != nil {
				logger.Error("user provisioning failed",
					zap.String("correlation_id", CorrelationID(r.Context())),
					zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{
					"error":          "internal error",
					"correlation_id": CorrelationID(r.Context()),
				})
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":          msg,
		"code":           apperr.KindAuthentication.String(),
		"correlation_id": CorrelationID(r.Context()),
	})
}
