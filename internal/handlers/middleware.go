package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/simaland/userapi/internal/auth"
	"github.com/simaland/userapi/internal/logutil"
)

// Authorizer resolves a session token to an authorization context.
type Authorizer interface {
	Authorize(ctx context.Context, token string) auth.Context
}

// Authorize attaches the caller's authorization context to every request.
// Requests without a usable session get the fail-closed context, so the
// decision is left to the handlers.
func Authorize(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := authorizer.Authorize(r.Context(), sessionToken(r))
			next.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), ac)))
		})
	}
}

// RequestLogger puts logger on the request context and logs one line per
// request with its outcome.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				reqLogger.Info().
					Str("method", r.Method).
					Str("url", r.URL.String()).
					Str("remote_addr", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r.WithContext(logutil.WithLogger(r.Context(), reqLogger)))
		})
	}
}

// Recover turns a panic into a generic 500 without leaking its detail.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log := logutil.GetOrDefault(r.Context())
			log.Error().Interface("panic", rec).Str("url", r.URL.String()).Msg("recovered from panic")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}
