package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/marco/cinematch/internal/logging"
	"github.com/marco/cinematch/internal/metrics"
)

type userKey struct{}

// basicAuth accepts HTTP basic credentials checked against the user store
// and puts the username in the request context.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			unauthorized(w)
			return
		}

		valid, err := s.users.IsValidUser(r.Context(), username, password)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "AUTH_ERROR", "could not verify credentials", err)
			return
		}
		if !valid {
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="cinematch", charset="UTF-8"`)
	respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid username or password", nil)
}

// usernameFrom returns the authenticated user, or "" on public routes.
func usernameFrom(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}

// instrument logs each request and counts it by route pattern and status
// class.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%dxx", status/100)).Inc()

		logging.Debug().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
