package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/core/access"
	"github.com/voreskerne/frivillig/pkg/db"
)

type contextKey string

const sessionKey contextKey = "session"

// session is the verified identity behind a request
type session struct {
	UserID    string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

func sessionFrom(ctx context.Context) *session {
	sess, _ := ctx.Value(sessionKey).(*session)
	return sess
}

// requestLogger logs each request and records its latency by route pattern
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		s.metrics.ObserveRequest(route, status, elapsed)
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// authenticate rejects requests without a valid, unrevoked token for an
// existing user and puts the session into the request context
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil || token.Subject() == "" {
			RespondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
			return
		}

		revoked, err := s.revoker.IsRevoked(r.Context(), token.JwtID())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if revoked {
			RespondWithError(w, http.StatusUnauthorized, "Token has been revoked")
			return
		}

		// The role claim is only a snapshot from login; permissions follow the stored role
		user, err := s.store.GetUser(r.Context(), token.Subject())
		if errors.Is(err, db.ErrNotFound) {
			RespondWithError(w, http.StatusUnauthorized, "Account no longer exists")
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		sess := &session{
			UserID:    user.ID,
			Role:      user.RoleID,
			TokenID:   token.JwtID(),
			ExpiresAt: token.Expiration(),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

// requirePermission allows the request only if the session's role carries perm
func (s *Server) requirePermission(perm access.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFrom(r.Context())
			if sess == nil {
				RespondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
				return
			}
			if err := s.checker.Require(r.Context(), sess.Role, perm); err != nil {
				if errors.Is(err, access.ErrForbidden) {
					RespondWithError(w, http.StatusForbidden, "Access denied")
					return
				}
				s.writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
