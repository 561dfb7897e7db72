package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/auth"
	"github.com/techtuto2024/techtuto-backend/internal/model"
)

type userKey struct{}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("client_ip", r.RemoteAddr),
				slog.String("latency", time.Since(start).String()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// authMiddleware accepts a bearer token, or the session cookie when cookie
// delivery is on, and loads the user it names.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return handle(s.logger, func(w http.ResponseWriter, r *http.Request) error {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" && s.delivery.UsesCookie() {
			if cookie, err := r.Cookie(auth.CookieName); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			return apperr.Auth(apperr.CodeMissingToken, "Please login to access this resource")
		}
		claims, err := s.issuer.Verify(token)
		if err != nil {
			return apperr.Auth(apperr.CodeInvalidToken, "Invalid or expired session")
		}
		user, err := s.deps.Directory.FindByID(r.Context(), claims.UserID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return apperr.Auth(apperr.CodeUserNotFound, "User not found")
			}
			return err
		}
		ctx := context.WithValue(r.Context(), userKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
		return nil
	})
}

func (s *Server) requireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return handle(s.logger, func(w http.ResponseWriter, r *http.Request) error {
			user, ok := userFromContext(r.Context())
			if !ok || !auth.Authorize(user, roles...) {
				return apperr.Forbidden("Role: " + string(user.Role) + " is not allowed to access this resource")
			}
			next.ServeHTTP(w, r)
			return nil
		})
	}
}

func userFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(userKey{}).(model.User)
	return user, ok
}
