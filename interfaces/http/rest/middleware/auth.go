package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/pkg/auth"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// DevUserHeader carries the caller's id when authentication is disabled
const DevUserHeader = "X-User-ID"

// DefaultDevUser is used when authentication is disabled and no
// DevUserHeader is sent
const DefaultDevUser = "dev-user"

// Authenticate validates the bearer token issued by the auth service and
// stores the user in the request context. A nil validator disables
// validation: the user comes from DevUserHeader instead.
func Authenticate(validator *auth.JWTValidator, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	if validator == nil {
		return developmentUser
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Missing authentication token"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Token has expired").WithCode("TOKEN_EXPIRED"))
				case errors.Is(err, auth.ErrInvalidSignature):
					errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Invalid token signature"))
				default:
					errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Invalid token"))
				}
				return
			}

			ctx := auth.SetUserInContext(r.Context(), auth.NewUserContext(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func developmentUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(DevUserHeader))
		if userID == "" {
			userID = DefaultDevUser
		}
		ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{UserID: userID, Role: "authenticated"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the Authorization header, falling back to the
// access token cookie set by the web client
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie("sb-access-token"); err == nil {
		return cookie.Value
	}
	return ""
}
