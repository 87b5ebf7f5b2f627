package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/pkg/auth"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// RateLimit rejects requests once a client IP exceeds its budget. It
// expects RealIP to have run first.
func RateLimit(limiter auth.RateLimiter, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.Error("Rate limiter error", zap.Error(err))
				errs.Handle(w, r, pkgerrors.NewInternalError("rate limiter failed").WithCause(err))
				return
			}
			if !allowed {
				errs.Handle(w, r, pkgerrors.NewRateLimitError("Rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
