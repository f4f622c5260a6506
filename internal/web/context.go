package web

import (
	"net"
	"net/http"

	"github.com/danchege/Alchemist/internal/core"
	"github.com/go-chi/chi/v5/middleware"
)

// requestMetadata copies the client IP, User-Agent and request id into the
// context for audit entries. It runs after TrustedRealIP.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithIPAddress(r.Context(), clientIP(r.RemoteAddr))
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		ctx = core.ContextWithRequestID(ctx, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP drops the port from a host:port remote address.
func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
