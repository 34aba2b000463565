package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/bookkeeper/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to the context so
// mutations can log who issued them.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, clientIP(r), r.UserAgent())
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already replaced for trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
