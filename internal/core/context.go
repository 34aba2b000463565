package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// ContextWithClient records who issued a request so mutations can log it.
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyIPAddress, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// ClientFromContext returns the values stored by ContextWithClient.
func ClientFromContext(ctx context.Context) (ip, userAgent string) {
	ip, _ = ctx.Value(ctxKeyIPAddress).(string)
	userAgent, _ = ctx.Value(ctxKeyUserAgent).(string)
	return ip, userAgent
}

// clientAttrs returns log attributes for the request client, if known.
func clientAttrs(ctx context.Context) []any {
	ip, ua := ClientFromContext(ctx)
	var attrs []any
	if ip != "" {
		attrs = append(attrs, "client_ip", ip)
	}
	if ua != "" {
		attrs = append(attrs, "user_agent", ua)
	}
	return attrs
}
