package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "audit_ip"
	ctxKeyUserAgent contextKey = "audit_ua"
	ctxKeyRequestID contextKey = "audit_request_id"
)

// ContextWithIPAddress adds the client IP to ctx for audit records.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the User-Agent to ctx for audit records.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithRequestID adds the request id to ctx for audit records.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetIPAddressFromContext extracts the client IP from ctx.
func GetIPAddressFromContext(ctx context.Context) string { return stringValue(ctx, ctxKeyIPAddress) }

// GetUserAgentFromContext extracts the User-Agent from ctx.
func GetUserAgentFromContext(ctx context.Context) string { return stringValue(ctx, ctxKeyUserAgent) }

// GetRequestIDFromContext extracts the request id from ctx.
func GetRequestIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxKeyRequestID) }
