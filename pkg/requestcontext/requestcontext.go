// Package requestcontext carries per-request values set by middleware.
package requestcontext

import "context"

type (
	contextKeyRequestID  struct{}
	contextKeyClientIP   struct{}
	contextKeyUserAgent  struct{}
	contextKeyClientKind struct{}
)

// ClientKind classifies the caller from its User-Agent.
type ClientKind string

const (
	ClientUnknown     ClientKind = "unknown"
	ClientAppsScript  ClientKind = "apps_script"
	ClientBrowser     ClientKind = "browser"
	ClientBot         ClientKind = "bot"
	ClientCommandLine ClientKind = "cli"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, requestID)
}

// RequestID returns the request ID, or "" outside an HTTP request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID{}).(string)
	return id
}

// WithClientMetadata stores the client IP and raw User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, contextKeyClientIP{}, clientIP)
	return context.WithValue(ctx, contextKeyUserAgent{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(contextKeyClientIP{}).(string)
	return ip
}

func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(contextKeyUserAgent{}).(string)
	return ua
}

func WithClientKind(ctx context.Context, kind ClientKind) context.Context {
	return context.WithValue(ctx, contextKeyClientKind{}, kind)
}

// Kind returns the client classification, ClientUnknown when unset.
func Kind(ctx context.Context) ClientKind {
	if kind, ok := ctx.Value(contextKeyClientKind{}).(ClientKind); ok {
		return kind
	}
	return ClientUnknown
}
