// Package kit carries cross-cutting request plumbing: context keys shared by
// the HTTP API, the stats bus, and MCP tools, plus the MCP tool registration
// helper. Nothing in here knows about the capture pipeline itself.
package kit

import "context"

type contextKey string

const (
	SessionIDKey contextKey = "kit_session_id"
	RequestIDKey contextKey = "kit_request_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp", "bus"
)

// Endpoint is a transport-agnostic service function. HTTP handlers, bus
// handlers, and MCP tools all decode into a typed request and call one.
type Endpoint func(ctx context.Context, req any) (any, error)

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}
