// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.ContextBuilder (pkg/middleware/auth.go)
	// Required by: All guarded API operations
	// Type: *auth.AuthContext
	AuthKey Key = "auth_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware
	// Used by: Logger, request tracing
	// Type: string
	RequestIDKey Key = "request_id"
)

// WithAuth attaches an auth context value to the context.
// The value is stored as interface{} to avoid an import cycle with pkg/auth.
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// Auth retrieves the auth context value, or nil when absent. Callers type
// assert to *auth.AuthContext.
func Auth(ctx context.Context) interface{} {
	return ctx.Value(AuthKey)
}

// WithRequestID attaches a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from context, or "" when absent.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
