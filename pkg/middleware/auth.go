// Package middleware builds the per-request authorization context and
// provides common HTTP middleware.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// ContextBuilder resolves the caller's identity and effective permissions
// for every request. Any failure along the way yields an anonymous context
// rather than an error: a broken session or a failed lookup downgrades the
// request to unauthenticated, and the guards downstream reject it.
type ContextBuilder struct {
	sessions *auth.SessionVerifier
	resolver *rbac.Resolver
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewContextBuilder creates the auth context middleware. Metrics may be nil.
func NewContextBuilder(sessions *auth.SessionVerifier, resolver *rbac.Resolver, logger *observability.Logger, metrics *observability.Metrics) *ContextBuilder {
	return &ContextBuilder{
		sessions: sessions,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
	}
}

// Middleware attaches an AuthContext to every request. The context is always
// present; requests without a valid session carry the anonymous context.
func (b *ContextBuilder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := b.build(r)
		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (b *ContextBuilder) build(r *http.Request) *auth.AuthContext {
	session, err := b.sessions.GetSession(r.Context(), r)
	if err != nil {
		b.logger.WithError(err).Warn("session lookup failed, treating request as anonymous")
		b.recordSession("error")
		return &auth.AuthContext{}
	}
	if session == nil {
		b.recordSession("miss")
		return &auth.AuthContext{}
	}

	user, err := b.resolver.GetUserWithPermissions(r.Context(), session.UserID)
	if err != nil {
		b.logger.WithError(err).WithField("user_id", session.UserID).Warn("failed to resolve session user, treating request as anonymous")
		b.recordSession("error")
		return &auth.AuthContext{}
	}

	b.recordSession("hit")
	return &auth.AuthContext{User: user, Session: session}
}

func (b *ContextBuilder) recordSession(result string) {
	if b.metrics != nil {
		b.metrics.SessionLookupsTotal.WithLabelValues(result).Inc()
	}
}

// GetAuthContext returns the request's AuthContext. Requests that did not
// pass through the ContextBuilder get the anonymous context.
func GetAuthContext(r *http.Request) *auth.AuthContext {
	if authCtx, ok := contextkeys.Auth(r.Context()).(*auth.AuthContext); ok && authCtx != nil {
		return authCtx
	}
	return &auth.AuthContext{}
}

// RequestID assigns each request an id, exposed in the X-Request-ID response
// header and the request context. Incoming ids are preserved.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := contextkeys.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
