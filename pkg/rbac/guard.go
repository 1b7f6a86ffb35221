package rbac

import (
	"context"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Guard enforces permission requirements for operations. It distinguishes
// between a missing identity and a present identity lacking the permission,
// so callers can map the two to different failures.
type Guard struct {
	resolver *Resolver
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewGuard creates a guard backed by the given resolver. Metrics may be nil.
func NewGuard(resolver *Resolver, logger *observability.Logger, metrics *observability.Metrics) *Guard {
	return &Guard{resolver: resolver, logger: logger, metrics: metrics}
}

// RequirePermission returns nil when a user holds the named permission.
// An empty userID means no authenticated identity and returns
// ErrUnauthenticated. An authenticated user without the permission returns a
// *PermissionDeniedError naming the missing permission.
func (g *Guard) RequirePermission(ctx context.Context, userID, permission string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if !g.resolver.HasPermission(ctx, userID, permission) {
		g.logger.WithFields(map[string]interface{}{
			"user_id":    userID,
			"permission": permission,
		}).Debug("permission denied")
		return &PermissionDeniedError{Permission: permission}
	}
	return nil
}
