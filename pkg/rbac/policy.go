package rbac

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// OperationPolicy declares the authorization requirement for one API
// operation. An empty Permission means the operation only requires an
// authenticated identity. AllowOwner lets the owner of the target resource
// through without the permission.
type OperationPolicy struct {
	Permission string `yaml:"permission"`
	AllowOwner bool   `yaml:"allow_owner"`
}

type policyFile struct {
	Operations map[string]OperationPolicy `yaml:"operations"`
}

// DefaultOperationPolicies is the built-in policy table. A policy file can
// override individual entries without restating the rest.
func DefaultOperationPolicies() map[string]OperationPolicy {
	return map[string]OperationPolicy{
		"users.list":   {Permission: PermissionName(ResourceUsers, ActionRead)},
		"users.get":    {Permission: PermissionName(ResourceUsers, ActionRead), AllowOwner: true},
		"users.create": {Permission: PermissionName(ResourceUsers, ActionWrite)},
		"users.update": {Permission: PermissionName(ResourceUsers, ActionWrite), AllowOwner: true},
		"users.delete": {Permission: PermissionName(ResourceUsers, ActionDelete)},
		"posts.list":   {Permission: PermissionName(ResourcePosts, ActionRead)},
		"posts.get":    {Permission: PermissionName(ResourcePosts, ActionRead), AllowOwner: true},
		"posts.create": {Permission: PermissionName(ResourcePosts, ActionWrite)},
		"posts.update": {Permission: PermissionName(ResourcePosts, ActionWrite), AllowOwner: true},
		"posts.delete": {Permission: PermissionName(ResourcePosts, ActionDelete), AllowOwner: true},
		"me":           {Permission: ""},

		"rbac.roles.list":            {Permission: PermissionName(ResourceUsers, ActionRead)},
		"rbac.permissions.list":      {Permission: PermissionName(ResourceUsers, ActionRead)},
		"rbac.users.roles.get":       {Permission: PermissionName(ResourceUsers, ActionRead)},
		"rbac.users.permissions.get": {Permission: PermissionName(ResourceUsers, ActionRead), AllowOwner: true},
		"rbac.users.roles.assign":    {Permission: PermissionName(ResourceUsers, ActionWrite)},
		"rbac.users.roles.revoke":    {Permission: PermissionName(ResourceUsers, ActionWrite)},
		"rbac.audit.list":            {Permission: PermissionName(ResourceUsers, ActionWrite)},
	}
}

// PolicyTable maps operation names to their authorization requirements and
// evaluates them against the guard. The table can be overridden from a YAML
// file and hot-reloaded while the server runs.
type PolicyTable struct {
	mu      sync.RWMutex
	ops     map[string]OperationPolicy
	guard   *Guard
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewPolicyTable creates a policy table seeded with the default operation
// policies. Metrics may be nil.
func NewPolicyTable(guard *Guard, logger *observability.Logger, metrics *observability.Metrics) *PolicyTable {
	return &PolicyTable{
		ops:     DefaultOperationPolicies(),
		guard:   guard,
		logger:  logger,
		metrics: metrics,
	}
}

// Lookup returns the policy for an operation and whether one is declared.
func (t *PolicyTable) Lookup(operation string) (OperationPolicy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.ops[operation]
	return p, ok
}

// Authorize evaluates the policy for an operation. ownerID identifies the
// owner of the target resource and may be empty when the operation has no
// single owned target. Undeclared operations are denied outright so a missing
// table entry fails closed.
func (t *PolicyTable) Authorize(ctx context.Context, operation, userID, ownerID string) error {
	if userID == "" {
		t.record(operation, observability.DecisionUnauthenticated)
		return ErrUnauthenticated
	}

	policy, ok := t.Lookup(operation)
	if !ok {
		t.logger.WithField("operation", operation).Error("no policy declared for operation, denying")
		t.record(operation, observability.DecisionDenied)
		return &PermissionDeniedError{Permission: operation}
	}

	if policy.Permission == "" {
		t.record(operation, observability.DecisionAllowed)
		return nil
	}

	if policy.AllowOwner && ownerID != "" && ownerID == userID {
		t.record(operation, observability.DecisionOwnerOverride)
		return nil
	}

	if err := t.guard.RequirePermission(ctx, userID, policy.Permission); err != nil {
		t.record(operation, observability.DecisionDenied)
		return err
	}
	t.record(operation, observability.DecisionAllowed)
	return nil
}

func (t *PolicyTable) record(operation, outcome string) {
	if t.metrics != nil {
		t.metrics.AuthzChecksTotal.WithLabelValues(operation, outcome).Inc()
	}
}

// LoadFile merges operation policies from a YAML file over the current
// table. Entries not named in the file keep their current policy.
func (t *PolicyTable) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for op, policy := range file.Operations {
		t.ops[op] = policy
	}

	t.logger.WithFields(map[string]interface{}{
		"path":       path,
		"operations": len(file.Operations),
	}).Info("loaded operation policy file")
	return nil
}

// Watch reloads the policy file whenever it changes, until the context is
// cancelled. A reload failure keeps the previous table in effect.
func (t *PolicyTable) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	// Watch the directory rather than the file: editors replace files on
	// save, which drops file-level watches.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if err := t.LoadFile(path); err != nil {
					t.logger.WithError(err).Warn("policy reload failed, keeping previous policies")
					if t.metrics != nil {
						t.metrics.PolicyReloadsTotal.WithLabelValues("failure").Inc()
					}
					continue
				}
				if t.metrics != nil {
					t.metrics.PolicyReloadsTotal.WithLabelValues("success").Inc()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				t.logger.WithError(err).Warn("policy watcher error")
			}
		}
	}()

	return nil
}
