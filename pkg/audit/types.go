// Package audit records authorization-relevant events: denied access,
// role assignments, and administrative mutations.
package audit

import "time"

// EventType categorizes an audit event
type EventType string

const (
	EventTypeAccessDenied EventType = "authz.access_denied"
	EventTypeRoleAssign   EventType = "authz.role_assign"
	EventTypeRoleRevoke   EventType = "authz.role_revoke"

	EventTypeUserCreate EventType = "admin.user_create"
	EventTypeUserDelete EventType = "admin.user_delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusDenied  EventStatus = "denied"
	EventStatusFailure EventStatus = "failure"
)

// Event is one audit record. ActorID is the authenticated caller, TargetID
// the user acted on (when any), and Permission the permission involved in an
// authorization decision.
type Event struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       EventType   `json:"type"`
	Status     EventStatus `json:"status"`
	ActorID    string      `json:"actor_id,omitempty"`
	TargetID   string      `json:"target_id,omitempty"`
	Operation  string      `json:"operation,omitempty"`
	Permission string      `json:"permission,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}
