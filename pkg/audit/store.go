package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store writes and reads audit events. Writes are best effort from the
// caller's point of view; the recording path returns the error so callers
// can log it, but a failed audit write never fails the audited operation.
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts an audit event. A missing ID or Timestamp is filled in.
func (s *Store) Record(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (id, timestamp, event_type, status, actor_id, target_id, operation, permission, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Timestamp, string(e.Type), string(e.Status),
		e.ActorID, e.TargetID, e.Operation, e.Permission, e.RequestID, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	ActorID string
	Type    EventType
	Limit   int
}

// List returns audit events, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Event, error) {
	query := `
		SELECT id, timestamp, event_type, status, actor_id, target_id, operation, permission, request_id, detail
		FROM audit_events
		WHERE ($1 = '' OR actor_id = $1)
		  AND ($2 = '' OR event_type = $2)
		ORDER BY timestamp DESC
		LIMIT $3`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, query, f.ActorID, string(f.Type), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType, status string
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &status,
			&e.ActorID, &e.TargetID, &e.Operation, &e.Permission, &e.RequestID, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(eventType)
		e.Status = EventStatus(status)
		events = append(events, e)
	}
	return events, rows.Err()
}
