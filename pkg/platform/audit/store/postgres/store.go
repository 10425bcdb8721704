// Package postgres implements audit.Store using the transactional outbox
// pattern. Events are written to the outbox table in the caller's
// transaction when one is in context, and relayed to Kafka by the outbox
// worker. The stream is the long-term source of truth; the local table is
// the delivery buffer plus a queryable recent window.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "veridoc/pkg/domain"
	audit "veridoc/pkg/platform/audit"
	txcontext "veridoc/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure relayed to the audit stream.
type outboxPayload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Purpose   string `json:"purpose,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Device    string `json:"device,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := audit.CategoryOf(event.Action)

	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Purpose:   event.Purpose,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Device:    event.Device,
	}
	if !event.Actor.IsNil() {
		payload.Actor = event.Actor.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_outbox (id, category, actor_id, subject, action, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var actorID any
	if !event.Actor.IsNil() {
		actorID = event.Actor.String()
	}
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID, string(category), actorID, event.Subject, event.Action, event.Timestamp, body)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListByActor returns events recorded for one actor, oldest first.
func (s *Store) ListByActor(ctx context.Context, actor id.UserID) ([]audit.Event, error) {
	query := `
		SELECT payload FROM audit_outbox
		WHERE actor_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, actor.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events by actor: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the most recent N events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT payload FROM audit_outbox
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var out []audit.Event
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		var p outboxPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("unmarshal audit payload: %w", err)
		}
		event := audit.Event{
			Subject:   p.Subject,
			Action:    p.Action,
			Purpose:   p.Purpose,
			Decision:  p.Decision,
			Reason:    p.Reason,
			RequestID: p.RequestID,
			Device:    p.Device,
		}
		if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			event.Timestamp = ts
		}
		if p.Actor != "" {
			if actor, err := id.ParseUserID(p.Actor); err == nil {
				event.Actor = actor
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
