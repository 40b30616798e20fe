package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "registrar/pkg/domain"
	audit "registrar/pkg/platform/audit"
	txcontext "registrar/pkg/platform/tx"
)

// Schema creates the outbox and materialized audit tables. Integration
// tests bootstrap a database with it.
const Schema = `
CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	published_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS outbox_unpublished
	ON outbox (created_at) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_events (
	id             UUID PRIMARY KEY,
	category       TEXT NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL,
	request_id     UUID,
	domain_name    TEXT NOT NULL DEFAULT '',
	action         TEXT NOT NULL,
	actor_id       TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_request ON audit_events (request_id);
CREATE INDEX IF NOT EXISTS audit_events_timestamp ON audit_events (timestamp DESC);
`

// Store implements audit.Store using the transactional outbox pattern:
// Append writes to the outbox inside the caller's transaction when one is
// on the context, and the outbox worker publishes to Kafka. The
// audit_events table is the queryable materialization.
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

// outboxPayload is the JSON published to Kafka. Field names match
// audit.Event for deserialization downstream.
type outboxPayload struct {
	ID            string `json:"ID"`
	Category      string `json:"Category"`
	Timestamp     string `json:"Timestamp"`
	RequestID     string `json:"RequestID,omitempty"`
	DomainName    string `json:"DomainName,omitempty"`
	Action        string `json:"Action"`
	ActorID       string `json:"ActorID,omitempty"`
	Outcome       string `json:"Outcome,omitempty"`
	Reason        string `json:"Reason,omitempty"`
	CorrelationID string `json:"CorrelationID,omitempty"`
}

// Append writes one event to the outbox and the materialized table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:            eventID.String(),
		Category:      string(category),
		Timestamp:     event.Timestamp.Format(time.RFC3339Nano),
		DomainName:    event.DomainName,
		Action:        event.Action,
		ActorID:       event.ActorID,
		Outcome:       event.Outcome,
		Reason:        event.Reason,
		CorrelationID: event.CorrelationID,
	}
	if !event.RequestID.IsNil() {
		payload.RequestID = event.RequestID.String()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType, aggregateID := "audit", eventID.String()
	if !event.RequestID.IsNil() {
		aggregateType, aggregateID = "request", event.RequestID.String()
	} else if event.DomainName != "" {
		aggregateType, aggregateID = "domain", event.DomainName
	}

	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), aggregateType, aggregateID, event.Action, payloadBytes, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	var requestID *uuid.UUID
	if !event.RequestID.IsNil() {
		rid := uuid.UUID(event.RequestID)
		requestID = &rid
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, timestamp, request_id, domain_name,
			action, actor_id, outcome, reason, correlation_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, eventID, string(category), event.Timestamp, requestID, event.DomainName,
		event.Action, event.ActorID, event.Outcome, event.Reason, event.CorrelationID)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const eventColumns = `
	category, timestamp, request_id, domain_name,
	action, actor_id, outcome, reason, correlation_id
`

func (s *Store) ListByRequest(ctx context.Context, requestID id.RequestID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		WHERE request_id = $1
		ORDER BY timestamp
	`, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event     audit.Event
			category  string
			requestID *uuid.UUID
		)
		err := rows.Scan(
			&category, &event.Timestamp, &requestID, &event.DomainName,
			&event.Action, &event.ActorID, &event.Outcome, &event.Reason,
			&event.CorrelationID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if requestID != nil {
			event.RequestID = id.RequestID(*requestID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
