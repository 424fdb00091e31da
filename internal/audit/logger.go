// Package audit implements the operational audit trail: order
// created/rejected/cancelled events, independent of the append-only
// ExecutionRecord ledger in internal/store. Grounded on the teacher's
// internal/audit/logger.go, trimmed of the trade/strategy/login event
// kinds that have no SPEC_FULL.md component to report them.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// EventType is the kind of operational event recorded.
type EventType string

const (
	EventTypeOrderCreated   EventType = "order_created"
	EventTypeOrderRejected  EventType = "order_rejected"
	EventTypeOrderCancelled EventType = "order_cancelled"
)

// Event is one audit row.
type Event struct {
	ID        string                 `json:"id" db:"id"`
	EventType EventType              `json:"event_type" db:"event_type"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	OwnerID   string                 `json:"owner_id,omitempty" db:"owner_id"`
	Resource  string                 `json:"resource,omitempty" db:"resource"`
	Status    string                 `json:"status" db:"status"`
	Details   map[string]interface{} `json:"details,omitempty" db:"details"`
	ErrorMsg  string                 `json:"error_msg,omitempty" db:"error_msg"`
}

// Logger writes operational audit events to a TimescaleDB hypertable.
type Logger struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Logger {
	return &Logger{pool: pool, logger: logger}
}

// InitSchema creates the audit_logs hypertable with a 2-year retention
// policy, matching the teacher's retention window.
func (a *Logger) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			owner_id TEXT,
			resource TEXT,
			status TEXT NOT NULL,
			details JSONB,
			error_msg TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs (timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_logs (owner_id);
		CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs (resource);

		SELECT create_hypertable('audit_logs', 'timestamp',
			if_not_exists => TRUE,
			chunk_time_interval => INTERVAL '1 month'
		);

		SELECT add_retention_policy('audit_logs', INTERVAL '2 years', if_not_exists => TRUE);
	`

	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return err
	}

	a.logger.Info().Msg("audit log schema initialized")
	return nil
}

// LogEvent appends one audit event.
func (a *Logger) LogEvent(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Status == "" {
		event.Status = "success"
	}

	var detailsJSON []byte
	var err error
	if event.Details != nil {
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to marshal audit event details")
			detailsJSON = []byte("{}")
		}
	}

	query := `
		INSERT INTO audit_logs (id, event_type, timestamp, owner_id, resource, status, details, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = a.pool.Exec(ctx, query,
		event.ID, event.EventType, event.Timestamp, nullString(event.OwnerID),
		nullString(event.Resource), event.Status, detailsJSON, nullString(event.ErrorMsg),
	)
	if err != nil {
		a.logger.Error().Err(err).Str("event_type", string(event.EventType)).Msg("failed to log audit event")
		return err
	}
	return nil
}

// LogOrderCreated records a successful order submission.
func (a *Logger) LogOrderCreated(ctx context.Context, orderID, ownerID, symbol, side, kind string) {
	a.LogEvent(ctx, &Event{
		EventType: EventTypeOrderCreated,
		OwnerID:   ownerID,
		Resource:  "order:" + orderID,
		Status:    "success",
		Details:   map[string]interface{}{"symbol": symbol, "side": side, "kind": kind},
	})
}

// LogOrderRejected records a validation failure at submit time.
func (a *Logger) LogOrderRejected(ctx context.Context, ownerID, symbol, reason string) {
	a.LogEvent(ctx, &Event{
		EventType: EventTypeOrderRejected,
		OwnerID:   ownerID,
		Resource:  "symbol:" + symbol,
		Status:    "failure",
		ErrorMsg:  reason,
	})
}

// LogOrderCancelled records a successful cancel.
func (a *Logger) LogOrderCancelled(ctx context.Context, orderID, ownerID string) {
	a.LogEvent(ctx, &Event{
		EventType: EventTypeOrderCancelled,
		OwnerID:   ownerID,
		Resource:  "order:" + orderID,
		Status:    "success",
	})
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
