package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres for durable audit storage.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// PostgresSink appends events to an audit_events table, used instead of the
// spreadsheet collector when DATABASE_URL is configured.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the audit table if it does not exist. The cart
// columns hold JSON arrays so a row mirrors one spreadsheet line.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			participant_id TEXT NOT NULL,
			condition TEXT NOT NULL,
			action TEXT NOT NULL,
			total_price INTEGER NOT NULL,
			product_names JSONB NOT NULL,
			quantities JSONB NOT NULL,
			subtotals JSONB NOT NULL,
			colors JSONB NOT NULL,
			sizes JSONB NOT NULL,
			page TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Append(ctx context.Context, event Event) error {
	names, err := json.Marshal(orEmptyStrings(event.ProductNames))
	if err != nil {
		return fmt.Errorf("marshal product names: %w", err)
	}
	quantities, err := json.Marshal(orEmptyInts(event.Quantities))
	if err != nil {
		return fmt.Errorf("marshal quantities: %w", err)
	}
	subtotals, err := json.Marshal(orEmptyInts(event.Subtotals))
	if err != nil {
		return fmt.Errorf("marshal subtotals: %w", err)
	}
	colors, err := json.Marshal(orEmptyStrings(event.Colors))
	if err != nil {
		return fmt.Errorf("marshal colors: %w", err)
	}
	sizes, err := json.Marshal(orEmptyStrings(event.Sizes))
	if err != nil {
		return fmt.Errorf("marshal sizes: %w", err)
	}

	const insert = `
		INSERT INTO audit_events
			(ts, participant_id, condition, action, total_price,
			 product_names, quantities, subtotals, colors, sizes, page)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := s.db.ExecContext(ctx, insert,
		event.Timestamp, event.ParticipantID, event.Condition, event.Action,
		event.TotalPrice, names, quantities, subtotals, colors, sizes, event.Page,
	); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func orEmptyStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
