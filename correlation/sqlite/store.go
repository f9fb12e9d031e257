// Package sqlite provides the durable correlation store. One row per event,
// upserted as each saga step completes, so a crashed client can resume.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pulsefest/registration/correlation"
	_ "modernc.org/sqlite"
)

var _ correlation.Store = (*Store)(nil)

// Store persists correlation records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS correlation_records (
  event_id        TEXT PRIMARY KEY,
  registration_id TEXT,
  order_id        TEXT,
  payment_id      TEXT,
  updated_at      INTEGER NOT NULL
);`

// Open opens the SQLite correlation store at path, creating the schema when
// missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Put(ctx context.Context, eventID uuid.UUID, update correlation.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var registrationID, orderID, paymentID sql.NullString
	if update.RegistrationID != nil {
		registrationID = sql.NullString{String: update.RegistrationID.String(), Valid: true}
	}
	if update.OrderID != nil {
		orderID = sql.NullString{String: *update.OrderID, Valid: true}
	}
	if update.PaymentID != nil {
		paymentID = sql.NullString{String: *update.PaymentID, Valid: true}
	}

	// COALESCE keeps previously stored fields when the update leaves them
	// unset, matching Record.Merge.
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO correlation_records (event_id, registration_id, order_id, payment_id, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(event_id) DO UPDATE SET
		   registration_id = COALESCE(excluded.registration_id, correlation_records.registration_id),
		   order_id        = COALESCE(excluded.order_id, correlation_records.order_id),
		   payment_id      = COALESCE(excluded.payment_id, correlation_records.payment_id),
		   updated_at      = excluded.updated_at`,
		eventID.String(),
		registrationID,
		orderID,
		paymentID,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put correlation record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, eventID uuid.UUID) (correlation.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return correlation.Record{}, false, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT registration_id, order_id, payment_id
		   FROM correlation_records
		  WHERE event_id = ?`,
		eventID.String(),
	)

	var registrationID, orderID, paymentID sql.NullString
	err := row.Scan(&registrationID, &orderID, &paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return correlation.Record{}, false, nil
		}
		return correlation.Record{}, false, fmt.Errorf("get correlation record: %w", err)
	}

	var record correlation.Record
	if registrationID.Valid {
		id, err := uuid.Parse(registrationID.String)
		if err != nil {
			return correlation.Record{}, false, fmt.Errorf("stored registration id is not a uuid: %w", err)
		}
		record.RegistrationID = &id
	}
	if orderID.Valid {
		record.OrderID = &orderID.String
	}
	if paymentID.Valid {
		record.PaymentID = &paymentID.String
	}

	return record, true, nil
}

func (s *Store) Clear(ctx context.Context, eventID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM correlation_records WHERE event_id = ?`,
		eventID.String(),
	)
	if err != nil {
		return fmt.Errorf("clear correlation record: %w", err)
	}
	return nil
}
