package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidAlertID is returned for alert ids that are not integers
var ErrInvalidAlertID = errors.New("invalid alert id")

// AlertStore persists failure analyses in the alerts table
type AlertStore struct {
	db      *sql.DB
	dialect Dialect
	schema  lazySchema
}

// NewAlertStore creates an alert store; the table is created on first use.
func NewAlertStore(db *sql.DB, dialect Dialect) *AlertStore {
	return &AlertStore{db: db, dialect: dialect}
}

func (s *AlertStore) ready(ctx context.Context) error {
	return s.schema.ensure(ctx, s.db, s.dialect.alertsDDL())
}

// Insert records an alert and returns its id
func (s *AlertStore) Insert(ctx context.Context, transactionID, summary string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	query := s.dialect.rebind(`INSERT INTO alerts (transaction_id, summary) VALUES (?, ?) RETURNING id`)
	var id int64
	if err := s.db.QueryRowContext(ctx, query, transactionID, summary).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}
	return id, nil
}

// List returns every alert, newest first
func (s *AlertStore) List(ctx context.Context) ([]Alert, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transaction_id, summary, is_seen, timestamp FROM alerts ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		var (
			a       Alert
			summary sql.NullString
			ts      dbTime
		)
		if err := rows.Scan(&a.ID, &a.TransactionID, &summary, &a.IsSeen, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Summary = summary.String
		a.Timestamp = ts.Time
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return alerts, nil
}

// MarkSeen flags an alert as seen. It reports false when no alert has the id.
func (s *AlertStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	alertID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, fmt.Errorf("%w %q", ErrInvalidAlertID, id)
	}
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	query := s.dialect.rebind(`UPDATE alerts SET is_seen = TRUE WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, alertID)
	if err != nil {
		return false, fmt.Errorf("failed to update alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update alert: %w", err)
	}
	return n > 0, nil
}
