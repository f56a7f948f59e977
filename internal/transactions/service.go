// Package transactions answers fixed reporting queries over the events table.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
)

const (
	DefaultUserLimit = 10
	MaxUserLimit     = 100
)

var (
	ErrNoData       = errors.New("no transaction data found")
	ErrInvalidLimit = fmt.Errorf("limit must be between 1 and %d", MaxUserLimit)
	ErrInvalidUser  = errors.New("user id must not be empty")
)

// Executor runs parameterized SQL.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) ([]executor.Row, error)
}

// Summary aggregates the latest event of every transaction.
type Summary struct {
	TotalTransactions      int64   `json:"total_transactions"`
	SuccessfulTransactions int64   `json:"successful_transactions"`
	FailedTransactions     int64   `json:"failed_transactions"`
	SuccessRate            float64 `json:"success_rate"`
}

// Service runs the reporting queries.
type Service struct {
	exec Executor
}

func NewService(exec Executor) *Service {
	return &Service{exec: exec}
}

const summaryQuery = `WITH latest_events AS (
    SELECT transaction_id, event_type,
           ROW_NUMBER() OVER (PARTITION BY transaction_id ORDER BY timestamp::timestamptz DESC) AS rn
    FROM transactions
),
transaction_status AS (
    SELECT transaction_id,
           CASE WHEN event_type = 'SettlementConfirmed' THEN 'SUCCESSFUL' ELSE 'FAILED' END AS final_status
    FROM latest_events
    WHERE rn = 1
)
SELECT
    COUNT(*) AS total_transactions,
    COALESCE(SUM(CASE WHEN final_status = 'SUCCESSFUL' THEN 1 ELSE 0 END), 0) AS successful_transactions,
    COALESCE(SUM(CASE WHEN final_status = 'FAILED' THEN 1 ELSE 0 END), 0) AS failed_transactions,
    COALESCE(ROUND(SUM(CASE WHEN final_status = 'SUCCESSFUL' THEN 1 ELSE 0 END)::numeric / NULLIF(COUNT(*), 0) * 100, 2), 0) AS success_rate
FROM transaction_status;`

// Summary returns totals over the latest event per transaction. A
// transaction succeeded when its latest event is SettlementConfirmed.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	rows, err := s.exec.Execute(ctx, summaryQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction summary: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	row := rows[0]
	sum := &Summary{}
	if sum.TotalTransactions, err = toInt(row["total_transactions"]); err != nil {
		return nil, err
	}
	if sum.SuccessfulTransactions, err = toInt(row["successful_transactions"]); err != nil {
		return nil, err
	}
	if sum.FailedTransactions, err = toInt(row["failed_transactions"]); err != nil {
		return nil, err
	}
	rate, err := toFloat(row["success_rate"])
	if err != nil {
		return nil, err
	}
	sum.SuccessRate = math.Round(rate*100) / 100
	return sum, nil
}

const userTransactionsQuery = `WITH latest_events AS (
    SELECT *,
           ROW_NUMBER() OVER (PARTITION BY transaction_id ORDER BY timestamp::timestamptz DESC) AS rn
    FROM transactions
    WHERE user_id = $1
)
SELECT
    transaction_id,
    event_type,
    tx_status,
    fiat_amount,
    fiat_currency,
    crypto_amount,
    crypto_token,
    timestamp,
    CASE WHEN event_type = 'SettlementConfirmed' THEN 'SUCCESSFUL' ELSE 'FAILED' END AS final_status
FROM latest_events
WHERE rn = 1
ORDER BY timestamp::timestamptz DESC
LIMIT $2;`

// UserTransactions lists a user's transactions by latest event, newest
// first. A zero limit means DefaultUserLimit.
func (s *Service) UserTransactions(ctx context.Context, userID string, limit int) ([]executor.Row, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}
	if limit == 0 {
		limit = DefaultUserLimit
	}
	if limit < 1 || limit > MaxUserLimit {
		return nil, ErrInvalidLimit
	}
	rows, err := s.exec.Execute(ctx, userTransactionsQuery, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for user %s: %w", userID, err)
	}
	return rows, nil
}

const transactionEventsQuery = `SELECT
    affected_service,
    alert_description,
    event_index,
    event_type,
    provider,
    from_network,
    to_network,
    error_message,
    "timestamp"
FROM transactions
WHERE transaction_id = $1
ORDER BY "timestamp"::timestamptz ASC`

// TransactionEvents returns the event log of one transaction in time order.
func (s *Service) TransactionEvents(ctx context.Context, transactionID string) ([]executor.Row, error) {
	rows, err := s.exec.Execute(ctx, transactionEventsQuery, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for transaction %s: %w", transactionID, err)
	}
	return rows, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unexpected integer value %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("unexpected numeric value %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
