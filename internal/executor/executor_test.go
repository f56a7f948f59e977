package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepeneur4lyf/paycopilot/internal/deadline"
	"github.com/entrepeneur4lyf/paycopilot/internal/schema"
)

func newMock(t *testing.T, opts ...Option) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, opts...), mock
}

func TestApplyRowCap(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"appends limit", "SELECT * FROM transactions", "SELECT * FROM transactions LIMIT 1000;"},
		{"strips trailing semicolon", "SELECT * FROM transactions;  \n", "SELECT * FROM transactions LIMIT 1000;"},
		{"keeps existing limit", "SELECT * FROM transactions LIMIT 5", "SELECT * FROM transactions LIMIT 5"},
		{"lowercase limit", "select * from transactions limit 5", "select * from transactions limit 5"},
		{"count query", "SELECT COUNT(*) FROM transactions", "SELECT COUNT(*) FROM transactions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyRowCap(tt.query, 1000))
		})
	}
}

func TestExecuteAppendsLimit(t *testing.T) {
	e, mock := newMock(t)

	mock.ExpectQuery("SELECT * FROM transactions WHERE tx_status = $1 LIMIT 1000;").
		WithArgs("FAILED").
		WillReturnRows(sqlmock.NewRows([]string{"transaction_id", "amount"}).
			AddRow([]byte("tx-1"), 12.5).
			AddRow("tx-2", 7.0))

	rows, err := e.Execute(context.Background(), "SELECT * FROM transactions WHERE tx_status = $1;", "FAILED")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "tx-1", rows[0]["transaction_id"])
	assert.Equal(t, 12.5, rows[0]["amount"])
	assert.Equal(t, "tx-2", rows[1]["transaction_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteEnforcesRowCapWhileScanning(t *testing.T) {
	e, mock := newMock(t, WithMaxRows(2))

	mock.ExpectQuery("SELECT transaction_id FROM transactions LIMIT 50").
		WillReturnRows(sqlmock.NewRows([]string{"transaction_id"}).
			AddRow("a").AddRow("b").AddRow("c"))

	rows, err := e.Execute(context.Background(), "SELECT transaction_id FROM transactions LIMIT 50")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, e.MaxRows())
}

func TestExecuteEmptyResult(t *testing.T) {
	e, mock := newMock(t)

	mock.ExpectQuery("SELECT COUNT(*) FROM transactions WHERE 1 = 0").
		WillReturnRows(sqlmock.NewRows([]string{"count"}))

	rows, err := e.Execute(context.Background(), "SELECT COUNT(*) FROM transactions WHERE 1 = 0")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExecuteComputedColumnError(t *testing.T) {
	e, mock := newMock(t)

	mock.ExpectQuery("SELECT final_status FROM transactions LIMIT 1000;").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "final_status" does not exist`})

	_, err := e.Execute(context.Background(), "SELECT final_status FROM transactions")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrComputedColumn))

	var cc *ComputedColumnError
	require.ErrorAs(t, err, &cc)
	assert.Equal(t, "final_status", cc.Column)
}

func TestExecuteComputedColumnFromPlainMessage(t *testing.T) {
	e, mock := newMock(t)

	mock.ExpectQuery("SELECT t.success_rate FROM transactions t LIMIT 1000;").
		WillReturnError(errors.New(`pq: column t.success_rate does not exist`))

	_, err := e.Execute(context.Background(), "SELECT t.success_rate FROM transactions t")
	var cc *ComputedColumnError
	require.ErrorAs(t, err, &cc)
	assert.Equal(t, "success_rate", cc.Column)
}

func TestExecuteUnknownColumnSuggestsNearest(t *testing.T) {
	e, mock := newMock(t, WithSchema(schema.Default()))

	mock.ExpectQuery("SELECT tx_statuss FROM transactions LIMIT 1000;").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "tx_statuss" does not exist`})

	_, err := e.Execute(context.Background(), "SELECT tx_statuss FROM transactions")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrComputedColumn))

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "tx_status", ee.Suggestion)
	assert.Contains(t, ee.Error(), `did you mean "tx_status"`)
}

func TestExecuteGenericError(t *testing.T) {
	e, mock := newMock(t)

	syntax := &pq.Error{Code: "42601", Message: `syntax error at or near "FORM"`}
	mock.ExpectQuery("SELECT * FORM transactions LIMIT 1000;").WillReturnError(syntax)

	_, err := e.Execute(context.Background(), "SELECT * FORM transactions")
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, `syntax error at or near "FORM"`, ee.Message)
	assert.Empty(t, ee.Suggestion)

	var pqErr *pq.Error
	assert.ErrorAs(t, err, &pqErr)
}

func TestExecuteTimeout(t *testing.T) {
	e, mock := newMock(t, WithTimeout(20*time.Millisecond))

	mock.ExpectQuery("SELECT * FROM transactions LIMIT 1000;").
		WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"transaction_id"}).AddRow("late"))

	start := time.Now()
	_, err := e.Execute(context.Background(), "SELECT * FROM transactions")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.True(t, errors.Is(err, deadline.ErrTimeout))

	var te *deadline.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, TimeoutHint, te.Hint)
}

func TestMissingColumn(t *testing.T) {
	assert.Equal(t, "final_status", missingColumn(`column "final_status" does not exist`))
	assert.Equal(t, "count", missingColumn(`column t.count does not exist`))
	assert.Equal(t, "amount", missingColumn(`column "t"."amount" does not exist`))
	assert.Equal(t, "", missingColumn(`relation "foo" does not exist`))
}
