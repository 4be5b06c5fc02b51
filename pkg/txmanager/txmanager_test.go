package txmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManagerMock(t *testing.T) (*Manager, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewManager(sqlx.NewDb(db, "sqlmock"), zap.NewNop()), mock, func() { db.Close() }
}

func fastOptions() *Options {
	return &Options{BackoffBase: time.Millisecond, BackoffCap: time.Millisecond}
}

func TestManagerRunCommits(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := m.Run(context.Background(), nil, func(ctx context.Context, tx *sqlx.Tx) error {
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerRunRollsBackOnError(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := m.Run(context.Background(), fastOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerRunRetriesTransientFailure(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	var retried []FailureKind
	m.OnRetry = func(kind FailureKind, attempt int) { retried = append(retried, kind) }

	attempts := 0
	err := m.Run(context.Background(), fastOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
		attempts++
		if attempts == 1 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []FailureKind{FailureSerialization}, retried)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerRunStopsOnPermanentFailure(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := m.Run(context.Background(), fastOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
		attempts++
		return &pq.Error{Code: "23505"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerRunExhaustsAttempts(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	opts := fastOptions()
	opts.MaxAttempts = 2
	attempts := 0
	err := m.Run(context.Background(), opts, func(ctx context.Context, tx *sqlx.Tx) error {
		attempts++
		return &pq.Error{Code: "40P01"}
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, FailureDeadlock, Classify(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerRunAppliesStatementTimeout(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("^SET LOCAL statement_timeout = 5000$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	opts := fastOptions()
	opts.StatementTimeout = 5 * time.Second
	err := m.Run(context.Background(), opts, func(ctx context.Context, tx *sqlx.Tx) error {
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerRunRecoversPanic(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := m.Run(context.Background(), fastOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteReturnsValue(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	got, err := Execute(context.Background(), m, nil, func(ctx context.Context, tx *sqlx.Tx) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteCheckedRollsBackOnRejectedResult(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	got, err := ExecuteChecked(context.Background(), m, fastOptions(),
		func(ctx context.Context, tx *sqlx.Tx) (int, error) { return 7, nil },
		func(v int) bool { return v > 10 })
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.Equal(t, 7, got, "rejected value is still reported")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteCheckedCommitsOnAcceptedResult(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	got, err := ExecuteChecked(context.Background(), m, nil,
		func(ctx context.Context, tx *sqlx.Tx) (int, error) { return 42, nil },
		func(v int) bool { return v > 10 })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunChunkedSlicesInput(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	var chunks [][]int
	err := RunChunked(context.Background(), m, nil, []int{1, 2, 3, 4, 5}, 2,
		func(ctx context.Context, tx *sqlx.Tx, chunk []int) error {
			copied := append([]int(nil), chunk...)
			chunks = append(chunks, copied)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunChunkedAbortsOnChunkFailure(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	boom := errors.New("chunk failed")
	err := RunChunked(context.Background(), m, fastOptions(), []int{1, 2, 3, 4}, 2,
		func(ctx context.Context, tx *sqlx.Tx, chunk []int) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSavepointKeepsOuterTransactionUsable(t *testing.T) {
	m, mock, cleanup := newManagerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("^SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("^SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("^RELEASE SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	rowErr := errors.New("row rejected")
	err := m.Run(context.Background(), nil, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := WithSavepoint(ctx, tx, func(ctx context.Context, tx *sqlx.Tx) error {
			return rowErr
		}); !errors.Is(err, rowErr) {
			return errors.New("expected row error from savepoint")
		}
		return WithSavepoint(ctx, tx, func(ctx context.Context, tx *sqlx.Tx) error {
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
