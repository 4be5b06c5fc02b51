package txmanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts bounds the retry loop.
	DefaultMaxAttempts = 3
	// DefaultBackoffBase is the delay before the first retry.
	DefaultBackoffBase = 50 * time.Millisecond
	// DefaultBackoffCap bounds the exponential backoff.
	DefaultBackoffCap = 1 * time.Second
)

// Options configure one unit of work. The zero value selects read-committed
// isolation, three attempts and the default backoff curve.
type Options struct {
	Isolation        sql.IsolationLevel
	ReadOnly         bool
	StatementTimeout time.Duration
	Timeout          time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
}

func (o *Options) normalized() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Isolation == sql.LevelDefault {
		out.Isolation = sql.LevelReadCommitted
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = DefaultBackoffBase
	}
	if out.BackoffCap <= 0 {
		out.BackoffCap = DefaultBackoffCap
	}
	return out
}

// Manager executes units of work against the store with isolation, timeout
// and bounded-retry policy. Failures never escape as panics; callers always
// observe an error value.
type Manager struct {
	db     *sqlx.DB
	logger *zap.Logger

	// OnRetry, when set, observes every retried attempt.
	OnRetry func(kind FailureKind, attempt int)
}

// NewManager wires a transaction manager around a database handle.
func NewManager(db *sqlx.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: db, logger: logger}
}

// Run executes fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. Transient failures are retried with exponential
// backoff up to MaxAttempts; the last error is returned when attempts are
// exhausted or the failure is permanent.
func (m *Manager) Run(ctx context.Context, opts *Options, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	o := opts.normalized()
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= o.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = m.attempt(ctx, o, fn)
		if lastErr == nil {
			return nil
		}

		kind := Classify(lastErr)
		if !kind.Retryable() || attempt == o.MaxAttempts {
			return lastErr
		}
		if m.OnRetry != nil {
			m.OnRetry(kind, attempt)
		}
		m.logger.Warn("transaction attempt failed",
			zap.Int("attempt", attempt),
			zap.String("failure", kind.String()),
			zap.Error(lastErr))

		select {
		case <-time.After(backoffDelay(o, attempt)):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

func (m *Manager) attempt(ctx context.Context, o Options, fn func(ctx context.Context, tx *sqlx.Tx) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: o.Isolation, ReadOnly: o.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("unit of work panicked: %v", p)
		}
	}()

	if o.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", o.StatementTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set statement timeout: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func backoffDelay(o Options, attempt int) time.Duration {
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	delay := o.BackoffBase << uint(shift)
	if delay > o.BackoffCap || delay <= 0 {
		delay = o.BackoffCap
	}
	return delay
}
