package txmanager

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrCheckFailed is returned by ExecuteChecked when the commit predicate
// rejects the produced value; the transaction is rolled back.
var ErrCheckFailed = errors.New("txmanager: commit check rejected result")

// Execute runs fn inside a managed transaction and returns its value. The
// (T, error) pair is the result callers inspect; on error T is the zero
// value unless documented otherwise.
func Execute[T any](ctx context.Context, m *Manager, opts *Options, fn func(ctx context.Context, tx *sqlx.Tx) (T, error)) (T, error) {
	var out T
	err := m.Run(ctx, opts, func(ctx context.Context, tx *sqlx.Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ExecuteChecked runs fn like Execute but commits only when check accepts
// the produced value. On rejection the transaction rolls back and the value
// is returned together with ErrCheckFailed so callers can report it.
func ExecuteChecked[T any](ctx context.Context, m *Manager, opts *Options, fn func(ctx context.Context, tx *sqlx.Tx) (T, error), check func(T) bool) (T, error) {
	var out T
	var produced bool
	err := m.Run(ctx, opts, func(ctx context.Context, tx *sqlx.Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		produced = true
		if !check(v) {
			return ErrCheckFailed
		}
		return nil
	})
	if err != nil {
		if produced && errors.Is(err, ErrCheckFailed) {
			return out, err
		}
		var zero T
		return zero, err
	}
	return out, nil
}

// RunChunked applies fn over items in fixed-size slices, all inside one
// managed transaction. A failing chunk aborts and rolls back the whole run.
func RunChunked[T any](ctx context.Context, m *Manager, opts *Options, items []T, size int, fn func(ctx context.Context, tx *sqlx.Tx, chunk []T) error) error {
	if size <= 0 {
		size = 100
	}
	return m.Run(ctx, opts, func(ctx context.Context, tx *sqlx.Tx) error {
		for start := 0; start < len(items); start += size {
			end := start + size
			if end > len(items) {
				end = len(items)
			}
			if err := fn(ctx, tx, items[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
}
