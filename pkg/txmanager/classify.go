package txmanager

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

// FailureKind classifies a unit-of-work failure for retry decisions.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureSerialization
	FailureDeadlock
	FailureConnection
	FailureTimeout
	FailureCanceled
)

// String returns the kind name for logging.
func (k FailureKind) String() string {
	switch k {
	case FailureSerialization:
		return "serialization"
	case FailureDeadlock:
		return "deadlock"
	case FailureConnection:
		return "connection"
	case FailureTimeout:
		return "timeout"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind is worth another attempt.
// Cancellation is final: the caller's deadline already passed.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureSerialization, FailureDeadlock, FailureConnection, FailureTimeout:
		return true
	}
	return false
}

// Classify maps an error onto its failure kind using structured driver
// signals only. Free-text error messages are never inspected.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureCanceled
	}
	if errors.Is(err, driver.ErrBadConn) {
		return FailureConnection
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "40001":
			return FailureSerialization
		case pqErr.Code == "40P01":
			return FailureDeadlock
		case pqErr.Code.Class() == "08":
			return FailureConnection
		case pqErr.Code == "57014":
			return FailureTimeout
		}
		return FailureUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureUnknown
}
