package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"formvault/pkg/platform/sentinel"
)

// Translate wraps err with op and the sentinel describing it, keeping the
// driver error in the chain. Stores built on this pool return its result so
// callers can branch on sentinels instead of SQLSTATEs.
func Translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if s := Classify(err); s != nil {
		return fmt.Errorf("%s: %w: %w", op, s, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Classify returns the sentinel for a driver or pool error, or nil.
func Classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sentinel.ErrBusy
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return sentinel.ErrUnavailable
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return sentinel.ErrConflict
		case "23503", "23502", "23514": // foreign_key, not_null, check
			return sentinel.ErrInvalidState
		case "55P03", "40001", "40P01", "57014": // lock_not_available, serialization, deadlock, query_canceled
			return sentinel.ErrBusy
		case "57P01", "57P02", "57P03", "53300": // shutdown, too_many_connections
			return sentinel.ErrUnavailable
		}
		if pqErr.Code.Class() == "08" {
			return sentinel.ErrUnavailable
		}
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return sentinel.ErrUnavailable
	}
	return nil
}
