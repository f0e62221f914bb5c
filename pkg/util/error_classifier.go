package util

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsUnavailableError reports whether err means the backing service could not be reached
// (network failure, refused connection, timeout, postgres connection exceptions), as opposed
// to a query or data problem.
// Returns: (isUnavailable, errorType)
func IsUnavailableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true, "connection_refused"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, 57P0x: server shutting down
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0") {
			return true, "db_connection_error"
		}
		return false, "db_error_" + pgErr.Code
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if pgconn.SafeToRetry(err) {
		return true, "db_connection_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "server selection") || strings.Contains(errStr, "connection refused") {
		return true, "connection_error"
	}

	return false, "unknown_error"
}
