package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ErrShutdown is attached to unavailability errors raised after Shutdown.
var ErrShutdown = errors.New("database manager is shut down")

// UnavailableError is returned when no session can be handed out.
type UnavailableError struct {
	State State
	Cause error
}

func (e *UnavailableError) Error() string {
	return e.State.Message()
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Constraint kinds reported by ConstraintViolation.
const (
	ConstraintUnique     = "unique"
	ConstraintForeignKey = "foreign_key"
	ConstraintCheck      = "check"
	ConstraintNotNull    = "not_null"
	ConstraintOther      = "constraint"
)

// IsConnectionError reports whether err means the connection itself is
// unusable, as opposed to a failure of the statement that was running.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P01-03: server shutting down or restarting.
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "sql: database is closed")
}

// ConstraintViolation reports whether err is an integrity constraint
// violation and, if so, which kind.
func ConstraintViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ConstraintUnique, true
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return ConstraintForeignKey, true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ConstraintUnique, true
		case "23503":
			return ConstraintForeignKey, true
		case "23514":
			return ConstraintCheck, true
		case "23502":
			return ConstraintNotNull, true
		}
		if strings.HasPrefix(pgErr.Code, "23") {
			return ConstraintOther, true
		}
		return "", false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code != sqlite3.ErrConstraint {
			return "", false
		}
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ConstraintUnique, true
		case sqlite3.ErrConstraintForeignKey:
			return ConstraintForeignKey, true
		case sqlite3.ErrConstraintCheck:
			return ConstraintCheck, true
		case sqlite3.ErrConstraintNotNull:
			return ConstraintNotNull, true
		}
		return ConstraintOther, true
	}
	return "", false
}
