package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

// Postgres SQLSTATE codes the ledger reacts to.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateCheckViolation       = "23514"
	sqlStateNotNullViolation     = "23502"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateQueryCanceled        = "57014"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateAdminShutdown        = "57P01"
	sqlStateCannotConnectNow     = "57P03"
	sqlStateTooManyConnections   = "53300"
	sqlStateConnectionClass      = "08"
)

var transientMessages = []string{
	"could not serialize access",
	"deadlock detected",
	"database is locked",
	"database table is locked",
	"server closed the connection",
	"conn closed",
	"too many connections",
}

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation. When constraintName is provided the constraint must match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint, ok := sqlState(err); ok && code == sqlStateUniqueViolation {
		return constraintName == "" || constraint == constraintName
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsTransient reports whether err matches a known transient-fault signature:
// connection loss, timeouts, serialization conflicts and lock contention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if code, _, ok := sqlState(err); ok {
		switch {
		case strings.HasPrefix(code, sqlStateConnectionClass),
			code == sqlStateSerializationFailure,
			code == sqlStateDeadlockDetected,
			code == sqlStateQueryCanceled,
			code == sqlStateLockNotAvailable,
			code == sqlStateAdminShutdown,
			code == sqlStateCannotConnectNow,
			code == sqlStateTooManyConnections:
			return true
		}
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || resilience.IsNetworkError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range transientMessages {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// Translate maps a raw persistence error onto the domain taxonomy. Typed errors
// and caller cancellation pass through untouched.
func Translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op)
	}
	if code, _, ok := sqlState(err); ok {
		switch code {
		case sqlStateUniqueViolation:
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, op)
		case sqlStateForeignKeyViolation:
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op)
		case sqlStateCheckViolation, sqlStateNotNullViolation:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, op)
		}
	} else {
		msg := err.Error()
		switch {
		case IsUniqueViolation(err, ""):
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, op)
		case strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op)
		case strings.Contains(msg, "CHECK constraint failed"), strings.Contains(msg, "NOT NULL constraint failed"):
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, op)
		}
	}
	if IsTransient(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTransient, err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, op)
}

func sqlState(err error) (code, constraint string, ok bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}
