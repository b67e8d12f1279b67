package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is provided, the violated constraint must match it.
// SQLite messages are matched textually so repository tests behave like
// Postgres.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pg := pkgerrors.PostgresFields(err); pg != nil {
		return pg.Code == pgUniqueViolation && (constraintName == "" || pg.Constraint == constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsRetryableTxError reports whether Postgres aborted the transaction in a way
// that a fresh attempt can succeed.
func IsRetryableTxError(err error) bool {
	pg := pkgerrors.PostgresFields(err)
	return pg != nil && (pg.Code == pgSerializationFailure || pg.Code == pgDeadlockDetected)
}
