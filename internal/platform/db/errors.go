package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// PostgreSQL error codes the domain cares about.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MapError translates driver errors into the shared error taxonomy. Errors that
// already carry a domain kind, or are not PostgreSQL errors, are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return &shared.ConflictError{Entity: pgErr.TableName, Detail: "duplicate " + constraintOrDetail(pgErr)}
	case codeSerializationFailure, codeDeadlockDetected:
		return &shared.ConflictError{Entity: pgErr.TableName, Detail: "concurrent update, retry the operation"}
	case codeForeignKeyViolation:
		return &shared.ReferentialError{Entity: constraintOrDetail(pgErr)}
	case codeCheckViolation:
		return &shared.ValidationError{Field: pgErr.ColumnName, Reason: "violates " + constraintOrDetail(pgErr)}
	}
	return err
}

func constraintOrDetail(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return pgErr.Detail
}
