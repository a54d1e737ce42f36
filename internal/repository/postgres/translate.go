package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vehix/vehix/internal/domain"
)

// SQLSTATE codes the translator recognizes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeStringTooLong       = "22001"
	codeInvalidTextRep      = "22P02"
	codeUndefinedTable      = "42P01"
	codeUndefinedColumn     = "42703"
)

// Overrides specialize translation for one call site. The zero value
// applies the fixed mapping table unchanged.
//
// KindOverrides deliberately narrows ambiguous codes for a specific
// call site only. The one narrowing in use maps 22P02 (malformed uuid
// in a WHERE id = $1 clause) to NOT_FOUND on id-scoped operations; it
// is not a general rule because the same code on any other operation
// means bad input, not a missing row.
type Overrides struct {
	// FieldMessages replaces the generic conflict message when the
	// violated unique constraint resolves to exactly one of these fields.
	FieldMessages map[string]string

	// KindOverrides re-maps a SQLSTATE code to a different kind.
	KindOverrides map[string]domain.ErrorKind
}

// constraintFields resolves a violated constraint to the business
// fields it covers. Constraint names come from the migrations.
var constraintFields = map[string][]string{
	"vehicles_placa_key":   {"placa"},
	"vehicles_chassi_key":  {"chassi"},
	"vehicles_renavam_key": {"renavam"},
	"vehicles_pkey":        {"id"},
}

// translateError maps a raw storage failure to exactly one domain
// error. It is a pure mapping: it never fails and has no side effects.
// Raw SQLSTATE codes never leak past this function except inside
// Details["code"].
func translateError(err error, ov Overrides) *domain.Error {
	if errors.Is(err, pgx.ErrNoRows) {
		// Missing row on a mutation.
		return domain.NotFound("vehicle not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		details := pgDetails(pgErr)

		if kind, ok := ov.KindOverrides[pgErr.Code]; ok {
			return domain.NewErrorWithDetails(kind, messageForKind(kind), details)
		}

		switch pgErr.Code {
		case codeUniqueViolation:
			return conflictError(pgErr, ov, details)
		case codeForeignKeyViolation:
			return domain.NewErrorWithDetails(domain.KindIntegrityViolation,
				"referential integrity violation", details)
		case codeNotNullViolation:
			return domain.NewErrorWithDetails(domain.KindInvalidInput,
				"required field must not be null", details)
		case codeCheckViolation:
			return domain.NewErrorWithDetails(domain.KindInvalidInput,
				"value violates a data constraint", details)
		case codeStringTooLong:
			return domain.NewErrorWithDetails(domain.KindInvalidInput,
				"value exceeds the maximum allowed length", details)
		case codeInvalidTextRep:
			return domain.NewErrorWithDetails(domain.KindInvalidInput,
				"invalid data for this operation", details)
		case codeUndefinedTable, codeUndefinedColumn:
			return domain.NewErrorWithDetails(domain.KindSchemaMissing,
				"database schema object not found", details)
		default:
			return domain.NewErrorWithDetails(domain.KindUnknownStoreError,
				fmt.Sprintf("database operation failed (%s)", pgErr.Code), details)
		}
	}

	if isMalformedStatement(err) {
		return domain.InvalidInput("invalid data for this operation", nil)
	}

	return domain.NewError(domain.KindInternal, "internal storage error")
}

// conflictError builds the CONFLICT error for a unique violation,
// specializing the message when the call site supplied one for the
// offending field.
func conflictError(pgErr *pgconn.PgError, ov Overrides, details map[string]any) *domain.Error {
	fields := constraintFields[pgErr.ConstraintName]
	if len(fields) > 0 {
		details["target"] = fields
	}

	message := "uniqueness conflict"
	if len(fields) == 1 {
		if m, ok := ov.FieldMessages[fields[0]]; ok {
			message = m
		}
	}
	return domain.NewErrorWithDetails(domain.KindConflict, message, details)
}

func pgDetails(pgErr *pgconn.PgError) map[string]any {
	details := map[string]any{"code": pgErr.Code}
	// The constraint table maps to business fields; the raw column name
	// is only a fallback when no constraint is involved.
	if fields, ok := constraintFields[pgErr.ConstraintName]; ok {
		details["target"] = fields
	} else if pgErr.ColumnName != "" {
		details["target"] = []string{pgErr.ColumnName}
	}
	return details
}

func messageForKind(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindNotFound:
		return "vehicle not found"
	case domain.KindConflict:
		return "uniqueness conflict"
	case domain.KindInvalidInput:
		return "invalid data for this operation"
	default:
		return "database operation failed"
	}
}

// isMalformedStatement detects driver-level encode/scan failures that
// carry no SQLSTATE. These are shape problems with the data, not
// storage faults.
func isMalformedStatement(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "cannot scan") ||
		strings.Contains(msg, "unable to encode") ||
		strings.Contains(msg, "unsupported Scan")
}
