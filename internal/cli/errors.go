package cli

import (
	"errors"

	"github.com/aidanlsb/herald/internal/query"
	"github.com/aidanlsb/herald/internal/store"
)

// Error codes for structured error responses.
// These codes are stable and can be relied upon by scripts.
const (
	ErrConfigInvalid = "CONFIG_INVALID"
	ErrDatabaseError = "DATABASE_ERROR"
	ErrNotFound      = "NOT_FOUND"
	ErrQueryInvalid  = "QUERY_INVALID"
	ErrInvalidInput  = "INVALID_INPUT"
	ErrInternal      = "INTERNAL_ERROR"
)

// Warning codes for non-fatal issues.
const (
	WarnNoRecipients = "NO_RECIPIENTS"
	WarnFailedQuery  = "QUERY_FAILED"
)

// errReported is returned once an error has been written as JSON, so the
// process exits non-zero without printing it a second time.
var errReported = errors.New("error already reported")

// errorCode classifies an error from the query engine or the store.
func errorCode(err error) string {
	var (
		parseErr *query.ParseError
		evalErr  *query.EvalError
		predErr  *query.PredicateError
	)
	switch {
	case errors.As(err, &parseErr), errors.As(err, &evalErr), errors.As(err, &predErr):
		return ErrQueryInvalid
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrInvalidCatalog):
		return ErrInvalidInput
	}
	return ErrDatabaseError
}
