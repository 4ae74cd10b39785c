package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrDuplicateKey is returned when a write collides with a unique constraint.
var ErrDuplicateKey = errors.New("duplicate key")

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w (%s)", op, ErrDuplicateKey, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// mapLookupError returns sql.ErrNoRows unwrapped. A key the database cannot
// parse as a UUID matches no row and is reported the same way.
func mapLookupError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sql.ErrNoRows
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation {
		return sql.ErrNoRows
	}
	return fmt.Errorf("%s: %w", op, err)
}
