package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound referenced row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict unique violation or a lost optimistic update (status/cursor/queue guard)
	ErrConflict = errors.New("conflict")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqForeignKeyViolation
	}
	return false
}
