package db

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/vetledger/vetledger/internal/platform/apperr"
)

// Classify maps a sqlite/database error to the shared taxonomy. Repositories
// call it at their boundary so services only ever see kinded errors.
func Classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.NotFound, "%s not found", what)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return apperr.Wrap(err, apperr.UniqueViolation, "%s already exists", what)
		case se.Code == sqlite3.ErrCorrupt || se.Code == sqlite3.ErrNotADB:
			return apperr.Wrap(err, apperr.Consistency, "database corrupt reading %s", what)
		}
	}
	return apperr.Wrap(err, apperr.IO, "%s", what)
}
