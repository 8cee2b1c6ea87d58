package remote

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// ErrDuplicateIdentity reports that the remote store already holds a row with
// the record's identity. Per the sync protocol this is a confirmation of a
// prior successful sync, not a failure.
var ErrDuplicateIdentity = errors.New("remote store already holds this identity")

// IsDuplicate reports whether err is a duplicate-identity condition, either
// the package sentinel or a raw Postgres unique violation.
func IsDuplicate(err error) bool {
	if errors.Is(err, ErrDuplicateIdentity) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
