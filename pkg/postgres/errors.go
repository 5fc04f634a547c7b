package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToOpenConnection  = errors.New("postgres: failed to open connection")
	ErrFailedToParseConfig     = errors.New("postgres: failed to parse connection config")
	ErrFailedToApplyMigrations = errors.New("postgres: failed to apply migrations")
)

// isDuplicateKey detects unique constraint violations (SQLSTATE 23505),
// which is how a create-vs-create race on the same domain surfaces.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
