package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// MapPgError translates PostgreSQL constraint violations into the shared
// taxonomy, keeping the driver error in the chain so callers can still reach
// constraint names and details. Any other error is returned unchanged.
func MapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}
	return err
}
