package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Sentinel errors returned by TranslateError.
var (
	// ErrRecordNotFound is returned when a query matches no row.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when a write violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrForeignKey is returned when a write violates a foreign key.
	ErrForeignKey = errors.New("foreign key violation")

	// ErrInvalidData is returned when gorm rejects the data being written.
	ErrInvalidData = errors.New("invalid data")

	// ErrSerialization is returned when a serializable transaction must be retried.
	ErrSerialization = errors.New("serialization failure")
)

// PostgreSQL SQLSTATE codes handled by TranslateError.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
)

// TranslateError maps gorm and pgx errors to the sentinels above. Unknown
// errors are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrForeignKey
	case errors.Is(err, gorm.ErrInvalidData):
		return ErrInvalidData
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return ErrDuplicateKey
		case codeForeignKeyViolation:
			return ErrForeignKey
		case codeSerializationFailure:
			return ErrSerialization
		}
	}

	return err
}
