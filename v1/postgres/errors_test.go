package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslateError(t *testing.T) {
	other := errors.New("connection reset")

	cases := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"not found", gorm.ErrRecordNotFound, ErrRecordNotFound},
		{"wrapped not found", fmt.Errorf("load run: %w", gorm.ErrRecordNotFound), ErrRecordNotFound},
		{"duplicate", gorm.ErrDuplicatedKey, ErrDuplicateKey},
		{"foreign key", gorm.ErrForeignKeyViolated, ErrForeignKey},
		{"invalid", gorm.ErrInvalidData, ErrInvalidData},
		{"pg unique", &pgconn.PgError{Code: "23505"}, ErrDuplicateKey},
		{"pg fk", &pgconn.PgError{Code: "23503"}, ErrForeignKey},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, ErrSerialization},
		{"unknown", other, other},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TranslateError(tc.in))
		})
	}
}
