package store

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankportal/internal/domain"
)

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   pgtype.Numeric
		want string
	}{
		{"cents", pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, "123.45"},
		{"whole", pgtype.Numeric{Int: big.NewInt(7), Exp: 3, Valid: true}, "7000"},
		{"null", pgtype.Numeric{}, "0"},
		{"nil int", pgtype.Numeric{Exp: -2, Valid: true}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toDecimal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := toDecimal(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)
	_, err = toDecimal(pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true})
	assert.Error(t, err)
}

func TestMapError(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolation, ConstraintName: "people_email_key"})
	err := mapError(dup)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "people_email_key")

	other := &pgconn.PgError{Code: "23514"}
	assert.Equal(t, error(other), mapError(other))

	plain := errors.New("conn closed")
	assert.Equal(t, plain, mapError(plain))
}
