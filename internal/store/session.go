package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/pool"
	"github.com/punchamoorthee/bankportal/internal/query"
	"github.com/punchamoorthee/bankportal/internal/service"
)

const uniqueViolation = "23505"

var txOptions = map[service.TxMode]pgx.TxOptions{
	service.ReadWrite: {IsoLevel: pgx.ReadCommitted},
	service.ReadOnly:  {IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly},
}

type session struct {
	lease *pool.Lease[*pgx.Conn]
}

func (s *session) Begin(ctx context.Context, mode service.TxMode) (service.UnitOfWork, error) {
	tx, err := s.lease.Conn().BeginTx(ctx, txOptions[mode])
	if err != nil {
		return nil, err
	}
	return &unitOfWork{tx: tx}, nil
}

// Release hands the connection back. The lease closes it instead when it
// is broken or still inside a transaction.
func (s *session) Release() {
	s.lease.Release()
}

type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) queryRow(ctx context.Context, s query.Statement, v query.Values) (pgx.Row, error) {
	args, err := s.Args(v)
	if err != nil {
		return nil, err
	}
	return u.tx.QueryRow(ctx, s.SQL, args...), nil
}

func (u *unitOfWork) query(ctx context.Context, s query.Statement, v query.Values) (pgx.Rows, error) {
	args, err := s.Args(v)
	if err != nil {
		return nil, err
	}
	rows, err := u.tx.Query(ctx, s.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Op, err)
	}
	return rows, nil
}

func (u *unitOfWork) LockAccount(ctx context.Context, s query.Statement, v query.Values) (domain.AccountState, error) {
	var st domain.AccountState
	row, err := u.queryRow(ctx, s, v)
	if err != nil {
		return st, err
	}
	var (
		balance             pgtype.Numeric
		status, ownerStatus string
	)
	err = row.Scan(&st.ID, &st.OwnerID, &balance, &status, &st.RegisteredAt, &ownerStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, domain.ErrAccountNotFound
	}
	if err != nil {
		return st, fmt.Errorf("%s: %w", s.Op, err)
	}
	if st.Balance, err = toDecimal(balance); err != nil {
		return st, err
	}
	st.Status = domain.AccountStatus(status)
	st.OwnerStatus = domain.PersonStatus(ownerStatus)
	return st, nil
}

func (u *unitOfWork) Amount(ctx context.Context, s query.Statement, v query.Values) (decimal.Decimal, error) {
	row, err := u.queryRow(ctx, s, v)
	if err != nil {
		return decimal.Zero, err
	}
	var n pgtype.Numeric
	if err := row.Scan(&n); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", s.Op, err)
	}
	return toDecimal(n)
}

func (u *unitOfWork) Exec(ctx context.Context, s query.Statement, v query.Values) (int64, error) {
	args, err := s.Args(v)
	if err != nil {
		return 0, err
	}
	tag, err := u.tx.Exec(ctx, s.SQL, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (u *unitOfWork) InsertID(ctx context.Context, s query.Statement, v query.Values) (int64, error) {
	row, err := u.queryRow(ctx, s, v)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

func (u *unitOfWork) Count(ctx context.Context, s query.Statement, v query.Values) (int, error) {
	row, err := u.queryRow(ctx, s, v)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", s.Op, err)
	}
	return int(n), nil
}

func (u *unitOfWork) Account(ctx context.Context, s query.Statement, v query.Values) (domain.Account, error) {
	rows, err := u.query(ctx, s, v)
	if err != nil {
		return domain.Account{}, err
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAccount)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, domain.ErrAccountNotFound
	}
	return a, err
}

func (u *unitOfWork) Accounts(ctx context.Context, s query.Statement, v query.Values) ([]domain.Account, error) {
	rows, err := u.query(ctx, s, v)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAccount)
}

func (u *unitOfWork) Person(ctx context.Context, s query.Statement, v query.Values) (domain.Person, error) {
	rows, err := u.query(ctx, s, v)
	if err != nil {
		return domain.Person{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPerson)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, domain.ErrPersonNotFound
	}
	return p, err
}

func (u *unitOfWork) People(ctx context.Context, s query.Statement, v query.Values) ([]domain.Person, error) {
	rows, err := u.query(ctx, s, v)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPerson)
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

// Rollback after a failed commit finds the transaction already closed,
// which is not a failure.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func scanAccount(row pgx.CollectableRow) (domain.Account, error) {
	var (
		a       domain.Account
		balance pgtype.Numeric
		status  string
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &balance, &status, &a.RegisteredAt); err != nil {
		return a, err
	}
	var err error
	a.Balance, err = toDecimal(balance)
	a.Status = domain.AccountStatus(status)
	return a, err
}

func scanPerson(row pgx.CollectableRow) (domain.Person, error) {
	var (
		p            domain.Person
		role, status string
	)
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &role, &status, &p.RegisteredAt)
	p.Role = domain.Role(role)
	p.Status = domain.PersonStatus(status)
	return p, err
}

// toDecimal converts a NUMERIC column. NULL reads as zero.
func toDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, fmt.Errorf("numeric value is not finite")
	}
	if n.Int == nil {
		return decimal.NewFromBigInt(new(big.Int), n.Exp), nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}
