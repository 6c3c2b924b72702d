package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/query"
)

// ConnPool leases sessions. Acquire blocks until a connection is free.
type ConnPool interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is one leased connection. Release must be called exactly once.
type Session interface {
	Begin(ctx context.Context, mode TxMode) (UnitOfWork, error)
	Release()
}

type TxMode int

const (
	// ReadWrite units lock rows with SELECT ... FOR UPDATE.
	ReadWrite TxMode = iota
	// ReadOnly units see one snapshot for all their reads.
	ReadOnly
)

// UnitOfWork executes resolved statements inside one transaction.
type UnitOfWork interface {
	// LockAccount returns domain.ErrAccountNotFound when no row matches.
	LockAccount(ctx context.Context, s query.Statement, v query.Values) (domain.AccountState, error)
	// Amount reads a single money column, such as the income row.
	Amount(ctx context.Context, s query.Statement, v query.Values) (decimal.Decimal, error)
	// Exec returns the number of rows affected.
	Exec(ctx context.Context, s query.Statement, v query.Values) (int64, error)
	// InsertID runs an INSERT ... RETURNING id.
	InsertID(ctx context.Context, s query.Statement, v query.Values) (int64, error)
	Count(ctx context.Context, s query.Statement, v query.Values) (int, error)
	Account(ctx context.Context, s query.Statement, v query.Values) (domain.Account, error)
	Accounts(ctx context.Context, s query.Statement, v query.Values) ([]domain.Account, error)
	Person(ctx context.Context, s query.Statement, v query.Values) (domain.Person, error)
	People(ctx context.Context, s query.Statement, v query.Values) ([]domain.Person, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
