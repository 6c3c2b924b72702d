package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/query"
)

// NewPerson is a registration request. PasswordHash is stored as given.
type NewPerson struct {
	Email        string
	PasswordHash string
	Role         domain.Role
}

// Admin manages people and accounts. Callers check that the acting role
// is administrative before calling the mutating methods.
type Admin struct {
	pool     ConnPool
	resolver *query.Resolver
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAdmin(pool ConnPool, resolver *query.Resolver, logger *slog.Logger) *Admin {
	return &Admin{
		pool:     pool,
		resolver: resolver,
		validate: validator.New(),
		logger:   logger.With("component", "admin"),
	}
}

func (a *Admin) stmt(op query.Operation) (query.Statement, error) {
	return a.resolver.Resolve(op, "")
}

func (a *Admin) RegisterPerson(ctx context.Context, p NewPerson) (int64, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if err := a.validate.Var(email, "required,email"); err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidEmail, p.Email)
	}
	if !p.Role.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidRole, p.Role)
	}
	if p.PasswordHash == "" {
		return 0, domain.ErrMissingPasswordHash
	}
	s, err := a.stmt(query.OpInsertPerson)
	if err != nil {
		return 0, err
	}

	var id int64
	err = withUnit(ctx, a.pool, ReadWrite, func(uow UnitOfWork) error {
		id, err = uow.InsertID(ctx, s, query.Values{
			query.ParamEmail:        email,
			query.ParamPasswordHash: p.PasswordHash,
			query.ParamRole:         string(p.Role),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("register %s: %w", email, err)
	}
	a.logger.Info("person registered", "person", id, "role", p.Role)
	return id, nil
}

// OpenAccount creates an empty ACTIVE account for an existing person.
func (a *Admin) OpenAccount(ctx context.Context, ownerID int64) (int64, error) {
	getPerson, err := a.stmt(query.OpGetPerson)
	if err != nil {
		return 0, err
	}
	insert, err := a.stmt(query.OpInsertAccount)
	if err != nil {
		return 0, err
	}

	var id int64
	err = withUnit(ctx, a.pool, ReadWrite, func(uow UnitOfWork) error {
		if _, err := uow.Person(ctx, getPerson, query.Values{query.ParamPersonID: ownerID}); err != nil {
			return err
		}
		id, err = uow.InsertID(ctx, insert, query.Values{query.ParamOwnerID: ownerID})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("open account for person %d: %w", ownerID, err)
	}
	a.logger.Info("account opened", "account", id, "owner", ownerID)
	return id, nil
}

func (a *Admin) SetAccountStatus(ctx context.Context, id int64, status domain.AccountStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	return a.update(ctx, query.OpUpdateAccountStatus, domain.ErrAccountNotFound, query.Values{
		query.ParamAccountID: id,
		query.ParamStatus:    string(status),
	})
}

func (a *Admin) SetPersonStatus(ctx context.Context, id int64, status domain.PersonStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	return a.update(ctx, query.OpUpdatePersonStatus, domain.ErrPersonNotFound, query.Values{
		query.ParamPersonID: id,
		query.ParamStatus:   string(status),
	})
}

// SetPersonRole changes a role. Only administrative actors may do so, and
// only a super-admin may grant SUPERADMIN.
func (a *Admin) SetPersonRole(ctx context.Context, actor domain.Role, id int64, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	if !actor.Administrative() || (role == domain.RoleSuperAdmin && actor != domain.RoleSuperAdmin) {
		return fmt.Errorf("%w: %s cannot grant %s", domain.ErrForbidden, actor, role)
	}
	return a.update(ctx, query.OpUpdatePersonRole, domain.ErrPersonNotFound, query.Values{
		query.ParamPersonID: id,
		query.ParamRole:     string(role),
	})
}

func (a *Admin) update(ctx context.Context, op query.Operation, notFound error, v query.Values) error {
	s, err := a.stmt(op)
	if err != nil {
		return err
	}
	err = withUnit(ctx, a.pool, ReadWrite, func(uow UnitOfWork) error {
		n, err := uow.Exec(ctx, s, v)
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.logger.Info("record updated", "op", op)
	return nil
}

func (a *Admin) Account(ctx context.Context, id int64) (domain.Account, error) {
	var acct domain.Account
	s, err := a.stmt(query.OpGetAccount)
	if err != nil {
		return acct, err
	}
	err = withUnit(ctx, a.pool, ReadOnly, func(uow UnitOfWork) error {
		acct, err = uow.Account(ctx, s, query.Values{query.ParamAccountID: id})
		return err
	})
	return acct, err
}

func (a *Admin) Person(ctx context.Context, id int64) (domain.Person, error) {
	var p domain.Person
	s, err := a.stmt(query.OpGetPerson)
	if err != nil {
		return p, err
	}
	err = withUnit(ctx, a.pool, ReadOnly, func(uow UnitOfWork) error {
		p, err = uow.Person(ctx, s, query.Values{query.ParamPersonID: id})
		return err
	})
	return p, err
}

// Income is the bank's own balance.
func (a *Admin) Income(ctx context.Context) (decimal.Decimal, error) {
	var income decimal.Decimal
	s, err := a.stmt(query.OpGetIncome)
	if err != nil {
		return income, err
	}
	err = withUnit(ctx, a.pool, ReadOnly, func(uow UnitOfWork) error {
		income, err = uow.Amount(ctx, s, query.Values{})
		return err
	})
	return income, err
}
