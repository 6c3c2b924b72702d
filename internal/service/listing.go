package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/pagination"
	"github.com/punchamoorthee/bankportal/internal/query"
)

// ErrUnavailable wraps failures to obtain a connection outside the coordinator.
var ErrUnavailable = errors.New("no database connection available")

// withUnit runs fn inside one unit of work on a leased connection. fn's
// error rolls the unit back.
func withUnit(ctx context.Context, p ConnPool, mode TxMode, fn func(UnitOfWork) error) error {
	sess, err := p.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer sess.Release()

	uow, err := sess.Begin(ctx, mode)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(uow); err != nil {
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return uow.Commit(ctx)
}

// ListRequest selects one page of a listing as seen by Role. ViewerID is
// the caller's person id; it scopes customer and person listings.
type ListRequest struct {
	Role     domain.Role
	ViewerID int64
	Page     int
	Size     int
	Sort     string

	Status     string
	OwnerID    int64
	PersonRole domain.Role
}

func (r ListRequest) values() query.Values {
	v := query.Values{
		query.ParamViewerID: r.ViewerID,
		query.ParamStatus:   nil,
		query.ParamOwnerID:  nil,
		query.ParamRole:     nil,
	}
	if r.Status != "" {
		v[query.ParamStatus] = r.Status
	}
	if r.OwnerID > 0 {
		v[query.ParamOwnerID] = r.OwnerID
	}
	if r.PersonRole != "" {
		v[query.ParamRole] = string(r.PersonRole)
	}
	return v
}

type PageDefaults struct {
	Page    int
	Size    int
	MaxSize int
}

// Lister builds paginated, role-scoped listings.
type Lister struct {
	pool     ConnPool
	resolver *query.Resolver
	calc     pagination.Calculator
	defaults PageDefaults
	logger   *slog.Logger
}

func NewLister(pool ConnPool, resolver *query.Resolver, calc pagination.Calculator, defaults PageDefaults, logger *slog.Logger) *Lister {
	return &Lister{
		pool:     pool,
		resolver: resolver,
		calc:     calc,
		defaults: defaults,
		logger:   logger.With("component", "lister"),
	}
}

func (l *Lister) Accounts(ctx context.Context, req ListRequest) (*domain.Page[domain.Account], error) {
	if req.Status != "" && !domain.AccountStatus(req.Status).Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, req.Status)
	}
	return list(ctx, l, req, query.OpCountAccounts, query.OpPageAccounts, query.AccountOrder, UnitOfWork.Accounts)
}

func (l *Lister) People(ctx context.Context, req ListRequest) (*domain.Page[domain.Person], error) {
	if req.Status != "" && !domain.PersonStatus(req.Status).Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, req.Status)
	}
	if req.PersonRole != "" && !req.PersonRole.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, req.PersonRole)
	}
	return list(ctx, l, req, query.OpCountPeople, query.OpPagePeople, query.PersonOrder, UnitOfWork.People)
}

// list counts and fetches inside one read-only unit so the total and the
// window come from the same snapshot.
func list[T any](ctx context.Context, l *Lister, req ListRequest, countOp, pageOp query.Operation, order query.Strategy,
	fetch func(UnitOfWork, context.Context, query.Statement, query.Values) ([]T, error)) (*domain.Page[T], error) {
	countStmt, err := l.resolver.Resolve(countOp, req.Role)
	if err != nil {
		return nil, err
	}
	pageStmt, err := l.resolver.Resolve(pageOp, req.Role)
	if err != nil {
		return nil, err
	}
	pageStmt = pageStmt.Paged(order.OrderFor(req.Sort))

	size := req.Size
	if size < 1 {
		size = l.defaults.Size
	}
	if l.defaults.MaxSize > 0 {
		size = min(size, l.defaults.MaxSize)
	}
	number := req.Page
	if number == 0 {
		number = l.defaults.Page
	}

	page := &domain.Page[T]{Size: size, SortKey: req.Sort}
	values := req.values()
	err = withUnit(ctx, l.pool, ReadOnly, func(uow UnitOfWork) error {
		total, err := uow.Count(ctx, countStmt, values)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		w := l.calc.Paginate(total, size, number)
		values[query.ParamLimit] = size
		values[query.ParamOffset] = w.Offset
		items, err := fetch(uow, ctx, pageStmt, values)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", w.Page, err)
		}
		page.Number = w.Page
		page.Total = total
		page.PageCount = w.PageCount
		page.Pages = w.Pages
		page.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Debug("listed page", "op", pageOp, "category", pageStmt.Category,
		"page", page.Number, "size", size, "total", page.Total)
	return page, nil
}
