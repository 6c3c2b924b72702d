package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/logging"
	"github.com/punchamoorthee/bankportal/internal/pagination"
	"github.com/punchamoorthee/bankportal/internal/pool"
	"github.com/punchamoorthee/bankportal/internal/query"
)

// incomeRow is the lock key of the income row.
const incomeRow = 0

// memBank is an in-memory store with row locks. Writes apply immediately
// and are undone on rollback, so a unit sees its own writes.
type memBank struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	people   map[int64]*domain.Person
	income   decimal.Decimal
	rows     map[int64]*sync.Mutex
	nextID   int64
	lastSQL  string

	acquireErr  error
	beginErr    error
	commitErr   error
	rollbackErr error
	failOps     map[query.Operation]error

	leased   atomic.Int64
	released atomic.Int64
}

func newMemBank() *memBank {
	return &memBank{
		accounts: make(map[int64]*domain.Account),
		people:   make(map[int64]*domain.Person),
		rows:     make(map[int64]*sync.Mutex),
		failOps:  make(map[query.Operation]error),
	}
}

func (b *memBank) addPerson(role domain.Role, status domain.PersonStatus) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.people[b.nextID] = &domain.Person{
		ID:           b.nextID,
		Email:        fmt.Sprintf("person%d@bank.test", b.nextID),
		PasswordHash: "hash",
		Role:         role,
		Status:       status,
		RegisteredAt: time.Now(),
	}
	return b.nextID
}

func (b *memBank) addAccount(owner int64, balance string, status domain.AccountStatus) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.accounts[b.nextID] = &domain.Account{
		ID:           b.nextID,
		OwnerID:      owner,
		Balance:      decimal.RequireFromString(balance),
		Status:       status,
		RegisteredAt: time.Now(),
	}
	return b.nextID
}

// customer opens an ACTIVE account for a fresh ACTIVE customer.
func (b *memBank) customer(balance string) int64 {
	return b.addAccount(b.addPerson(domain.RoleCustomer, domain.PersonActive), balance, domain.AccountActive)
}

func (b *memBank) balance(id int64) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[id].Balance
}

func (b *memBank) incomeAmount() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.income
}

func (b *memBank) total() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	sum := b.income
	for _, a := range b.accounts {
		sum = sum.Add(a.Balance)
	}
	return sum
}

func (b *memBank) setIncome(amount string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.income = decimal.RequireFromString(amount)
}

func (b *memBank) row(id int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.rows[id]
	if !ok {
		m = &sync.Mutex{}
		b.rows[id] = m
	}
	return m
}

func (b *memBank) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", pool.ErrInterrupted, err)
	}
	if b.acquireErr != nil {
		return nil, b.acquireErr
	}
	b.leased.Add(1)
	return &memSession{bank: b}, nil
}

type memSession struct {
	bank *memBank
	done atomic.Bool
}

func (s *memSession) Begin(_ context.Context, _ TxMode) (UnitOfWork, error) {
	if s.bank.beginErr != nil {
		return nil, s.bank.beginErr
	}
	return &memTx{bank: s.bank}, nil
}

func (s *memSession) Release() {
	if s.done.CompareAndSwap(false, true) {
		s.bank.released.Add(1)
	}
}

type memTx struct {
	bank   *memBank
	locked []*sync.Mutex
	undo   []func()
	closed bool
}

func (tx *memTx) lock(id int64) {
	m := tx.bank.row(id)
	m.Lock()
	tx.locked = append(tx.locked, m)
}

func (tx *memTx) finish(revert bool) {
	if revert {
		tx.bank.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		tx.bank.mu.Unlock()
	}
	for _, m := range tx.locked {
		m.Unlock()
	}
	tx.locked, tx.undo, tx.closed = nil, nil, true
}

// bind checks the statement parameters and records the SQL.
func (tx *memTx) bind(s query.Statement, v query.Values) ([]any, error) {
	if err := tx.bank.failOps[s.Op]; err != nil {
		return nil, err
	}
	args, err := s.Args(v)
	if err != nil {
		return nil, err
	}
	tx.bank.mu.Lock()
	tx.bank.lastSQL = s.SQL
	tx.bank.mu.Unlock()
	return args, nil
}

func (tx *memTx) LockAccount(_ context.Context, s query.Statement, v query.Values) (domain.AccountState, error) {
	args, err := tx.bind(s, v)
	if err != nil {
		return domain.AccountState{}, err
	}
	id := args[0].(int64)
	tx.lock(id)

	b := tx.bank
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accounts[id]
	if !ok {
		return domain.AccountState{}, domain.ErrAccountNotFound
	}
	return domain.AccountState{Account: *a, OwnerStatus: b.people[a.OwnerID].Status}, nil
}

func (tx *memTx) Amount(_ context.Context, s query.Statement, v query.Values) (decimal.Decimal, error) {
	if _, err := tx.bind(s, v); err != nil {
		return decimal.Zero, err
	}
	if s.Op == query.OpLockIncome {
		tx.lock(incomeRow)
	}
	return tx.bank.incomeAmount(), nil
}

func (tx *memTx) Exec(_ context.Context, s query.Statement, v query.Values) (int64, error) {
	args, err := tx.bind(s, v)
	if err != nil {
		return 0, err
	}
	b := tx.bank
	b.mu.Lock()
	defer b.mu.Unlock()

	switch s.Op {
	case query.OpDebitAccount, query.OpCreditAccount:
		a, ok := b.accounts[args[0].(int64)]
		if !ok {
			return 0, nil
		}
		amount := decimal.RequireFromString(args[1].(string))
		if s.Op == query.OpDebitAccount {
			if a.Balance.LessThan(amount) {
				return 0, nil
			}
			amount = amount.Neg()
		}
		prev := a.Balance
		a.Balance = a.Balance.Add(amount)
		tx.undo = append(tx.undo, func() { a.Balance = prev })
	case query.OpIncrementIncome, query.OpDecrementIncome:
		amount := decimal.RequireFromString(args[0].(string))
		if s.Op == query.OpDecrementIncome {
			if b.income.LessThan(amount) {
				return 0, nil
			}
			amount = amount.Neg()
		}
		prev := b.income
		b.income = b.income.Add(amount)
		tx.undo = append(tx.undo, func() { b.income = prev })
	case query.OpUpdateAccountStatus:
		a, ok := b.accounts[args[0].(int64)]
		if !ok {
			return 0, nil
		}
		prev := a.Status
		a.Status = domain.AccountStatus(args[1].(string))
		tx.undo = append(tx.undo, func() { a.Status = prev })
	case query.OpUpdatePersonStatus, query.OpUpdatePersonRole:
		p, ok := b.people[args[0].(int64)]
		if !ok {
			return 0, nil
		}
		prev := *p
		if s.Op == query.OpUpdatePersonRole {
			p.Role = domain.Role(args[1].(string))
		} else {
			p.Status = domain.PersonStatus(args[1].(string))
		}
		tx.undo = append(tx.undo, func() { *p = prev })
	default:
		return 0, fmt.Errorf("memBank: exec %s not supported", s.Op)
	}
	return 1, nil
}

func (tx *memTx) InsertID(_ context.Context, s query.Statement, v query.Values) (int64, error) {
	args, err := tx.bind(s, v)
	if err != nil {
		return 0, err
	}
	b := tx.bank
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	switch s.Op {
	case query.OpInsertPerson:
		email := args[0].(string)
		for _, p := range b.people {
			if p.Email == email {
				return 0, domain.ErrAlreadyExists
			}
		}
		b.people[id] = &domain.Person{
			ID: id, Email: email, PasswordHash: args[1].(string),
			Role: domain.Role(args[2].(string)), Status: domain.PersonActive, RegisteredAt: time.Now(),
		}
		tx.undo = append(tx.undo, func() { delete(b.people, id) })
	case query.OpInsertAccount:
		b.accounts[id] = &domain.Account{
			ID: id, OwnerID: args[0].(int64), Balance: decimal.Zero,
			Status: domain.AccountActive, RegisteredAt: time.Now(),
		}
		tx.undo = append(tx.undo, func() { delete(b.accounts, id) })
	default:
		return 0, fmt.Errorf("memBank: insert %s not supported", s.Op)
	}
	return id, nil
}

func (tx *memTx) Account(_ context.Context, s query.Statement, v query.Values) (domain.Account, error) {
	args, err := tx.bind(s, v)
	if err != nil {
		return domain.Account{}, err
	}
	tx.bank.mu.Lock()
	defer tx.bank.mu.Unlock()
	a, ok := tx.bank.accounts[args[0].(int64)]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *a, nil
}

func (tx *memTx) Person(_ context.Context, s query.Statement, v query.Values) (domain.Person, error) {
	args, err := tx.bind(s, v)
	if err != nil {
		return domain.Person{}, err
	}
	tx.bank.mu.Lock()
	defer tx.bank.mu.Unlock()
	p, ok := tx.bank.people[args[0].(int64)]
	if !ok {
		return domain.Person{}, domain.ErrPersonNotFound
	}
	return *p, nil
}

// matchAccounts applies the category filters of the account listing templates.
func (b *memBank) matchAccounts(c query.Category, v query.Values) []domain.Account {
	var out []domain.Account
	for _, a := range b.accounts {
		switch c {
		case query.CategoryAdmin:
			if s, ok := v[query.ParamStatus].(string); ok && string(a.Status) != s {
				continue
			}
			if o, ok := v[query.ParamOwnerID].(int64); ok && a.OwnerID != o {
				continue
			}
		case query.CategoryCustomer:
			if a.OwnerID != v[query.ParamViewerID].(int64) {
				continue
			}
			if s, ok := v[query.ParamStatus].(string); ok && string(a.Status) != s {
				continue
			}
		default:
			if a.OwnerID != v[query.ParamViewerID].(int64) || a.Status != domain.AccountActive {
				continue
			}
		}
		out = append(out, *a)
	}
	slices.SortFunc(out, func(x, y domain.Account) int {
		if strings.Contains(b.lastSQL, "ORDER BY balance ASC") {
			if d := x.Balance.Cmp(y.Balance); d != 0 {
				return d
			}
			return int(x.ID - y.ID)
		}
		return int(y.ID - x.ID)
	})
	return out
}

func (b *memBank) matchPeople(v query.Values) []domain.Person {
	var out []domain.Person
	for _, p := range b.people {
		if r, ok := v[query.ParamRole].(string); ok && string(p.Role) != r {
			continue
		}
		if s, ok := v[query.ParamStatus].(string); ok && string(p.Status) != s {
			continue
		}
		out = append(out, *p)
	}
	slices.SortFunc(out, func(x, y domain.Person) int { return int(y.ID - x.ID) })
	return out
}

func window[T any](items []T, v query.Values) []T {
	offset, limit := v[query.ParamOffset].(int), v[query.ParamLimit].(int)
	if offset >= len(items) {
		return []T{}
	}
	return items[offset:min(offset+limit, len(items))]
}

func (tx *memTx) Count(_ context.Context, s query.Statement, v query.Values) (int, error) {
	if _, err := tx.bind(s, v); err != nil {
		return 0, err
	}
	tx.bank.mu.Lock()
	defer tx.bank.mu.Unlock()
	if s.Op == query.OpCountPeople {
		return len(tx.bank.matchPeople(v)), nil
	}
	return len(tx.bank.matchAccounts(s.Category, v)), nil
}

func (tx *memTx) Accounts(_ context.Context, s query.Statement, v query.Values) ([]domain.Account, error) {
	if _, err := tx.bind(s, v); err != nil {
		return nil, err
	}
	tx.bank.mu.Lock()
	defer tx.bank.mu.Unlock()
	return window(tx.bank.matchAccounts(s.Category, v), v), nil
}

func (tx *memTx) People(_ context.Context, s query.Statement, v query.Values) ([]domain.Person, error) {
	if _, err := tx.bind(s, v); err != nil {
		return nil, err
	}
	tx.bank.mu.Lock()
	defer tx.bank.mu.Unlock()
	return window(tx.bank.matchPeople(v), v), nil
}

func (tx *memTx) Commit(context.Context) error {
	if tx.closed {
		return errors.New("memBank: commit on closed unit")
	}
	if tx.bank.commitErr != nil {
		return tx.bank.commitErr
	}
	tx.finish(false)
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.closed {
		return nil
	}
	tx.finish(true)
	return tx.bank.rollbackErr
}

func newTestResolver(t *testing.T) *query.Resolver {
	t.Helper()
	r, err := query.NewResolver(query.Postgres())
	require.NoError(t, err)
	return r
}

func newTestCoordinator(t *testing.T, bank *memBank) *Coordinator {
	t.Helper()
	return NewCoordinator(bank, newTestResolver(t), logging.Discard())
}

func newTestLister(t *testing.T, bank *memBank) *Lister {
	t.Helper()
	calc, err := pagination.New(pagination.DefaultDisplayed)
	require.NoError(t, err)
	return NewLister(bank, newTestResolver(t), calc, PageDefaults{Page: 1, Size: 10, MaxSize: 50}, logging.Discard())
}

func newTestAdmin(t *testing.T, bank *memBank) *Admin {
	t.Helper()
	return NewAdmin(bank, newTestResolver(t), logging.Discard())
}
