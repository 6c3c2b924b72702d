//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/logging"
	"github.com/punchamoorthee/bankportal/internal/pagination"
	"github.com/punchamoorthee/bankportal/internal/pool"
	"github.com/punchamoorthee/bankportal/internal/query"
	"github.com/punchamoorthee/bankportal/internal/service"
)

var operator = domain.Initiator{Role: domain.RoleAdmin, PersonID: 1}

type bank struct {
	store       *Store
	admin       *service.Admin
	coordinator *service.Coordinator
	lister      *service.Lister
}

func startBank(t *testing.T) *bank {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bank"),
		tcpostgres.WithUsername("bank"),
		tcpostgres.WithPassword("bank"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := pool.DefaultConfig()
	cfg.MinIdle, cfg.MaxTotal = 2, 8
	cfg.WaitTimeout = 5 * time.Second

	logger := logging.Discard()
	s, err := New(dsn, cfg, false, logger)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Close)

	resolver, err := query.NewResolver(query.Postgres())
	require.NoError(t, err)
	calc, err := pagination.New(pagination.DefaultDisplayed)
	require.NoError(t, err)

	return &bank{
		store:       s,
		admin:       service.NewAdmin(s, resolver, logger),
		coordinator: service.NewCoordinator(s, resolver, logger),
		lister:      service.NewLister(s, resolver, calc, service.PageDefaults{Page: 1, Size: 10, MaxSize: 100}, logger),
	}
}

// funded opens an account for a new customer and refills it from income.
func (b *bank) funded(t *testing.T, email, amount string) int64 {
	t.Helper()
	ctx := context.Background()
	owner, err := b.admin.RegisterPerson(ctx, service.NewPerson{Email: email, PasswordHash: "x", Role: domain.RoleCustomer})
	require.NoError(t, err)
	id, err := b.admin.OpenAccount(ctx, owner)
	require.NoError(t, err)
	if amount != "0" {
		res := b.coordinator.Adjust(ctx, service.Adjustment{AccountID: id, Delta: decimal.RequireFromString(amount)})
		require.True(t, res.Success(), "refill: %v", res.Err)
	}
	return id
}

// setIncome writes the income row directly; no operation creates money.
func (b *bank) setIncome(t *testing.T, amount string) {
	t.Helper()
	ctx := context.Background()
	l, err := b.store.Pool().Acquire(ctx)
	require.NoError(t, err)
	defer l.Release()
	_, err = l.Conn().Exec(ctx, "UPDATE income SET amount = $1::numeric WHERE id = 1", amount)
	require.NoError(t, err)
}

func (b *bank) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	a, err := b.admin.Account(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func TestPostgresTransferLifecycle(t *testing.T) {
	b := startBank(t)
	ctx := context.Background()

	b.setIncome(t, "10000")

	payer := b.funded(t, "payer@bank.test", "100.00")
	receiver := b.funded(t, "receiver@bank.test", "0")

	res := b.coordinator.Transfer(ctx, domain.TransferRequest{PayerID: payer, ReceiverID: receiver, Amount: decimal.RequireFromString("40.10"), Initiator: operator})
	require.True(t, res.Success(), "transfer: %v", res.Err)
	assert.Equal(t, "59.9", b.balance(t, payer).String())
	assert.Equal(t, "40.1", b.balance(t, receiver).String())

	recv, err := b.admin.Account(ctx, receiver)
	require.NoError(t, err)
	stranger := domain.Initiator{Role: domain.RoleCustomer, PersonID: recv.OwnerID}
	res = b.coordinator.Transfer(ctx, domain.TransferRequest{PayerID: payer, ReceiverID: receiver, Amount: decimal.RequireFromString("1"), Initiator: stranger})
	assert.Equal(t, 404, res.Status, "customers cannot pay from accounts they do not own")
	assert.Equal(t, "59.9", b.balance(t, payer).String())

	res = b.coordinator.Transfer(ctx, domain.TransferRequest{PayerID: payer, ReceiverID: receiver, Amount: decimal.RequireFromString("60"), Initiator: operator})
	assert.Equal(t, service.KindLowBalance, res.Kind)

	require.NoError(t, b.admin.SetAccountStatus(ctx, receiver, domain.AccountBlocked))
	res = b.coordinator.Transfer(ctx, domain.TransferRequest{PayerID: payer, ReceiverID: receiver, Amount: decimal.RequireFromString("1"), Initiator: operator})
	assert.Equal(t, service.KindForbiddenStatus, res.Kind)

	res = b.coordinator.Transfer(ctx, domain.TransferRequest{PayerID: payer, ReceiverID: 987654, Amount: decimal.RequireFromString("1"), Initiator: operator})
	assert.Equal(t, service.KindBadParam, res.Kind)
	assert.Equal(t, 404, res.Status)

	income, err := b.admin.Income(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9900", income.String())

	_, err = b.admin.RegisterPerson(ctx, service.NewPerson{Email: "payer@bank.test", PasswordHash: "x", Role: domain.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	st := b.store.Pool().Stat()
	assert.Zero(t, st.Leased, "every session must be released")
}

func TestPostgresConcurrentTransfersConserveMoney(t *testing.T) {
	b := startBank(t)
	ctx := context.Background()

	b.setIncome(t, "1000")

	x := b.funded(t, "x@bank.test", "300")
	y := b.funded(t, "y@bank.test", "300")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := x, y
			if i%2 == 1 {
				from, to = y, x
			}
			res := b.coordinator.Transfer(ctx, domain.TransferRequest{PayerID: from, ReceiverID: to, Amount: decimal.RequireFromString("25"), Initiator: operator})
			assert.Contains(t, []service.Kind{service.KindNone, service.KindLowBalance}, res.Kind, "err: %v", res.Err)
		}()
	}
	wg.Wait()

	total := b.balance(t, x).Add(b.balance(t, y))
	assert.Equal(t, "600", total.String())
	assert.False(t, b.balance(t, x).IsNegative())
	assert.False(t, b.balance(t, y).IsNegative())
}

func TestPostgresListing(t *testing.T) {
	b := startBank(t)
	ctx := context.Background()

	for _, email := range []string{"a@bank.test", "b@bank.test", "c@bank.test"} {
		b.funded(t, email, "0")
	}

	page, err := b.lister.Accounts(ctx, service.ListRequest{Role: domain.RoleAdmin, Size: 2, Sort: "id"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.PageCount)
	require.Len(t, page.Items, 2)
	assert.Less(t, page.Items[0].ID, page.Items[1].ID)

	people, err := b.lister.People(ctx, service.ListRequest{Role: domain.RoleAdmin, PersonRole: domain.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, 3, people.Total)
}
