package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankportal/internal/config"
	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/logging"
	"github.com/punchamoorthee/bankportal/internal/store"
)

// seededHash is a placeholder credential; seeded people cannot log in.
const seededHash = "!seeded"

var (
	customers      = flag.Int("customers", 1000, "customers to create, one ACTIVE account each")
	initialBalance = flag.String("balance", "100.00", "opening balance of every seeded account")
	income         = flag.String("income", "100000.00", "bank income after seeding")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		slog.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	d = domain.RoundMoney(d)
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	balance, err := domain.ParseAmount(*initialBalance)
	if err != nil {
		return err
	}
	incomeAmount, err := domain.ParseAmount(*income)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := store.New(cfg.DBSource, cfg.Pool.PoolConfig(), false, logger)
	if err != nil {
		return err
	}
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	conn, err := pgx.Connect(ctx, cfg.DBSource)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	logger.Info("--- Seeding Database ---")

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM people").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		logger.Info("database already has people, skipping", "people", count)
		return nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	people := make([][]any, 0, *customers+2)
	people = append(people,
		[]any{"root@bank.local", seededHash, string(domain.RoleSuperAdmin), string(domain.PersonActive)},
		[]any{"admin@bank.local", seededHash, string(domain.RoleAdmin), string(domain.PersonActive)},
	)
	for i := 1; i <= *customers; i++ {
		people = append(people, []any{
			fmt.Sprintf("customer%05d@bank.local", i), seededHash,
			string(domain.RoleCustomer), string(domain.PersonActive),
		})
	}
	// Bulk Insert using CopyFrom
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"people"},
		[]string{"email", "password_hash", "role", "status"}, pgx.CopyFromRows(people))
	if err != nil {
		return fmt.Errorf("bulk insert people: %w", err)
	}
	logger.Info("people created", "count", n)

	rows, err := tx.Query(ctx, "SELECT id FROM people WHERE role = $1 ORDER BY id", string(domain.RoleCustomer))
	if err != nil {
		return err
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return err
	}

	opening := numeric(balance)
	n, err = tx.CopyFrom(ctx, pgx.Identifier{"accounts"},
		[]string{"owner_id", "balance", "status"},
		pgx.CopyFromSlice(len(owners), func(i int) ([]any, error) {
			return []any{owners[i], opening, string(domain.AccountActive)}, nil
		}))
	if err != nil {
		return fmt.Errorf("bulk insert accounts: %w", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE income SET amount = $1 WHERE id = 1", numeric(incomeAmount)); err != nil {
		return fmt.Errorf("set income: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("successfully seeded", "accounts", n, "balance", domain.FormatMoney(balance),
		"income", domain.FormatMoney(incomeAmount))
	return nil
}
