// Package store implements the service ports on PostgreSQL through pgx
// connections leased from the bounded pool.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"

	"github.com/punchamoorthee/bankportal/internal/pool"
	"github.com/punchamoorthee/bankportal/internal/service"
)

const closeTimeout = 5 * time.Second

// connector opens one pgx connection per pooled slot.
type connector struct {
	cfg *pgx.ConnConfig
}

func (c connector) Connect(ctx context.Context) (*pgx.Conn, error) {
	return pgx.ConnectConfig(ctx, c.cfg.Copy())
}

func (c connector) Close(conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = conn.Close(ctx)
}

// Interrupt asks the server to cancel whatever conn is running. It uses a
// separate connection, so it is safe while another goroutine holds conn.
func (c connector) Interrupt(conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = conn.PgConn().CancelRequest(ctx)
}

// Healthy rejects closed connections and connections left inside a
// transaction.
func (c connector) Healthy(conn *pgx.Conn) bool {
	return !conn.IsClosed() && conn.PgConn().TxStatus() == 'I'
}

type Store struct {
	pool    *pool.Pool[*pgx.Conn]
	connCfg *pgx.ConnConfig
	logger  *slog.Logger
}

// New parses dsn and builds the pool. No connection is opened until Start.
// With tracing enabled every query is recorded as an OpenTelemetry span.
func New(dsn string, cfg pool.Config, tracing bool, logger *slog.Logger) (*Store, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if tracing {
		connCfg.Tracer = otelpgx.NewTracer()
	}

	p, err := pool.New[*pgx.Conn](cfg, connector{cfg: connCfg}, logger.With("component", "pool"))
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, connCfg: connCfg, logger: logger.With("component", "store")}, nil
}

// Start warms the pool and pings the database once.
func (s *Store) Start(ctx context.Context) error {
	if err := s.pool.Start(ctx); err != nil {
		return fmt.Errorf("unable to start connection pool: %w", err)
	}
	if err := s.Ping(ctx); err != nil {
		s.pool.Stop()
		return fmt.Errorf("unable to ping database: %w", err)
	}
	st := s.pool.Stat()
	s.logger.Info("connection pool ready", "idle", st.Idle, "max", st.MaxTotal)
	return nil
}

func (s *Store) Close() {
	s.pool.Stop()
}

// Pool exposes the underlying pool for stats and metric registration.
func (s *Store) Pool() *pool.Pool[*pgx.Conn] {
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	l, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer l.Release()
	return l.Conn().Ping(ctx)
}

// Acquire leases a connection as a service.Session.
func (s *Store) Acquire(ctx context.Context) (service.Session, error) {
	l, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &session{lease: l}, nil
}
