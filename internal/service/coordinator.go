package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/bankportal/internal/logging"
	"github.com/punchamoorthee/bankportal/internal/query"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_coordinated_operations_total",
		Help: "Coordinated money movements by operation, outcome and failure kind",
	}, []string{"operation", "outcome", "kind"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_coordinated_operation_duration_seconds",
		Help:    "Latency of coordinated money movements, lease wait included",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"operation"})
)

// Coordinator runs money movements through the lease, validate, apply,
// commit state machine and reports every outcome as a Result.
type Coordinator struct {
	pool     ConnPool
	resolver *query.Resolver
	logger   *slog.Logger
}

func NewCoordinator(pool ConnPool, resolver *query.Resolver, logger *slog.Logger) *Coordinator {
	return &Coordinator{pool: pool, resolver: resolver, logger: logger.With("component", "coordinator")}
}

// unit describes one coordinated operation. validate may only read and
// lock; apply performs the writes.
type unit struct {
	name     string
	attrs    []any
	check    func() error
	ops      []query.Operation
	validate func(ctx context.Context, uow UnitOfWork, stmts statements) error
	apply    func(ctx context.Context, uow UnitOfWork, stmts statements) error
}

type statements map[query.Operation]query.Statement

func (c *Coordinator) run(ctx context.Context, u unit) (res Result) {
	res = Result{Reference: uuid.New(), Operation: u.name, State: StateStarted}
	log := c.logger.With(append([]any{"op", u.name, "ref", res.Reference}, u.attrs...)...)
	start := time.Now()
	defer func() {
		operationDuration.WithLabelValues(u.name).Observe(time.Since(start).Seconds())
		operationsTotal.WithLabelValues(u.name, res.Outcome.String(), res.Kind.String()).Inc()
		c.report(log, res)
	}()

	if err := u.check(); err != nil {
		return res.fail(KindBadParam, err)
	}

	stmts := make(statements, len(u.ops))
	for _, op := range u.ops {
		s, err := c.resolver.Resolve(op, "")
		if err != nil {
			return res.fail(KindPerform, err)
		}
		stmts[op] = s
	}

	sess, err := c.pool.Acquire(ctx)
	if err != nil {
		return res.fail(KindConnection, err)
	}
	defer sess.Release()
	res.State = StateConnected

	// From here the unit of work runs to commit or rollback even if the
	// caller goes away.
	wctx := context.WithoutCancel(ctx)

	uow, err := sess.Begin(wctx, ReadWrite)
	if err != nil {
		return res.fail(KindPerform, fmt.Errorf("begin: %w", err))
	}

	if err := u.validate(wctx, uow, stmts); err != nil {
		kind := classify(err)
		if kind == KindPerform {
			return c.abort(wctx, log, uow, res, err)
		}
		// Nothing was written; the rollback only releases row locks.
		if rbErr := uow.Rollback(wctx); rbErr != nil {
			log.Warn("rollback after declined validation failed", "error", rbErr)
		} else {
			res.State = StateRolledBack
			res.RolledBack = true
		}
		return res.fail(kind, err)
	}
	res.State = StateValidated

	if err := u.apply(wctx, uow, stmts); err != nil {
		return c.abort(wctx, log, uow, res, err)
	}
	res.State = StateApplied

	if err := uow.Commit(wctx); err != nil {
		return c.abort(wctx, log, uow, res, fmt.Errorf("commit: %w", err))
	}
	res.State = StateCommitted
	res.Reached = StateApplied
	res.Status = KindNone.StatusCode()
	return res
}

// abort rolls back after a store failure. A failed rollback escalates to
// KindRollback.
func (c *Coordinator) abort(ctx context.Context, log *slog.Logger, uow UnitOfWork, res Result, cause error) Result {
	if rbErr := uow.Rollback(ctx); rbErr != nil {
		log.Log(ctx, logging.LevelCritical, "rollback failed, balances may be inconsistent",
			"state", res.State, "cause", cause, "error", rbErr)
		return res.fail(KindRollback, errors.Join(cause, rbErr))
	}
	res.State = StateRolledBack
	res.RolledBack = true
	return res.fail(KindPerform, cause)
}

func (c *Coordinator) report(log *slog.Logger, res Result) {
	attrs := []any{"outcome", res.Outcome, "status", res.Status, "state", res.State}
	switch res.Kind {
	case KindNone:
		log.Info("operation committed", attrs...)
	case KindBadParam, KindLowBalance, KindForbiddenStatus:
		log.Info("operation declined", append(attrs, "kind", res.Kind, "reason", res.Err)...)
	case KindConnection:
		log.Warn("no connection for operation", append(attrs, "kind", res.Kind, "error", res.Err)...)
	case KindPerform:
		log.Error("operation failed and was rolled back", append(attrs, "kind", res.Kind, "error", res.Err)...)
	case KindRollback:
		// already logged at critical level by abort
	}
}

// execOne runs a write that must touch exactly one row.
func execOne(ctx context.Context, uow UnitOfWork, s query.Statement, v query.Values) error {
	n, err := uow.Exec(ctx, s, v)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: affected %d rows, want 1", s.Op, n)
	}
	return nil
}
