// Package pool leases database connections to callers with bounded size,
// wait timeout, idle retention and reclamation of abandoned leases.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
)

var (
	// ErrExhausted means no connection became available within the wait timeout.
	ErrExhausted = errors.New("pool exhausted")
	// ErrInterrupted means the caller's context ended while waiting.
	ErrInterrupted = errors.New("pool wait interrupted")
	ErrClosed      = errors.New("pool closed")
)

// Connector opens and closes the pooled connections.
type Connector[C any] interface {
	Connect(ctx context.Context) (C, error)
	Close(conn C)
	// Healthy reports whether conn may be handed to another caller.
	Healthy(conn C) bool
}

// Interrupter is implemented by connectors that can abort work in flight on
// a connection from another goroutine. The pool interrupts a connection
// before closing it under a holder that never released it.
type Interrupter[C any] interface {
	Interrupt(conn C)
}

// Stat is a point-in-time snapshot of the pool.
type Stat struct {
	Total        int32
	Idle         int32
	Leased       int32
	Constructing int32
	MaxTotal     int32
	Acquires     int64
	Exhausted    int64
	Reclaimed    int64
}

type Pool[C any] struct {
	cfg       Config
	connector Connector[C]
	logger    *slog.Logger
	res       *puddle.Pool[C]

	mu     sync.Mutex
	leases map[*Lease[C]]struct{}

	exhausted atomic.Int64
	reclaimed atomic.Int64

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New[C any](cfg Config, connector Connector[C], logger *slog.Logger) (*Pool[C], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool[C]{
		cfg:       cfg,
		connector: connector,
		logger:    logger.With("component", "pool"),
		leases:    make(map[*Lease[C]]struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	res, err := puddle.NewPool(&puddle.Config[C]{
		Constructor: connector.Connect,
		Destructor:  connector.Close,
		MaxSize:     cfg.MaxTotal,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	p.res = res
	return p, nil
}

// Start opens MinIdle connections and launches the maintenance loop.
func (p *Pool[C]) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.fillIdle(ctx); err != nil {
		p.started.Store(false)
		return fmt.Errorf("pool: warm up: %w", err)
	}
	go p.run()
	p.logger.Info("connection pool started",
		"min_idle", p.cfg.MinIdle,
		"max_total", p.cfg.MaxTotal,
		"abandon_timeout", p.cfg.AbandonTimeout,
	)
	return nil
}

// Stop halts maintenance and closes every connection. Leases still held are
// reclaimed first; puddle's Close waits for every resource to come back.
func (p *Pool[C]) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		if p.started.Load() {
			<-p.done
		}
		for _, l := range p.held() {
			if p.reclaim(l) {
				p.logger.Warn("reclaimed unreleased connection at shutdown",
					"held", l.Held().Round(time.Millisecond))
			}
		}
		p.res.Close()
		p.logger.Info("connection pool stopped")
	})
}

// Acquire blocks until a connection is free, the wait timeout elapses
// (ErrExhausted) or ctx ends (ErrInterrupted).
func (p *Pool[C]) Acquire(ctx context.Context) (*Lease[C], error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.WaitTimeout)
	defer cancel()

	res, err := p.res.Acquire(waitCtx)
	acquireWait.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			return nil, ErrClosed
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		case errors.Is(waitCtx.Err(), context.DeadlineExceeded):
			p.exhausted.Add(1)
			exhaustedTotal.Inc()
			return nil, fmt.Errorf("%w: no connection within %s, %d of %d leased",
				ErrExhausted, p.cfg.WaitTimeout, p.leased(), p.cfg.MaxTotal)
		default:
			return nil, fmt.Errorf("pool: connect: %w", err)
		}
	}

	l := &Lease[C]{pool: p, res: res, conn: res.Value(), acquired: time.Now()}
	p.mu.Lock()
	p.leases[l] = struct{}{}
	p.mu.Unlock()
	return l, nil
}

// Release returns l to the pool. See Lease.Release.
func (p *Pool[C]) Release(l *Lease[C]) {
	l.Release()
}

func (p *Pool[C]) Stat() Stat {
	s := p.res.Stat()
	return Stat{
		Total:        s.TotalResources(),
		Idle:         s.IdleResources(),
		Leased:       p.leased(),
		Constructing: s.ConstructingResources(),
		MaxTotal:     s.MaxResources(),
		Acquires:     s.AcquireCount(),
		Exhausted:    p.exhausted.Load(),
		Reclaimed:    p.reclaimed.Load(),
	}
}

func (p *Pool[C]) leased() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int32(len(p.leases))
}

func (p *Pool[C]) untrack(l *Lease[C]) {
	p.mu.Lock()
	delete(p.leases, l)
	p.mu.Unlock()
}

func (p *Pool[C]) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.maintain(now)
		}
	}
}

func (p *Pool[C]) maintain(now time.Time) {
	p.reclaimAbandoned(now)
	p.evictIdle()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WaitTimeout)
	defer cancel()
	if err := p.fillIdle(ctx); err != nil {
		p.logger.Warn("failed to top up idle connections", "error", err)
	}
}

func (p *Pool[C]) held() []*Lease[C] {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Lease[C], 0, len(p.leases))
	for l := range p.leases {
		out = append(out, l)
	}
	return out
}

// reclaim takes l back from its holder and destroys the connection. The
// holder may still be using it, so work in flight is interrupted first when
// the connector supports it. It reports false if l was already returned.
func (p *Pool[C]) reclaim(l *Lease[C]) bool {
	if !l.state.CompareAndSwap(leaseHeld, leaseReclaimed) {
		return false
	}
	p.untrack(l)
	if in, ok := p.connector.(Interrupter[C]); ok {
		in.Interrupt(l.conn)
	}
	l.res.Destroy()
	p.reclaimed.Add(1)
	reclaimedTotal.Inc()
	return true
}

// reclaimAbandoned destroys connections leased for longer than AbandonTimeout.
func (p *Pool[C]) reclaimAbandoned(now time.Time) {
	for _, l := range p.held() {
		if now.Sub(l.acquired) <= p.cfg.AbandonTimeout || !p.reclaim(l) {
			continue
		}
		p.logger.Warn("reclaimed abandoned connection",
			"held", now.Sub(l.acquired).Round(time.Millisecond),
			"abandon_timeout", p.cfg.AbandonTimeout,
		)
	}
}

// evictIdle closes unhealthy idle connections and those idle past
// MaxIdleTime, keeping at least MinIdle.
func (p *Pool[C]) evictIdle() {
	idle := p.res.AcquireAllIdle()
	keep := int32(len(idle))
	for _, r := range idle {
		if !p.connector.Healthy(r.Value()) {
			r.Destroy()
			keep--
			continue
		}
		if keep > p.cfg.MinIdle && r.IdleDuration() > p.cfg.MaxIdleTime {
			r.Destroy()
			keep--
			continue
		}
		r.ReleaseUnused()
	}
}

func (p *Pool[C]) fillIdle(ctx context.Context) error {
	for {
		s := p.res.Stat()
		if s.IdleResources()+s.ConstructingResources() >= p.cfg.MinIdle || s.TotalResources() >= s.MaxResources() {
			return nil
		}
		if err := p.res.CreateResource(ctx); err != nil {
			if errors.Is(err, puddle.ErrNotAvailable) {
				return nil
			}
			return err
		}
	}
}
