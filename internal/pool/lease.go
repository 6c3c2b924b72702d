package pool

import (
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
)

const (
	leaseHeld int32 = iota
	leaseReleased
	leaseReclaimed
)

// Lease is a connection exclusively owned by one caller until released.
// A lease must not be shared between concurrent operations.
type Lease[C any] struct {
	pool     *Pool[C]
	res      *puddle.Resource[C]
	conn     C
	acquired time.Time
	state    atomic.Int32
}

func (l *Lease[C]) Conn() C {
	return l.conn
}

// Held is the time since the lease was acquired.
func (l *Lease[C]) Held() time.Duration {
	return time.Since(l.acquired)
}

// Release returns the connection for reuse, or closes it when the connector
// reports it unhealthy. Calls after the first, or after the lease was
// reclaimed, do nothing.
func (l *Lease[C]) Release() {
	if !l.state.CompareAndSwap(leaseHeld, leaseReleased) {
		return
	}
	l.pool.untrack(l)
	if l.pool.connector.Healthy(l.conn) {
		l.res.Release()
		return
	}
	l.res.Destroy()
}

// Destroy closes the connection instead of returning it.
func (l *Lease[C]) Destroy() {
	if !l.state.CompareAndSwap(leaseHeld, leaseReleased) {
		return
	}
	l.pool.untrack(l)
	l.res.Destroy()
}

// Reclaimed reports whether the pool took the connection back after the
// abandonment timeout.
func (l *Lease[C]) Reclaimed() bool {
	return l.state.Load() == leaseReclaimed
}
