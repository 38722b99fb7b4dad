package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	valkey "github.com/valkey-io/valkey-go"

	"github.com/l0p7/catalogcache/internal/catalog/clock"
)

// releaseScript performs the conditional delete a distributed mutex needs:
// a holder may only clear a lock it still owns. A blind DEL would let a
// slow holder evict a fresh acquirer's lock.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// extendScript renews the lease on a lock the caller still owns. Used by the
// watchdog goroutine that keeps a long-running body's lock alive without
// letting it outlive its lease indefinitely.
const extendScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
else
  return 0
end`

// LockState is the terminal or in-flight state of a StampedeGuard.WithLock
// call, exposed mainly for tests and logging.
type LockState string

const (
	LockStateIdle         LockState = "IDLE"
	LockStateWaiting      LockState = "WAITING"
	LockStateHeld         LockState = "HELD"
	LockStateReleased     LockState = "RELEASED"
	LockStateLeaseExpired LockState = "LEASE_EXPIRED"
)

// StampedeGuard ensures at most one concurrent loader per key across the
// cluster, using the shared backend as the lock store. It is the mechanism
// behind the per-key singleflight coordination the design requires.
type StampedeGuard struct {
	client     valkey.Client
	pollEvery  time.Duration
	clock      clock.Clock
	metrics    MetricsSink
	onState    func(lockKey string, state LockState)
}

// StampedeOptions configures a StampedeGuard.
type StampedeOptions struct {
	Client    valkey.Client
	PollEvery time.Duration
	Clock     clock.Clock
	Metrics   MetricsSink
	// OnStateChange, if set, is called as WithLock moves a lock key through
	// LockStateWaiting -> LockStateHeld -> LockStateReleased|LockStateLeaseExpired.
	// Tests and logging use it to assert or record the state machine the
	// design names; production callers may leave it nil.
	OnStateChange func(lockKey string, state LockState)
}

// NewStampedeGuard constructs a guard backed by client.
func NewStampedeGuard(opts StampedeOptions) *StampedeGuard {
	if opts.PollEvery <= 0 {
		opts.PollEvery = 25 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics
	}
	if opts.OnStateChange == nil {
		opts.OnStateChange = func(string, LockState) {}
	}
	return &StampedeGuard{
		client:    opts.Client,
		pollEvery: opts.PollEvery,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		onState:   opts.OnStateChange,
	}
}

// lockAcquireError wraps a genuine failure to even attempt acquisition (the
// lock store itself was unreachable), as distinct from ErrLockTimeout
// (reachable, but the lock was held past waitTimeout) and from a loader
// error returned by body once the lock was held.
type lockAcquireError struct{ err error }

func (e lockAcquireError) Error() string { return fmt.Sprintf("cache: lock acquire: %v", e.err) }
func (e lockAcquireError) Unwrap() error { return e.err }

// Body is the protected critical section passed to WithLock. ctx is derived
// from the caller's context and is cancelled if the watchdog discovers the
// lease could not be renewed (i.e. another acquirer believes it now owns the
// lock); per the design, body is still allowed to run to completion and
// write back its result, it just must not assume continued exclusivity.
type Body[T any] func(ctx context.Context) (T, error)

// WithLock attempts to acquire a cluster-wide mutual-exclusion lock on
// lockKey within waitTimeout, runs body while held, and releases the lock
// (conditional on holder identity) on every exit path. If the lock cannot be
// acquired within waitTimeout, it returns ErrLockTimeout and the caller is
// expected to fall through to an unprotected load.
func WithLock[T any](ctx context.Context, g *StampedeGuard, lockKey string, waitTimeout, leaseTimeout time.Duration, body Body[T]) (T, error) {
	var zero T
	holder := uuid.NewString()
	g.onState(lockKey, LockStateWaiting)
	acquiredAt, ok, err := g.acquire(ctx, lockKey, holder, waitTimeout, leaseTimeout)
	if err != nil {
		return zero, lockAcquireError{err: err}
	}
	if !ok {
		g.metrics.ObserveLockAcquire("timeout")
		return zero, ErrLockTimeout
	}
	g.metrics.ObserveLockAcquire("acquired")
	g.onState(lockKey, LockStateHeld)

	bodyCtx, cancel := context.WithCancel(ctx)
	var leaseExpired atomic.Bool
	watchdogDone := make(chan struct{})
	go g.watchdog(bodyCtx, lockKey, holder, leaseTimeout, cancel, watchdogDone, &leaseExpired)

	defer func() {
		cancel()
		<-watchdogDone
		g.release(context.Background(), lockKey, holder)
		g.metrics.ObserveLockHold(g.clock.Now().Sub(acquiredAt))
		if leaseExpired.Load() {
			g.onState(lockKey, LockStateLeaseExpired)
		} else {
			g.onState(lockKey, LockStateReleased)
		}
	}()

	return body(bodyCtx)
}

// acquire polls SET NX PX until it succeeds or waitTimeout elapses.
func (g *StampedeGuard) acquire(ctx context.Context, lockKey, holder string, waitTimeout, leaseTimeout time.Duration) (time.Time, bool, error) {
	deadline := g.clock.Now().Add(waitTimeout)
	ticker := time.NewTicker(g.pollEvery)
	defer ticker.Stop()

	for {
		cmd := g.client.B().Set().Key(lockKey).Value(holder).Nx().Px(leaseTimeout).Build()
		resp := g.client.Do(ctx, cmd)
		if err := resp.Error(); err == nil {
			return g.clock.Now(), true, nil
		} else if !errors.Is(err, valkey.Nil) {
			return time.Time{}, false, err
		}

		if g.clock.Now().After(deadline) {
			return time.Time{}, false, nil
		}
		select {
		case <-ctx.Done():
			return time.Time{}, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// release performs the conditional delete. Errors are swallowed (the lock
// will expire via its lease regardless); callers only use release as an
// optimization to free the key early.
func (g *StampedeGuard) release(ctx context.Context, lockKey, holder string) {
	cmd := g.client.B().Eval().Script(releaseScript).Numkeys(1).Key(lockKey).Arg(holder).Build()
	_ = g.client.Do(ctx, cmd).Error()
}

// watchdog periodically extends the lease while body is running. If an
// extend attempt finds the key no longer owned by holder (the lease expired
// and someone else acquired it first), it cancels bodyCancel so the caller
// can see exclusivity was lost without forcibly aborting body.
func (g *StampedeGuard) watchdog(ctx context.Context, lockKey, holder string, leaseTimeout time.Duration, bodyCancel context.CancelFunc, done chan<- struct{}, leaseExpired *atomic.Bool) {
	defer close(done)
	interval := leaseTimeout / 3
	if interval <= 0 {
		interval = leaseTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cmd := g.client.B().Eval().Script(extendScript).Numkeys(1).Key(lockKey).Arg(holder).Arg(fmt.Sprintf("%d", leaseTimeout.Milliseconds())).Build()
			n, err := g.client.Do(ctx, cmd).ToInt64()
			if err != nil || n == 0 {
				leaseExpired.Store(true)
				bodyCancel()
				return
			}
		}
	}
}
