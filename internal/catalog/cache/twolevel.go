package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Tag identifies which tier satisfied a GetOrLoad call, for observability.
type Tag string

const (
	TagL1     Tag = "L1"
	TagL2     Tag = "L2"
	TagOrigin Tag = "ORIGIN"
)

// GetOrLoadOptions controls a single GetOrLoad call.
type GetOrLoadOptions struct {
	// L2TTL is the absolute expiry written to the shared tier on an
	// ORIGIN resolution. Zero disables the shared tier write for this
	// call (but the value is still written to L1 if one is configured).
	L2TTL time.Duration

	// Singleflight wraps the loader call with the stampede guard under
	// lock key "lock:"+key.Wire(). When the guard is nil this is a no-op
	// regardless of the flag.
	Singleflight bool
	// WaitTimeout / LeaseTimeout configure the stampede guard when
	// Singleflight is set.
	WaitTimeout  time.Duration
	LeaseTimeout time.Duration
}

// TwoLevel is the read-through composite that orchestrates L1 (LocalCache)
// and L2 (SharedCache) in front of a loader. L1 may be nil, in which case
// every operation degrades to an L2-fronted cache with no backfill tier;
// this lets the catalog service opt individual operations into the faster
// tier without giving every namespace an L1 footprint.
type TwoLevel[T any] struct {
	l1    *LocalCache
	l2    *SharedCache
	codec Codec
	guard *StampedeGuard

	metrics MetricsSink
}

// TwoLevelOptions configures a TwoLevel instance.
type TwoLevelOptions struct {
	L1      *LocalCache
	L2      *SharedCache
	Codec   Codec
	Guard   *StampedeGuard
	Metrics MetricsSink
}

// NewTwoLevel constructs a TwoLevel composite. L2 and Codec are required;
// L1 and Guard are optional.
func NewTwoLevel[T any](opts TwoLevelOptions) *TwoLevel[T] {
	codec := opts.Codec
	if codec == nil {
		codec = JSONCodec{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics
	}
	return &TwoLevel[T]{
		l1:      opts.L1,
		l2:      opts.L2,
		codec:   codec,
		guard:   opts.Guard,
		metrics: metrics,
	}
}

// GetOrLoad probes L1 then L2, falling through to loader on a full miss. On
// an L2 hit it backfills L1 (with L1's own TTL policy) so a subsequent read
// finds it in the faster tier. On a full miss, the loaded value is written
// to L2 (with opts.L2TTL) and then L1 before being returned. A loader error
// is never cached at either tier.
func (t *TwoLevel[T]) GetOrLoad(ctx context.Context, key Key, loader Body[T], opts GetOrLoadOptions) (T, Tag, error) {
	start := time.Now()
	value, tag, err := t.getOrLoad(ctx, key, loader, opts)
	if err == nil {
		t.metrics.ObserveLoadDuration(string(tag), time.Since(start))
	}
	return value, tag, err
}

func (t *TwoLevel[T]) getOrLoad(ctx context.Context, key Key, loader Body[T], opts GetOrLoadOptions) (T, Tag, error) {
	var zero T

	if v, ok := t.probeL1(ctx, key); ok {
		t.metrics.ObserveCacheHit("l1")
		return v, TagL1, nil
	}

	if v, ok, err := t.probeL2(ctx, key); err != nil {
		// Soft failure: fall through to the loader as if it were a miss.
		t.metrics.ObserveTierUnavailable("get")
	} else if ok {
		t.metrics.ObserveCacheHit("l2")
		t.backfillL1(ctx, key, v)
		return v, TagL2, nil
	}

	runLoader := loader
	if opts.Singleflight && t.guard != nil {
		return t.loadWithSingleflight(ctx, key, runLoader, opts)
	}

	value, err := runLoader(ctx)
	if err != nil {
		return zero, "", err
	}
	t.writeThrough(ctx, key, value, opts.L2TTL)
	t.metrics.ObserveCacheMiss()
	return value, TagOrigin, nil
}

// loadWithSingleflight wraps the loader in the stampede guard. Per the
// design, once the lock is held the caller must re-check the cache before
// invoking the loader: a prior holder may have populated it during the
// wait, and without this re-check singleflight degenerates to serialized
// loads instead of a single shared load.
func (t *TwoLevel[T]) loadWithSingleflight(ctx context.Context, key Key, loader Body[T], opts GetOrLoadOptions) (T, Tag, error) {
	var zero T
	lockKey := "lock:" + key.Wire()

	result, err := WithLock(ctx, t.guard, lockKey, opts.WaitTimeout, opts.LeaseTimeout, func(ctx context.Context) (T, error) {
		if v, ok := t.probeL1(ctx, key); ok {
			return v, errAlreadyCached[T]{tag: TagL1, value: v}
		}
		if v, ok, err := t.probeL2(ctx, key); err == nil && ok {
			t.backfillL1(ctx, key, v)
			return v, errAlreadyCached[T]{tag: TagL2, value: v}
		}
		value, err := loader(ctx)
		if err != nil {
			return value, err
		}
		t.writeThrough(ctx, key, value, opts.L2TTL)
		return value, nil
	})

	switch e := err.(type) {
	case nil:
		t.metrics.ObserveCacheMiss()
		return result, TagOrigin, nil
	case errAlreadyCached[T]:
		t.metrics.ObserveCacheHit(e.tierLabel())
		return e.value, e.tag, nil
	}

	var acquireErr lockAcquireError
	if err == ErrLockTimeout || errors.As(err, &acquireErr) {
		// Degraded mode: the lock could not be acquired (timed out, or
		// the lock store itself is unreachable). Fall through to an
		// unprotected load, accepting one extra store hit per waiting
		// caller, but correctness is preserved.
		value, loadErr := loader(ctx)
		if loadErr != nil {
			return zero, "", loadErr
		}
		t.writeThrough(ctx, key, value, opts.L2TTL)
		return value, TagOrigin, nil
	}

	// Anything else came from inside the guarded body: a genuine loader
	// failure, propagated unchanged.
	return zero, "", err
}

// errAlreadyCached is returned (not as a real error) by the WithLock body to
// signal "don't treat this as an ORIGIN resolution" while still flowing
// through the same error-typed return path WithLock provides. It is never
// surfaced to callers of GetOrLoad.
type errAlreadyCached[T any] struct {
	tag   Tag
	value T
}

func (e errAlreadyCached[T]) Error() string { return "cache: already cached (" + string(e.tag) + ")" }

func (e errAlreadyCached[T]) tierLabel() string {
	if e.tag == TagL1 {
		return "l1"
	}
	return "l2"
}

func (t *TwoLevel[T]) probeL1(ctx context.Context, key Key) (T, bool) {
	var zero T
	if t.l1 == nil {
		return zero, false
	}
	v, ok := t.l1.Get(ctx, key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

func (t *TwoLevel[T]) probeL2(ctx context.Context, key Key) (T, bool, error) {
	var zero T
	payload, ok, err := t.l2.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	var target T
	decoded, err := t.codec.Decode(payload, &target)
	if err != nil {
		return zero, false, nil // CodecError: treat as miss on read
	}
	return *decoded.(*T), true, nil
}

func (t *TwoLevel[T]) backfillL1(ctx context.Context, key Key, value T) {
	if t.l1 == nil {
		return
	}
	t.l1.Put(ctx, key, value, 0)
}

func (t *TwoLevel[T]) writeThrough(ctx context.Context, key Key, value T, l2TTL time.Duration) {
	if payload, err := t.codec.Encode(value); err == nil {
		if err := t.l2.Put(ctx, key, payload, l2TTL); err != nil {
			t.metrics.ObserveTierUnavailable("put")
		}
	}
	if t.l1 != nil {
		t.l1.Put(ctx, key, value, 0)
	}
}

// Put writes value straight through L2 then L1, bypassing the loader path.
// This is what the catalog service's warmer and mutation handlers use.
func (t *TwoLevel[T]) Put(ctx context.Context, key Key, value T, l2TTL time.Duration) error {
	payload, err := t.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if err := t.l2.Put(ctx, key, payload, l2TTL); err != nil {
		t.metrics.ObserveTierUnavailable("put")
	}
	if t.l1 != nil {
		t.l1.Put(ctx, key, value, 0)
	}
	return nil
}

// Invalidate removes key from L1 then L2. L1 is invalidated first so a
// racing reader cannot repopulate L1 from a stale L2 read that began after
// the L2 invalidation started.
func (t *TwoLevel[T]) Invalidate(ctx context.Context, key Key) error {
	if t.l1 != nil {
		t.l1.Invalidate(ctx, key)
	}
	if err := t.l2.Invalidate(ctx, key); err != nil {
		t.metrics.ObserveTierUnavailable("invalidate")
		return err
	}
	return nil
}

// InvalidateNamespace removes every key in namespace from both tiers.
func (t *TwoLevel[T]) InvalidateNamespace(ctx context.Context, namespace string) error {
	if t.l1 != nil {
		t.l1.InvalidateNamespace(ctx, namespace)
	}
	if err := t.l2.InvalidateNamespace(ctx, namespace); err != nil {
		t.metrics.ObserveTierUnavailable("invalidate_namespace")
		return err
	}
	return nil
}
