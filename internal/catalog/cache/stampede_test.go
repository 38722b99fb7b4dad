package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	valkey "github.com/valkey-io/valkey-go"
)

func newTestGuard(t *testing.T) (*StampedeGuard, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{server.Addr()},
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return NewStampedeGuard(StampedeOptions{Client: client, PollEvery: 5 * time.Millisecond}), server
}

func TestWithLockRunsBodyOnce(t *testing.T) {
	g, _ := newTestGuard(t)
	var calls atomic.Int32

	result, err := WithLock(context.Background(), g, "lock:productById::1", time.Second, time.Second, func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "loaded", nil
	})

	require.NoError(t, err)
	require.Equal(t, "loaded", result)
	require.Equal(t, int32(1), calls.Load())
}

func TestWithLockSerializesConcurrentCallers(t *testing.T) {
	g, _ := newTestGuard(t)
	var running, maxConcurrent atomic.Int32

	run := func() (int, error) {
		return WithLock(context.Background(), g, "lock:productById::1", time.Second, 2*time.Second, func(ctx context.Context) (int, error) {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				current := maxConcurrent.Load()
				if n <= current || maxConcurrent.CompareAndSwap(current, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return 1, nil
		})
	}

	done := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := run()
			done <- err
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, <-done)
	}
	require.Equal(t, int32(1), maxConcurrent.Load(), "expected WithLock to serialize every concurrent caller on the same key")
}

func TestWithLockPropagatesBodyError(t *testing.T) {
	g, _ := newTestGuard(t)
	wantErr := errors.New("loader failed")

	_, err := WithLock(context.Background(), g, "lock:productById::1", time.Second, time.Second, func(ctx context.Context) (string, error) {
		return "", wantErr
	})

	require.ErrorIs(t, err, wantErr)
}

func TestWithLockTimesOutWhenHeldByAnotherHolder(t *testing.T) {
	g, server := newTestGuard(t)
	require.NoError(t, server.Set("lock:productById::1", "other-holder"))

	_, err := WithLock(context.Background(), g, "lock:productById::1", 30*time.Millisecond, time.Second, func(ctx context.Context) (string, error) {
		t.Fatal("body should not run when the lock is already held")
		return "", nil
	})

	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestWithLockReportsStateTransitionsOnCleanExit(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{server.Addr()},
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	var mu sync.Mutex
	var states []LockState
	g := NewStampedeGuard(StampedeOptions{
		Client:    client,
		PollEvery: 5 * time.Millisecond,
		OnStateChange: func(_ string, state LockState) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, state)
		},
	})

	_, err = WithLock(context.Background(), g, "lock:productById::1", time.Second, time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []LockState{LockStateWaiting, LockStateHeld, LockStateReleased}, states)
}

func TestWithLockReleasesLockOnExit(t *testing.T) {
	g, server := newTestGuard(t)

	_, err := WithLock(context.Background(), g, "lock:productById::1", time.Second, time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.False(t, server.Exists("lock:productById::1"), "expected lock key to be released after WithLock returns")
}
