package cache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// SharedTLSConfig configures TLS to the shared cache backend.
type SharedTLSConfig struct {
	Enabled bool
	CAFile  string
}

// SharedConfig configures a SharedCache instance.
type SharedConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      SharedTLSConfig

	// ConnectTimeout bounds every round-trip issued against the backend.
	ConnectTimeout time.Duration

	// PoolMinIdle and PoolMaxSize are carried for config-surface parity
	// with the design's connection pool knobs. valkey-go multiplexes
	// commands over a small internally-managed connection set rather than
	// a traditional idle/max pool, so these are not threaded into the
	// client option struct; they are retained so operators can still see
	// and validate them in the configuration file.
	PoolMinIdle int
	PoolMaxSize int
}

// SharedCache is the thin adapter over the shared network key-value store
// (Tier-2). It speaks raw bytes produced by a Codec; the composite owns
// encoding.
type SharedCache struct {
	client  valkey.Client
	timeout time.Duration
}

// NewShared dials the shared cache backend and verifies it is reachable
// before returning.
func NewShared(cfg SharedConfig) (*SharedCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("cache: shared backend address required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil, fmt.Errorf("cache: read shared backend ca file: %w", err)
				}
				return nil, fmt.Errorf("cache: read shared backend ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("cache: shared backend ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("cache: shared backend client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: shared backend ping: %w", err)
	}

	return &SharedCache{client: client, timeout: timeout}, nil
}

// NewSharedFromClient wraps an already-constructed valkey.Client, letting
// tests point a SharedCache at a miniredis instance without duplicating the
// dial/TLS plumbing above.
func NewSharedFromClient(client valkey.Client, timeout time.Duration) *SharedCache {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &SharedCache{client: client, timeout: timeout}
}

// Client exposes the underlying valkey client so collaborators that need to
// share the same connection (the stampede guard's lock commands) don't have
// to dial a second one.
func (c *SharedCache) Client() valkey.Client {
	return c.client
}

func (c *SharedCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Get returns the raw bytes stored under key, or (nil, false, nil) on a
// clean miss. A backend failure is reported as ErrTierUnavailable so the
// composite can treat it as a soft miss.
func (c *SharedCache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp := c.client.Do(ctx, c.client.B().Get().Key(key.Wire()).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: get: %v", ErrTierUnavailable, err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("%w: get bytes: %v", ErrTierUnavailable, err)
	}
	return payload, true, nil
}

// Put stores payload under key with an absolute expiry of now+ttl. ttl <= 0
// is a no-op: the design forbids caching without an expiry at this tier.
func (c *SharedCache) Put(ctx context.Context, key Key, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cmd := c.client.B().Set().Key(key.Wire()).Value(string(payload)).Px(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrTierUnavailable, err)
	}
	return nil
}

// Invalidate deletes key unconditionally.
func (c *SharedCache) Invalidate(ctx context.Context, key Key) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Do(ctx, c.client.B().Del().Key(key.Wire()).Build()).Error(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrTierUnavailable, err)
	}
	return nil
}

// InvalidateNamespace deletes every key whose prefix matches
// namespace+"::". It scans in batches rather than using KEYS so a large
// namespace doesn't block the shared backend for other callers.
func (c *SharedCache) InvalidateNamespace(ctx context.Context, namespace string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	pattern := NamespacePrefix(namespace) + "*"
	var cursor uint64
	for {
		cmd := c.client.B().Scan().Cursor(cursor).Match(pattern).Count(256).Build()
		entry, err := c.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return fmt.Errorf("%w: scan: %v", ErrTierUnavailable, err)
		}
		if len(entry.Elements) > 0 {
			del := c.client.B().Del().Key(entry.Elements...).Build()
			if err := c.client.Do(ctx, del).Error(); err != nil {
				return fmt.Errorf("%w: del batch: %v", ErrTierUnavailable, err)
			}
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

// Ping reports whether the shared backend is reachable.
func (c *SharedCache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrTierUnavailable, err)
	}
	return nil
}

// Close releases the underlying client connection.
func (c *SharedCache) Close() {
	c.client.Close()
}
