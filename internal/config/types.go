package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every knob the catalog service and its cache core read at
// startup.
type Config struct {
	Server ServerConfig `koanf:"server"`
	L1     L1Config     `koanf:"l1"`
	L2     L2Config     `koanf:"l2"`
	Lock   LockConfig   `koanf:"lock"`
	Warmer WarmerConfig `koanf:"warmer"`
}

// ServerConfig collects the bootstrap knobs for the HTTP lifecycle.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// L1Config configures the in-process tier (C1).
type L1Config struct {
	MaxSize   int           `koanf:"max_size"`
	TTLWrite  time.Duration `koanf:"ttl_write"`
	TTLAccess time.Duration `koanf:"ttl_access"`
}

// L2Config configures the shared network tier (C2).
type L2Config struct {
	Address        string                   `koanf:"address"`
	Username       string                   `koanf:"username"`
	Password       string                   `koanf:"password"`
	DB             int                      `koanf:"db"`
	TLS            L2TLSConfig              `koanf:"tls"`
	ConnectTimeout time.Duration            `koanf:"connect_timeout"`
	DefaultTTL     time.Duration            `koanf:"default_ttl"`
	TTL            map[string]time.Duration `koanf:"ttl"`
	Pool           L2PoolConfig             `koanf:"pool"`
}

// L2TLSConfig configures TLS to the shared backend.
type L2TLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"ca_file"`
}

// L2PoolConfig carries the connection pool knobs named in the configuration
// surface. See internal/catalog/cache.SharedConfig for how (and whether) a
// given client library consumes them.
type L2PoolConfig struct {
	MinIdle int `koanf:"min_idle"`
	MaxSize int `koanf:"max_size"`
}

// LockConfig configures the stampede guard (C4).
type LockConfig struct {
	WaitTimeout  time.Duration `koanf:"wait_timeout"`
	LeaseTimeout time.Duration `koanf:"lease_timeout"`
}

// WarmerConfig configures the startup/on-demand cache warmer.
type WarmerConfig struct {
	TopN          int `koanf:"top_n"`
	NewArrivalsN  int `koanf:"new_arrivals_n"`
}

// Namespace TTL keys, matched against L2.TTL by TTLFor when the entrypoint
// resolves each namespace's override over L2.DefaultTTL.
const (
	NamespaceKeyProductByID    = "productById"
	NamespaceKeyProducts       = "products"
	NamespaceKeyCategories     = "categories"
	NamespaceKeySearchResults  = "searchResults"
	NamespaceKeyPriceRange     = "priceRange"
)

// TTLFor resolves the effective L2 TTL for namespace, falling back to
// DefaultTTL when no override is configured.
func (c L2Config) TTLFor(namespace string) time.Duration {
	if ttl, ok := c.TTL[namespace]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}

// Validate enforces invariants that keep the runtime predictable before
// serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	switch strings.ToLower(c.Server.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("config: server.logging.level unsupported: %s", c.Server.Logging.Level)
	}
	switch strings.ToLower(c.Server.Logging.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("config: server.logging.format unsupported: %s", c.Server.Logging.Format)
	}
	if c.L1.MaxSize <= 0 {
		return fmt.Errorf("config: l1.max_size invalid: %d", c.L1.MaxSize)
	}
	if c.L1.TTLWrite <= 0 {
		return fmt.Errorf("config: l1.ttl_write invalid: %s", c.L1.TTLWrite)
	}
	if strings.TrimSpace(c.L2.Address) == "" {
		return errors.New("config: l2.address required")
	}
	if c.L2.DefaultTTL <= 0 {
		return fmt.Errorf("config: l2.default_ttl invalid: %s", c.L2.DefaultTTL)
	}
	if c.Lock.WaitTimeout <= 0 {
		return fmt.Errorf("config: lock.wait_timeout invalid: %s", c.Lock.WaitTimeout)
	}
	if c.Lock.LeaseTimeout <= 0 {
		return fmt.Errorf("config: lock.lease_timeout invalid: %s", c.Lock.LeaseTimeout)
	}
	if c.Warmer.TopN <= 0 {
		return fmt.Errorf("config: warmer.top_n invalid: %d", c.Warmer.TopN)
	}
	if c.Warmer.NewArrivalsN <= 0 {
		return fmt.Errorf("config: warmer.new_arrivals_n invalid: %d", c.Warmer.NewArrivalsN)
	}
	return nil
}

// DefaultConfig returns the baseline values named in the design defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		},
		L1: L1Config{
			MaxSize:   10_000,
			TTLWrite:  5 * time.Minute,
			TTLAccess: 3 * time.Minute,
		},
		L2: L2Config{
			Address:        "127.0.0.1:6379",
			ConnectTimeout: 3 * time.Second,
			DefaultTTL:     10 * time.Minute,
			TTL: map[string]time.Duration{
				NamespaceKeyProductByID:   15 * time.Minute,
				NamespaceKeyProducts:      10 * time.Minute,
				NamespaceKeyCategories:    60 * time.Minute,
				NamespaceKeySearchResults: 5 * time.Minute,
				NamespaceKeyPriceRange:    3 * time.Minute,
			},
			Pool: L2PoolConfig{
				MinIdle: 10,
				MaxSize: 50,
			},
		},
		Lock: LockConfig{
			WaitTimeout:  5 * time.Second,
			LeaseTimeout: 10 * time.Second,
		},
		Warmer: WarmerConfig{
			TopN:         100,
			NewArrivalsN: 10,
		},
	}
}
