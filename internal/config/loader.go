package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file >
// default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract
// before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective configuration snapshot.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		transform := func(s string) string {
			// Double underscores signal a nested path
			// (CATALOG_L2__POOL__MAX_SIZE -> l2.pool.max_size).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap
// provider, preserving the namespace TTL overrides.
func structToMap(cfg Config) map[string]any {
	ttl := make(map[string]any, len(cfg.L2.TTL))
	for ns, d := range cfg.L2.TTL {
		ttl[ns] = d.String()
	}
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
		},
		"l1": map[string]any{
			"max_size":   cfg.L1.MaxSize,
			"ttl_write":  cfg.L1.TTLWrite.String(),
			"ttl_access": cfg.L1.TTLAccess.String(),
		},
		"l2": map[string]any{
			"address":         cfg.L2.Address,
			"username":        cfg.L2.Username,
			"password":        cfg.L2.Password,
			"db":              cfg.L2.DB,
			"connect_timeout": cfg.L2.ConnectTimeout.String(),
			"default_ttl":     cfg.L2.DefaultTTL.String(),
			"ttl":             ttl,
			"tls": map[string]any{
				"enabled": cfg.L2.TLS.Enabled,
				"ca_file": cfg.L2.TLS.CAFile,
			},
			"pool": map[string]any{
				"min_idle": cfg.L2.Pool.MinIdle,
				"max_size": cfg.L2.Pool.MaxSize,
			},
		},
		"lock": map[string]any{
			"wait_timeout":  cfg.Lock.WaitTimeout.String(),
			"lease_timeout": cfg.Lock.LeaseTimeout.String(),
		},
		"warmer": map[string]any{
			"top_n":           cfg.Warmer.TopN,
			"new_arrivals_n":  cfg.Warmer.NewArrivalsN,
		},
	}
}
