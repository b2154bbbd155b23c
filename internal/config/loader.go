package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/autodist/pkg/logger"
)

const (
	envPrefix = "AUTODIST_"
	// PathEnv names the optional YAML file.
	PathEnv = envPrefix + "CONFIG"
)

var validate = validator.New()

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if AUTODIST_CONFIG is set
//  3. env (prefix AUTODIST_)
func Load(ctx context.Context) (*Config, error) {
	return LoadFile(ctx, os.Getenv(PathEnv))
}

// LoadFile is Load with an explicit file path; an empty path skips the file.
func LoadFile(_ context.Context, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// AUTODIST_BUS__QUEUE_SIZE -> bus.queue_size. Single underscores stay so
	// keys match the koanf tags.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if key == "manager_roles" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if len(cfg.ManagerRoles) == 0 {
		cfg.ManagerRoles = append([]string(nil), DefaultManagerRoles...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the distribution invariants.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Distribution.Validate(); err != nil {
		return fmt.Errorf("%w: distribution: %v", ErrInvalidConfig, err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Watcher reloads the config file when it changes.
type Watcher struct {
	path     string
	fp       *file.File
	log      logger.Logger
	onChange func(context.Context, *Config)
	once     sync.Once
}

// Watch starts watching path and calls onChange with every reloaded config
// that validates. Invalid edits are logged and skipped.
func Watch(ctx context.Context, path string, log logger.Logger, onChange func(context.Context, *Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no config file", ErrWatchConfig)
	}
	w := &Watcher{
		path:     path,
		fp:       file.Provider(path),
		log:      logger.OrNop(log),
		onChange: onChange,
	}
	err := w.fp.Watch(func(_ any, err error) {
		if err != nil {
			w.log.Warn(ctx, "config watch error", logger.Error(err))
			return
		}
		cfg, err := LoadFile(ctx, w.path)
		if err != nil {
			w.log.Warn(ctx, "config reload rejected", logger.String("path", w.path), logger.Error(err))
			return
		}
		w.log.Info(ctx, "config reloaded", logger.String("path", w.path))
		w.onChange(ctx, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWatchConfig, path, err)
	}
	return w, nil
}

// Stop ends the watch.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() { err = w.fp.Unwatch() })
	return err
}
