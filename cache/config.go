package cache

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-fixture-cache/internal/cacheinfra"
)

const (
	// DefaultTimeout is how long a created fixture stays eligible for replay.
	DefaultTimeout = 15 * time.Minute

	// DefaultCreateTimeout bounds a single creation call.
	DefaultCreateTimeout = 20 * time.Second

	// EnvPrefix is prepended to every environment variable read by LoadConfig.
	EnvPrefix = "FIXTURE_CACHE_"
)

// ConfigError represents a configuration validation error.
type ConfigError = cacheinfra.ConfigError

// CreateError wraps failures returned by the default executor.
type CreateError = cacheinfra.CreateError

// PanicError is the cause of a CreateError when the creation function panicked.
type PanicError = cacheinfra.PanicError

// Config controls the replay cache.
type Config struct {
	// Enabled is the global switch checked by factory layers before they
	// consult the cache.
	Enabled bool `env:"ENABLED"`

	// Timeout is the replay window. Entries created at or before
	// now-Timeout are never replayed.
	Timeout time.Duration `env:"TIMEOUT"`

	// CreateTimeout bounds each creation call. Zero disables the deadline.
	CreateTimeout time.Duration `env:"CREATE_TIMEOUT"`

	// Metadata sizes the store that memoizes relation field classification.
	Metadata MetadataConfig `envPrefix:"METADATA_"`

	// PartitionKey adds a secondary cache dimension, such as the active locale.
	PartitionKey KeyFunc
}

// MetadataConfig exposes the metadata store options.
type MetadataConfig struct {
	Capacity           int           `env:"CAPACITY"`
	NumShards          int           `env:"SHARDS"`
	TTL                time.Duration `env:"TTL"`
	EvictionPercentage int           `env:"EVICTION_PERCENTAGE"`
	EvictionInterval   time.Duration `env:"EVICTION_INTERVAL"`
}

// DefaultConfig returns a Config populated with sensible defaults.
// Caching starts disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		Timeout:       DefaultTimeout,
		CreateTimeout: DefaultCreateTimeout,
		Metadata:      convertFromInternal(cacheinfra.DefaultConfig()),
	}
}

// LoadConfig reads FIXTURE_CACHE_* environment variables on top of the
// defaults and validates the result.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Timeout,
			validation.Required.Error("must be greater than 0"),
			validation.Min(1).Error("must be greater than 0")),
		validation.Field(&c.CreateTimeout,
			validation.Min(0).Error("must be non-negative")),
	)
	if err := cacheinfra.AsConfigError(err, ""); err != nil {
		return err
	}

	if err := c.Metadata.toInternal().Validate(); err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return &ConfigError{Field: "Metadata." + cfgErr.Field, Message: cfgErr.Message}
		}
		return err
	}
	return nil
}

func (c MetadataConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) MetadataConfig {
	return MetadataConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
