package cacheinfra

import (
	"errors"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backed metadata store.
type Config struct {
	// Capacity defines the maximum number of entity types the store keeps.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards.
	// Must be greater than 0. Default: 16
	NumShards int

	// TTL controls how long relation metadata is trusted before the
	// classifier is consulted again. Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often the store checks for expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config sized for a typical test suite.
func DefaultConfig() Config {
	return Config{
		Capacity:           1024,
		NumShards:          16,
		TTL:                time.Hour,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions maps the optional settings to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity,
			validation.Required.Error("must be greater than 0"),
			validation.Min(1).Error("must be greater than 0")),
		validation.Field(&c.NumShards,
			validation.Required.Error("must be greater than 0"),
			validation.Min(1).Error("must be greater than 0")),
		validation.Field(&c.TTL,
			validation.Required.Error("must be greater than 0"),
			validation.Min(1).Error("must be greater than 0")),
		validation.Field(&c.EvictionPercentage,
			validation.Required.Error("must be between 1 and 100"),
			validation.Min(1).Error("must be between 1 and 100"),
			validation.Max(100).Error("must be between 1 and 100")),
		validation.Field(&c.EvictionInterval,
			validation.Min(0).Error("must be non-negative")),
	)
	return AsConfigError(err, "")
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// AsConfigError converts ozzo validation errors into a *ConfigError for the
// first failing field in alphabetical order. Field names get prefix prepended.
// Errors that are not validation errors are returned unchanged.
func AsConfigError(err error, prefix string) error {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	first := fields[0]
	fieldErr := verrs[first]

	var nested validation.Errors
	if errors.As(fieldErr, &nested) {
		return AsConfigError(nested, prefix+first+".")
	}

	msg := fieldErr.Error()
	var vErr validation.Error
	if errors.As(fieldErr, &vErr) {
		msg = vErr.Message()
	}
	return &ConfigError{Field: prefix + first, Message: msg}
}
