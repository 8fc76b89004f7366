package cacheinfra

import (
	"context"

	"github.com/viccon/sturdyc"
)

// MetadataStore memoizes per entity type metadata, such as relation field
// classification, in a sturdyc client. Computations that fail are not stored.
type MetadataStore[T any] struct {
	client *sturdyc.Client[T]
	config Config
}

// NewMetadataStore validates cfg and initializes the underlying sturdyc client.
func NewMetadataStore[T any](cfg Config) (*MetadataStore[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[T](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &MetadataStore[T]{client: client, config: cfg}, nil
}

// GetOrCompute returns the value stored for key, calling compute on a miss.
// Concurrent misses for the same key share a single compute call.
func (s *MetadataStore[T]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	return s.client.GetOrFetch(ctx, key, compute)
}

// Forget removes the value stored for key.
func (s *MetadataStore[T]) Forget(key string) {
	s.client.Delete(key)
}

// Size returns the number of stored values.
func (s *MetadataStore[T]) Size() int {
	return s.client.Size()
}

// Config returns the configuration the store was built with.
func (s *MetadataStore[T]) Config() Config {
	return s.config
}
