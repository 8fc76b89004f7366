package repositorycache

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
)

// Persister returns a persist function for a fixture factory. Records are
// inserted on the connection provided by ConnExecutor when there is one.
func Persister[T any](repo repository.Repository[T]) func(ctx context.Context, record T) (T, error) {
	return func(ctx context.Context, record T) (T, error) {
		if conn, ok := ConnFromContext(ctx); ok {
			return repo.CreateTx(ctx, conn, record)
		}
		return repo.Create(ctx, record)
	}
}
