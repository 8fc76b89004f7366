package repositorycache

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/goliatone/go-fixture-cache/cache"
)

type connKey struct{}

// WithConn exposes conn to persistence code running under ctx.
func WithConn(ctx context.Context, conn bun.IDB) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// ConnFromContext returns the connection set by WithConn.
func ConnFromContext(ctx context.Context) (bun.IDB, bool) {
	conn, ok := ctx.Value(connKey{}).(bun.IDB)
	return conn, ok && conn != nil
}

// ConnExecutor runs every creation on a dedicated database connection, so a
// creation that times out cannot leave statements running on a pooled
// connection used by the test itself. On PostgreSQL the connection also gets
// a statement_timeout.
type ConnExecutor struct {
	db               *bun.DB
	inner            cache.Executor
	statementTimeout time.Duration
}

// ConnExecutorOption customizes a ConnExecutor.
type ConnExecutorOption func(*ConnExecutor)

// WithStatementTimeout sets the PostgreSQL statement_timeout applied to the
// creation connection. Zero leaves the server default.
func WithStatementTimeout(d time.Duration) ConnExecutorOption {
	return func(e *ConnExecutor) { e.statementTimeout = d }
}

// NewConnExecutor wraps inner, which may be nil to run creations inline.
func NewConnExecutor(db *bun.DB, inner cache.Executor, opts ...ConnExecutorOption) *ConnExecutor {
	e := &ConnExecutor{db: db, inner: inner}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements cache.Executor.
func (e *ConnExecutor) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("repositorycache: acquire connection: %w", err)
	}
	defer conn.Close()

	if e.statementTimeout > 0 && e.db.Dialect().Name() == dialect.PG {
		stmt := fmt.Sprintf("SET statement_timeout = %d", e.statementTimeout.Milliseconds())
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("repositorycache: set statement timeout: %w", err)
		}
	}

	ctx = WithConn(ctx, &conn)
	if e.inner == nil {
		return fn(ctx)
	}
	return e.inner.Execute(ctx, fn)
}
