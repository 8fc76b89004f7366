package repositorycache

import (
	"context"
	"errors"
	"testing"
)

func TestConnFromContext(t *testing.T) {
	if _, ok := ConnFromContext(context.Background()); ok {
		t.Error("expected no connection on a plain context")
	}

	db := newTestDB(t)
	ctx := WithConn(context.Background(), db)
	conn, ok := ConnFromContext(ctx)
	if !ok || conn != db {
		t.Errorf("expected the stored connection, got %v", conn)
	}
}

type recordingExecutor struct{ calls int }

func (e *recordingExecutor) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	e.calls++
	return fn(ctx)
}

func TestConnExecutor_ProvidesDedicatedConnection(t *testing.T) {
	db := newTestDB(t)
	inner := &recordingExecutor{}
	e := NewConnExecutor(db, inner, WithStatementTimeout(0))

	got, err := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		conn, ok := ConnFromContext(ctx)
		if !ok {
			return nil, errors.New("missing connection")
		}
		var one int
		if err := conn.NewRaw("SELECT 1").Scan(ctx, &one); err != nil {
			return nil, err
		}
		return one, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	if inner.calls != 1 {
		t.Errorf("expected the inner executor to run once, got %d", inner.calls)
	}

	// The connection goes back to the pool afterwards.
	var two int
	if err := db.NewRaw("SELECT 2").Scan(context.Background(), &two); err != nil {
		t.Fatalf("pool connection unavailable after Execute: %v", err)
	}
}

func TestConnExecutor_NilInnerRunsInline(t *testing.T) {
	e := NewConnExecutor(newTestDB(t), nil)
	boom := errors.New("boom")

	_, err := e.Execute(context.Background(), func(context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}
