package cacheinfra

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for creation spans.
const TracerName = "github.com/goliatone/go-fixture-cache"

// CreateError wraps a failure raised while creating an entity. Caller holds
// the stack of the goroutine that requested the creation, since the failure
// itself happened on a worker goroutine.
type CreateError struct {
	Err    error
	Caller string
}

// Error implements the error interface.
func (e *CreateError) Error() string {
	return "fixture creation failed: " + e.Err.Error()
}

// Unwrap exposes the original failure to errors.Is and errors.As.
func (e *CreateError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking creation function.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic during creation: %v", e.Value)
}

// BoundedExecutor runs creation functions on their own goroutine with a
// deadline. When the deadline passes the caller gets an error immediately;
// the worker is left to finish on its own.
type BoundedExecutor struct {
	timeout time.Duration
	tracer  trace.Tracer
}

// ExecutorOption customizes a BoundedExecutor.
type ExecutorOption func(*BoundedExecutor)

// WithTracerProvider sets the provider used for creation spans.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *BoundedExecutor) {
		e.tracer = tp.Tracer(TracerName)
	}
}

// NewBoundedExecutor creates an executor. A zero timeout disables the deadline.
func NewBoundedExecutor(timeout time.Duration, opts ...ExecutorOption) *BoundedExecutor {
	e := &BoundedExecutor{
		timeout: timeout,
		tracer:  otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the configured deadline.
func (e *BoundedExecutor) Timeout() time.Duration {
	return e.timeout
}

type execResult struct {
	value any
	err   error
}

// Execute runs fn and waits for its result or the deadline.
func (e *BoundedExecutor) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	caller := callerStack(3)

	ctx, span := e.tracer.Start(ctx, "fixture.create",
		trace.WithAttributes(attribute.Int64("fixture.timeout_ms", e.timeout.Milliseconds())))
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		value, err := fn(ctx)
		done <- execResult{value: value, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-ctx.Done():
		select {
		case res = <-done:
		default:
			res = execResult{err: ctx.Err()}
		}
	}

	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		return nil, &CreateError{Err: res.err, Caller: caller}
	}

	span.SetStatus(codes.Ok, "")
	return res.value, nil
}

func callerStack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
