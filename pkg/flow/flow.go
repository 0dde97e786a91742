// Package flow defines the flow execution contract consumed by the HTTP
// adapter, plus helpers to build flows from plain Go functions.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/morezero/flow-functions/pkg/callable"
)

const logPrefix = "flow:flow"

// Flow is a named computation with a buffered and an incremental mode.
// Implementations must be safe for concurrent independent calls.
type Flow interface {
	// Name identifies the flow; it determines the registered route.
	Name() string
	// Run executes the flow and returns its final output.
	Run(ctx context.Context, input interface{}, fctx map[string]interface{}) (interface{}, error)
	// Stream starts the flow incrementally.
	Stream(ctx context.Context, input interface{}, fctx map[string]interface{}) (*StreamResponse, error)
}

// StreamResponse is the result of an incremental execution. Chunks is closed
// when production ends; Output then reports the final output or the failure
// that ended the stream.
type StreamResponse struct {
	Chunks <-chan interface{}
	Output func() (interface{}, error)
}

// RunFunc is a buffered flow body.
type RunFunc func(ctx context.Context, input interface{}, fctx map[string]interface{}) (interface{}, error)

// StreamFunc is an incremental flow body. It calls send for every chunk and
// returns the final output.
type StreamFunc func(ctx context.Context, input interface{}, fctx map[string]interface{}, send func(chunk interface{}) error) (interface{}, error)

// Func is a Flow backed by plain functions. When only StreamFn is set, Run
// executes it and discards the chunks; when only RunFn is set, Stream emits no
// chunks.
type Func struct {
	FlowName string
	RunFn    RunFunc
	StreamFn StreamFunc
}

// Name returns the flow name.
func (f *Func) Name() string {
	return f.FlowName
}

// Recover converts a panic raised by the flow name into an INTERNAL error
// stored in *err. It must be deferred directly.
func Recover(name string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	slog.Error(fmt.Sprintf("%s - flow %s panicked: %v\n%s", logPrefix, name, r, debug.Stack()))
	*err = callable.Internal(fmt.Sprintf("flow %s panicked: %v", name, r))
}

// Run executes the flow. A panicking body fails with INTERNAL.
func (f *Func) Run(ctx context.Context, input interface{}, fctx map[string]interface{}) (_ interface{}, err error) {
	defer Recover(f.FlowName, &err)
	if f.RunFn != nil {
		return f.RunFn(ctx, input, fctx)
	}
	if f.StreamFn != nil {
		return f.StreamFn(ctx, input, fctx, func(interface{}) error { return nil })
	}
	return nil, fmt.Errorf("%s - flow %q has no implementation", logPrefix, f.FlowName)
}

// Stream executes the flow incrementally. Chunks are delivered unbuffered, so
// production advances only as fast as the consumer reads; cancelling ctx
// unblocks a producer whose consumer went away.
func (f *Func) Stream(ctx context.Context, input interface{}, fctx map[string]interface{}) (*StreamResponse, error) {
	body := f.StreamFn
	if body == nil {
		if f.RunFn == nil {
			return nil, fmt.Errorf("%s - flow %q has no implementation", logPrefix, f.FlowName)
		}
		run := f.RunFn
		body = func(ctx context.Context, input interface{}, fctx map[string]interface{}, _ func(interface{}) error) (interface{}, error) {
			return run(ctx, input, fctx)
		}
	}

	chunks := make(chan interface{})
	done := make(chan struct{})
	var (
		output interface{}
		runErr error
	)

	send := func(chunk interface{}) error {
		select {
		case chunks <- chunk:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(done)
		defer close(chunks)
		defer Recover(f.FlowName, &runErr)
		output, runErr = body(ctx, input, fctx, send)
	}()

	return &StreamResponse{
		Chunks: chunks,
		Output: func() (interface{}, error) {
			<-done
			return output, runErr
		},
	}, nil
}
