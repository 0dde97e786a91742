package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/flow-functions/pkg/callable"
)

// Define builds a buffered flow over typed input and output. The decoded
// request value is re-encoded into In; a mismatch fails with INVALID_ARGUMENT.
func Define[In, Out any](name string, fn func(ctx context.Context, input In, fctx map[string]interface{}) (Out, error)) *Func {
	return &Func{
		FlowName: name,
		RunFn: func(ctx context.Context, raw interface{}, fctx map[string]interface{}) (interface{}, error) {
			in, err := convertInput[In](name, raw)
			if err != nil {
				return nil, err
			}
			return fn(ctx, in, fctx)
		},
	}
}

// DefineStreaming builds a streaming flow over typed input, output and chunks.
func DefineStreaming[In, Out, Chunk any](name string, fn func(ctx context.Context, input In, fctx map[string]interface{}, send func(Chunk) error) (Out, error)) *Func {
	return &Func{
		FlowName: name,
		StreamFn: func(ctx context.Context, raw interface{}, fctx map[string]interface{}, send func(interface{}) error) (interface{}, error) {
			in, err := convertInput[In](name, raw)
			if err != nil {
				return nil, err
			}
			return fn(ctx, in, fctx, func(c Chunk) error { return send(c) })
		},
	}
}

func convertInput[In any](name string, raw interface{}) (In, error) {
	var in In
	if typed, ok := raw.(In); ok {
		return typed, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return in, callable.InvalidArgument(fmt.Sprintf("Invalid input for flow %s", name))
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, callable.InvalidArgument(fmt.Sprintf("Invalid input for flow %s: %v", name, err))
	}
	return in, nil
}
