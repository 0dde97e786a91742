// Package adapter exposes a flow as an HTTP trigger speaking the callable
// protocol: CORS, context resolution, buffered JSON responses and
// Server-Sent-Events streaming.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/morezero/flow-functions/pkg/auth"
	"github.com/morezero/flow-functions/pkg/cors"
	"github.com/morezero/flow-functions/pkg/events"
	"github.com/morezero/flow-functions/pkg/flow"
	"github.com/morezero/flow-functions/pkg/trigger"
)

const logPrefix = "adapter:adapter"

// UnknownFlowName is the name reported for a flow that does not declare one.
const UnknownFlowName = "unknown"

// ErrUnnamedFlow is returned by New for a flow without a name.
var ErrUnnamedFlow = errors.New("flow has no name")

var defaultMethods = []string{http.MethodPost, http.MethodOptions}

// ErrorReport is what an error override returns: the transport status and the
// message placed in the error body.
type ErrorReport struct {
	StatusCode int
	Message    string
}

// ErrorOverride replaces the default error normalization.
type ErrorOverride func(err error) ErrorReport

// Options configures an Adapter. Every field is optional.
type Options struct {
	// AuthLevel is the platform trust level. Empty means anonymous.
	AuthLevel trigger.AuthLevel
	// HTTPMethods defaults to POST and OPTIONS.
	HTTPMethods []string
	// Route overrides the flow name as the trigger path.
	Route string
	// CORS is the cross-origin policy. Nil is the permissive default; use
	// cors.Disabled() to emit no CORS headers.
	CORS *cors.Policy
	// ContextProvider resolves authorization-derived context fields.
	ContextProvider auth.Provider
	// OnError overrides error normalization.
	OnError ErrorOverride
	// Streaming enables SSE responses for clients accepting text/event-stream.
	Streaming bool
	// Debug logs request progress to the invocation logger.
	Debug bool
	// Publisher receives an event after every answered request.
	Publisher events.EventPublisher
}

// Adapter serves one flow over HTTP. It is immutable after New and safe for
// concurrent use.
type Adapter struct {
	flow      flow.Flow
	name      string
	opts      Options
	methods   []string
	publisher events.EventPublisher
}

// New builds an Adapter for f. It does not register anything.
func New(f flow.Flow, opts Options) (*Adapter, error) {
	if f == nil {
		return nil, fmt.Errorf("%s - flow is required", logPrefix)
	}
	name := f.Name()
	if name == "" {
		return nil, fmt.Errorf("%s - cannot register flow %q: %w", logPrefix, UnknownFlowName, ErrUnnamedFlow)
	}

	level, err := trigger.ParseAuthLevel(string(opts.AuthLevel))
	if err != nil {
		return nil, fmt.Errorf("%s - flow %s: %w", logPrefix, name, err)
	}
	opts.AuthLevel = level

	methods := opts.HTTPMethods
	if len(methods) == 0 {
		methods = defaultMethods
	}
	methods = append([]string(nil), methods...)

	pub := opts.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}

	return &Adapter{
		flow:      f,
		name:      name,
		opts:      opts,
		methods:   methods,
		publisher: pub,
	}, nil
}

// FlowName returns the name the flow is registered under.
func (a *Adapter) FlowName() string {
	return a.name
}

// Streaming reports whether the adapter answers SSE clients incrementally.
func (a *Adapter) Streaming() bool {
	return a.opts.Streaming
}

// Trigger describes the registration of this adapter on a trigger host.
func (a *Adapter) Trigger() (string, trigger.Config, trigger.Handler) {
	return a.name, trigger.Config{
		Methods:   append([]string(nil), a.methods...),
		AuthLevel: a.opts.AuthLevel,
		Route:     a.opts.Route,
	}, a.Handle
}

// Run executes the flow in buffered mode without going through HTTP.
func (a *Adapter) Run(ctx context.Context, input interface{}, fctx map[string]interface{}) (interface{}, error) {
	return a.flow.Run(ctx, input, fctx)
}

// Stream executes the flow incrementally without going through HTTP.
func (a *Adapter) Stream(ctx context.Context, input interface{}, fctx map[string]interface{}) (*flow.StreamResponse, error) {
	return a.flow.Stream(ctx, input, fctx)
}
