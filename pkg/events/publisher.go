package events

import "context"

// EventPublisher is the interface for publishing flow invocation events.
type EventPublisher interface {
	PublishInvoked(ctx context.Context, event *FlowInvokedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishInvoked is a no-op.
func (p *NoOpPublisher) PublishInvoked(_ context.Context, _ *FlowInvokedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *FlowInvokedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *FlowInvokedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishInvoked calls the callback.
func (p *CallbackPublisher) PublishInvoked(ctx context.Context, event *FlowInvokedEvent) error {
	return p.callback(ctx, event)
}
