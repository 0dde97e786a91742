package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/flow-functions/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides the global invocation event subject (e.g. from EVENT_SUBJECT).
	GlobalSubject string
}

// CommsPublisher publishes invocation events to COMMS subjects.
type CommsPublisher struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	globalSubject := commsutil.SubjectInvokedEvent
	if opts != nil && opts.GlobalSubject != "" {
		globalSubject = opts.GlobalSubject
	}
	return &CommsPublisher{nc: nc, globalSubject: globalSubject}
}

// PublishInvoked publishes a FlowInvokedEvent to both the per-flow and the
// global subjects.
func (p *CommsPublisher) PublishInvoked(_ context.Context, event *FlowInvokedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	flowSubject := commsutil.BuildInvokedSubject(event.Flow)
	if err := p.nc.Publish(flowSubject, data); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", commsPublisherLogPrefix, flowSubject, err)
	}

	if err := p.nc.Publish(p.globalSubject, data); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", commsPublisherLogPrefix, p.globalSubject, err)
	}

	slog.Debug(fmt.Sprintf("%s - Published invocation event for %s (%s)", commsPublisherLogPrefix, event.Flow, event.InvocationID))
	return nil
}
