package natsflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/flow-functions/pkg/callable"
	"github.com/morezero/flow-functions/pkg/commsutil"
	"github.com/morezero/flow-functions/pkg/flow"
)

const clientLogPrefix = "natsflow:client"

// DefaultTimeout bounds a remote call when the caller sets no deadline. For
// streams it bounds the wait between two records.
const DefaultTimeout = 30 * time.Second

// ClientOptions configures a Client.
type ClientOptions struct {
	Timeout time.Duration
}

// Client is a flow.Flow executed by a remote worker.
type Client struct {
	nc      *comms.Conn
	name    string
	timeout time.Duration
}

var _ flow.Flow = (*Client)(nil)

// NewClient creates a Client for the flow served under name.
func NewClient(nc *comms.Conn, name string, opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{nc: nc, name: name, timeout: timeout}
}

// Name returns the remote flow name.
func (c *Client) Name() string {
	return c.name
}

// Run executes the flow remotely and waits for its output.
func (c *Client) Run(ctx context.Context, input interface{}, fctx map[string]interface{}) (interface{}, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(&Request{Data: input, Context: fctx, TimeoutMs: remainingMs(ctx)})
	if err != nil {
		return nil, callable.InvalidArgument(fmt.Sprintf("input is not serializable: %v", err))
	}

	subject := commsutil.BuildRunSubject(c.name)
	msg, err := c.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, transportError(c.name, err)
	}
	rec, err := decodeRecord(msg.Data)
	if err != nil {
		return nil, err
	}
	switch rec.Type {
	case RecordResult:
		return rec.Data, nil
	case RecordError:
		return nil, remoteError(rec)
	default:
		return nil, callable.Internal(fmt.Sprintf("unexpected %q record from flow worker", rec.Type))
	}
}

// Stream starts the flow remotely. Records published by the worker are
// relayed on Chunks; cancelling ctx asks the worker to stop.
//
// The worker publishes without flow control, so the inbox queues records
// without limit until the consumer of Chunks catches up.
func (c *Client) Stream(ctx context.Context, input interface{}, fctx map[string]interface{}) (*flow.StreamResponse, error) {
	inbox := comms.NewInbox()
	sub, err := c.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, transportError(c.name, err)
	}
	if err := sub.SetPendingLimits(-1, -1); err != nil {
		sub.Unsubscribe()
		return nil, transportError(c.name, err)
	}

	payload, err := json.Marshal(&Request{Data: input, Context: fctx, Inbox: inbox, TimeoutMs: remainingMs(ctx)})
	if err != nil {
		sub.Unsubscribe()
		return nil, callable.InvalidArgument(fmt.Sprintf("input is not serializable: %v", err))
	}

	reqCtx, cancel := c.withTimeout(ctx)
	ack, err := c.nc.RequestWithContext(reqCtx, commsutil.BuildStreamSubject(c.name), payload)
	cancel()
	if err != nil {
		sub.Unsubscribe()
		return nil, transportError(c.name, err)
	}
	rec, err := decodeRecord(ack.Data)
	if err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	if rec.Type == RecordError {
		sub.Unsubscribe()
		return nil, remoteError(rec)
	}

	chunks := make(chan interface{})
	var (
		once   sync.Once
		done   = make(chan struct{})
		output interface{}
		runErr error
	)
	finish := func(out interface{}, err error) {
		once.Do(func() {
			output, runErr = out, err
		})
	}

	go func() {
		defer close(done)
		defer close(chunks)
		defer sub.Unsubscribe()

		stop := func(err error) {
			if perr := c.nc.Publish(cancelSubject(inbox), nil); perr != nil {
				slog.Warn(fmt.Sprintf("%s - failed to cancel remote stream %s: %v", clientLogPrefix, c.name, perr))
			}
			finish(nil, transportError(c.name, err))
		}

		for {
			msg, err := c.next(ctx, sub)
			if err != nil {
				stop(err)
				return
			}

			rec, err := decodeRecord(msg.Data)
			if err != nil {
				stop(err)
				return
			}
			switch rec.Type {
			case RecordMessage:
				select {
				case chunks <- rec.Data:
				case <-ctx.Done():
					stop(ctx.Err())
					return
				}
			case RecordResult:
				finish(rec.Data, nil)
				return
			case RecordError:
				finish(nil, remoteError(rec))
				return
			default:
				slog.Debug(fmt.Sprintf("%s - ignoring %q record on %s", clientLogPrefix, rec.Type, inbox))
			}
		}
	}()

	return &flow.StreamResponse{
		Chunks: chunks,
		Output: func() (interface{}, error) {
			<-done
			return output, runErr
		},
	}, nil
}

// next waits for the next stream record. The wait is bounded by the client
// timeout; ctx cancellation is reported as such.
func (c *Client) next(ctx context.Context, sub *comms.Subscription) (*comms.Msg, error) {
	idleCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := sub.NextMsgWithContext(idleCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if idleCtx.Err() != nil {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}
	return msg, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func remoteError(rec *Record) error {
	if rec.Error == nil {
		return callable.Internal("flow worker reported an error without details")
	}
	return rec.Error
}
