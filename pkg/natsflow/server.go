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

const serverLogPrefix = "natsflow:server"

// DefaultQueue is the queue group flow workers join, so that several
// replicas share the load.
const DefaultQueue = "flow-workers"

// ServeOptions configures a Worker.
type ServeOptions struct {
	Queue string
	// Timeout caps every execution. Callers may ask for less.
	Timeout time.Duration
}

// Worker serves one flow on COMMS.
type Worker struct {
	nc      *comms.Conn
	flow    flow.Flow
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []*comms.Subscription
}

// Serve subscribes f's run and stream subjects on nc.
func Serve(nc *comms.Conn, f flow.Flow, opts ServeOptions) (*Worker, error) {
	if f == nil || f.Name() == "" {
		return nil, fmt.Errorf("%s - a named flow is required", serverLogPrefix)
	}
	queue := opts.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{nc: nc, flow: f, timeout: timeout, ctx: ctx, cancel: cancel}

	handlers := map[string]comms.MsgHandler{
		commsutil.BuildRunSubject(f.Name()):    w.handleRun,
		commsutil.BuildStreamSubject(f.Name()): w.handleStream,
	}
	for subject, h := range handlers {
		sub, err := nc.QueueSubscribe(subject, queue, h)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", serverLogPrefix, subject, err)
		}
		w.subs = append(w.subs, sub)
		slog.Info(fmt.Sprintf("%s - Subscribed to %s (queue %s)", serverLogPrefix, subject, queue))
	}
	if err := nc.Flush(); err != nil {
		w.Close()
		return nil, fmt.Errorf("%s - failed to flush subscriptions: %w", serverLogPrefix, err)
	}
	return w, nil
}

// Close unsubscribes, cancels running executions and waits for them.
func (w *Worker) Close() {
	for _, sub := range w.subs {
		sub.Unsubscribe()
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) decode(msg *comms.Msg) (*Request, context.Context, context.CancelFunc, bool) {
	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", serverLogPrefix, err))
		msg.Respond(encodeRecord(&Record{Type: RecordError, Error: callable.InvalidArgument("Failed to decode request")}))
		return nil, nil, nil, false
	}

	// Per-request timeout; the caller's budget wins when it is shorter.
	timeout := w.timeout
	if req.TimeoutMs > 0 && time.Duration(req.TimeoutMs)*time.Millisecond < timeout {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(w.ctx, timeout)
	return &req, ctx, cancel, true
}

func (w *Worker) handleRun(msg *comms.Msg) {
	req, ctx, cancel, ok := w.decode(msg)
	if !ok {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()

		output, err := w.run(ctx, req)
		rec := &Record{Type: RecordResult, Data: output}
		if err != nil {
			rec = errorRecord(err)
		}
		if err := msg.Respond(encodeRecord(rec)); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond for %s: %v", serverLogPrefix, w.flow.Name(), err))
		}
	}()
}

func (w *Worker) handleStream(msg *comms.Msg) {
	req, ctx, cancel, ok := w.decode(msg)
	if !ok {
		return
	}
	if req.Inbox == "" {
		cancel()
		msg.Respond(encodeRecord(&Record{Type: RecordError, Error: callable.InvalidArgument("stream request has no inbox")}))
		return
	}

	cancelSub, err := w.nc.Subscribe(cancelSubject(req.Inbox), func(*comms.Msg) {
		slog.Debug(fmt.Sprintf("%s - stream of %s cancelled by caller", serverLogPrefix, w.flow.Name()))
		cancel()
	})
	if err != nil {
		cancel()
		msg.Respond(encodeRecord(errorRecord(fmt.Errorf("failed to watch for cancellation: %w", err))))
		return
	}

	resp, err := w.stream(ctx, req)
	if err != nil {
		cancelSub.Unsubscribe()
		cancel()
		msg.Respond(encodeRecord(errorRecord(err)))
		return
	}
	if err := msg.Respond(encodeRecord(&Record{Type: RecordAccepted})); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to accept stream for %s: %v", serverLogPrefix, w.flow.Name(), err))
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()
		defer cancelSub.Unsubscribe()

		for chunk := range resp.Chunks {
			if err := w.nc.Publish(req.Inbox, encodeRecord(&Record{Type: RecordMessage, Data: chunk})); err != nil {
				slog.Warn(fmt.Sprintf("%s - failed to publish chunk for %s: %v", serverLogPrefix, w.flow.Name(), err))
				cancel()
			}
		}

		output, err := resp.Output()
		rec := &Record{Type: RecordResult, Data: output}
		if err != nil {
			rec = errorRecord(err)
		}
		if err := w.nc.Publish(req.Inbox, encodeRecord(rec)); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish final record for %s: %v", serverLogPrefix, w.flow.Name(), err))
		}
	}()
}

func (w *Worker) run(ctx context.Context, req *Request) (_ interface{}, err error) {
	defer flow.Recover(w.flow.Name(), &err)
	return w.flow.Run(ctx, req.Data, req.Context)
}

func (w *Worker) stream(ctx context.Context, req *Request) (_ *flow.StreamResponse, err error) {
	defer flow.Recover(w.flow.Name(), &err)
	return w.flow.Stream(ctx, req.Data, req.Context)
}

func errorRecord(err error) *Record {
	return &Record{Type: RecordError, Error: callable.FromError(err)}
}
