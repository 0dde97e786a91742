// Package natsflow runs flows across COMMS (NATS): a Client implements
// flow.Flow by calling a remote worker, and Serve exposes a local flow to such
// clients.
package natsflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/flow-functions/pkg/callable"
)

// Record types.
const (
	RecordAccepted = "accepted"
	RecordMessage  = "message"
	RecordResult   = "result"
	RecordError    = "error"
)

// Request is the envelope sent to a flow worker.
type Request struct {
	Data    interface{}            `json:"data"`
	Context map[string]interface{} `json:"context,omitempty"`
	// Inbox receives the records of a streaming execution.
	Inbox string `json:"inbox,omitempty"`
	// TimeoutMs is the caller's remaining budget.
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

// Record is one reply from a flow worker.
type Record struct {
	Type  string          `json:"type"`
	Data  interface{}     `json:"data,omitempty"`
	Error *callable.Error `json:"error,omitempty"`
}

// cancelSubject is where a streaming client asks the worker to stop.
func cancelSubject(inbox string) string {
	return inbox + ".cancel"
}

func encodeRecord(rec *Record) []byte {
	data, err := json.Marshal(rec)
	if err != nil {
		data, _ = json.Marshal(&Record{Type: RecordError, Error: callable.Internal("failed to encode record: " + err.Error())})
	}
	return data
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, callable.Internal("invalid record from flow worker: " + err.Error())
	}
	return &rec, nil
}

// remainingMs returns the time left before ctx's deadline, or 0 without one.
func remainingMs(ctx context.Context) int64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	ms := time.Until(deadline).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

// transportError maps COMMS and context failures to callable errors.
func transportError(flowName string, err error) error {
	if _, ok := callable.AsError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, comms.ErrNoResponders):
		return callable.NewError(callable.KindUnavailable, "flow "+flowName+" is not being served")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, comms.ErrTimeout):
		return callable.NewError(callable.KindDeadlineExceeded, "flow "+flowName+" timed out")
	case errors.Is(err, context.Canceled):
		return callable.NewError(callable.KindCancelled, "flow "+flowName+" was cancelled")
	default:
		return callable.NewError(callable.KindUnavailable, err.Error())
	}
}
