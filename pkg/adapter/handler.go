package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/flow-functions/pkg/callable"
	"github.com/morezero/flow-functions/pkg/cors"
	"github.com/morezero/flow-functions/pkg/events"
	"github.com/morezero/flow-functions/pkg/flow"
	"github.com/morezero/flow-functions/pkg/trigger"
)

const handlerLogPrefix = "adapter:handler"

const eventStreamType = "text/event-stream"

// outcome summarises an answered request for the invocation event.
type outcome struct {
	mode       string
	status     string
	httpStatus int
	chunks     int
}

// ServeHTTP serves the adapter without a trigger host. A fresh invocation is
// synthesised for every request.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Handle(w, r, &trigger.Invocation{FunctionName: a.name, InvocationID: uuid.NewString()})
}

// Handle serves one invocation.
func (a *Adapter) Handle(w http.ResponseWriter, r *http.Request, inv *trigger.Invocation) {
	if inv == nil {
		inv = &trigger.Invocation{FunctionName: a.name}
	}
	logger := inv.Logger
	if logger == nil {
		logger = slog.Default().With("functionName", a.name)
	}

	corsHeaders := cors.Build(a.opts.CORS, r.Header.Get("Origin"))

	if r.Method == http.MethodOptions {
		cors.Apply(w.Header(), corsHeaders)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	start := time.Now()
	a.debug(logger, fmt.Sprintf("%s - %s %s", handlerLogPrefix, r.Method, r.URL.String()))

	headers := callable.NormalizeHeaders(r.Header)
	a.debug(logger, fmt.Sprintf("%s - headers", handlerLogPrefix), "headers", headers)

	var out outcome
	input, err := callable.DecodeRequest(r)
	if err == nil {
		var fctx map[string]interface{}
		fctx, err = a.ResolveContext(r.Context(), r, inv, headers, input)
		if err == nil {
			a.debug(logger, fmt.Sprintf("%s - input", handlerLogPrefix), "input", input)
			if a.opts.Streaming && strings.Contains(headers["accept"], eventStreamType) {
				out = a.serveStream(w, r, logger, corsHeaders, input, fctx)
			} else {
				out = a.serveBuffered(w, r, logger, corsHeaders, input, fctx)
			}
		}
	}
	if err != nil {
		out = a.writeError(w, logger, corsHeaders, err)
	}

	a.debug(logger, fmt.Sprintf("%s - completed %s with %d in %s", handlerLogPrefix, out.mode, out.httpStatus, time.Since(start)))
	a.publish(r.Context(), logger, inv, out, start)
}

func (a *Adapter) serveBuffered(w http.ResponseWriter, r *http.Request, logger *slog.Logger, corsHeaders map[string]string, input interface{}, fctx map[string]interface{}) outcome {
	output, err := a.run(r.Context(), input, fctx)
	if err != nil {
		return a.writeError(w, logger, corsHeaders, err)
	}

	body, err := json.Marshal(&callable.ResultEnvelope{Result: output})
	if err != nil {
		return a.writeError(w, logger, corsHeaders, fmt.Errorf("%s - failed to encode result: %w", handlerLogPrefix, err))
	}

	writeJSONHeaders(w, corsHeaders)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger.Warn(fmt.Sprintf("%s - failed to write response: %v", handlerLogPrefix, err))
	}
	return outcome{mode: events.ModeBuffered, status: string(callable.KindOK), httpStatus: http.StatusOK}
}

// serveStream answers with SSE records. Once the headers are committed every
// failure is reported in-band as a final error record.
func (a *Adapter) serveStream(w http.ResponseWriter, r *http.Request, logger *slog.Logger, corsHeaders map[string]string, input interface{}, fctx map[string]interface{}) outcome {
	out := outcome{mode: events.ModeStreaming, status: string(callable.KindOK), httpStatus: http.StatusOK}

	h := w.Header()
	cors.Apply(h, corsHeaders)
	h.Set("Content-Type", eventStreamType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ew := callable.NewEventWriter(w)

	// Cancelled when the client goes away or the handler returns, so a
	// producer blocked on an abandoned stream can stop.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	fail := func(err error) outcome {
		_, ce := a.Normalize(err)
		a.logFailure(logger, ce)
		if werr := ew.SendError(ce); werr != nil {
			logger.Warn(fmt.Sprintf("%s - failed to write error event: %v", handlerLogPrefix, werr))
		}
		out.status = string(ce.Kind)
		return out
	}

	resp, err := a.stream(ctx, input, fctx)
	if err != nil {
		return fail(err)
	}

	var writeErr error
	for chunk := range resp.Chunks {
		if writeErr != nil {
			continue
		}
		if writeErr = ew.SendMessage(chunk); writeErr != nil {
			logger.Warn(fmt.Sprintf("%s - client stream closed: %v", handlerLogPrefix, writeErr))
			cancel()
			continue
		}
		out.chunks++
	}

	output, err := resp.Output()
	if writeErr != nil {
		out.status = string(callable.KindCancelled)
		return out
	}
	if err != nil {
		return fail(err)
	}
	if err := ew.SendResult(output); err != nil {
		return fail(err)
	}
	return out
}

// run and stream turn a panic in the flow into an INTERNAL error so it is
// answered like any other failure.
func (a *Adapter) run(ctx context.Context, input interface{}, fctx map[string]interface{}) (_ interface{}, err error) {
	defer flow.Recover(a.name, &err)
	return a.flow.Run(ctx, input, fctx)
}

func (a *Adapter) stream(ctx context.Context, input interface{}, fctx map[string]interface{}) (_ *flow.StreamResponse, err error) {
	defer flow.Recover(a.name, &err)
	return a.flow.Stream(ctx, input, fctx)
}

func (a *Adapter) writeError(w http.ResponseWriter, logger *slog.Logger, corsHeaders map[string]string, err error) outcome {
	status, ce := a.Normalize(err)
	a.logFailure(logger, ce)

	body, merr := json.Marshal(callable.NewErrorEnvelope(ce))
	if merr != nil {
		// Details that cannot be encoded are dropped.
		body, _ = json.Marshal(callable.NewErrorEnvelope(callable.NewError(ce.Kind, ce.Message)))
	}

	writeJSONHeaders(w, corsHeaders)
	w.WriteHeader(status)
	if _, werr := w.Write(body); werr != nil {
		logger.Warn(fmt.Sprintf("%s - failed to write error response: %v", handlerLogPrefix, werr))
	}
	return outcome{mode: events.ModeBuffered, status: string(ce.Kind), httpStatus: status}
}

func (a *Adapter) logFailure(logger *slog.Logger, ce *callable.Error) {
	if ce.HTTPStatus() >= http.StatusInternalServerError {
		logger.Error(fmt.Sprintf("%s - flow %s failed: %s", handlerLogPrefix, a.name, ce.Error()))
		return
	}
	a.debug(logger, fmt.Sprintf("%s - flow %s rejected: %s", handlerLogPrefix, a.name, ce.Error()))
}

func (a *Adapter) debug(logger *slog.Logger, msg string, args ...any) {
	if a.opts.Debug {
		logger.Info(msg, args...)
	}
}

func (a *Adapter) publish(ctx context.Context, logger *slog.Logger, inv *trigger.Invocation, out outcome, start time.Time) {
	event := &events.FlowInvokedEvent{
		Flow:         a.name,
		InvocationID: inv.InvocationID,
		Mode:         out.mode,
		Status:       out.status,
		HTTPStatus:   out.httpStatus,
		Chunks:       out.chunks,
		DurationMs:   time.Since(start).Milliseconds(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.publisher.PublishInvoked(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn(fmt.Sprintf("%s - failed to publish invocation event: %v", handlerLogPrefix, err))
	}
}

// writeJSONHeaders applies the CORS headers and makes sure the body is typed
// as JSON even when CORS is disabled.
func writeJSONHeaders(w http.ResponseWriter, corsHeaders map[string]string) {
	h := w.Header()
	cors.Apply(h, corsHeaders)
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
}
