package callable

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const sseLogPrefix = "callable:sse"

// FormatEvent frames v as a single Server-Sent-Events record: "data: <json>\n\n".
func FormatEvent(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode event: %w", sseLogPrefix, err)
	}
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out, nil
}

// EventWriter writes SSE records to a response, flushing after each one so
// records reach the client in the order they were produced.
type EventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewEventWriter creates an EventWriter over w.
func NewEventWriter(w http.ResponseWriter) *EventWriter {
	return &EventWriter{w: w, rc: http.NewResponseController(w)}
}

// Send writes one record and flushes it.
func (e *EventWriter) Send(v interface{}) error {
	record, err := FormatEvent(v)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(record); err != nil {
		return fmt.Errorf("%s - failed to write event: %w", sseLogPrefix, err)
	}
	if err := e.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("%s - failed to flush event: %w", sseLogPrefix, err)
	}
	return nil
}

// SendMessage writes a {"message": chunk} record.
func (e *EventWriter) SendMessage(chunk interface{}) error {
	return e.Send(&MessageEnvelope{Message: chunk})
}

// SendResult writes the terminal {"result": output} record.
func (e *EventWriter) SendResult(output interface{}) error {
	return e.Send(&ResultEnvelope{Result: output})
}

// SendError writes the terminal {"error": {...}} record.
func (e *EventWriter) SendError(err *Error) error {
	return e.Send(NewErrorEnvelope(err))
}
