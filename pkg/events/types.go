// Package events defines flow invocation events and their publishers.
package events

// Invocation modes.
const (
	ModeBuffered  = "buffered"
	ModeStreaming = "streaming"
)

// FlowInvokedEvent is emitted after a flow endpoint has answered a request.
type FlowInvokedEvent struct {
	Flow         string `json:"flow"`
	InvocationID string `json:"invocationId"`
	Mode         string `json:"mode"`
	// Status is "OK" or the error kind reported to the client.
	Status     string `json:"status"`
	HTTPStatus int    `json:"httpStatus"`
	Chunks     int    `json:"chunks,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}
