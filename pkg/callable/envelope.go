// Package callable implements the callable wire protocol: the {data} request
// envelope, the {result} and {error} response envelopes, request decoding and
// Server-Sent-Events framing.
package callable

// ResultEnvelope is the success body. It always carries the result key, even
// when the flow output is null.
type ResultEnvelope struct {
	Result interface{} `json:"result"`
}

// ErrorEnvelope is the failure body shared by the buffered and streaming modes.
type ErrorEnvelope struct {
	Error *Error `json:"error"`
}

// MessageEnvelope carries a single streamed chunk.
type MessageEnvelope struct {
	Message interface{} `json:"message"`
}

// NewErrorEnvelope wraps err into the failure body shape.
func NewErrorEnvelope(err *Error) *ErrorEnvelope {
	return &ErrorEnvelope{Error: err}
}
