package callable

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Message used when a request body is not valid JSON.
const invalidJSONMessage = "Invalid JSON in request body"

// envelopeKey is the key that wraps the input in the callable protocol.
const envelopeKey = "data"

// Decode turns a raw request body into the flow input.
//
// An empty body decodes to an empty object. An object carrying a "data" key
// is unwrapped; any other JSON value is used as-is.
func Decode(body []byte) (interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]interface{}{}, nil
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, InvalidArgument(invalidJSONMessage)
	}

	if obj, ok := parsed.(map[string]interface{}); ok {
		if data, ok := obj[envelopeKey]; ok {
			return data, nil
		}
	}
	return parsed, nil
}

// DecodeRequest reads and decodes the body of r.
func DecodeRequest(r *http.Request) (interface{}, error) {
	if r.Body == nil {
		return Decode(nil)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, InvalidArgument("Failed to read request body")
	}
	return Decode(body)
}

// NormalizeHeaders returns the headers keyed by lower-cased name. Repeated
// values are joined with ", ".
func NormalizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		key := strings.ToLower(name)
		if prev, ok := out[key]; ok {
			out[key] = prev + ", " + strings.Join(values, ", ")
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}

// FlattenQuery keeps the first value of every query parameter.
func FlattenQuery(q url.Values) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		} else {
			out[k] = ""
		}
	}
	return out
}
