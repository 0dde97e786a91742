// Package cors builds the CORS response headers for a flow endpoint.
package cors

import (
	"net/http"
	"strconv"
	"strings"
)

// Defaults applied to any field left unset in a Policy.
const (
	DefaultOrigin = "*"
	DefaultMaxAge = 86400
)

var (
	defaultMethods = []string{http.MethodPost, http.MethodOptions}
	defaultHeaders = []string{"Content-Type", "Authorization"}
)

// Policy describes the CORS behaviour of an endpoint. The zero value is the
// permissive default.
type Policy struct {
	// Disabled suppresses every CORS header, including the baseline content type.
	Disabled bool
	// Origin is emitted verbatim when AllowedOrigins is nil. Empty means "*".
	Origin string
	// AllowedOrigins, when non-nil, echoes the request origin only if it is listed.
	AllowedOrigins []string
	Methods        []string
	Headers        []string
	ExposeHeaders  []string
	Credentials    bool
	// MaxAge is the preflight cache lifetime in seconds. Zero means DefaultMaxAge.
	MaxAge int
}

// Default returns the permissive default policy.
func Default() *Policy {
	return &Policy{}
}

// Disabled returns a policy that emits no headers.
func Disabled() *Policy {
	return &Policy{Disabled: true}
}

// Build returns the headers for a request from origin under policy p. A nil
// policy is the permissive default.
func Build(p *Policy, origin string) map[string]string {
	if p == nil {
		p = Default()
	}
	if p.Disabled {
		return map[string]string{}
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}

	if p.AllowedOrigins != nil {
		for _, allowed := range p.AllowedOrigins {
			if origin != "" && allowed == origin {
				headers["Access-Control-Allow-Origin"] = origin
				break
			}
		}
	} else {
		allowOrigin := p.Origin
		if allowOrigin == "" {
			allowOrigin = DefaultOrigin
		}
		headers["Access-Control-Allow-Origin"] = allowOrigin
	}

	methods := p.Methods
	if len(methods) == 0 {
		methods = defaultMethods
	}
	allowHeaders := p.Headers
	if len(allowHeaders) == 0 {
		allowHeaders = defaultHeaders
	}
	headers["Access-Control-Allow-Methods"] = strings.Join(methods, ", ")
	headers["Access-Control-Allow-Headers"] = strings.Join(allowHeaders, ", ")

	if len(p.ExposeHeaders) > 0 {
		headers["Access-Control-Expose-Headers"] = strings.Join(p.ExposeHeaders, ", ")
	}
	if p.Credentials {
		headers["Access-Control-Allow-Credentials"] = "true"
	}

	maxAge := p.MaxAge
	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}
	headers["Access-Control-Max-Age"] = strconv.Itoa(maxAge)

	return headers
}

// Apply sets headers on h.
func Apply(h http.Header, headers map[string]string) {
	for k, v := range headers {
		h.Set(k, v)
	}
}
