// Package auth provides composable authorization providers for flow endpoints.
//
// A Provider inspects the request and either contributes context fields or
// fails with a callable error of kind UNAUTHENTICATED, PERMISSION_DENIED or
// INVALID_ARGUMENT. Providers compose with AllOf and AnyOf.
package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/morezero/flow-functions/pkg/callable"
)

// Request is the view of an inbound request handed to a Provider. Header
// names are lower-cased.
type Request struct {
	Method  string
	Headers map[string]string
	Input   interface{}
}

// Header returns the value of a header by case-insensitive name.
func (r *Request) Header(name string) (string, bool) {
	if r == nil || r.Headers == nil {
		return "", false
	}
	v, ok := r.Headers[strings.ToLower(name)]
	return v, ok
}

// Provider resolves authorization-derived context fields for a request.
type Provider func(ctx context.Context, req *Request) (map[string]interface{}, error)

// APIKeyValidator checks an API key. A non-nil error rejects the request and
// is propagated unchanged.
type APIKeyValidator func(ctx context.Context, key string) error

// TokenValidator checks a bearer token and returns the context it grants.
type TokenValidator func(ctx context.Context, token string) (map[string]interface{}, error)

var bearerPattern = regexp.MustCompile(`(?i)^bearer\s+(.+)$`)

// AllowAll accepts every request and contributes nothing.
func AllowAll() Provider {
	return func(context.Context, *Request) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	}
}

// RequireHeader requires a header to be present and, when expected is
// non-empty, to equal expected.
func RequireHeader(name string, expected ...string) Provider {
	return func(_ context.Context, req *Request) (map[string]interface{}, error) {
		value, ok := req.Header(name)
		if !ok {
			return nil, callable.Unauthenticated(fmt.Sprintf("Missing required header: %s", name))
		}
		if len(expected) > 0 && expected[0] != "" && value != expected[0] {
			return nil, callable.PermissionDenied(fmt.Sprintf("Invalid value for header: %s", name))
		}
		return map[string]interface{}{}, nil
	}
}

// RequireAPIKey requires header to carry exactly expected.
func RequireAPIKey(header, expected string) Provider {
	return RequireAPIKeyFunc(header, func(_ context.Context, key string) error {
		if key != expected {
			return callable.PermissionDenied("Invalid API key")
		}
		return nil
	})
}

// RequireAPIKeyFunc requires header to carry a key accepted by validate.
// On success the context is {auth: {apiKey: <key>}}.
func RequireAPIKeyFunc(header string, validate APIKeyValidator) Provider {
	return func(ctx context.Context, req *Request) (map[string]interface{}, error) {
		key, ok := req.Header(header)
		if !ok {
			return nil, callable.Unauthenticated(fmt.Sprintf("Missing required header: %s", header))
		}
		if err := validate(ctx, key); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"auth": map[string]interface{}{"apiKey": key},
		}, nil
	}
}

// RequireBearerToken requires an "Authorization: Bearer <token>" header and
// returns whatever context validate grants for the token.
func RequireBearerToken(validate TokenValidator) Provider {
	return func(ctx context.Context, req *Request) (map[string]interface{}, error) {
		value, ok := req.Header("Authorization")
		if !ok {
			return nil, callable.Unauthenticated("Missing or invalid Authorization header")
		}
		m := bearerPattern.FindStringSubmatch(value)
		if m == nil {
			return nil, callable.Unauthenticated("Missing or invalid Authorization header")
		}
		return validate(ctx, m[1])
	}
}

// AllOf runs providers in order. The first failure is returned; otherwise
// the contexts are merged left to right, later providers winning.
func AllOf(providers ...Provider) Provider {
	return func(ctx context.Context, req *Request) (map[string]interface{}, error) {
		out := map[string]interface{}{}
		for _, p := range providers {
			fields, err := p(ctx, req)
			if err != nil {
				return nil, err
			}
			out = Merge(out, fields)
		}
		return out, nil
	}
}

// AnyOf runs providers in order and returns the first success as-is. When all
// fail, the error of the last provider is returned.
func AnyOf(providers ...Provider) Provider {
	return func(ctx context.Context, req *Request) (map[string]interface{}, error) {
		lastErr := error(callable.Unauthenticated("No authorization provider accepted the request"))
		for _, p := range providers {
			fields, err := p(ctx, req)
			if err == nil {
				return fields, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// Merge returns a new map holding base overlaid with over. Keys in over win.
func Merge(base, over map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
