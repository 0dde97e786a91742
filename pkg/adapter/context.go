package adapter

import (
	"context"
	"net/http"

	"github.com/morezero/flow-functions/pkg/auth"
	"github.com/morezero/flow-functions/pkg/callable"
	"github.com/morezero/flow-functions/pkg/trigger"
)

// Platform-derived context keys.
const (
	ContextKeyURL          = "url"
	ContextKeyHeaders      = "headers"
	ContextKeyQuery        = "query"
	ContextKeyParams       = "params"
	ContextKeyInvocationID = "invocationId"
	ContextKeyFunctionName = "functionName"
)

// PlatformContext returns the context fields derived from the request and the
// invocation. headers must already be normalized.
func PlatformContext(r *http.Request, inv *trigger.Invocation, headers map[string]string) map[string]interface{} {
	params := map[string]string{}
	var invocationID, functionName string
	if inv != nil {
		invocationID = inv.InvocationID
		functionName = inv.FunctionName
		for k, v := range inv.Params {
			params[k] = v
		}
	}
	return map[string]interface{}{
		ContextKeyURL:          requestURL(r),
		ContextKeyHeaders:      headers,
		ContextKeyQuery:        callable.FlattenQuery(r.URL.Query()),
		ContextKeyParams:       params,
		ContextKeyInvocationID: invocationID,
		ContextKeyFunctionName: functionName,
	}
}

// ResolveContext builds the flow context for a request: platform fields,
// overlaid with the fields granted by the configured provider. Provider
// failures are returned unchanged.
func (a *Adapter) ResolveContext(ctx context.Context, r *http.Request, inv *trigger.Invocation, headers map[string]string, input interface{}) (map[string]interface{}, error) {
	platform := PlatformContext(r, inv, headers)
	if a.opts.ContextProvider == nil {
		return platform, nil
	}

	fields, err := a.opts.ContextProvider(ctx, &auth.Request{
		Method:  r.Method,
		Headers: headers,
		Input:   input,
	})
	if err != nil {
		return nil, err
	}
	return auth.Merge(platform, fields), nil
}

func requestURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	if r.Host == "" {
		return r.URL.RequestURI()
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
