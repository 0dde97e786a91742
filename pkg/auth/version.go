package auth

import (
	"context"
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/morezero/flow-functions/pkg/callable"
)

const versionLogPrefix = "auth:version"

// RequireVersion requires header to carry a semantic version that satisfies
// constraint (e.g. ">=1.4.0 <2.0.0"). On success the context is
// {client: {version: <normalized version>}}.
func RequireVersion(header, constraint string) (Provider, error) {
	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version constraint %q: %w", versionLogPrefix, constraint, err)
	}

	return func(_ context.Context, req *Request) (map[string]interface{}, error) {
		raw, ok := req.Header(header)
		if !ok || raw == "" {
			return nil, callable.InvalidArgument(fmt.Sprintf("Missing required header: %s", header))
		}
		v, err := masterminds.NewVersion(raw)
		if err != nil {
			return nil, callable.InvalidArgument(fmt.Sprintf("Invalid version in header %s: %s", header, raw))
		}
		if !c.Check(v) {
			return nil, callable.FailedPrecondition(fmt.Sprintf("Client version %s does not satisfy %s", v.String(), constraint))
		}
		return map[string]interface{}{
			"client": map[string]interface{}{"version": v.String()},
		}, nil
	}, nil
}
