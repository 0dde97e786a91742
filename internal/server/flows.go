package server

import (
	"context"
	"fmt"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/flow-functions/pkg/adapter"
	"github.com/morezero/flow-functions/pkg/auth"
	"github.com/morezero/flow-functions/pkg/catalog"
	"github.com/morezero/flow-functions/pkg/events"
	"github.com/morezero/flow-functions/pkg/natsflow"
	"github.com/morezero/flow-functions/pkg/trigger"
)

const flowsLogPrefix = "server:flows"

// KeyStore validates API keys and bearer tokens.
type KeyStore interface {
	Validate(ctx context.Context, key string) error
	TokenContext(ctx context.Context, token string) (map[string]interface{}, error)
}

// catalogAdapters builds one adapter per catalog entry, each backed by a
// remote flow reached over nc.
func catalogAdapters(cat *catalog.Catalog, nc *comms.Conn, keys KeyStore, pub events.EventPublisher, defaultTimeout time.Duration) ([]*adapter.Adapter, error) {
	if cat == nil || len(cat.Flows) == 0 {
		return nil, nil
	}
	if nc == nil {
		return nil, fmt.Errorf("%s - the flow catalog requires COMMS_URL", flowsLogPrefix)
	}
	if cat.NeedsKeyStore() && keys == nil {
		return nil, fmt.Errorf("%s - the flow catalog uses the key store but DATABASE_URL is not set", flowsLogPrefix)
	}

	out := make([]*adapter.Adapter, 0, len(cat.Flows))
	for i := range cat.Flows {
		e := &cat.Flows[i]

		timeout := defaultTimeout
		if e.TimeoutMs > 0 {
			timeout = time.Duration(e.TimeoutMs) * time.Millisecond
		}
		remote := natsflow.NewClient(nc, e.Name, natsflow.ClientOptions{Timeout: timeout})

		provider, err := buildProvider(e.Auth, keys)
		if err != nil {
			return nil, fmt.Errorf("%s - flow %s: %w", flowsLogPrefix, e.Name, err)
		}

		a, err := adapter.New(remote, adapter.Options{
			AuthLevel:       trigger.AuthLevel(e.AuthLevel),
			HTTPMethods:     e.Methods,
			Route:           e.Route,
			CORS:            e.CORS.Policy(),
			ContextProvider: provider,
			Streaming:       e.Streaming,
			Debug:           e.Debug,
			Publisher:       pub,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// buildProvider composes the primitives an auth entry asks for. They all have
// to pass, in the order header checks, version, API key, bearer token.
func buildProvider(a *catalog.AuthEntry, keys KeyStore) (auth.Provider, error) {
	if a == nil {
		return nil, nil
	}
	if a.NeedsKeyStore() && keys == nil {
		return nil, fmt.Errorf("%s - no key store configured", flowsLogPrefix)
	}

	var providers []auth.Provider
	for _, h := range a.RequiredHeaders {
		providers = append(providers, auth.RequireHeader(h))
	}
	if c := a.VersionConstraint(); c != "" {
		p, err := auth.RequireVersion(a.ClientVersionHeader(), c)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	switch {
	case a.APIKey != "":
		providers = append(providers, auth.RequireAPIKey(a.KeyHeader(), a.APIKey))
	case a.APIKeyStore:
		providers = append(providers, auth.RequireAPIKeyFunc(a.KeyHeader(), keys.Validate))
	}
	if a.Bearer {
		providers = append(providers, auth.RequireBearerToken(keys.TokenContext))
	}

	switch len(providers) {
	case 0:
		return nil, nil
	case 1:
		return providers[0], nil
	default:
		return auth.AllOf(providers...), nil
	}
}
