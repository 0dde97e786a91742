// Package trigger defines the HTTP trigger host contract and a chi-based host
// that serves registered flow handlers.
package trigger

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const logPrefix = "trigger:trigger"

// AuthLevel is the platform-enforced trust level of a trigger.
type AuthLevel string

// Platform trust levels.
const (
	AuthLevelAnonymous AuthLevel = "anonymous"
	AuthLevelFunction  AuthLevel = "function"
	AuthLevelAdmin     AuthLevel = "admin"
)

// ParseAuthLevel parses a trust level; empty means anonymous.
func ParseAuthLevel(s string) (AuthLevel, error) {
	switch AuthLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "", AuthLevelAnonymous:
		return AuthLevelAnonymous, nil
	case AuthLevelFunction:
		return AuthLevelFunction, nil
	case AuthLevelAdmin:
		return AuthLevelAdmin, nil
	default:
		return "", fmt.Errorf("%s - unknown auth level %q", logPrefix, s)
	}
}

// Config is the registration metadata of one trigger.
type Config struct {
	Methods   []string
	AuthLevel AuthLevel
	// Route overrides the trigger name as the URL path.
	Route string
}

// Invocation is the per-request platform context.
type Invocation struct {
	FunctionName string
	InvocationID string
	// Params holds the route parameters matched by the host.
	Params map[string]string
	Logger *slog.Logger
}

// Handler serves one invocation of a trigger.
type Handler func(w http.ResponseWriter, r *http.Request, inv *Invocation)

// Host registers triggers.
type Host interface {
	Register(name string, cfg Config, h Handler) error
}

// Registrable is anything that can describe its own trigger registration.
type Registrable interface {
	Trigger() (name string, cfg Config, h Handler)
}

// RegisterAll registers every handle on host, stopping at the first failure.
func RegisterAll(host Host, handles ...Registrable) error {
	for _, handle := range handles {
		name, cfg, h := handle.Trigger()
		if err := host.Register(name, cfg, h); err != nil {
			return fmt.Errorf("%s - failed to register %s: %w", logPrefix, name, err)
		}
		slog.Info(fmt.Sprintf("%s - Registered trigger %s (methods=%s auth=%s)", logPrefix, name, strings.Join(cfg.Methods, ","), cfg.AuthLevel))
	}
	return nil
}
