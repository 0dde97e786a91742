package trigger

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/morezero/flow-functions/pkg/callable"
)

const hostLogPrefix = "trigger:router_host"

// Platform key sources for function and admin level triggers.
const (
	FunctionKeyHeader = "x-functions-key"
	FunctionKeyQuery  = "code"
)

var supportedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// RouterHostOptions configures a RouterHost.
type RouterHostOptions struct {
	// Prefix is the path segment every trigger is mounted under (e.g. "api").
	Prefix string
	// FunctionKeys are accepted by function level triggers.
	FunctionKeys []string
	// AdminKeys are accepted by function and admin level triggers.
	AdminKeys []string
	// Logger is the parent of every per-invocation logger. Nil uses slog.Default().
	Logger *slog.Logger
}

// RouterHost is a Host that mounts triggers on a chi router.
type RouterHost struct {
	router       chi.Router
	prefix       string
	functionKeys []string
	adminKeys    []string
	logger       *slog.Logger

	mu     sync.Mutex
	routes map[string]string
}

// NewRouterHost creates a RouterHost on router. Pass nil to create a new router.
func NewRouterHost(router chi.Router, opts RouterHostOptions) *RouterHost {
	if router == nil {
		router = chi.NewRouter()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RouterHost{
		router:       router,
		prefix:       strings.Trim(opts.Prefix, "/"),
		functionKeys: opts.FunctionKeys,
		adminKeys:    opts.AdminKeys,
		logger:       logger,
		routes:       make(map[string]string),
	}
}

// Register mounts h for every method in cfg at the trigger's route.
func (h *RouterHost) Register(name string, cfg Config, handler Handler) error {
	if name == "" {
		return fmt.Errorf("%s - trigger name is required", hostLogPrefix)
	}
	if handler == nil {
		return fmt.Errorf("%s - trigger %s has no handler", hostLogPrefix, name)
	}
	if len(cfg.Methods) == 0 {
		return fmt.Errorf("%s - trigger %s has no methods", hostLogPrefix, name)
	}
	methods := make([]string, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if !supportedMethods[m] {
			return fmt.Errorf("%s - trigger %s: unsupported method %q", hostLogPrefix, name, m)
		}
		methods = append(methods, m)
	}
	level, err := ParseAuthLevel(string(cfg.AuthLevel))
	if err != nil {
		return err
	}

	path := h.path(name, cfg.Route)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.routes[name]; exists {
		return fmt.Errorf("%s - trigger %s is already registered", hostLogPrefix, name)
	}
	for other, p := range h.routes {
		if p == path {
			return fmt.Errorf("%s - route %s of trigger %s is already used by %s", hostLogPrefix, path, name, other)
		}
	}

	serve := h.wrap(name, level, handler)
	for _, m := range methods {
		h.router.MethodFunc(m, path, serve)
	}
	h.routes[name] = path

	slog.Debug(fmt.Sprintf("%s - Mounted %s at %s", hostLogPrefix, name, path))
	return nil
}

// Routes returns the registered trigger paths keyed by trigger name.
func (h *RouterHost) Routes() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.routes))
	for k, v := range h.routes {
		out[k] = v
	}
	return out
}

// Names returns the registered trigger names in sorted order.
func (h *RouterHost) Names() []string {
	routes := h.Routes()
	names := make([]string, 0, len(routes))
	for n := range routes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP serves the underlying router.
func (h *RouterHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *RouterHost) path(name, route string) string {
	route = strings.Trim(route, "/")
	if route == "" {
		route = name
	}
	if h.prefix == "" {
		return "/" + route
	}
	return "/" + h.prefix + "/" + route
}

func (h *RouterHost) wrap(name string, level AuthLevel, handler Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		inv := &Invocation{
			FunctionName: name,
			InvocationID: id,
			Params:       routeParams(r),
			Logger:       h.logger.With("functionName", name, "invocationId", id),
		}

		// Preflights carry no credentials; they always reach the handler.
		if r.Method != http.MethodOptions && !h.authorized(level, r) {
			inv.Logger.Warn(fmt.Sprintf("%s - rejected %s %s: missing or invalid function key", hostLogPrefix, r.Method, r.URL.Path))
			writeUnauthorized(w)
			return
		}

		handler(w, r, inv)
	}
}

func (h *RouterHost) authorized(level AuthLevel, r *http.Request) bool {
	if level == AuthLevelAnonymous {
		return true
	}
	key := r.Header.Get(FunctionKeyHeader)
	if key == "" {
		key = r.URL.Query().Get(FunctionKeyQuery)
	}
	if key == "" {
		return false
	}
	if matchKey(key, h.adminKeys) {
		return true
	}
	return level == AuthLevelFunction && matchKey(key, h.functionKeys)
}

func matchKey(key string, keys []string) bool {
	for _, k := range keys {
		if k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func routeParams(r *http.Request) map[string]string {
	params := map[string]string{}
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return params
	}
	for i, k := range rctx.URLParams.Keys {
		if i < len(rctx.URLParams.Values) {
			params[k] = rctx.URLParams.Values[i]
		}
	}
	return params
}

func writeUnauthorized(w http.ResponseWriter) {
	body, _ := json.Marshal(callable.NewErrorEnvelope(callable.Unauthenticated("Missing or invalid function key")))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write(body)
}
