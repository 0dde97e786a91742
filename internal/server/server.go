// Package server orchestrates all components: COMMS client, key store, flow
// catalog, trigger host and the HTTP listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/flow-functions/internal/config"
	"github.com/morezero/flow-functions/pkg/adapter"
	"github.com/morezero/flow-functions/pkg/catalog"
	"github.com/morezero/flow-functions/pkg/commsutil"
	"github.com/morezero/flow-functions/pkg/db"
	"github.com/morezero/flow-functions/pkg/events"
	"github.com/morezero/flow-functions/pkg/flow"
	"github.com/morezero/flow-functions/pkg/natsflow"
	"github.com/morezero/flow-functions/pkg/trigger"
)

const logPrefix = "server:server"

const healthTimeout = 5 * time.Second

// Deps are the collaborators a Server is built from. Every field is optional.
type Deps struct {
	Conn    *comms.Conn
	Keys    KeyStore
	Catalog *catalog.Catalog
	// PingDB reports database health; nil means no database.
	PingDB func(ctx context.Context) error
}

// Server is the flowhost orchestrator.
type Server struct {
	cfg      *config.Config
	deps     Deps
	router   chi.Router
	host     *trigger.RouterHost
	adapters []*adapter.Adapter
	workers  []*natsflow.Worker
}

// New builds the router and registers every flow trigger.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	s := &Server{cfg: cfg, deps: deps}

	var pub events.EventPublisher = &events.NoOpPublisher{}
	if deps.Conn != nil {
		pub = events.NewCommsPublisher(deps.Conn, &events.CommsPublisherOpts{GlobalSubject: cfg.EventSubject})
	}

	if cfg.DemoFlows {
		demo, err := demoAdapters(adapter.Options{Publisher: pub})
		if err != nil {
			return nil, err
		}
		s.adapters = append(s.adapters, demo...)

		// Served on COMMS as well, so catalog entries can reach them remotely.
		if deps.Conn != nil {
			for _, f := range []flow.Flow{JokeFlow(), JokeStreamFlow()} {
				w, err := natsflow.Serve(deps.Conn, f, natsflow.ServeOptions{Timeout: cfg.RequestTimeout})
				if err != nil {
					s.Close()
					return nil, err
				}
				s.workers = append(s.workers, w)
			}
		}
	}

	remote, err := catalogAdapters(deps.Catalog, deps.Conn, deps.Keys, pub, cfg.RequestTimeout)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.adapters = append(s.adapters, remote...)

	s.router = chi.NewRouter()
	s.router.Use(middleware.Recoverer)
	s.router.Get("/", s.handleHome())
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	s.host = trigger.NewRouterHost(s.router, trigger.RouterHostOptions{
		Prefix:       cfg.RoutePrefix,
		FunctionKeys: cfg.FunctionKeys,
		AdminKeys:    cfg.AdminKeys,
	})
	handles := make([]trigger.Registrable, 0, len(s.adapters))
	for _, a := range s.adapters {
		handles = append(handles, a)
	}
	if err := trigger.RegisterAll(s.host, handles...); err != nil {
		s.Close()
		return nil, err
	}

	slog.Info(fmt.Sprintf("%s - Registered %d flows under /%s", logPrefix, len(s.adapters), cfg.RoutePrefix))
	return s, nil
}

// Handler returns the HTTP handler of the host.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Routes returns the registered trigger paths keyed by flow name.
func (s *Server) Routes() map[string]string {
	return s.host.Routes()
}

// Close stops the COMMS workers.
func (s *Server) Close() {
	for _, w := range s.workers {
		w.Close()
	}
	s.workers = nil
}

// healthOutput is the /health response.
type healthOutput struct {
	Status    string          `json:"status"`
	Flows     []string        `json:"flows"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) health(ctx context.Context) *healthOutput {
	out := &healthOutput{
		Status:    "healthy",
		Flows:     s.host.Names(),
		Checks:    map[string]bool{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Conn != nil {
		out.Checks["comms"] = s.deps.Conn.IsConnected()
	}
	if s.deps.PingDB != nil {
		err := s.deps.PingDB(ctx)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - database health check failed: %v", logPrefix, err))
		}
		out.Checks["database"] = err == nil
	}
	for _, ok := range out.Checks {
		if !ok {
			out.Status = "unhealthy"
		}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	h := s.health(ctx)
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

// Run starts the host, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	slog.Info(fmt.Sprintf("%s - Starting %s", logPrefix, cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deps Deps

	// Step 1: Load the flow catalog
	if cfg.CatalogFile != "" {
		cat, err := catalog.Load(cfg.CatalogFile)
		if err != nil {
			return fmt.Errorf("%s - failed to load flow catalog: %w", logPrefix, err)
		}
		deps.Catalog = cat
	}

	// Step 2: Connect to COMMS
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.ServiceName, 0)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		defer nc.Drain()
		deps.Conn = nc
	}

	// Step 3: Connect to the key store
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		defer pool.Close()

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if _, err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		deps.Keys = db.NewKeyRepository(pool)
		deps.PingDB = pool.Ping
	}

	// Step 4: Build adapters and register triggers
	s, err := New(cfg, deps)
	if err != nil {
		return err
	}
	defer s.Close()

	// Step 5: Serve HTTP
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP listening on %s", logPrefix, httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info(fmt.Sprintf("%s - %s is ready", logPrefix, cfg.ServiceName))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
	case err := <-errCh:
		return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
