// Package main is the entrypoint for flowhost, the HTTP trigger host for flows.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/flow-functions/internal/config"
	"github.com/morezero/flow-functions/internal/server"
	"github.com/morezero/flow-functions/pkg/db"
)

const usage = `Usage: flowhost [command]
       flowhost serve                              Start the HTTP trigger host.
       flowhost migrate up                         Run database migrations.
       flowhost migrate status                     Show migration status.
       flowhost keys create <principal> [scope...] Issue an API key and print it once.
       flowhost keys disable <key>                 Disable an API key.

Commands:
  serve           (default) Register the catalog and demo flows and serve them over HTTP.
  migrate up      Apply the migrations not yet recorded in schema_migrations.
  migrate status  List every migration file and when it was applied.
  keys create     Issue a key for the API key store (KEY_TTL bounds its lifetime).
  keys disable    Disable a key in the API key store.

Environment: HTTP_ADDR / HTTP_PORT, ROUTE_PREFIX, FLOW_CATALOG_FILE, COMMS_URL, DATABASE_URL,
MIGRATION_PATH, FUNCTION_KEYS, ADMIN_KEYS, DEMO_FLOWS, LOG_LEVEL, KEY_TTL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("flowhost migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := withPool(runMigrateUp); err != nil {
				log.Fatalf("flowhost migrate up: %v", err)
			}
		case "status":
			if err := withPool(runMigrateStatus); err != nil {
				log.Fatalf("flowhost migrate status: %v", err)
			}
		default:
			log.Fatalf("flowhost migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "keys":
		if err := runKeys(args[1:]); err != nil {
			log.Fatalf("flowhost keys: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("flowhost: %v", err)
	}
}

// withPool loads the config, opens the database and runs fn.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	applied, err := db.RunMigrations(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) == 0 {
		fmt.Println("Database is up to date.")
		return nil
	}
	for _, name := range applied {
		fmt.Printf("Applied %s\n", name)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	states, err := db.MigrationStatus(ctx, pool, migrations)
	if err != nil {
		return err
	}
	fmt.Print(formatMigrationStatus(states))
	return nil
}

// formatMigrationStatus renders one line per migration file.
func formatMigrationStatus(states []db.MigrationState) string {
	if len(states) == 0 {
		return "No migration files found.\n"
	}
	var b strings.Builder
	for _, st := range states {
		if st.Applied() {
			fmt.Fprintf(&b, "applied  %s  %s\n", st.AppliedAt.UTC().Format(time.RFC3339), st.Name)
		} else {
			fmt.Fprintf(&b, "pending  %-20s  %s\n", "-", st.Name)
		}
	}
	return b.String()
}

// keysCommand is a parsed "keys" invocation.
type keysCommand struct {
	action    string
	principal string
	scopes    []string
	key       string
}

func parseKeysArgs(args []string) (*keysCommand, error) {
	if len(args) == 0 {
		return nil, errors.New("require subcommand (create, disable)")
	}
	switch args[0] {
	case "create":
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return nil, errors.New("create: require a principal")
		}
		return &keysCommand{action: "create", principal: args[1], scopes: args[2:]}, nil
	case "disable":
		if len(args) != 2 || args[1] == "" {
			return nil, errors.New("disable: require exactly one key")
		}
		return &keysCommand{action: "disable", key: args[1]}, nil
	default:
		return nil, fmt.Errorf("unknown subcommand %q (use create, disable)", args[0])
	}
}

func runKeys(args []string) error {
	kc, err := parseKeysArgs(args)
	if err != nil {
		return err
	}

	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		repo := db.NewKeyRepository(pool)
		switch kc.action {
		case "create":
			key, err := repo.CreateKey(ctx, kc.principal, kc.scopes, cfg.KeyTTL)
			if err != nil {
				return err
			}
			fmt.Println(key)
		case "disable":
			if err := repo.DisableKey(ctx, kc.key); err != nil {
				return err
			}
			fmt.Println("Key disabled.")
		}
		return nil
	})
}
