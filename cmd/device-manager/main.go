// Package main is the entrypoint for the device-manager.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/morezero/device-manager/internal/config"
	"github.com/morezero/device-manager/internal/server"
	"github.com/morezero/device-manager/pkg/commsutil"
	"github.com/morezero/device-manager/pkg/db"
	"github.com/morezero/device-manager/pkg/guiclient"
	"github.com/morezero/device-manager/pkg/state"
)

const usage = `Usage: device-manager [command]
       device-manager serve                 Start the device manager (NATS, state store, HTTP health).
       device-manager migrate up            Run database migrations.
       device-manager migrate status        Show migration status.
       device-manager ensure-db [name]      Create database if missing (default name: device_manager_test). Uses DATABASE_URL host/user.
       device-manager clear                 Remove every stored control state (postgres or redis backend).
       device-manager call <verb> [json]    Send one GUI command and print the replies.

Commands:
  serve            (default) Start the device manager.
  migrate up       Run database migrations only.
  migrate status   Show current migration status.
  ensure-db [name] Create database on same host as DATABASE_URL; then run tests with that URL.
  clear            Delete stored states; schema preserved.
  call             Act as the GUI: e.g. call listDevices, call deviceControl '{"deviceId":"lamp-1","controlId":"power","state":true}'.

Environment: COMMS_URL, DM_INSTANCE, DM_STATE_BACKEND (memory, postgres, redis), DATABASE_URL, REDIS_URL,
MIGRATION_PATH, DM_CATALOG_FILE, DM_HTTP_ADDR (default :8080).
`

// callIdle is how long call waits for a further reply before it exits.
const callIdle = 2 * time.Second

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("device-manager migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("device-manager migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("device-manager migrate status: %v", err)
			}
		default:
			log.Fatalf("device-manager migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("device-manager clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "device_manager_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("device-manager ensure-db: %v", err)
		}
		return
	case "call":
		if len(args) < 2 {
			log.Fatalf("device-manager call: require a verb")
		}
		payload := ""
		if len(args) > 2 {
			payload = args[2]
		}
		if err := runCall(args[1], payload); err != nil {
			log.Fatalf("device-manager call: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("device-manager: %v", err)
	}
}

func runMigrateUp() error {
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

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
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

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	switch cfg.StateBackend {
	case config.BackendRedis:
		rs, err := state.NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		defer rs.Close()
		removed, err := rs.Clear(ctx)
		if err != nil {
			return fmt.Errorf("clear states: %w", err)
		}
		fmt.Printf("Removed %d states.\n", len(removed))
		return nil

	case config.BackendPostgres:
		if err := cfg.ValidateForDB(); err != nil {
			return err
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		n, err := db.ClearStates(ctx, pool)
		if err != nil {
			return fmt.Errorf("clear states: %w", err)
		}
		fmt.Printf("Removed %d states.\n", n)
		return nil

	default:
		return errClearMemory
	}
}

var errClearMemory = errors.New("the memory backend keeps no states between runs; set DM_STATE_BACKEND to postgres or redis")

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	targetURL, err := databaseURLFor(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	created, err := db.EnsureDatabase(context.Background(), targetURL)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Database %q created.\n", dbName)
	} else {
		fmt.Printf("Database %q is ready.\n", dbName)
	}
	return nil
}

// databaseURLFor points databaseURL at dbName, keeping host, user and query.
func databaseURLFor(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

// runCall sends verb to the configured instance and prints every reply until the
// instance goes quiet.
func runCall(verb, payload string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var body interface{}
	if payload != "" {
		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("payload is not valid JSON: %s", payload)
		}
		body = json.RawMessage(payload)
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-cli")
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	defer nc.Close()

	client, err := guiclient.NewClient(guiclient.NewClientParams{Conn: nc, Instance: cfg.Instance})
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Send(context.Background(), verb, body); err != nil {
		return err
	}
	for n := 0; ; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), callIdle)
		reply, err := client.Next(ctx)
		cancel()
		if err != nil {
			if n == 0 {
				return fmt.Errorf("no reply from %s", cfg.Instance)
			}
			return nil
		}
		fmt.Printf("%s %s\n", reply.Command, reply.Message)
	}
}
