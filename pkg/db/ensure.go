package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

const ensureLogPrefix = "db:ensure"

// stateDBName limits the names ensure-db accepts, since CREATE DATABASE takes no parameters.
var stateDBName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// EnsureDatabase makes sure the database that will hold dm_states exists, creating it
// through the server's "postgres" maintenance database when missing. It reports whether
// the database was created. The dm_states schema itself is left to migrate up.
func EnsureDatabase(ctx context.Context, databaseURL string) (bool, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return false, fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	name, err := databaseName(u)
	if err != nil {
		return false, err
	}

	config, err := pgx.ParseConfig(buildPostgresURL(u))
	if err != nil {
		return false, fmt.Errorf("%s - failed to parse maintenance URL: %w", ensureLogPrefix, err)
	}
	// CREATE DATABASE cannot run as a prepared statement.
	config.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return false, fmt.Errorf("%s - failed to reach the postgres maintenance database: %w", ensureLogPrefix, err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s - failed to look up database %s: %w", ensureLogPrefix, name, err)
	}
	if exists {
		slog.Debug(fmt.Sprintf("%s - Database %s already present", ensureLogPrefix, name))
		return false, nil
	}

	slog.Info(fmt.Sprintf("%s - Creating state database %s", ensureLogPrefix, name))
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+quoteIdent(name)); err != nil {
		return false, fmt.Errorf("%s - failed to create database %s: %w", ensureLogPrefix, name, err)
	}
	return true, nil
}

// databaseName returns the database a state store URL points at.
func databaseName(u *url.URL) (string, error) {
	name := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	switch {
	case name == "":
		return "", fmt.Errorf("%s - database URL names no database", ensureLogPrefix)
	case !stateDBName.MatchString(name):
		return "", fmt.Errorf("%s - database name %q may only hold letters, digits and underscores", ensureLogPrefix, name)
	}
	return name, nil
}

// buildPostgresURL points u at the maintenance database, keeping credentials and options.
func buildPostgresURL(u *url.URL) string {
	maintenance := *u
	maintenance.Path = "/postgres"
	return maintenance.String()
}

// quoteIdent quotes a Postgres identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
