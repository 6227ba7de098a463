package db

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
)

const migrationsLogPrefix = "db:migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// LoadMigrationFiles reads all .sql files from dir, sorted by name, and returns their
// contents. An empty dir selects the migrations built into the binary.
func LoadMigrationFiles(dir string) ([]string, error) {
	var fsys fs.FS
	source := dir
	if dir == "" {
		sub, err := fs.Sub(embedded, "migrations")
		if err != nil {
			return nil, fmt.Errorf("%s - embedded migrations: %w", migrationsLogPrefix, err)
		}
		fsys = sub
		source = "embedded"
	} else {
		fsys = os.DirFS(dir)
	}
	return loadFrom(fsys, source)
}

func loadFrom(fsys fs.FS, source string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, source, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s/%s: %w", migrationsLogPrefix, source, name, err)
		}
		out = append(out, string(data))
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), source))
	return out, nil
}
