// Package migrate applies embedded, forward-only SQL migrations and tracks
// them in a schema_migrations table with a checksum per file.
//
// Files are applied in lexical order. Only the section after "-- +migrate Up"
// (and before "-- +migrate Down", if present) is executed. A file that changes
// after it was applied stops the run.
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// Table records applied migrations.
const Table = "schema_migrations"

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migration is one parsed migration file.
type Migration struct {
	Name     string
	Up       string
	Checksum string
}

// Backend stores migration bookkeeping for one database engine.
type Backend interface {
	// EnsureTable creates the bookkeeping table when missing.
	EnsureTable(ctx context.Context) error
	// Applied returns the checksum of every recorded migration by name.
	Applied(ctx context.Context) (map[string]string, error)
	// Apply executes m and records it in one transaction.
	Apply(ctx context.Context, m Migration) error
}

// Load reads every .sql file under root, sorted by name. Files with an empty
// Up section are skipped.
func Load(fsys fs.FS, root string) ([]Migration, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		filePath := path.Join(root, name)
		content, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		up := UpSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}
		key := name
		if root != "." {
			key = filePath
		}
		sum := sha256.Sum256([]byte(up))
		out = append(out, Migration{Name: key, Up: up, Checksum: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

// Run applies the migrations the backend has not recorded yet and returns the
// names it applied.
func Run(ctx context.Context, backend Backend, migrations []Migration) ([]string, error) {
	if backend == nil {
		return nil, fmt.Errorf("migration backend is required")
	}
	if err := backend.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := backend.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	var ran []string
	for _, m := range migrations {
		if sum, ok := applied[m.Name]; ok {
			// Rows written before checksums were tracked carry an empty sum.
			if sum != "" && sum != m.Checksum {
				return ran, fmt.Errorf("migration %s changed after it was applied", m.Name)
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		if err := backend.Apply(ctx, m); err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		ran = append(ran, m.Name)
	}
	return ran, nil
}

// UpSection returns the SQL between the Up and Down markers. Content without
// an Up marker is returned whole.
func UpSection(content string) string {
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	rest := content[upIdx+len(upMarker):]
	if downIdx := strings.Index(rest, downMarker); downIdx != -1 {
		return rest[:downIdx]
	}
	return rest
}

// IsAlreadyExistsError reports whether err comes from DDL that already took
// effect, such as a table or column created by an earlier partial run.
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}
