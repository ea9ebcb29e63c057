package migrate

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql":     {Data: []byte("-- +migrate Up\nCREATE TABLE b(id TEXT);\n-- +migrate Down\nDROP TABLE b;\n")},
		"001_a.sql":     {Data: []byte("CREATE TABLE a(id TEXT);")},
		"003_empty.sql": {Data: []byte("-- +migrate Up\n\n-- +migrate Down\nDROP TABLE c;")},
		"README.md":     {Data: []byte("not sql")},
	}
	migrations, err := Load(fsys, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("migrations = %d, want 2", len(migrations))
	}
	if migrations[0].Name != "001_a.sql" || migrations[1].Name != "002_b.sql" {
		t.Fatalf("order = %s, %s", migrations[0].Name, migrations[1].Name)
	}
	if strings.Contains(migrations[1].Up, "DROP") {
		t.Fatalf("down section leaked into up: %q", migrations[1].Up)
	}
	if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
		t.Fatalf("checksums = %q %q", migrations[0].Checksum, migrations[1].Checksum)
	}
}

func TestLoad_Root(t *testing.T) {
	fsys := fstest.MapFS{
		"engine/001_rows.sql": {Data: []byte("CREATE TABLE rows(id TEXT);")},
	}
	migrations, err := Load(fsys, "engine")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Name != "engine/001_rows.sql" {
		t.Fatalf("migrations = %+v", migrations)
	}
	if _, err := Load(fsys, "missing"); err == nil {
		t.Fatal("expected missing root error")
	}
}

func TestUpSection(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "no markers", content: "SELECT 1;", want: "SELECT 1;"},
		{name: "up only", content: "-- +migrate Up\nSELECT 1;", want: "\nSELECT 1;"},
		{name: "up and down", content: "-- +migrate Up\nCREATE TABLE a(id TEXT);\n-- +migrate Down\nDROP TABLE a;\n", want: "\nCREATE TABLE a(id TEXT);\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UpSection(tt.content); got != tt.want {
				t.Fatalf("UpSection = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRun_SQLite(t *testing.T) {
	db := openInMemoryDB(t)
	backend := NewSQLiteBackend(db)
	migrations := mustLoad(t, fstest.MapFS{
		"001_members.sql":  {Data: []byte("-- +migrate Up\nCREATE TABLE members(id TEXT PRIMARY KEY);")},
		"002_triggers.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE triggers(id TEXT PRIMARY KEY);")},
	})

	ran, err := Run(context.Background(), backend, migrations)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("ran = %v, want 2 migrations", ran)
	}
	if !tableExists(t, db, "members") || !tableExists(t, db, "triggers") {
		t.Fatal("expected migrated tables")
	}

	ran, err = Run(context.Background(), backend, migrations)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(ran) != 0 {
		t.Fatalf("rerun applied %v, want none", ran)
	}
	if n := countRows(t, db); n != 2 {
		t.Fatalf("recorded = %d, want 2", n)
	}
}

func TestRun_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openInMemoryDB(t)
	backend := NewSQLiteBackend(db)

	bad := mustLoad(t, fstest.MapFS{
		"001_things.sql": {Data: []byte("CREAT table things(id INT);")},
	})
	if _, err := Run(context.Background(), backend, bad); err == nil {
		t.Fatal("expected bad migration to fail")
	}
	if n := countRows(t, db); n != 0 {
		t.Fatalf("recorded = %d, want 0", n)
	}

	fixed := mustLoad(t, fstest.MapFS{
		"001_things.sql": {Data: []byte("CREATE TABLE things(id INTEGER PRIMARY KEY);")},
	})
	if _, err := Run(context.Background(), backend, fixed); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if n := countRows(t, db); n != 1 {
		t.Fatalf("recorded = %d, want 1", n)
	}
}

func TestRun_ChangedMigration(t *testing.T) {
	db := openInMemoryDB(t)
	backend := NewSQLiteBackend(db)
	if _, err := Run(context.Background(), backend, mustLoad(t, fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a(id TEXT);")},
	})); err != nil {
		t.Fatalf("run: %v", err)
	}

	_, err := Run(context.Background(), backend, mustLoad(t, fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a(id TEXT, name TEXT);")},
	}))
	if err == nil || !strings.Contains(err.Error(), "changed after it was applied") {
		t.Fatalf("err = %v, want changed migration error", err)
	}
}

func TestRun_AdoptsExistingTables(t *testing.T) {
	db := openInMemoryDB(t)
	if _, err := db.Exec("CREATE TABLE a(id TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	ran, err := Run(context.Background(), NewSQLiteBackend(db), mustLoad(t, fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a(id TEXT);")},
	}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(ran) != 1 {
		t.Fatalf("ran = %v, want 1", ran)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	db := openInMemoryDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	migrations := mustLoad(t, fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a(id TEXT);")},
	})
	if _, err := Run(ctx, NewSQLiteBackend(db), migrations); err == nil {
		t.Fatal("expected cancelled context error")
	}
}

func TestRun_RequiresBackend(t *testing.T) {
	if _, err := Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected backend error")
	}
	if _, err := Run(context.Background(), NewSQLiteBackend(nil), nil); err == nil {
		t.Fatal("expected db error")
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: errors.New("table a already exists"), want: true},
		{err: errors.New("duplicate column name: name"), want: true},
		{err: errors.New("syntax error"), want: false},
	}
	for _, tt := range tests {
		if got := IsAlreadyExistsError(tt.err); got != tt.want {
			t.Fatalf("IsAlreadyExistsError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func mustLoad(t *testing.T, fsys fstest.MapFS) []Migration {
	t.Helper()
	migrations, err := Load(fsys, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return migrations
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func countRows(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + Table).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	return n
}

func tableExists(t *testing.T, db *sql.DB, tableName string) bool {
	t.Helper()
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", tableName).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("check table exists: %v", err)
	}
	return name == tableName
}
