package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteBackend keeps migration bookkeeping in a SQLite database.
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteBackend wraps db.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db, now: time.Now}
}

// EnsureTable creates the bookkeeping table.
func (b *SQLiteBackend) EnsureTable(ctx context.Context) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("sql db is required")
	}
	_, err := b.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+Table+` (
    name TEXT PRIMARY KEY,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at INTEGER NOT NULL
)`)
	return err
}

// Applied lists recorded migrations.
func (b *SQLiteBackend) Applied(ctx context.Context) (map[string]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT name, checksum FROM `+Table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		out[name] = sum
	}
	return out, rows.Err()
}

// Apply runs m and records it. DDL that already took effect is tolerated so a
// database created before bookkeeping existed can adopt the migration.
func (b *SQLiteBackend) Apply(ctx context.Context, m Migration) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, m.Up); err != nil && !IsAlreadyExistsError(err) {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+Table+` (name, checksum, applied_at) VALUES (?, ?, ?)`,
		m.Name, m.Checksum, b.now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}
