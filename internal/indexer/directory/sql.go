package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Dialect captures the few statements that differ between SQL engines.
type Dialect struct {
	Name        string
	CreateTable string
	Upsert      string
	Select      string
	Delete      string
	List        string
}

var (
	Postgres = Dialect{
		Name: "postgres",
		CreateTable: `CREATE TABLE IF NOT EXISTS index_files (
			name       TEXT PRIMARY KEY,
			data       BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		Upsert: `INSERT INTO index_files (name, data, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		Select: `SELECT data FROM index_files WHERE name = $1`,
		Delete: `DELETE FROM index_files WHERE name = $1`,
		List:   `SELECT name FROM index_files ORDER BY name`,
	}
	SQLite = Dialect{
		Name: "sqlite",
		CreateTable: `CREATE TABLE IF NOT EXISTS index_files (
			name       TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		Upsert: `INSERT INTO index_files (name, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		Select: `SELECT data FROM index_files WHERE name = ?`,
		Delete: `DELETE FROM index_files WHERE name = ?`,
		List:   `SELECT name FROM index_files ORDER BY name`,
	}
)

// SQL stores index files as rows of one table. A single-row upsert is atomic
// in both supported engines, which gives Write its replace semantics.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	ownsDB  bool
	timeout time.Duration
}

// NewSQL uses an existing pool, creating the table if needed. The caller
// keeps ownership of db.
func NewSQL(db *sql.DB, dialect Dialect) (*SQL, error) {
	d := &SQL{db: db, dialect: dialect, timeout: 30 * time.Second}
	ctx, cancel := d.ctx()
	defer cancel()
	if _, err := db.ExecContext(ctx, dialect.CreateTable); err != nil {
		return nil, fmt.Errorf("creating index_files table (%s): %w", dialect.Name, err)
	}
	return d, nil
}

// OpenSQLite opens (or creates) an embedded SQLite database at path. Use
// ":memory:" for a throwaway index.
func OpenSQLite(path string) (*SQL, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite directory: mkdir: %w", exhausted(err))
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite directory: open: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite directory: wal mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite directory: busy timeout: %w", err)
	}
	d, err := NewSQL(db, SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	d.ownsDB = true
	return d, nil
}

func (d *SQL) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.timeout)
}

func (d *SQL) List() ([]string, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	rows, err := d.db.QueryContext(ctx, d.dialect.List)
	if err != nil {
		return nil, fmt.Errorf("listing index files: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning index file name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing index files: %w", err)
	}
	return names, nil
}

func (d *SQL) Read(name string) ([]byte, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var data []byte
	err := d.db.QueryRowContext(ctx, d.dialect.Select, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func (d *SQL) Write(name string, data []byte) error {
	ctx, cancel := d.ctx()
	defer cancel()
	if _, err := d.db.ExecContext(ctx, d.dialect.Upsert, name, data); err != nil {
		return fmt.Errorf("writing %s: %w", name, exhausted(err))
	}
	return nil
}

func (d *SQL) Delete(name string) error {
	ctx, cancel := d.ctx()
	defer cancel()
	res, err := d.db.ExecContext(ctx, d.dialect.Delete, name)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deleting %s: %w", name, ErrNotFound)
	}
	return nil
}

// Close closes the pool only when OpenSQLite created it.
func (d *SQL) Close() error {
	if d.ownsDB {
		if d.dialect.Name == SQLite.Name {
			_, _ = d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
		return d.db.Close()
	}
	return nil
}
