// Package index implements the Task Index: a SQLite-backed derived cache
// over tasks_dir that accelerates ScanQueued (`vaultd status` does not
// consult it).
// It is never a second source of truth — every row is either rebuilt from
// a task file's frontmatter or upserted alongside a Task Ledger write, and
// any index error is handled by falling back to a direct directory scan.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Index wraps the cache database connection.
type Index struct {
	db *sql.DB
}

// Row is one task file's frontmatter, projected for storage.
type Row struct {
	Path       string
	Title      string
	Status     string
	Worker     string
	Priority   string
	TaskType   string
	Created    string
	Completed  string
	SourcePath string
}

// Open opens or creates the cache database at dbPath. A schema mismatch
// (stale cache from an older vaultd version) is treated as corruption: the
// file is deleted and recreated rather than failing, matching the
// teacher's store.Open recreate-on-mismatch behavior.
func Open(dbPath string) (*Index, error) {
	idx, err := open(dbPath)
	if err != nil {
		if isSchemaMismatch(err) {
			os.Remove(dbPath)
			os.Remove(dbPath + "-wal")
			os.Remove(dbPath + "-shm")
			return open(dbPath)
		}
		return nil, err
	}
	return idx, nil
}

func open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	connStr := "file:" + strings.ReplaceAll(dbPath, " ", "%20") + "?_time_format=sqlite"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open task index: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize task index schema: %w", err)
	}

	return &Index{db: db}, nil
}

func isSchemaMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "SQL logic error")
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert inserts or replaces the row for r.Path.
func (idx *Index) Upsert(ctx context.Context, r Row) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO tasks (path, title, status, worker, priority, task_type, created, completed, source_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			worker = excluded.worker,
			priority = excluded.priority,
			task_type = excluded.task_type,
			created = excluded.created,
			completed = excluded.completed,
			source_path = excluded.source_path
	`, r.Path, r.Title, r.Status, r.Worker, r.Priority, r.TaskType, r.Created, r.Completed, r.SourcePath)
	return err
}

// QueuedPaths returns the paths of every row currently in QUEUED status,
// ordered by path (lexicographic, matching the ledger's filename-prefix
// FIFO order).
func (idx *Index) QueuedPaths(ctx context.Context) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT path FROM tasks WHERE status = 'QUEUED' ORDER BY path ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Counts returns the number of rows per status.
func (idx *Index) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
