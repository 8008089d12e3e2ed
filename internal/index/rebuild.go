package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rduffy/vaultd/internal/frontmatter"
)

// Rebuild wipes the cache and reconstructs it from every task file under
// tasksDir, reading each file's frontmatter directly rather than going
// through the Task Ledger (avoiding an index -> ledger import). It is
// called once at orchestrator startup; a missing tasksDir is not an error,
// it just produces an empty index. Returns the number of rows rebuilt.
func (idx *Index) Rebuild(ctx context.Context, tasksDir string) (int, error) {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return 0, fmt.Errorf("clear task index: %w", err)
	}

	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, tx.Commit()
		}
		return 0, fmt.Errorf("read tasks_dir: %w", err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(tasksDir, e.Name())
		row, err := rowFromTaskFile(path)
		if err != nil {
			continue // unreadable/malformed task file: skip, never fatal
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (path, title, status, worker, priority, task_type, created, completed, source_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, row.Path, row.Title, row.Status, row.Worker, row.Priority, row.TaskType, row.Created, row.Completed, row.SourcePath); err != nil {
			return n, fmt.Errorf("insert %s: %w", path, err)
		}
		n++
	}

	return n, tx.Commit()
}

func rowFromTaskFile(path string) (Row, error) {
	block, err := frontmatter.Read(path)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Path:       path,
		Title:      frontmatter.StringValue(block.Data, "title"),
		Status:     frontmatter.StringValue(block.Data, "status"),
		Worker:     frontmatter.StringValue(block.Data, "worker"),
		Priority:   frontmatter.StringValue(block.Data, "priority"),
		TaskType:   frontmatter.StringValue(block.Data, "task_type"),
		Created:    frontmatter.StringValue(block.Data, "created"),
		Completed:  frontmatter.StringValue(block.Data, "completed"),
		SourcePath: "", // not parsed from frontmatter; left for a ledger-driven Upsert to fill in
	}, nil
}
