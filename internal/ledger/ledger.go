package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rduffy/vaultd/internal/agent"
	"github.com/rduffy/vaultd/internal/event"
	"github.com/rduffy/vaultd/internal/index"
	"github.com/rs/zerolog"
)

// Ledger reads and writes task files under a single tasks_dir. The task
// file is always the source of truth; every operation re-reads or
// re-writes it on disk, matching spec.md §4.5's "no in-memory index
// required". An optional Task Index may be attached via SetIndex to
// accelerate ScanQueued — it is consulted best-effort and never trusted
// over what's actually on disk.
type Ledger struct {
	tasksDir string
	logger   zerolog.Logger
	index    *index.Index
}

// New returns a Ledger rooted at tasksDir. The directory is not created
// here; Create creates it and returns an error if that fails.
func New(tasksDir string, logger zerolog.Logger) *Ledger {
	return &Ledger{tasksDir: tasksDir, logger: logger}
}

// SetIndex attaches a Task Index cache. Every subsequent Create/UpdateStatus
// best-effort-upserts into it, and ScanQueued consults it first.
func (l *Ledger) SetIndex(idx *index.Index) {
	l.index = idx
}

func (l *Ledger) upsertIndex(rec *Record) {
	if l.index == nil {
		return
	}
	row := index.Row{
		Path:       rec.Path,
		Title:      rec.Title,
		Status:     string(rec.Status),
		Worker:     rec.Worker,
		Priority:   string(rec.Priority),
		TaskType:   rec.TaskType,
		Created:    rec.Created.Format(timestampLayout),
		SourcePath: rec.SourcePath,
	}
	if !rec.Completed.IsZero() {
		row.Completed = rec.Completed.Format(timestampLayout)
	}
	if err := l.index.Upsert(context.Background(), row); err != nil {
		l.logger.Warn().Err(err).Str("path", rec.Path).Msg("task index upsert failed, falling back to disk scans")
	}
}

// Create writes a new task file for def triggered by ev, with the given
// initial status (QUEUED or IN_PROGRESS). It returns the task file's path:
// tasksDir joined with the generated filename. execLogPath is the wiki-link target recorded in the
// execution_log field; pass "" if the log file path isn't known yet.
func (l *Ledger) Create(def *agent.Definition, ev event.FileEvent, status Status, execLogPath string) (string, error) {
	if err := os.MkdirAll(l.tasksDir, 0755); err != nil {
		return "", fmt.Errorf("tasks_dir unwritable: %w", err)
	}

	now := time.Now()
	name := filename(now, def.Abbreviation, ev.Path)
	taskPath := filepath.Join(l.tasksDir, name)

	rec := &Record{
		Path:         taskPath,
		Title:        def.Abbreviation + " - " + filepath.Base(ev.Path),
		Created:      now,
		Status:       status,
		Worker:       def.Executor,
		Priority:     Priority(def.TaskPriority),
		TaskType:     def.Abbreviation,
		ExecutionLog: execLogPath,
		SourcePath:   ev.Path,
		EventKind:    string(ev.Kind),
		PromptBody:   def.PromptBody,
	}

	if status == StatusQueued {
		payload, err := marshalTriggerData(ev)
		if err != nil {
			return "", fmt.Errorf("marshal trigger_data_json: %w", err)
		}
		rec.TriggerDataJSON = payload
	}

	if err := l.write(rec, buildBody(ev.Path, eventDescription(ev), def.PromptBody)); err != nil {
		return "", err
	}
	l.upsertIndex(rec)
	return taskPath, nil
}

func eventDescription(ev event.FileEvent) string {
	return string(ev.Kind) + " at " + ev.Timestamp.Format(time.RFC3339)
}

// UpdateStatus transitions the task at taskPath to newStatus, setting
// completed when newStatus is terminal, and appending errMessage (if any)
// to the Process Log. The write is atomic at the frontmatter level: a temp
// file is written and renamed over taskPath.
func (l *Ledger) UpdateStatus(taskPath string, newStatus Status, errMessage string) error {
	rec, body, err := l.readRaw(taskPath)
	if err != nil {
		return err
	}

	rec.Status = newStatus
	if newStatus != StatusQueued {
		// trigger_data_json is only meaningful while a task sits QUEUED
		// (spec.md §4.5 frontmatter schema: "# QUEUED only").
		rec.TriggerDataJSON = ""
	}
	if newStatus == StatusProcessed || newStatus == StatusFailed {
		rec.Completed = time.Now()
	}
	if errMessage != "" {
		body = appendProcessLogLine(body, fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), errMessage))
	}

	if err := l.writeAtomic(taskPath, rec, body); err != nil {
		return err
	}
	l.upsertIndex(rec)
	return nil
}

// AppendProcessLog appends a line to the Process Log section without
// changing status or touching the Task Index.
func (l *Ledger) AppendProcessLog(taskPath, line string) error {
	rec, body, err := l.readRaw(taskPath)
	if err != nil {
		return err
	}
	body = appendProcessLogLine(body, fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), line))
	return l.writeAtomic(taskPath, rec, body)
}

// ScanQueued enumerates tasksDir lexicographically (FIFO by filename
// prefix) and returns every task file currently in QUEUED status. Each
// entry is re-parsed from disk, per spec.md §4.5. If a Task Index is
// attached, its QUEUED rows are used to build the candidate path list
// instead of a full directory listing; every candidate is still re-read
// from disk, and any index error falls back to the full directory scan.
func (l *Ledger) ScanQueued() ([]*Record, error) {
	if names, ok := l.queuedNamesFromIndex(); ok {
		return l.readQueued(names)
	}

	entries, err := os.ReadDir(l.tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tasks_dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	return l.readQueued(names)
}

// queuedNamesFromIndex returns task file basenames from the attached Task
// Index, or ok=false if no index is attached or the query failed.
func (l *Ledger) queuedNamesFromIndex() (names []string, ok bool) {
	if l.index == nil {
		return nil, false
	}
	paths, err := l.index.QueuedPaths(context.Background())
	if err != nil {
		l.logger.Warn().Err(err).Msg("task index query failed, falling back to directory scan")
		return nil, false
	}
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	return names, true
}

func (l *Ledger) readQueued(names []string) ([]*Record, error) {
	var queued []*Record
	for _, name := range names {
		path := filepath.Join(l.tasksDir, name)
		rec, _, err := l.readRaw(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable task file")
			continue
		}
		if rec.Status == StatusQueued {
			queued = append(queued, rec)
		}
	}
	return queued, nil
}

// HasTaskToday reports whether an IN_PROGRESS or PROCESSED task exists for
// {abbr, sourcePath} created today, per spec.md §4.4 matching rule 5c. It
// is wired into agent.Registry.Match as a TodayChecker closure by the
// orchestrator core, avoiding an import from agent back to ledger.
func (l *Ledger) HasTaskToday(abbr, sourcePath string) bool {
	entries, err := os.ReadDir(l.tasksDir)
	if err != nil {
		return false
	}

	today := time.Now().Format("2006-01-02")

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if !strings.HasPrefix(e.Name(), today+" "+abbr+" - ") {
			continue
		}
		rec, _, err := l.readRaw(filepath.Join(l.tasksDir, e.Name()))
		if err != nil {
			continue
		}
		if rec.SourcePath != sourcePath {
			continue
		}
		if rec.Status == StatusInProgress || rec.Status == StatusProcessed {
			return true
		}
	}
	return false
}
