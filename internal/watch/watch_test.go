package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rduffy/vaultd/internal/event"
	"github.com/rduffy/vaultd/internal/logging"
)

func TestWatcherEmitsCreatedEventForMarkdownFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Inbox"), 0755); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, nil, logging.WithComponent("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(root, "Inbox", "note.md")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	ev, ok := w.Pop(2 * time.Second)
	if !ok {
		t.Fatal("expected a FileEvent within 2s, got none")
	}
	if ev.Path != path {
		t.Errorf("Path = %q, want %q", ev.Path, path)
	}
	if ev.Kind != event.Created {
		t.Errorf("Kind = %q, want created", ev.Kind)
	}
}

func TestWatcherIgnoresNonMarkdownFiles(t *testing.T) {
	root := t.TempDir()

	w, err := New(root, nil, logging.WithComponent("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "note.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, ok := w.Pop(300 * time.Millisecond); ok {
		t.Fatal("a non-Markdown file should never produce a FileEvent")
	}
}

func TestWatcherHonorsExclusion(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "_Settings_", "Tasks"), 0755); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, []string{"_Settings_/Tasks"}, logging.WithComponent("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "_Settings_", "Tasks", "2026-01-01 EIC - note.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, ok := w.Pop(300 * time.Millisecond); ok {
		t.Fatal("excluded directories must never produce FileEvents")
	}
}

func TestWatcherWatchesNewlyCreatedSubdirectory(t *testing.T) {
	root := t.TempDir()

	w, err := New(root, nil, logging.WithComponent("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	newDir := filepath.Join(root, "NewFolder")
	if err := os.MkdirAll(newDir, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher's Create handler a moment to register the new dir.
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(newDir, "note.md")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	ev, ok := w.Pop(2 * time.Second)
	if !ok {
		t.Fatal("expected a FileEvent from the newly watched subdirectory")
	}
	if ev.Path != path {
		t.Errorf("Path = %q, want %q", ev.Path, path)
	}
}
