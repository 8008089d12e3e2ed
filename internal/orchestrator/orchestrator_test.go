package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rduffy/vaultd/internal/config"
	vevent "github.com/rduffy/vaultd/internal/event"
	"github.com/rduffy/vaultd/internal/ledger"
	"github.com/rduffy/vaultd/internal/logging"
	"github.com/rduffy/vaultd/internal/testutil"
)

func buildOrchestrator(t *testing.T, v *testutil.Vault, cfgYAML string) *Orchestrator {
	t.Helper()
	v.WriteConfig(cfgYAML)

	cfg, err := config.Load(v.Path("orchestrator.yaml"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Orchestrator.PromptsDir = v.Path(cfg.Orchestrator.PromptsDir)
	cfg.Orchestrator.TasksDir = v.Path(cfg.Orchestrator.TasksDir)
	cfg.Orchestrator.LogsDir = v.Path(cfg.Orchestrator.LogsDir)

	orch, err := New(cfg, v.Root, logging.WithComponent("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

func TestNewCreatesTasksAndLogsDirs(t *testing.T) {
	v := testutil.NewVault(t)
	orch := buildOrchestrator(t, v, `
orchestrator:
  prompts_dir: _Settings_/Prompts
  tasks_dir: _Settings_/Tasks2
  logs_dir: _Settings_/Logs2
`)
	if orch.Registry().Len() != 0 {
		t.Fatalf("expected 0 agents with no nodes, got %d", orch.Registry().Len())
	}
	for _, dir := range []string{"_Settings_/Tasks2", "_Settings_/Logs2"} {
		if _, err := os.Stat(v.Path(dir)); err != nil {
			t.Errorf("expected %s to exist: %v", dir, err)
		}
	}
}

func TestProcessEventQueuesOnReservationDenial(t *testing.T) {
	v := testutil.NewVault(t)
	v.WritePrompt("Enrich Ingested Content", "EIC", "enrichment", "Summarize.")
	v.MkdirAll("Inbox")
	v.WriteFile("Inbox/note.md", "hello")

	orch := buildOrchestrator(t, v, testutil.MinimalOrchestratorYAML("EIC", "Inbox", 1, 1))
	if orch.Registry().Len() != 1 {
		t.Fatalf("expected 1 agent loaded, got %d", orch.Registry().Len())
	}

	// Pre-reserve the only global slot so the dispatch path must queue.
	def, _ := orch.Registry().Lookup("EIC")
	if !orch.ctrl.Reserve(def.Abbreviation, def.MaxParallel) {
		t.Fatal("sanity pre-reserve failed")
	}

	ev := newEvent(v.Path("Inbox/note.md"))
	orch.processEvent(ev)

	entries, err := os.ReadDir(filepath.Join(v.Root, "_Settings_/Tasks"))
	if err != nil {
		t.Fatalf("read tasks dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one QUEUED task file, got %d", len(entries))
	}

	queued, err := orch.ledger.ScanQueued()
	if err != nil {
		t.Fatalf("ScanQueued: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("expected one queued record, got %d", len(queued))
	}
}

func TestProcessQueuedTasksDispatchesFIFOOneAtATime(t *testing.T) {
	v := testutil.NewVault(t)
	v.WritePrompt("Enrich Ingested Content", "EIC", "enrichment", "Summarize.")
	v.MkdirAll("Inbox")
	v.WriteFile("Inbox/a.md", "a")
	v.WriteFile("Inbox/b.md", "b")

	orch := buildOrchestrator(t, v, `
orchestrator:
  prompts_dir: _Settings_/Prompts
nodes:
  - type: agent
    name: Enrich Ingested Content (EIC)
    input_path: Inbox
    input_type: new_file
    executor: gemini_cli
    max_parallel: 5
`)
	def, _ := orch.Registry().Lookup("EIC")

	evA := newEvent(v.Path("Inbox/a.md"))
	evB := newEvent(v.Path("Inbox/b.md"))

	if _, err := orch.ledger.Create(def, evA, ledger.StatusQueued, ""); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	pathB, err := orch.ledger.Create(def, evB, ledger.StatusQueued, "")
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}

	// processQueuedTasks dispatches at most one record per call; wait for
	// the spawned worker's terminal status write before calling again.
	orch.processQueuedTasks()
	waitForNoInProgress(t, orch)

	afterFirst, err := orch.ledger.ScanQueued()
	if err != nil {
		t.Fatalf("ScanQueued: %v", err)
	}
	if len(afterFirst) != 1 || afterFirst[0].Path != pathB {
		t.Fatalf("after one pass, want only b still queued, got %d record(s)", len(afterFirst))
	}

	orch.processQueuedTasks()
	waitForNoInProgress(t, orch)

	remaining, err := orch.ledger.ScanQueued()
	if err != nil {
		t.Fatalf("ScanQueued: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected both queued tasks drained, %d remain", len(remaining))
	}
}

// newEvent builds a minimal FileEvent for a created file, matching what
// the watcher would emit.
func newEvent(path string) vevent.FileEvent {
	return vevent.FileEvent{Path: path, Kind: vevent.Created, Timestamp: time.Now()}
}

func waitForNoInProgress(t *testing.T, orch *Orchestrator) {
	t.Helper()
	// Wait for dispatched workers first: until a worker has marked its task
	// IN_PROGRESS, the directory alone cannot tell it apart from no work.
	orch.wg.Wait()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(filepath.Join(orch.cfg.Orchestrator.TasksDir))
		if err != nil {
			t.Fatalf("read tasks dir: %v", err)
		}
		anyInProgress := false
		for _, e := range entries {
			content, _ := os.ReadFile(filepath.Join(orch.cfg.Orchestrator.TasksDir, e.Name()))
			if containsStatus(string(content), "IN_PROGRESS") {
				anyInProgress = true
			}
		}
		if !anyInProgress {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for in-flight task to leave IN_PROGRESS")
}

func containsStatus(content, status string) bool {
	for i := 0; i+len(status) <= len(content); i++ {
		if content[i:i+len(status)] == status {
			return true
		}
	}
	return false
}
