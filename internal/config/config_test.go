package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	if cfg.Orchestrator.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("DefaultConfig() MaxConcurrent = %d, want %d", cfg.Orchestrator.MaxConcurrent, DefaultMaxConcurrent)
	}
	if cfg.Orchestrator.PollInterval != DefaultPollInterval {
		t.Errorf("DefaultConfig() PollInterval = %v, want %v", cfg.Orchestrator.PollInterval, DefaultPollInterval)
	}
	if cfg.Defaults.Executor != DefaultExecutor {
		t.Errorf("DefaultConfig() Defaults.Executor = %q, want %q", cfg.Defaults.Executor, DefaultExecutor)
	}
	if len(cfg.Nodes) != 0 {
		t.Errorf("DefaultConfig() Nodes = %v, want empty", cfg.Nodes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	cfg, err := Load(filepath.Join(tmpDir, "orchestrator.yaml"))
	if err != nil {
		t.Fatalf("Load() on missing file returned error: %v", err)
	}
	if cfg.Orchestrator.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("Load() on missing file should return defaults, got MaxConcurrent=%d", cfg.Orchestrator.MaxConcurrent)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "orchestrator.yaml")
	if err := os.WriteFile(path, []byte("orchestrator: [this is not\n  valid"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with invalid YAML should return an error")
	}
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "orchestrator.yaml")
	content := `
orchestrator:
  prompts_dir: _Settings_/Prompts
  tasks_dir: _Settings_/Tasks
  logs_dir: _Settings_/Logs
  max_concurrent: 5
  poll_interval: 2.5

defaults:
  executor: claude_code
  timeout_minutes: 15
  max_parallel: 2
  task_priority: high

nodes:
  - type: agent
    name: Enrich Ingested Content (EIC)
    input_path: Ingest/Clippings
    input_type: new_file
    output_path: AI/Articles
    exclude_pattern: "*-EIC*"
  - type: agent
    name: Multi Input Agent (MIA)
    input_path:
      - Ingest/A
      - Ingest/B
    input_type: updated_file
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Orchestrator.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Defaults.TaskPriority != "high" {
		t.Errorf("Defaults.TaskPriority = %q, want high", cfg.Defaults.TaskPriority)
	}
	if len(cfg.Nodes) != 2 {
		t.Fatalf("Nodes len = %d, want 2", len(cfg.Nodes))
	}
	if got := cfg.Nodes[0].InputPath; len(got) != 1 || got[0] != "Ingest/Clippings" {
		t.Errorf("Nodes[0].InputPath = %v, want [Ingest/Clippings]", got)
	}
	if got := cfg.Nodes[1].InputPath; len(got) != 2 || got[0] != "Ingest/A" || got[1] != "Ingest/B" {
		t.Errorf("Nodes[1].InputPath = %v, want [Ingest/A Ingest/B]", got)
	}
}

func TestLoadPartialConfigMergesDefaults(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "orchestrator.yaml")
	content := "orchestrator:\n  max_concurrent: 7\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Orchestrator.MaxConcurrent != 7 {
		t.Errorf("MaxConcurrent = %d, want 7", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Orchestrator.PromptsDir != DefaultPromptsDir {
		t.Errorf("PromptsDir = %q, want default %q", cfg.Orchestrator.PromptsDir, DefaultPromptsDir)
	}
	if cfg.Defaults.Executor != DefaultExecutor {
		t.Errorf("Defaults.Executor = %q, want default %q", cfg.Defaults.Executor, DefaultExecutor)
	}
}
