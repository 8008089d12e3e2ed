package agent

import (
	"testing"

	"github.com/rduffy/vaultd/internal/config"
	"github.com/rduffy/vaultd/internal/logging"
	"github.com/rduffy/vaultd/internal/testutil"
)

func TestLoadRegistersAgentWithAbbreviation(t *testing.T) {
	v := testutil.NewVault(t)
	v.WritePrompt("Enrich Ingested Content", "EIC", "enrichment", "Summarize the note.")
	v.WriteConfig(testutil.MinimalOrchestratorYAML("EIC", "Inbox", 3, 3))

	cfg, err := config.Load(v.Path("orchestrator.yaml"))
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	cfg.Orchestrator.PromptsDir = v.Path(cfg.Orchestrator.PromptsDir)

	reg := Load(cfg, logging.WithComponent("test"))
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}

	def, ok := reg.Lookup("EIC")
	if !ok {
		t.Fatal("Lookup(EIC) not found")
	}
	if def.PromptBody != "Summarize the note." {
		t.Errorf("PromptBody = %q, want %q", def.PromptBody, "Summarize the note.")
	}
	if def.TriggerEvent != TriggerCreated {
		t.Errorf("TriggerEvent = %q, want created", def.TriggerEvent)
	}
	if def.TriggerGlob == "" {
		t.Error("TriggerGlob should be derived from input_path, got empty")
	}
}

func TestLoadSkipsNodeWithoutAbbreviation(t *testing.T) {
	v := testutil.NewVault(t)
	v.WriteConfig(`
orchestrator:
  prompts_dir: _Settings_/Prompts
nodes:
  - type: agent
    name: No Abbreviation Here
    input_path: Inbox
    input_type: new_file
`)

	cfg, err := config.Load(v.Path("orchestrator.yaml"))
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	cfg.Orchestrator.PromptsDir = v.Path(cfg.Orchestrator.PromptsDir)

	reg := Load(cfg, logging.WithComponent("test"))
	if reg.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", reg.Len())
	}
}

func TestLoadSkipsNodeWithoutPromptFile(t *testing.T) {
	v := testutil.NewVault(t)
	v.WriteConfig(testutil.MinimalOrchestratorYAML("ZZZ", "Inbox", 3, 3))

	cfg, err := config.Load(v.Path("orchestrator.yaml"))
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	cfg.Orchestrator.PromptsDir = v.Path(cfg.Orchestrator.PromptsDir)

	reg := Load(cfg, logging.WithComponent("test"))
	if reg.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 (no matching prompt file)", reg.Len())
	}
}

func TestLoadManualAgentHasNoTrigger(t *testing.T) {
	v := testutil.NewVault(t)
	v.WritePrompt("Weekly Review", "WR", "review", "Summarize the week.")
	v.WriteConfig(`
orchestrator:
  prompts_dir: _Settings_/Prompts
nodes:
  - type: agent
    name: Weekly Review (WR)
`)

	cfg, err := config.Load(v.Path("orchestrator.yaml"))
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	cfg.Orchestrator.PromptsDir = v.Path(cfg.Orchestrator.PromptsDir)

	reg := Load(cfg, logging.WithComponent("test"))
	def, ok := reg.Lookup("WR")
	if !ok {
		t.Fatal("Lookup(WR) not found")
	}
	if !def.IsManual() {
		t.Error("IsManual() = false, want true for a node with no input_path")
	}
}

func TestLoadDefaultsCascade(t *testing.T) {
	v := testutil.NewVault(t)
	v.WritePrompt("Enrich Ingested Content", "EIC", "enrichment", "Body.")
	v.WriteConfig(`
orchestrator:
  prompts_dir: _Settings_/Prompts
defaults:
  executor: gemini_cli
  timeout_minutes: 5
  max_parallel: 2
  task_priority: high
nodes:
  - type: agent
    name: Enrich Ingested Content (EIC)
    input_path: Inbox
    input_type: new_file
`)

	cfg, err := config.Load(v.Path("orchestrator.yaml"))
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	cfg.Orchestrator.PromptsDir = v.Path(cfg.Orchestrator.PromptsDir)

	reg := Load(cfg, logging.WithComponent("test"))
	def, ok := reg.Lookup("EIC")
	if !ok {
		t.Fatal("Lookup(EIC) not found")
	}
	if def.Executor != "gemini_cli" {
		t.Errorf("Executor = %q, want gemini_cli (from defaults)", def.Executor)
	}
	if def.TimeoutSeconds != 300 {
		t.Errorf("TimeoutSeconds = %d, want 300", def.TimeoutSeconds)
	}
	if def.MaxParallel != 2 {
		t.Errorf("MaxParallel = %d, want 2", def.MaxParallel)
	}
	if def.TaskPriority != "high" {
		t.Errorf("TaskPriority = %q, want high", def.TaskPriority)
	}
}

func TestLoadNodeOverridesDefaults(t *testing.T) {
	v := testutil.NewVault(t)
	v.WritePrompt("Enrich Ingested Content", "EIC", "enrichment", "Body.")
	timeout := 2.0
	maxParallel := 1
	v.WriteConfig(`
orchestrator:
  prompts_dir: _Settings_/Prompts
defaults:
  executor: gemini_cli
  timeout_minutes: 5
  max_parallel: 4
nodes:
  - type: agent
    name: Enrich Ingested Content (EIC)
    input_path: Inbox
    input_type: new_file
    executor: codex_cli
    timeout_minutes: 2
    max_parallel: 1
`)

	cfg, err := config.Load(v.Path("orchestrator.yaml"))
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	cfg.Orchestrator.PromptsDir = v.Path(cfg.Orchestrator.PromptsDir)

	reg := Load(cfg, logging.WithComponent("test"))
	def, ok := reg.Lookup("EIC")
	if !ok {
		t.Fatal("Lookup(EIC) not found")
	}
	if def.Executor != "codex_cli" {
		t.Errorf("Executor = %q, want codex_cli (node override)", def.Executor)
	}
	if def.TimeoutSeconds != int(timeout*60) {
		t.Errorf("TimeoutSeconds = %d, want %d", def.TimeoutSeconds, int(timeout*60))
	}
	if def.MaxParallel != maxParallel {
		t.Errorf("MaxParallel = %d, want %d", def.MaxParallel, maxParallel)
	}
}

func TestExtractAbbreviation(t *testing.T) {
	cases := map[string]string{
		"Enrich Ingested Content (EIC)": "EIC",
		"Weekly Review (WR2)":           "WR2",
		"No Suffix Here":                "",
		"Lowercase (eic)":               "",
	}
	for name, want := range cases {
		if got := extractAbbreviation(name); got != want {
			t.Errorf("extractAbbreviation(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSplitExcludePattern(t *testing.T) {
	got := splitExcludePattern(" *draft*.md | *archive/** ")
	want := []string{"*draft*.md", "*archive/**"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
