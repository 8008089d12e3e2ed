// Package testutil provides fixtures shared by unit and integration tests:
// temporary vault trees, minimal orchestrator.yaml content, and prompt
// files wired up the way a real vault would have them.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Vault is a temporary directory laid out like a real vault root, with
// helpers for writing prompt/config/markdown files during a test.
type Vault struct {
	t    *testing.T
	Root string
}

// NewVault creates an empty temporary vault with prompts/tasks/logs
// directories pre-created.
func NewVault(t *testing.T) *Vault {
	t.Helper()
	root := t.TempDir()
	v := &Vault{t: t, Root: root}
	v.MkdirAll("_Settings_/Prompts")
	v.MkdirAll("_Settings_/Tasks")
	v.MkdirAll("_Settings_/Logs")
	return v
}

// Path joins rel onto the vault root.
func (v *Vault) Path(rel string) string {
	return filepath.Join(v.Root, rel)
}

// MkdirAll creates rel (and parents) under the vault root.
func (v *Vault) MkdirAll(rel string) string {
	v.t.Helper()
	p := v.Path(rel)
	if err := os.MkdirAll(p, 0755); err != nil {
		v.t.Fatalf("mkdir %s: %v", p, err)
	}
	return p
}

// WriteFile writes content to rel under the vault root, creating parent
// directories as needed.
func (v *Vault) WriteFile(rel, content string) string {
	v.t.Helper()
	p := v.Path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		v.t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		v.t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// WriteConfig writes orchestrator.yaml at the vault root.
func (v *Vault) WriteConfig(yamlContent string) string {
	return v.WriteFile("orchestrator.yaml", yamlContent)
}

// WritePrompt writes a prompt file named to match abbr (e.g.
// "Enrich Ingested Content (EIC).md") with the given frontmatter + body.
func (v *Vault) WritePrompt(displayName, abbr, category, body string) string {
	content := "---\ntitle: \"" + displayName + "\"\n" +
		"abbreviation: \"" + abbr + "\"\n" +
		"category: \"" + category + "\"\n" +
		"---\n" + body
	return v.WriteFile(filepath.Join("_Settings_/Prompts", displayName+" ("+abbr+").md"), content)
}

// MinimalOrchestratorYAML returns a one-agent orchestrator.yaml wired to
// watch inputDir for new files, with abbr as the agent's abbreviation.
func MinimalOrchestratorYAML(abbr, inputDir string, maxConcurrent, maxParallel int) string {
	return "" +
		"orchestrator:\n" +
		"  prompts_dir: _Settings_/Prompts\n" +
		"  tasks_dir: _Settings_/Tasks\n" +
		"  logs_dir: _Settings_/Logs\n" +
		"  max_concurrent: " + itoa(maxConcurrent) + "\n" +
		"  poll_interval: 0.05\n" +
		"\n" +
		"defaults:\n" +
		"  executor: claude_code\n" +
		"  timeout_minutes: 1\n" +
		"  max_parallel: " + itoa(maxParallel) + "\n" +
		"  task_priority: medium\n" +
		"\n" +
		"nodes:\n" +
		"  - type: agent\n" +
		"    name: Test Agent (" + abbr + ")\n" +
		"    input_path: " + inputDir + "\n" +
		"    input_type: new_file\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
