package executor

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// DiscoverClaudeCode resolves the path to a Claude-family CLI, searching
// (in order) a well-known per-user install location, the process PATH,
// and a short list of standard install locations. Returns "" if none are
// found; the caller treats that as an executor-not-found error.
func DiscoverClaudeCode() string {
	home, _ := os.UserHomeDir()

	candidates := []string{
		filepath.Join(home, ".claude", "local", "claude"),
	}
	if runtime.GOOS == "windows" {
		candidates[0] += ".cmd"
	}

	if path, err := exec.LookPath("claude"); err == nil {
		candidates = append(candidates, path)
	}

	candidates = append(candidates,
		"/usr/local/bin/claude",
		"/opt/homebrew/bin/claude",
		filepath.Join(home, ".npm-global", "bin", "claude"),
	)

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// isWindowsBatchFile reports whether path must be invoked through a shell
// rather than exec'd directly, per spec.md §4.7's Windows batch-file rule.
func isWindowsBatchFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".bat" || ext == ".cmd"
}
