// Package commands implements the vaultd CLI surface: run, status, and
// config-check, sharing a persistent --vault flag that locates both the
// vault root and its orchestrator.yaml.
package commands

import (
	"path/filepath"

	"github.com/rduffy/vaultd/internal/logging"
	"github.com/spf13/cobra"
)

var (
	vaultRoot string
	logLevel  string
	logJSON   bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultd",
	Short: "Watch a Markdown vault and dispatch agents to external CLI tools",
	Long: `vaultd watches a Markdown vault for file-system events, matches them
against agents declared in _Settings_/orchestrator.yaml, and dispatches
matching agents to external CLI tools (claude_code, gemini_cli, codex_cli,
cursor_agent, continue_cli), recording one task file per dispatch.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{Level: logLevel, JSON: logJSON})
	},
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&vaultRoot, "vault", ".", "path to the vault root")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON lines instead of console format")
}

func configPath() string {
	return filepath.Join(vaultRoot, "_Settings_", "orchestrator.yaml")
}

// absVault resolves a config-relative directory (prompts_dir, tasks_dir,
// logs_dir) against the vault root, unless it is already absolute.
func absVault(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(vaultRoot, dir)
}

// exitCodeFor maps a returned error to a process exit code. runtimeError is
// the only wrapped error kind this CLI produces and exits 2; anything else
// (config errors, cobra usage errors) exits 1.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *runtimeError:
		return 2
	default:
		return 1
	}
}

// runtimeError marks an error that occurred after startup (e.g. the
// orchestrator's event loop failing), mapped to exit code 2 so callers can
// distinguish it from a config/usage error (exit code 1).
type runtimeError struct{ err error }

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

func wrapRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	return &runtimeError{err: err}
}
