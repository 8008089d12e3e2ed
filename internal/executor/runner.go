package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	shellquote "github.com/kballard/go-shellquote"
	"github.com/rduffy/vaultd/internal/agent"
	"github.com/rduffy/vaultd/internal/concurrency"
	"github.com/rduffy/vaultd/internal/event"
	"github.com/rduffy/vaultd/internal/frontmatter"
	"github.com/rduffy/vaultd/internal/ledger"
	"github.com/rs/zerolog"
)

// maxErrorSummaryLines bounds how much captured output is folded into a
// failed task's error_summary.
const maxErrorSummaryLines = 20

// Runner drives one agent execution end to end: prompt assembly,
// subprocess spawn, log file, timeout enforcement, status update, optional
// post-processing, and slot release.
type Runner struct {
	LogsDir     string
	Controller  *concurrency.Controller
	Ledger      *ledger.Ledger
	Logger      zerolog.Logger
	ClaudePath  func() string // overridable in tests; defaults to DiscoverClaudeCode
}

// NewRunner wires a Runner from its collaborators, defaulting ClaudePath to
// the real auto-discovery routine.
func NewRunner(logsDir string, ctrl *concurrency.Controller, l *ledger.Ledger, logger zerolog.Logger) *Runner {
	return &Runner{
		LogsDir:    logsDir,
		Controller: ctrl,
		Ledger:     l,
		Logger:     logger,
		ClaudePath: DiscoverClaudeCode,
	}
}

// RunNew is called from process_event after a fresh Reserve succeeds: it
// creates the task file as IN_PROGRESS and then executes. The slot was
// already taken by the caller's Reserve call; Release happens here,
// exactly once, in a guaranteed-cleanup path.
func (r *Runner) RunNew(def *agent.Definition, ev event.FileEvent) {
	defer r.Controller.Release(def.Abbreviation)

	taskPath, err := r.Ledger.Create(def, ev, ledger.StatusInProgress, "")
	if err != nil {
		r.Logger.Error().Err(err).Str("agent", def.Abbreviation).Msg("failed to create task file")
		return
	}

	r.execute(def, ev, taskPath)
}

// RunQueued is called from process_queued_tasks for a task that already
// exists as QUEUED: it transitions the task to IN_PROGRESS (the
// reservation was already taken by the caller) and then executes.
func (r *Runner) RunQueued(def *agent.Definition, ev event.FileEvent, taskPath string) {
	defer r.Controller.Release(def.Abbreviation)

	if err := r.Ledger.UpdateStatus(taskPath, ledger.StatusInProgress, ""); err != nil {
		r.Logger.Error().Err(err).Str("path", taskPath).Msg("failed to transition queued task to IN_PROGRESS")
		return
	}

	r.execute(def, ev, taskPath)
}

func (r *Runner) execute(def *agent.Definition, ev event.FileEvent, taskPath string) {
	executionID := uuid.NewString()
	start := time.Now()

	logPath := r.renderLogPath(def, executionID, start)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		r.Logger.Error().Err(err).Str("agent", def.Abbreviation).Msg("cannot create logs_dir")
	}

	payload := buildPromptPayload(def, ev)

	logFile, err := os.Create(logPath)
	if err != nil {
		r.Logger.Error().Err(err).Str("path", logPath).Msg("cannot create log file")
	}
	if logFile != nil {
		defer logFile.Close()
		writeLogHeader(logFile, def, executionID, start, payload)
	}

	command, args, buildErr := buildArgs(Identifier(def.Executor), payload, def.TimeoutSeconds, def.ExecutorParams, r.claudePath())
	if buildErr != nil {
		r.finish(def, ev, taskPath, logFile, fmt.Sprintf("executor not found: %v", buildErr), -1, start)
		return
	}
	if command == "" {
		r.finish(def, ev, taskPath, logFile, "executor not found: no Claude-family CLI discovered", -1, start)
		return
	}

	output, exitCode, runErr := r.invoke(def, command, args)
	if logFile != nil {
		writeLogResponse(logFile, output)
	}

	if runErr != nil && exitCode == timeoutExitCode {
		r.finish(def, ev, taskPath, logFile, fmt.Sprintf("timeout after %ds", def.TimeoutSeconds), exitCode, start)
		return
	}

	if exitCode != 0 {
		summary := fmt.Sprintf("exit code %d: %s", exitCode, tailLines(output, maxErrorSummaryLines))
		r.finish(def, ev, taskPath, logFile, summary, exitCode, start)
		return
	}

	r.succeed(def, ev, taskPath, start)
}

func (r *Runner) claudePath() string {
	if r.ClaudePath != nil {
		return r.ClaudePath()
	}
	return DiscoverClaudeCode()
}

const timeoutExitCode = -2

// killGrace is how long a timed-out executor gets to exit after the
// SIGTERM sent by cmd.Cancel before exec.Cmd's WaitDelay kills it.
const killGrace = 5 * time.Second

// invoke runs command with args, enforcing def.TimeoutSeconds. Windows
// batch-file executors must be invoked through a shell; every other
// executor is exec'd directly. On timeout the process is sent SIGTERM
// first and only force-killed after killGrace, per spec.md §4.7.
func (r *Runner) invoke(def *agent.Definition, command string, args []string) (output string, exitCode int, err error) {
	timeout := time.Duration(def.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var cmd *exec.Cmd
	if isWindowsBatchFile(command) {
		line := shellquote.Join(append([]string{command}, args...)...)
		cmd = exec.CommandContext(ctx, "cmd", "/C", line)
	} else {
		cmd = exec.CommandContext(ctx, command, args...)
	}
	// Run in its own process group so a timeout signals the executor and
	// everything it has spawned, not just the direct child; a wrapper
	// script that shells out to the real CLI would otherwise leave an
	// orphaned grandchild running past the timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	output = buf.String()

	if ctx.Err() == context.DeadlineExceeded {
		return output, timeoutExitCode, ctx.Err()
	}
	if runErr == nil {
		return output, 0, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return output, exitErr.ExitCode(), runErr
	}
	return output, -1, runErr
}

func (r *Runner) succeed(def *agent.Definition, ev event.FileEvent, taskPath string, start time.Time) {
	if err := r.Ledger.UpdateStatus(taskPath, ledger.StatusProcessed, ""); err != nil {
		r.Logger.Warn().Err(err).Str("path", taskPath).Msg("failed to record PROCESSED status")
	}

	if def.PostProcess == agent.PostProcessRemoveTriggerContent && def.ContentRegex != nil {
		if err := removeTriggerContent(ev.Path, def.ContentRegex); err != nil {
			r.Logger.Warn().Err(err).Str("agent", def.Abbreviation).Str("path", ev.Path).Msg("post-processing failed")
		}
	}

	r.Logger.Info().
		Str("agent", def.Abbreviation).
		Str("status", "PROCESSED").
		Str("duration", formatDuration(time.Since(start))).
		Msg("execution finished")
}

func (r *Runner) finish(def *agent.Definition, ev event.FileEvent, taskPath string, logFile *os.File, errSummary string, exitCode int, start time.Time) {
	if err := r.Ledger.UpdateStatus(taskPath, ledger.StatusFailed, errSummary); err != nil {
		r.Logger.Warn().Err(err).Str("path", taskPath).Msg("failed to record FAILED status")
	}
	if logFile != nil {
		fmt.Fprintf(logFile, "\n## Result\n\nFAILED: %s\n", errSummary)
	}
	r.Logger.Error().
		Str("agent", def.Abbreviation).
		Str("status", "FAILED").
		Int("exit_code", exitCode).
		Str("duration", formatDuration(time.Since(start))).
		Str("reason", errSummary).
		Msg("execution finished")
}

func (r *Runner) renderLogPath(def *agent.Definition, executionID string, start time.Time) string {
	name := def.LogFilenameTemplate
	name = strings.ReplaceAll(name, "{timestamp}", start.Format("20060102-150405"))
	name = strings.ReplaceAll(name, "{agent}", def.Abbreviation)
	name = strings.ReplaceAll(name, "{execution_id}", executionID)
	return filepath.Join(r.LogsDir, name)
}

func buildPromptPayload(def *agent.Definition, ev event.FileEvent) string {
	var b strings.Builder
	b.WriteString(def.PromptBody)
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "Trigger: %s\nEvent: %s\nTimestamp: %s\n", ev.Path, ev.Kind, ev.Timestamp.Format(time.RFC3339))

	if block, err := frontmatter.Read(ev.Path); err == nil && len(block.Data) > 0 {
		b.WriteString("Frontmatter:\n")
		for k, v := range block.Data {
			fmt.Fprintf(&b, "  %s: %v\n", k, v)
		}
	}
	return b.String()
}

func writeLogHeader(f *os.File, def *agent.Definition, executionID string, start time.Time, payload string) {
	fmt.Fprintf(f, "# %s execution log\n\n", def.Abbreviation)
	fmt.Fprintf(f, "- execution_id: %s\n- start_time: %s\n\n", executionID, start.Format(time.RFC3339))
	fmt.Fprintf(f, "## Prompt\n\n%s\n\n", payload)
	f.Sync()
}

func writeLogResponse(f *os.File, output string) {
	fmt.Fprintf(f, "## Response\n\n%s\n", output)
	f.Sync()
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	return strings.TrimSpace(humanize.RelTime(time.Now().Add(-d), time.Now(), "", ""))
}

func removeTriggerContent(path string, re *regexp.Regexp) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	stripped := re.ReplaceAll(content, nil)
	if err := os.WriteFile(path, stripped, 0644); err != nil {
		return fmt.Errorf("write source file: %w", err)
	}
	return nil
}
