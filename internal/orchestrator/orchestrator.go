// Package orchestrator wires together the Agent Registry, Task Ledger,
// Concurrency Controller, Executor Runner, and Event Source into the
// single event loop described in spec.md §4.8.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rduffy/vaultd/internal/agent"
	"github.com/rduffy/vaultd/internal/cache"
	"github.com/rduffy/vaultd/internal/concurrency"
	"github.com/rduffy/vaultd/internal/config"
	vevent "github.com/rduffy/vaultd/internal/event"
	"github.com/rduffy/vaultd/internal/executor"
	"github.com/rduffy/vaultd/internal/index"
	"github.com/rduffy/vaultd/internal/ledger"
	"github.com/rduffy/vaultd/internal/watch"
	"github.com/rs/zerolog"
)

// dedupeCacheTTL bounds how long a "task already exists today for this
// {agent, path}" answer is trusted before HasTaskToday is asked again. It
// only needs to outlive the handful of redundant saves an editor emits for
// a single logical write (orchestrator §4.4.5.c), not the whole day.
const dedupeCacheTTL = 10 * time.Second

// Orchestrator owns the event loop and the queued-task pass; it is the
// single place that knows how every other component fits together.
type Orchestrator struct {
	cfg       *config.Config
	vaultRoot string
	registry  *agent.Registry
	ledger    *ledger.Ledger
	ctrl      *concurrency.Controller
	runner    *executor.Runner
	watcher   *watch.Watcher
	logger    zerolog.Logger
	dedupe    *cache.Cache[bool]

	wg       sync.WaitGroup
	stopping chan struct{}
}

// New builds an Orchestrator from a loaded config and vault root. Callers
// typically call this once at process startup from cmd/vaultd.
func New(cfg *config.Config, vaultRoot string, logger zerolog.Logger) (*Orchestrator, error) {
	if err := os.MkdirAll(cfg.Orchestrator.TasksDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Orchestrator.LogsDir, 0755); err != nil {
		return nil, err
	}

	reg := agent.Load(cfg, logger.With().Str("subcomponent", "registry").Logger())
	l := ledger.New(cfg.Orchestrator.TasksDir, logger.With().Str("subcomponent", "ledger").Logger())
	attachIndex(l, cfg.Orchestrator.TasksDir, logger.With().Str("subcomponent", "index").Logger())
	ctrl := concurrency.New(cfg.Orchestrator.MaxConcurrent)
	runner := executor.NewRunner(cfg.Orchestrator.LogsDir, ctrl, l, logger.With().Str("subcomponent", "executor").Logger())

	excludeDirs := []string{
		vaultRelative(vaultRoot, cfg.Orchestrator.TasksDir),
		vaultRelative(vaultRoot, cfg.Orchestrator.LogsDir),
	}
	w, err := watch.New(vaultRoot, excludeDirs, logger.With().Str("subcomponent", "watch").Logger())
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:       cfg,
		vaultRoot: vaultRoot,
		registry:  reg,
		ledger:    l,
		ctrl:      ctrl,
		runner:    runner,
		watcher:   w,
		logger:    logger,
		dedupe:    cache.New[bool](dedupeCacheTTL, 0),
		stopping:  make(chan struct{}),
	}, nil
}

// cachedHasTaskToday wraps ledger.HasTaskToday with a short-lived memo so a
// burst of Modified events for the same file (common with editors doing
// save-then-touch) doesn't re-scan tasksDir once per event.
func (o *Orchestrator) cachedHasTaskToday(abbreviation, sourcePath string) bool {
	key := abbreviation + "|" + sourcePath
	if v, ok := o.dedupe.Get(key); ok {
		return v
	}
	v := o.ledger.HasTaskToday(abbreviation, sourcePath)
	o.dedupe.Set(key, v)
	return v
}

// attachIndex opens the Task Index database alongside tasksDir and rebuilds
// it from the task files already on disk. Any failure here is logged and
// otherwise ignored: the index is a best-effort accelerator, never a
// dependency of correct operation (SPEC_FULL.md §2).
func attachIndex(l *ledger.Ledger, tasksDir string, logger zerolog.Logger) {
	dbPath := filepath.Join(filepath.Dir(tasksDir), "task_index.sqlite3")
	idx, err := index.Open(dbPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", dbPath).Msg("task index unavailable, falling back to directory scans")
		return
	}

	n, err := idx.Rebuild(context.Background(), tasksDir)
	if err != nil {
		logger.Warn().Err(err).Msg("task index rebuild failed, falling back to directory scans")
		idx.Close()
		return
	}

	logger.Info().Int("rows", n).Msg("task index rebuilt")
	l.SetIndex(idx)
}

// vaultRelative converts an absolute tasks_dir/logs_dir (or one already
// vault-relative) into the vault-relative form watch.Watcher's exclusion
// check compares against.
func vaultRelative(vaultRoot, dir string) string {
	if !filepath.IsAbs(dir) {
		return dir
	}
	rel, err := filepath.Rel(vaultRoot, dir)
	if err != nil {
		return dir
	}
	return rel
}

// Registry exposes the loaded Agent Registry.
func (o *Orchestrator) Registry() *agent.Registry {
	return o.registry
}

// Run starts the Event Source and enters the event loop; it blocks until
// stop is closed. stop is a channel the caller closes (e.g. on SIGINT) to
// begin a graceful shutdown with gracePeriod to let in-flight workers
// finish.
func (o *Orchestrator) Run(stop <-chan struct{}, gracePeriod time.Duration) error {
	if err := o.watcher.Start(); err != nil {
		return err
	}

	o.logger.Info().
		Int("agent_count", o.registry.Len()).
		Str("tasks_dir", o.cfg.Orchestrator.TasksDir).
		Msg("orchestrator started")

	pollInterval := time.Duration(o.cfg.Orchestrator.PollInterval * float64(time.Second))
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	for {
		select {
		case <-stop:
			return o.shutdown(gracePeriod)
		default:
		}

		ev, ok := o.watcher.Pop(pollInterval)
		if ok {
			o.processEvent(ev)
		}
		o.processQueuedTasks()
	}
}

func (o *Orchestrator) shutdown(gracePeriod time.Duration) error {
	o.logger.Info().Msg("shutdown requested, draining in-flight work")
	o.watcher.Stop()
	defer o.dedupe.Stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info().Msg("all workers drained, exiting")
	case <-time.After(gracePeriod):
		o.logger.Warn().Msg("grace period elapsed with workers still in flight")
	}
	return nil
}

// processEvent implements spec.md §4.8 process_event: match, then for each
// matching agent either dispatch immediately (reservation succeeded) or
// persist a QUEUED task (reservation denied).
func (o *Orchestrator) processEvent(ev vevent.FileEvent) {
	matches := o.registry.Match(ev, o.vaultRoot, o.cachedHasTaskToday)

	for _, def := range matches {
		if o.ctrl.Reserve(def.Abbreviation, def.MaxParallel) {
			o.dispatch(def, ev)
			continue
		}

		if _, err := o.ledger.Create(def, ev, ledger.StatusQueued, ""); err != nil {
			o.logger.Error().Err(err).Str("agent", def.Abbreviation).Msg("failed to persist QUEUED task")
			continue
		}
		o.logger.Info().Str("agent", def.Abbreviation).Str("path", ev.Path).Msg("QUEUED: no slot available")
	}
}

// processQueuedTasks implements spec.md §4.8 process_queued_tasks:
// dispatch at most one QUEUED task per call, breaking on the first
// reservation denial to avoid a thundering-herd rescan.
func (o *Orchestrator) processQueuedTasks() {
	queued, err := o.ledger.ScanQueued()
	if err != nil {
		o.logger.Error().Err(err).Msg("failed to scan queued tasks")
		return
	}

	for _, rec := range queued {
		def, ok := o.registry.Lookup(rec.TaskType)
		if !ok {
			o.logger.Warn().Str("task_type", rec.TaskType).Str("path", rec.Path).Msg("queued task references unknown agent, skipping")
			continue
		}

		if !o.ctrl.Reserve(def.Abbreviation, def.MaxParallel) {
			break
		}

		ev, err := ledger.DecodeTriggerData(rec)
		if err != nil {
			o.logger.Error().Err(err).Str("path", rec.Path).Msg("cannot decode trigger_data_json, releasing slot")
			o.ctrl.Release(def.Abbreviation)
			continue
		}

		o.dispatchQueued(def, ev, rec.Path)
		return
	}
}

func (o *Orchestrator) dispatch(def *agent.Definition, ev vevent.FileEvent) {
	o.logger.Info().Str("agent", def.Abbreviation).Str("path", ev.Path).Msg("dispatching")
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runner.RunNew(def, ev)
	}()
}

func (o *Orchestrator) dispatchQueued(def *agent.Definition, ev vevent.FileEvent, taskPath string) {
	o.logger.Info().Str("agent", def.Abbreviation).Str("path", ev.Path).Msg("dispatching queued task")
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runner.RunQueued(def, ev, taskPath)
	}()
}
