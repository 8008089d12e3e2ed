package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rduffy/vaultd/internal/config"
	"github.com/rduffy/vaultd/internal/logging"
	"github.com/rduffy/vaultd/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	maxConcurrentOverride int
	shutdownGrace         time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the vault and dispatch agents until interrupted",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&maxConcurrentOverride, "max-concurrent", 0, "override orchestrator.max_concurrent (0 = use config value)")
	runCmd.Flags().DurationVar(&shutdownGrace, "shutdown-grace", 30*time.Second, "time to let in-flight workers finish after an interrupt")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err // config error: exit 1
	}
	if maxConcurrentOverride > 0 {
		cfg.Orchestrator.MaxConcurrent = maxConcurrentOverride
	}
	cfg.Orchestrator.PromptsDir = absVault(cfg.Orchestrator.PromptsDir)
	cfg.Orchestrator.TasksDir = absVault(cfg.Orchestrator.TasksDir)
	cfg.Orchestrator.LogsDir = absVault(cfg.Orchestrator.LogsDir)

	logger := logging.WithComponent("orchestrator")

	orch, err := orchestrator.New(cfg, vaultRoot, logger)
	if err != nil {
		return wrapRuntimeError(err)
	}

	stop := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("interrupt received, shutting down")
		close(stop)
	}()

	if err := orch.Run(stop, shutdownGrace); err != nil {
		return wrapRuntimeError(err)
	}
	return nil
}
