package commands

import (
	"fmt"
	"os"

	"github.com/rduffy/vaultd/internal/agent"
	"github.com/rduffy/vaultd/internal/config"
	"github.com/rduffy/vaultd/internal/logging"
	"github.com/spf13/cobra"
)

var configCheckCmd = &cobra.Command{
	Use:   "config-check",
	Short: "Validate orchestrator.yaml without starting the watcher",
	RunE:  runConfigCheck,
}

func init() {
	rootCmd.AddCommand(configCheckCmd)
}

// runConfigCheck loads orchestrator.yaml and the agent registry the same
// way `run` would, but never starts the Event Source. An unparseable
// config file exits 1; a config that loads but skips one or more nodes
// (logged as warnings by agent.Load) still exits 0, since a skipped node
// is a per-agent problem, not a fatal one (orchestrator spec.md §4.3).
func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator.yaml: %v\n", err)
		return err
	}
	cfg.Orchestrator.PromptsDir = absVault(cfg.Orchestrator.PromptsDir)

	reg := agent.Load(cfg, logging.WithComponent("config-check"))

	fmt.Printf("orchestrator.yaml is valid\n")
	fmt.Printf("nodes declared: %d\n", len(cfg.Nodes))
	fmt.Printf("agents loaded: %d\n", reg.Len())
	if skipped := len(cfg.Nodes) - reg.Len(); skipped > 0 {
		fmt.Printf("nodes skipped: %d (see warnings above)\n", skipped)
	}
	return nil
}
