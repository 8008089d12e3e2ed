package commands

import (
	"fmt"

	"github.com/rduffy/vaultd/internal/agent"
	"github.com/rduffy/vaultd/internal/config"
	"github.com/rduffy/vaultd/internal/logging"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load the agent registry and print one line per agent",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	cfg.Orchestrator.PromptsDir = absVault(cfg.Orchestrator.PromptsDir)

	reg := agent.Load(cfg, logging.WithComponent("registry"))

	fmt.Printf("vault: %s\n", vaultRoot)
	fmt.Printf("agents loaded: %d\n", reg.Len())
	for _, def := range reg.List() {
		fmt.Printf("  [%s] %s (%s)\n", def.Abbreviation, def.DisplayName, def.Category)
	}
	return nil
}
