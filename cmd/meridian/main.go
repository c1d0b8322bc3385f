package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridianhq/meridian/cmd/meridian/commands"
	"github.com/meridianhq/meridian/logger"
)

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Meridian - Signal Bus for accounts, projects and people",
	Long: `Meridian - confidence-weighted evidence about the things you run.

Signals land in an append-only ledger, fuse into per-claim confidences,
ripple through the account/project/person hierarchy, and fade unless
corroborated.

Available commands:
  emit      - Emit a signal into the ledger
  feedback  - Retract an earlier signal
  signals   - Inspect the ledger
  callouts  - Show an entity's strongest current evidence
  entities  - Manage the entity hierarchy
  daemon    - Run worker pool, decay and enrichment tickers
  db        - Database migrations and statistics
  config    - Inspect configuration and rules

Examples:
  meridian entities add acct_acme --type account --name "Acme Corp"
  meridian emit --entity acct_acme --claim renewal_risk --confidence 0.7 --source meeting --wait
  meridian callouts acct_acme
  meridian daemon`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() != "show" {
			if err := logger.Initialize(false); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.EntitiesCmd)
	rootCmd.AddCommand(commands.EmitCmd)
	rootCmd.AddCommand(commands.FeedbackCmd)
	rootCmd.AddCommand(commands.SignalsCmd)
	rootCmd.AddCommand(commands.CalloutsCmd)
	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
