package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridianhq/meridian/config"
	"github.com/meridianhq/meridian/errors"
)

// DbCmd manages the Meridian database
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the Meridian database",
	Long: `Manage the Meridian database.

Examples:
  meridian db migrate   # Apply pending migrations
  meridian db stats     # Show ledger and queue statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg, dbPathFlag)
		if err != nil {
			return err
		}
		defer database.Close()

		fmt.Println("Database schema is up to date")
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger and queue statistics",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Database path (defaults to configuration)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	var entities, signals, active, results, queued, running int
	row := database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM signals),
			(SELECT COUNT(*) FROM signals WHERE active = 1 AND retraction = 0),
			(SELECT COUNT(*) FROM fusion_results),
			(SELECT COUNT(*) FROM recompute_jobs WHERE status = 'queued'),
			(SELECT COUNT(*) FROM recompute_jobs WHERE status = 'running')
	`)
	if err := row.Scan(&entities, &signals, &active, &results, &queued, &running); err != nil {
		return errors.Wrap(err, "failed to collect database statistics")
	}

	fmt.Printf("Entities:          %d\n", entities)
	fmt.Printf("Signals (total):   %d\n", signals)
	fmt.Printf("Signals (active):  %d\n", active)
	fmt.Printf("Fusion results:    %d\n", results)
	fmt.Printf("Jobs queued:       %d\n", queued)
	fmt.Printf("Jobs running:      %d\n", running)
	return nil
}
