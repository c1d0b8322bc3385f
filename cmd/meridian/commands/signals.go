package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/meridianhq/meridian/bus"
	"github.com/meridianhq/meridian/logger"
	"github.com/meridianhq/meridian/signal"
)

var (
	signalsClaimFlag  string
	signalsLimitFlag  int
	signalsCursorFlag string
)

// SignalsCmd inspects the ledger
var SignalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Inspect the signal ledger",
	Long: `Inspect the signal ledger.

Examples:
  meridian signals ls acct_acme
  meridian signals ls acct_acme --claim renewal_risk --limit 20`,
}

var signalsLsCmd = &cobra.Command{
	Use:   "ls <entity-id>",
	Short: "List signals for an entity in insertion order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, rules, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg, "")
		if err != nil {
			return err
		}
		defer database.Close()

		b := bus.New(ctx, database, cfg, rules, nil, logger.Logger)

		signals, next, err := b.GetForEntity(ctx, args[0], signal.ListOptions{
			ClaimType: signalsClaimFlag,
			Limit:     signalsLimitFlag,
			Cursor:    signalsCursorFlag,
		})
		if err != nil {
			return err
		}

		if len(signals) == 0 {
			fmt.Println("No signals")
			return nil
		}

		rows := pterm.TableData{{"ID", "CLAIM", "CONF", "SOURCE", "ACTIVE", "OBSERVED"}}
		for _, s := range signals {
			active := "yes"
			if !s.Active {
				active = "no"
			}
			claim := s.ClaimType
			if s.Retraction {
				claim += " (retraction)"
			}
			rows = append(rows, []string{
				s.ID[:16], claim,
				fmt.Sprintf("%.2f", s.Confidence),
				string(s.Source), active,
				s.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
			return err
		}
		if next != "" {
			fmt.Printf("More: --cursor %s\n", next)
		}
		return nil
	},
}

// CalloutsCmd shows the strongest current evidence for an entity
var CalloutsCmd = &cobra.Command{
	Use:   "callouts <entity-id>",
	Short: "Show an entity's strongest current evidence",
	Long: `Show an entity's strongest current evidence: fused claims plus the top
active signals ranked by effective (decayed) confidence.

Example:
  meridian callouts acct_acme --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, rules, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg, "")
		if err != nil {
			return err
		}
		defer database.Close()

		b := bus.New(ctx, database, cfg, rules, nil, logger.Logger)

		results, err := b.GetFusion(ctx, args[0])
		if err != nil {
			return err
		}
		if len(results) > 0 {
			pterm.DefaultSection.Println("Fused claims")
			rows := pterm.TableData{{"CLAIM", "COMBINED", "SIGNALS"}}
			for _, r := range results {
				rows = append(rows, []string{
					r.ClaimType,
					fmt.Sprintf("%.3f", r.Combined),
					fmt.Sprintf("%d", len(r.ContributingSignalIDs)),
				})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return err
			}
		}

		callouts, err := b.GetCallouts(ctx, args[0], calloutsLimitFlag)
		if err != nil {
			return err
		}
		if len(callouts) == 0 && len(results) == 0 {
			fmt.Println("Nothing to call out")
			return nil
		}
		if len(callouts) > 0 {
			pterm.DefaultSection.Println("Top signals")
			for _, c := range callouts {
				fmt.Printf("  %s\n", c.Summary)
			}
		}
		return nil
	},
}

var calloutsLimitFlag int

func init() {
	signalsLsCmd.Flags().StringVar(&signalsClaimFlag, "claim", "", "Filter by claim type")
	signalsLsCmd.Flags().IntVar(&signalsLimitFlag, "limit", 50, "Page size")
	signalsLsCmd.Flags().StringVar(&signalsCursorFlag, "cursor", "", "Resume from a previous page")
	SignalsCmd.AddCommand(signalsLsCmd)

	CalloutsCmd.Flags().IntVar(&calloutsLimitFlag, "limit", 10, "Maximum signals to show")
}
