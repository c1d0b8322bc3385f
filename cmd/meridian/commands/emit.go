package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridianhq/meridian/bus"
	"github.com/meridianhq/meridian/logger"
	"github.com/meridianhq/meridian/signal"
)

var (
	emitEntityFlag     string
	emitClaimFlag      string
	emitConfidenceFlag float64
	emitSourceFlag     string
	emitPayloadFlag    string
	emitWaitFlag       bool
)

// EmitCmd appends one signal to the ledger
var EmitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Emit a signal into the ledger",
	Long: `Emit a signal into the ledger.

The command returns as soon as the signal and its recompute job are durably
written. With --wait it additionally drains the recompute queue so fusion
and propagation results are visible immediately, which is what you want in
scripts.

Examples:
  meridian emit --entity acct_acme --claim renewal_risk --confidence 0.7 --source meeting \
      --payload "CFO asked about contract exit clauses"
  meridian emit --entity person_dana --claim champion_departure --confidence 0.9 --source manual --wait`,
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

		sig, err := b.Emit(ctx, signal.EmitRequest{
			EntityID:   emitEntityFlag,
			ClaimType:  emitClaimFlag,
			Confidence: emitConfidenceFlag,
			Source:     signal.Source(emitSourceFlag),
			Payload:    emitPayloadFlag,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Emitted %s\n", sig.ID)

		if emitWaitFlag {
			if err := b.Drain(ctx); err != nil {
				return err
			}
			results, err := b.GetFusion(ctx, emitEntityFlag)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("  %s: %.3f\n", r.ClaimType, r.Combined)
			}
		}
		return nil
	},
}

// FeedbackCmd retracts an earlier signal
var FeedbackCmd = &cobra.Command{
	Use:   "feedback <signal-id>",
	Short: "Record feedback against an earlier signal",
	Long: `Record feedback against an earlier signal.

Feedback appends a manual retraction; the original signal is never edited.
A strength of 1.0 fully discounts the claim's evidence, 0.5 halves it.

Example:
  meridian feedback sig_01a2b3... --strength 1.0 --wait`,
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

		retr, err := b.RecordFeedback(ctx, args[0], feedbackStrengthFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded retraction %s against %s\n", retr.ID, args[0])

		if feedbackWaitFlag {
			return b.Drain(ctx)
		}
		return nil
	},
}

var (
	feedbackStrengthFlag float64
	feedbackWaitFlag     bool
)

func init() {
	EmitCmd.Flags().StringVar(&emitEntityFlag, "entity", "", "Entity the signal is about (required)")
	EmitCmd.Flags().StringVar(&emitClaimFlag, "claim", "", "Claim type, e.g. renewal_risk (required)")
	EmitCmd.Flags().Float64Var(&emitConfidenceFlag, "confidence", 0, "Confidence in [0,1] (required)")
	EmitCmd.Flags().StringVar(&emitSourceFlag, "source", "manual", "Source: meeting, email or manual")
	EmitCmd.Flags().StringVar(&emitPayloadFlag, "payload", "", "Free-text evidence")
	EmitCmd.Flags().BoolVar(&emitWaitFlag, "wait", false, "Drain the recompute queue before returning")
	EmitCmd.MarkFlagRequired("entity")
	EmitCmd.MarkFlagRequired("claim")
	EmitCmd.MarkFlagRequired("confidence")

	FeedbackCmd.Flags().Float64Var(&feedbackStrengthFlag, "strength", 1.0, "Retraction strength in [0,1]")
	FeedbackCmd.Flags().BoolVar(&feedbackWaitFlag, "wait", false, "Drain the recompute queue before returning")
}
