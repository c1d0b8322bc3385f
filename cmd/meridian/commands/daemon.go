package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianhq/meridian/bus"
	"github.com/meridianhq/meridian/config"
	"github.com/meridianhq/meridian/logger"
	"github.com/meridianhq/meridian/signal/enrich"
)

var daemonWorkersFlag int

// DaemonCmd runs the Signal Bus in the foreground
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the Signal Bus daemon",
	Long: `Run the Signal Bus daemon in the foreground.

The daemon starts:
- the recompute worker pool draining the persisted job queue
- a decay ticker retiring stale signals on the configured interval
- an enrichment ticker scanning for entities worth a synthesis pass
- a rules file watcher, so weight and propagation edits apply live

It runs until interrupted (Ctrl+C) and shuts down gracefully, letting
in-flight recomputes finish.

Example:
  meridian daemon --workers 2`,
	RunE: runDaemon,
}

func init() {
	DaemonCmd.Flags().IntVar(&daemonWorkersFlag, "workers", 0, "Worker count (overrides configuration)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, rules, err := loadConfig()
	if err != nil {
		return err
	}
	if daemonWorkersFlag > 0 {
		cfg.Bus.Workers = daemonWorkersFlag
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var synthesizer enrich.Synthesizer
	if cfg.Enrich.SynthesizerURL != "" {
		synthesizer, err = enrich.NewHTTPSynthesizer(cfg.Enrich.SynthesizerURL, cfg.Enrich.AllowPrivateSynth, logger.Logger)
		if err != nil {
			return err
		}
	}

	b := bus.New(ctx, database, cfg, rules, synthesizer, logger.Logger)

	b.Pool().Start()

	var tickers []*bus.Ticker
	if cfg.Decay.SweepIntervalSeconds > 0 {
		decayTicker := bus.NewTicker(ctx, "decay",
			time.Duration(cfg.Decay.SweepIntervalSeconds)*time.Second,
			func(ctx context.Context) error {
				_, err := b.Sweeper().Run(ctx)
				return err
			}, logger.Logger)
		decayTicker.Start()
		tickers = append(tickers, decayTicker)
	}
	if cfg.Enrich.TickerIntervalSeconds > 0 {
		enrichTicker := bus.NewTicker(ctx, "enrich",
			time.Duration(cfg.Enrich.TickerIntervalSeconds)*time.Second,
			func(ctx context.Context) error {
				_, err := b.Enrichment().RunOnce(ctx)
				return err
			}, logger.Logger)
		enrichTicker.Start()
		tickers = append(tickers, enrichTicker)
	}

	var watcher *config.RulesWatcher
	if cfg.Rules.Path != "" {
		watcher, err = config.NewRulesWatcher(cfg.Rules.Path)
		if err != nil {
			logger.Warnw("rules watcher unavailable", "error", err)
		} else {
			watcher.OnReload(func(reloaded *config.RulesFile) error {
				b.ReloadRules(reloaded)
				return nil
			})
			watcher.Start()
		}
	}

	fmt.Println("Meridian daemon started")
	fmt.Printf("  Workers:         %d\n", cfg.Bus.Workers)
	fmt.Printf("  Poll interval:   %ds\n", cfg.Bus.PollIntervalSeconds)
	fmt.Printf("  Decay sweep:     %ds\n", cfg.Decay.SweepIntervalSeconds)
	fmt.Printf("  Enrichment scan: %ds\n", cfg.Enrich.TickerIntervalSeconds)
	fmt.Println("\nPress Ctrl+C for graceful shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")

	// Reverse order of startup
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warnw("failed to stop rules watcher", "error", err)
		}
	}
	for i := len(tickers) - 1; i >= 0; i-- {
		tickers[i].Stop()
	}
	b.Pool().Stop()
	cancel()

	fmt.Println("Meridian daemon stopped")
	return nil
}
