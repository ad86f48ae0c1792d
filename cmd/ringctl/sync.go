package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
	"github.com/learnzy-life/daring-health-bridge/pkg/config"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync <address>",
	Short: "Sync the ring's clock and pull stored readings",
	Long: `Connect to the ring at the given address, push the current time and
the configured user profile, read every stored measurement, and print a
per-item report. Individual item failures are reported but do not abort
the sync.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var syncSkipProfile bool

func init() {
	syncCmd.Flags().BoolVar(&syncSkipProfile, "skip-profile", false, "Do not push the user profile")
}

func runSync(cmd *cobra.Command, args []string) error {
	address := args[0]

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	sess := newSession(cfg, logger)

	progress := NewProgressPrinter("Connecting to "+address, "Connecting")
	progress.Start()
	err = sess.Connect(ctx, &addressHandle{addr: address})
	progress.Stop()
	if err != nil {
		return err
	}
	defer sess.Disconnect() //nolint:errcheck

	if !syncSkipProfile {
		profile := protocol.UserProfile{
			WeightKg:     cfg.Profile.WeightKg,
			HeightCm:     cfg.Profile.HeightCm,
			Gender:       cfg.Profile.Gender,
			AgeYears:     cfg.Profile.AgeYears,
			StepLengthCm: cfg.Profile.StepLengthCm,
		}
		if err := sess.SendProfile(profile); err != nil {
			fmt.Println(color.YellowString("! profile push failed: %v", err))
		}
	}

	syncCtx, cancelSync := context.WithTimeout(ctx, cfg.SyncTimeout)
	defer cancelSync()

	progress = NewProgressPrinter("Syncing", "Reading")
	progress.Start()
	report, err := sess.Sync(syncCtx)
	progress.Stop()
	if err != nil {
		return err
	}

	for _, item := range report.Items {
		if item.OK {
			fmt.Printf("  %s %s\n", color.GreenString("ok"), item.Name)
		} else {
			fmt.Printf("  %s %s: %s\n", color.RedString("failed"), item.Name, item.Error)
		}
	}
	if report.Battery != nil {
		fmt.Printf("Battery: %d%%\n", *report.Battery)
	}

	elapsed := report.CompletedAt.Sub(report.StartedAt).Truncate(time.Millisecond)
	if failed := report.Failed(); len(failed) > 0 {
		fmt.Printf("Sync finished in %s with %d item(s) skipped\n", elapsed, len(failed))
	} else {
		fmt.Printf("Sync finished in %s\n", elapsed)
	}
	return nil
}
