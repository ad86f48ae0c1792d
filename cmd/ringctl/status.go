package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
	"github.com/learnzy-life/daring-health-bridge/pkg/config"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <address>",
	Short: "Show the ring's identity, battery, and daily totals",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var statusFormat string

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "Output format (text, json)")
}

type statusOutput struct {
	Device   string                 `json:"device"`
	Address  string                 `json:"address"`
	Battery  *int                   `json:"battery,omitempty"`
	Firmware string                 `json:"firmware,omitempty"`
	Steps    *protocol.StepsReading `json:"steps,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	address := args[0]

	if statusFormat != "text" && statusFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be text or json", statusFormat)
	}

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

	snapshot := sess.Snapshot()
	out := statusOutput{
		Device:  snapshot.DeviceName,
		Address: address,
		Battery: snapshot.Battery,
	}

	// Identity and daily totals are one-shot reads; either may be
	// unsupported by the firmware, so failures just leave fields empty.
	if data, err := sess.ReadCapability(catalog.DeviceInfo); err == nil {
		if m, err := protocol.DecodeDeviceInfo(data); err == nil {
			out.Firmware = m.DeviceInfo.Firmware
		}
	}
	if data, err := sess.ReadCapability(catalog.Steps); err == nil {
		if m, err := protocol.DecodeSteps(data); err == nil {
			out.Steps = m.Steps
		}
	}

	if statusFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	fmt.Println(color.GreenString("Connected to %s", out.Device))
	if out.Firmware != "" {
		fmt.Printf("Firmware: %s\n", out.Firmware)
	}
	if out.Battery != nil {
		fmt.Printf("Battery:  %d%%\n", *out.Battery)
	}
	if out.Steps != nil {
		fmt.Printf("Steps:    %d", out.Steps.Count)
		if out.Steps.DistanceM != nil {
			fmt.Printf("  (%d m", *out.Steps.DistanceM)
			if out.Steps.Calories != nil {
				fmt.Printf(", %d kcal", *out.Steps.Calories)
			}
			fmt.Print(")")
		}
		fmt.Println()
	}
	return nil
}
