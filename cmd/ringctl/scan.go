package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/device"
	"github.com/learnzy-life/daring-health-bridge/internal/device/goble"
	"github.com/learnzy-life/daring-health-bridge/pkg/config"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for smart rings",
	Long: `Scan for nearby BLE peripherals and display the ones that look like
smart rings, with their names, addresses, and signal strength.

By default only devices advertising the ring's vendor measurement
service are shown; use --all to list every BLE device in range.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAll       bool
	scanAllowList []string
	scanBlockList []string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "Show all BLE devices, not just rings")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be table or json", scanFormat)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	duration := cfg.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	allowList := cfg.AllowList
	if len(scanAllowList) > 0 {
		allowList = scanAllowList
	}
	blockList := cfg.BlockList
	if len(scanBlockList) > 0 {
		blockList = scanBlockList
	}

	opts := &device.ScanOptions{
		Duration:        duration,
		DuplicateFilter: true,
		AllowList:       allowList,
		BlockList:       blockList,
	}
	if !scanAll {
		opts.ServiceUUIDs = []string{catalog.ControlService.String()}
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	progress := NewCountdownProgressPrinter("Scanning for rings", "Scanning", duration)
	progress.Start()
	defer progress.Stop()

	s := goble.NewScanner(logger)
	err = s.Scan(ctx, opts, nil)
	progress.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return displayDevices(s.Devices(), scanFormat)
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func displayDevices(devices []device.DeviceInfo, format string) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].RSSI() > devices[j].RSSI()
	})

	if format == "json" {
		var w io.Writer = os.Stdout
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(deviceRows(devices))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, dev := range devices {
		name := dev.Name()
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(dev.AdvertisedServices(), ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, dev.Address(), dev.RSSI(), services)
	}
	return w.Flush()
}

type deviceRow struct {
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	RSSI     int      `json:"rssi"`
	Services []string `json:"services,omitempty"`
}

func deviceRows(devices []device.DeviceInfo) []deviceRow {
	rows := make([]deviceRow, 0, len(devices))
	for _, dev := range devices {
		rows = append(rows, deviceRow{
			Name:     dev.Name(),
			Address:  dev.Address(),
			RSSI:     dev.RSSI(),
			Services: dev.AdvertisedServices(),
		})
	}
	return rows
}
