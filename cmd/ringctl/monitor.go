package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/learnzy-life/daring-health-bridge/internal/bridge"
	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/device"
	"github.com/learnzy-life/daring-health-bridge/internal/device/goble"
	"github.com/learnzy-life/daring-health-bridge/internal/measure"
	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
	"github.com/learnzy-life/daring-health-bridge/internal/session"
	"github.com/learnzy-life/daring-health-bridge/pkg/config"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <address>",
	Short: "Connect to a ring and stream live measurements",
	Long: `Connect to the ring at the given address, start the requested
measurements, and print readings as they arrive until Ctrl+C.

Example:

  ringctl monitor AA:BB:CC:DD:EE:FF -m heart_rate -m blood_oxygen`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var monitorCapabilities []string

func init() {
	monitorCmd.Flags().StringSliceVarP(&monitorCapabilities, "measure", "m", []string{"heart_rate"},
		"Measurements to start (repeatable)")
}

// addressHandle is a bare DeviceInfo for connecting by address without
// a prior scan.
type addressHandle struct {
	addr string
}

var _ device.DeviceInfo = (*addressHandle)(nil)

func (h *addressHandle) ID() string                   { return h.addr }
func (h *addressHandle) Name() string                 { return h.addr }
func (h *addressHandle) Address() string              { return h.addr }
func (h *addressHandle) RSSI() int                    { return 0 }
func (h *addressHandle) TxPower() *int                { return nil }
func (h *addressHandle) IsConnectable() bool          { return true }
func (h *addressHandle) AdvertisedServices() []string { return nil }

func runMonitor(cmd *cobra.Command, args []string) error {
	address := args[0]

	caps := make([]catalog.Capability, 0, len(monitorCapabilities))
	for _, raw := range monitorCapabilities {
		c := catalog.Capability(raw)
		if !catalog.IsValid(c) {
			return &catalog.UnsupportedCapabilityError{Capability: c}
		}
		caps = append(caps, c)
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
	ctrl := measure.NewController(sess, logger)

	b, err := bridge.New(sess, ctrl, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	events, cancelListen := sess.Listen()
	defer cancelListen()

	progress := NewProgressPrinter("Connecting to "+address, "Connecting")
	progress.Start()
	err = sess.Connect(ctx, &addressHandle{addr: address})
	progress.Stop()
	if err != nil {
		return err
	}
	defer sess.Disconnect() //nolint:errcheck

	for _, c := range caps {
		if res := b.StartMeasuring(c); !res.Success {
			fmt.Println(color.YellowString("! %s", res.Message))
		}
	}
	defer func() {
		for _, c := range caps {
			b.StopMeasuring(c)
		}
	}()

	printStatus(sess)
	fmt.Println("Streaming measurements, Ctrl+C to stop...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

// newSession builds a session wired to the real BLE stack.
func newSession(cfg *config.Config, logger *logrus.Logger) *session.Session {
	return session.New(session.Options{
		Scanner:          goble.NewScanner(logger),
		TransportFactory: func() device.Transport { return goble.NewTransport(logger) },
		ConnectTimeout:   cfg.ConnectTimeout,
		Logger:           logger,
	})
}

func printStatus(sess *session.Session) {
	st := sess.Snapshot()
	line := fmt.Sprintf("Connected to %s", st.DeviceName)
	if st.Battery != nil {
		line += fmt.Sprintf(" (battery %d%%)", *st.Battery)
	}
	fmt.Println(color.GreenString(line))
}

func printEvent(ev session.MeasurementEvent) {
	ts := ev.At.Format(time.TimeOnly)
	label := strings.ReplaceAll(string(ev.Capability), "_", " ")
	value := formatMeasurement(ev.Measurement)

	if ev.Measurement.Status == protocol.StatusError {
		fmt.Printf("%s  %-14s %s\n", ts, label, color.RedString("device reported an error"))
		return
	}
	if ev.Measurement.Status == protocol.StatusMeasuring {
		fmt.Printf("%s  %-14s %s\n", ts, label, color.New(color.Faint).Sprint("measuring..."))
		return
	}
	fmt.Printf("%s  %-14s %s\n", ts, label, color.CyanString(value))
}

func formatMeasurement(m *protocol.Measurement) string {
	switch {
	case m.HeartRate != nil:
		return fmt.Sprintf("%d bpm", m.HeartRate.BPM)
	case m.HRV != nil:
		return fmt.Sprintf("%d ms", m.HRV.ValueMs)
	case m.BloodOxygen != nil:
		return fmt.Sprintf("%d%%", m.BloodOxygen.Percent)
	case m.Stress != nil:
		return fmt.Sprintf("%d (%s)", m.Stress.Score, m.Stress.Level)
	case m.Temperature != nil:
		return fmt.Sprintf("%.1f °C", m.Temperature.Celsius)
	case m.Steps != nil:
		return fmt.Sprintf("%d steps", m.Steps.Count)
	case m.Battery != nil:
		return fmt.Sprintf("%d%%", m.Battery.Percent)
	case m.Sleep != nil:
		return fmt.Sprintf("%.1f h total", m.Sleep.DurationH)
	case m.DeviceInfo != nil:
		return m.DeviceInfo.Firmware
	}
	return "(no value)"
}
