package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/pkg/config"
	"github.com/srg/blemon/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Discovered peripherals are listed with their name, address, signal strength
and advertised services. With --watch the table is redrawn continuously and
peripherals that stop advertising are dropped after --expire.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
	scanWatch       bool
	scanExpire      time.Duration
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and update results")
	scanCmd.Flags().DurationVar(&scanExpire, "expire", 30*time.Second, "Drop devices not seen for this long in watch mode")
}

// applyScanFlags overrides config values with the flags the user actually set.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.OutputFormat = scanFormat
	}
	if flags.Changed("duration") {
		cfg.Scan.Duration = scanDuration
	}
	if flags.Changed("services") {
		cfg.Scan.Services = scanServices
	}
	if flags.Changed("allow") {
		cfg.Scan.AllowList = scanAllowList
	}
	if flags.Changed("block") {
		cfg.Scan.BlockList = scanBlockList
	}
	if flags.Changed("no-duplicates") {
		cfg.Scan.DuplicateFilter = scanNoDuplicate
	}
	if flags.Changed("expire") {
		cfg.Scan.ExpireAfter = scanExpire
	}
	return cfg.Validate()
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyScanFlags(cmd, cfg); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := &scanner.ScanOptions{
		Duration:        cfg.Scan.Duration,
		DuplicateFilter: cfg.Scan.DuplicateFilter,
		ServiceUUIDs:    cfg.Scan.Services,
		AllowList:       cfg.Scan.AllowList,
		BlockList:       cfg.Scan.BlockList,
	}

	s := scanner.NewScanner(newCentral(logger), logger)
	defer s.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if scanWatch {
		if !cmd.Flags().Changed("duration") {
			opts.Duration = 0
		}
		opts.ExpireAfter = cfg.Scan.ExpireAfter
		return runWatchMode(ctx, cmd.OutOrStdout(), s, opts, cfg.OutputFormat, logger)
	}
	return runSingleScan(ctx, cmd, s, opts, cfg.OutputFormat, logger)
}

func runSingleScan(ctx context.Context, cmd *cobra.Command, s *scanner.Scanner, opts *scanner.ScanOptions, format string, logger *logrus.Logger) error {
	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", opts.Duration)
	progress.Start()

	devices, err := s.Scan(ctx, opts, nil)
	progress.Stop()
	if err != nil {
		logger.WithError(err).Error("Scan failed")
		return err
	}
	return displayDevices(cmd.OutOrStdout(), devices, format, time.Now())
}

func runWatchMode(ctx context.Context, out io.Writer, s *scanner.Scanner, opts *scanner.ScanOptions, format string, logger *logrus.Logger) error {
	finished := make(chan struct{})
	var failure *device.ScanError
	listener := scanner.ListenerFuncs{
		ScanFailed: func(err *device.ScanError) { failure = err },
		ScanStatusChanged: func(scanning bool) {
			if !scanning {
				close(finished)
			}
		},
	}
	if err := s.Start(ctx, opts, listener); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	redraw := func() error {
		clearScreen(out)
		return displayDevices(out, s.Devices(), format, time.Now())
	}

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return redraw()
		case <-finished:
			// failure is written before the status change on the same goroutine
			if failure != nil {
				logger.WithError(failure).Error("Scan failed")
				return failure
			}
			return redraw()
		case <-ticker.C:
			if err := redraw(); err != nil {
				return err
			}
		}
	}
}

func displayDevices(w io.Writer, devices []device.Peripheral, format string, now time.Time) error {
	if format == "json" {
		return displayDevicesJSON(w, devices)
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices discovered")
		return nil
	}
	return displayDevicesTable(w, devices, now)
}

func displayDevicesTable(w io.Writer, devices []device.Peripheral, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")

	for _, dev := range devices {
		name := dev.DisplayName()
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(dev.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		lastSeen := now.Sub(dev.LastSeen).Truncate(time.Second)
		if lastSeen < 0 {
			lastSeen = 0
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s ago\n",
			name, dev.Address, rssiText(dev.RSSI), services, lastSeen)
	}

	return tw.Flush()
}

// rssiText colours the signal strength when colour output is enabled.
func rssiText(rssi int) string {
	text := fmt.Sprintf("%d dBm", rssi)
	switch {
	case rssi >= -60:
		return color.GreenString(text)
	case rssi >= -80:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

func displayDevicesJSON(w io.Writer, devices []device.Peripheral) error {
	if devices == nil {
		devices = []device.Peripheral{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
