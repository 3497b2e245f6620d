package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/device/bluez"
	"github.com/srg/blemon/internal/reading"
	"github.com/srg/blemon/monitor"
	"github.com/srg/blemon/pkg/config"
	"github.com/srg/blemon/server"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <address>",
	Short: "Stream decoded sensor readings from a BLE peripheral",
	Long: fmt.Sprintf(`Connect to a BLE peripheral, subscribe to up to %d characteristics and
print a status line every time a notification is decoded.

Targets come from a built-in profile (%s)
or from explicit --char <service>/<characteristic> pairs.

Press Ctrl+C to disconnect.`, monitor.MaxTargets, strings.Join(monitor.ProfileNames(), ", ")),
	Example: `  blemon monitor C7:95:DA:5F:44:8A
  blemon monitor C7:95:DA:5F:44:8A --profile heart-rate --rssi
  blemon monitor C7:95:DA:5F:44:8A --char 181a/2a6e --char 181a/2a6f --listen :8080`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var (
	monitorProfile string
	monitorChars   []string
	monitorTimeout time.Duration
	monitorRSSI    bool
	monitorForget  bool
	monitorListen  string
)

// newForgetter is replaced in tests.
var newForgetter = func(logger *logrus.Logger) device.Forgetter {
	return bluez.NewForgetter(logger)
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorProfile, "profile", "p", "environmental", "Built-in target profile")
	monitorCmd.Flags().StringSliceVarP(&monitorChars, "char", "c", nil, "Explicit <service>/<characteristic> target (repeatable)")
	monitorCmd.Flags().DurationVarP(&monitorTimeout, "timeout", "t", 30*time.Second, "Connection timeout (0 waits for the platform)")
	monitorCmd.Flags().BoolVar(&monitorRSSI, "rssi", false, "Read the signal strength after every notification")
	monitorCmd.Flags().BoolVar(&monitorForget, "forget", false, "Remove pairing and cached GATT state before disconnecting")
	monitorCmd.Flags().StringVarP(&monitorListen, "listen", "l", "", "Serve readings over HTTP/WebSocket on this address, e.g. :8080")
}

func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("profile") {
		cfg.Monitor.Profile = monitorProfile
	}
	if flags.Changed("char") {
		cfg.Monitor.Characteristics = monitorChars
	}
	if flags.Changed("timeout") {
		cfg.Monitor.ConnectTimeout = monitorTimeout
	}
	if flags.Changed("rssi") {
		cfg.Monitor.ReadRSSI = monitorRSSI
	}
	if flags.Changed("forget") {
		cfg.Monitor.Forget = monitorForget
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = monitorListen
	}
}

// resolveTargets prefers explicit characteristics over the profile.
func resolveTargets(cfg config.MonitorConfig) ([]monitor.Target, error) {
	if len(cfg.Characteristics) == 0 {
		return monitor.ProfileTargets(cfg.Profile)
	}
	targets := make([]monitor.Target, 0, len(cfg.Characteristics))
	for _, s := range cfg.Characteristics {
		t, err := monitor.ParseTarget(s)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyMonitorFlags(cmd, cfg)

	targets, err := resolveTargets(cfg.Monitor)
	if err != nil {
		return err
	}
	opts := monitor.Options{
		Address:        args[0],
		Targets:        targets,
		ConnectTimeout: cfg.Monitor.ConnectTimeout,
		ReadRSSI:       cfg.Monitor.ReadRSSI,
		Forget:         cfg.Monitor.Forget,
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	return monitorSession(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts, logger)
}

// monitorSession runs one monitor session until ctx is cancelled or the
// session fails. Readings are printed to out, state changes to errOut.
func monitorSession(ctx context.Context, out, errOut io.Writer, cfg *config.Config, opts monitor.Options, logger *logrus.Logger) error {
	progress := NewProgressPrinter(errOut, fmt.Sprintf("Connecting to %s", opts.Address), monitor.StateConnecting.String(), 0)
	failed := make(chan error, 1)
	store := reading.NewStore()

	listener := monitor.ListenerFuncs{
		StateChanged: func(from, to monitor.State) {
			switch to {
			case monitor.StateStreaming:
				progress.Stop()
				printState(errOut, to)
			case monitor.StateError, monitor.StateIdle:
				progress.Stop()
			default:
				progress.SetPhase(to.String())
			}
		},
		Reading: func(r reading.Reading) {
			fmt.Fprintln(out, statusLine(store, r.At))
		},
		Error: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	}

	options := []monitor.Option{monitor.WithStore(store), monitor.WithListener(listener)}
	if opts.Forget {
		options = append(options, monitor.WithForgetter(newForgetter(logger)))
	}
	m := monitor.New(newCentral(logger), logger, options...)
	defer m.Close()

	if cfg.Server.Listen != "" {
		srv := server.New(store, logger)
		if err := srv.Start(cfg.Server.Listen); err != nil {
			return err
		}
		fmt.Fprintf(errOut, "Serving readings on http://%s (/data, /ws)\n", srv.Addr())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	progress.Start()
	defer progress.Stop()

	if err := m.Start(ctx, opts); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(errOut, "\nDisconnecting...")
		_ = m.Stop()
		return nil
	case err := <-failed:
		_ = m.Stop()
		return err
	}
}

// statusLine renders "[15:04:05] temperature: 20.37 °C | humidity: -- | ...".
func statusLine(store *reading.Store, at time.Time) string {
	return fmt.Sprintf("[%s] %s", at.Format("15:04:05"), store.Summary())
}

func printState(w io.Writer, s monitor.State) {
	c := color.New(color.FgCyan)
	if s == monitor.StateError {
		c = color.New(color.FgRed)
	}
	_, _ = c.Fprintf(w, "● %s\n", s)
}
