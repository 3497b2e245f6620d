package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blemon/inspector"
	"github.com/srg/blemon/internal/bledb"
	"github.com/srg/blemon/internal/device"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "List the services and characteristics of a BLE device",
	Long: `Connects to a BLE device by address and discovers its services and
characteristics. Characteristics the monitor can decode are marked, and the
<service>/<characteristic> pair shown can be passed to "monitor --char".`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectConnectTimeout time.Duration
	inspectJSON           bool
)

func init() {
	inspectCmd.Flags().DurationVar(&inspectConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	_, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	address, err := device.NormalizeAddress(args[0])
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Inspecting device %s", address), "Connecting", 0)
	progress.Start()
	defer progress.Stop()

	profile, err := inspector.InspectDevice(ctx, newCentral(logger), address,
		&inspector.InspectOptions{ConnectTimeout: inspectConnectTimeout}, logger, progress.SetPhase,
		func(_ device.Client, p *device.Profile) (*device.Profile, error) { return p, nil })
	progress.Stop()
	if err != nil {
		return err
	}

	if inspectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	}
	return displayProfile(cmd.OutOrStdout(), profile)
}

func displayProfile(w io.Writer, profile *device.Profile) error {
	if len(profile.Services) == 0 {
		fmt.Fprintln(w, "No services discovered")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, svc := range profile.Services {
		fmt.Fprintf(tw, "%s\t%s\t\t\n", svc.UUID, nameOrDash(bledb.LookupService(svc.UUID)))
		for _, c := range svc.Characteristics {
			target := svc.UUID + "/" + c.UUID
			note := ""
			if device.IsDecodableCharacteristic(c.UUID) && c.Properties.CanNotify() {
				note = "monitor: " + target
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", c.UUID, nameOrDash(bledb.LookupCharacteristic(c.UUID)), c.Properties, note)
		}
	}
	return tw.Flush()
}

func nameOrDash(name string) string {
	if name == "" {
		return "-"
	}
	return name
}
